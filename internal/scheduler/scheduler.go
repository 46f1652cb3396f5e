// Package scheduler drives the queue in the background: a periodic tick
// drains pending work for the configured target languages and runs
// garbage collection once a day.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sakenw/transhub/internal/config"
	"github.com/sakenw/transhub/internal/coordinator"
	"github.com/sakenw/transhub/internal/logger"
	"github.com/sakenw/transhub/internal/model"
)

const gcInterval = 24 * time.Hour

type Scheduler struct {
	coord      *coordinator.Coordinator
	cfg        config.Config
	stopCh     chan struct{}
	wg         sync.WaitGroup
	cancelFunc context.CancelFunc // cancels the current drain
	mu         sync.Mutex         // protects cancelFunc
	lastGC     time.Time
}

func New(coord *coordinator.Coordinator, cfg config.Config) *Scheduler {
	return &Scheduler{
		coord:  coord,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	logger.Info("scheduler started",
		"module", "scheduler", "action", "drain", "resource", "translation",
		"result", "ok", "interval_ms", s.cfg.WorkerInterval.Milliseconds(),
		"langs", len(s.cfg.TargetLangs))
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	logger.Info("scheduler stopped",
		"module", "scheduler", "action", "drain", "resource", "translation", "result", "ok")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	s.tick()

	ticker := time.NewTicker(s.cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WorkerInterval)

	s.mu.Lock()
	s.cancelFunc = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.cancelFunc = nil
		s.mu.Unlock()
	}()

	for _, lang := range s.cfg.TargetLangs {
		s.drainLang(ctx, lang)
		if ctx.Err() != nil {
			return
		}
	}

	if s.cfg.GCRetentionDays > 0 && time.Since(s.lastGC) >= gcInterval {
		if _, err := s.coord.RunGC(ctx, s.cfg.GCRetentionDays, false); err != nil {
			logger.Error("scheduled gc failed",
				"module", "scheduler", "action", "gc", "resource", "store",
				"result", "failed", "error", err)
			return
		}
		s.lastGC = time.Now()
	}
}

func (s *Scheduler) drainLang(ctx context.Context, lang string) {
	resultCh, errCh, err := s.coord.ProcessPending(ctx, lang, nil)
	if err != nil {
		logger.Error("scheduled drain failed to start",
			"module", "scheduler", "action", "drain", "resource", "translation",
			"result", "failed", "lang", lang, "error", err)
		return
	}

	var translated, failed int
	for r := range resultCh {
		if r.Status == model.StatusTranslated {
			translated++
		} else {
			failed++
		}
	}
	if err := <-errCh; err != nil {
		if ctx.Err() != nil {
			logger.Warn("scheduled drain cancelled",
				"module", "scheduler", "action", "drain", "resource", "translation",
				"result", "cancelled", "lang", lang)
			return
		}
		logger.Error("scheduled drain failed",
			"module", "scheduler", "action", "drain", "resource", "translation",
			"result", "failed", "lang", lang, "error", err)
		return
	}

	if translated+failed > 0 {
		logger.Info("scheduled drain completed",
			"module", "scheduler", "action", "drain", "resource", "translation",
			"result", "ok", "lang", lang, "translated", translated, "failed", failed)
	}
}
