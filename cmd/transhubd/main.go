package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sakenw/transhub/internal/config"
	"github.com/sakenw/transhub/internal/coordinator"
	"github.com/sakenw/transhub/internal/logger"
	"github.com/sakenw/transhub/internal/scheduler"
	"github.com/sakenw/transhub/internal/snowflake"
	"github.com/sakenw/transhub/internal/store"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	if err := snowflake.Init(1); err != nil {
		log.Fatalf("init snowflake: %v", err)
	}

	coord, err := coordinator.New(cfg, store.NewSQLite(cfg.DatabaseURL))
	if err != nil {
		log.Fatalf("build coordinator: %v", err)
	}
	if err := coord.Initialize(context.Background()); err != nil {
		log.Fatalf("initialize coordinator: %v", err)
	}

	if len(cfg.TargetLangs) == 0 {
		logger.Warn("no target languages configured; the worker will idle",
			"module", "main", "action", "drain", "resource", "translation", "result", "skipped")
	}

	sched := scheduler.New(coord, cfg)
	sched.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("shutting down...")

	sched.Stop()
	if err := coord.Close(); err != nil {
		log.Printf("close coordinator: %v", err)
	}
	log.Println("worker stopped")
}
