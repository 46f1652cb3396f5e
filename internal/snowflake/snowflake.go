package snowflake

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	mu   sync.Mutex
	node *snowflake.Node
)

// Init initializes the snowflake node with the given node ID.
// Node ID should be unique across all instances (0-1023).
func Init(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

// NextID generates a new unique snowflake ID. If Init was never called,
// a node with ID 0 is created on first use so library embedders get
// working IDs without explicit setup.
func NextID() int64 {
	mu.Lock()
	if node == nil {
		n, err := snowflake.NewNode(0)
		if err != nil {
			mu.Unlock()
			panic(err)
		}
		node = n
	}
	n := node
	mu.Unlock()
	return n.Generate().Int64()
}
