// Package invalidation defines the cache invalidation event published
// when a category's trend data must be recomputed.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

type Event struct {
	Version  int       `json:"version"`
	Op       string    `json:"op"` // publish | update | delete
	Category string    `json:"category"`
	TS       time.Time `json:"ts"`
	// Seq orders events per category so replays and reorders are
	// dropped. Zero means the producer does not track sequence.
	Seq uint64 `json:"seq,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "publish", "update", "delete":
	default:
		return fmt.Errorf("op must be publish|update|delete")
	}
	if strings.TrimSpace(e.Category) == "" {
		return fmt.Errorf("category is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}
