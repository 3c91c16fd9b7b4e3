package store

import (
	"time"

	"github.com/HyphaGroup/parker/internal/search"
)

// RunStatus defines the lifecycle of a search run
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"     // Checker is consuming batches
	RunStatusPaused      RunStatus = "paused"      // Paused through the control surface
	RunStatusInterrupted RunStatus = "interrupted" // Process stopped before the ceiling
	RunStatusCompleted   RunStatus = "completed"   // Every candidate below the ceiling was tested
	RunStatusFailed      RunStatus = "failed"
)

// Run is one search over [0, Ceiling) and how far it got
type Run struct {
	ID        string        `json:"id"`
	Ceiling   uint64        `json:"ceiling"`
	Capacity  int           `json:"capacity"`
	Mode      string        `json:"mode"`
	Cursor    search.Cursor `json:"cursor"`
	Status    RunStatus     `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Resumable reports whether a new process should continue this run
func (r *Run) Resumable() bool {
	return r.Status != RunStatusCompleted
}

// Solution is a triple whose eight combinations are all squares
type Solution struct {
	ID      string        `json:"id"`
	RunID   string        `json:"run_id"`
	Triple  search.Triple `json:"triple"`
	FoundAt time.Time     `json:"found_at"`
}
