package store

import (
	"errors"
	"os"
	"testing"

	"github.com/HyphaGroup/parker/internal/search"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "store_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	store, err := NewStore(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		t.Fatalf("Failed to create store: %v", err)
	}
	return store, func() {
		_ = store.Close()
		_ = os.RemoveAll(dir)
	}
}

func createTestRun(t *testing.T, store *Store, ceiling uint64) *Run {
	t.Helper()
	run := &Run{Ceiling: ceiling, Capacity: 64, Mode: "session"}
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	return run
}

func TestStore_CreateRun(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	run := &Run{
		Ceiling:  1300,
		Capacity: 64,
		Mode:     "session",
		Cursor:   search.Cursor{N: 11, Y: 24, Z: 49},
	}
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if run.ID == "" {
		t.Error("CreateRun() should set ID")
	}
	if run.Status != RunStatusRunning {
		t.Errorf("Status = %q, want %q", run.Status, RunStatusRunning)
	}

	got, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Ceiling != 1300 || got.Capacity != 64 || got.Mode != "session" {
		t.Errorf("GetRun() = %+v", got)
	}
	if got.Cursor != run.Cursor {
		t.Errorf("Cursor = %v, want %v", got.Cursor, run.Cursor)
	}
}

func TestStore_CreateRunInvalid(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	for _, ceiling := range []uint64{0, search.MaxCeiling + 1} {
		err := store.CreateRun(&Run{Ceiling: ceiling, Capacity: 1, Mode: "session"})
		if !errors.Is(err, ErrInvalidRun) {
			t.Errorf("CreateRun(ceiling=%d) error = %v, want %v", ceiling, err, ErrInvalidRun)
		}
	}
}

func TestStore_GetRunNotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if _, err := store.GetRun("run_missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() error = %v, want %v", err, ErrRunNotFound)
	}
	if _, err := store.LatestRun(1300); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("LatestRun() error = %v, want %v", err, ErrRunNotFound)
	}
}

func TestStore_LatestRun(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	createTestRun(t, store, 1300)
	other := createTestRun(t, store, 600)
	latest := createTestRun(t, store, 1300)

	got, err := store.LatestRun(1300)
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if got.ID != latest.ID {
		t.Errorf("LatestRun(1300) = %s, want %s", got.ID, latest.ID)
	}

	got, err = store.LatestRun(600)
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if got.ID != other.ID {
		t.Errorf("LatestRun(600) = %s, want %s", got.ID, other.ID)
	}

	runs, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 3 || runs[0].ID != latest.ID {
		t.Errorf("ListRuns() returned %d runs, first %v", len(runs), runs[0])
	}
}

func TestStore_SaveCheckpointNeverRegresses(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	run := createTestRun(t, store, 1300)

	steps := []struct {
		cursor  search.Cursor
		changed bool
		want    search.Cursor
	}{
		{search.Cursor{N: 11, Y: 24, Z: 49}, true, search.Cursor{N: 11, Y: 24, Z: 49}},
		{search.Cursor{N: 13, Y: 0, Z: 0}, true, search.Cursor{N: 13, Y: 0, Z: 0}},
		{search.Cursor{N: 11, Y: 48, Z: 0}, false, search.Cursor{N: 13, Y: 0, Z: 0}},
		{search.Cursor{N: 13, Y: 0, Z: 0}, false, search.Cursor{N: 13, Y: 0, Z: 0}},
		{search.Cursor{N: 13, Y: 0, Z: 1}, true, search.Cursor{N: 13, Y: 0, Z: 1}},
	}
	for i, step := range steps {
		changed, err := store.SaveCheckpoint(run.ID, step.cursor)
		if err != nil {
			t.Fatalf("step %d: SaveCheckpoint() error = %v", i, err)
		}
		if changed != step.changed {
			t.Errorf("step %d: SaveCheckpoint() changed = %v, want %v", i, changed, step.changed)
		}
		got, err := store.GetRun(run.ID)
		if err != nil {
			t.Fatalf("GetRun() error = %v", err)
		}
		if got.Cursor != step.want {
			t.Errorf("step %d: Cursor = %v, want %v", i, got.Cursor, step.want)
		}
	}

	if _, err := store.SaveCheckpoint("run_missing", search.Cursor{N: 1}); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("SaveCheckpoint() error = %v, want %v", err, ErrRunNotFound)
	}
}

func TestStore_SetStatus(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	run := createTestRun(t, store, 1300)
	if err := store.SetStatus(run.ID, RunStatusCompleted); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	got, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Status != RunStatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, RunStatusCompleted)
	}
	if got.Resumable() {
		t.Error("completed run should not be resumable")
	}

	if err := store.SetStatus("run_missing", RunStatusFailed); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("SetStatus() error = %v, want %v", err, ErrRunNotFound)
	}
}

func TestStore_Solutions(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	run := createTestRun(t, store, 1300)
	other := createTestRun(t, store, 1300)

	second := search.Triple{X: 625, Y: 0, Z: 600}
	first := search.Triple{X: 625, Y: 0, Z: 336}
	for _, tr := range []search.Triple{second, first, second} {
		if err := store.RecordSolution(run.ID, tr); err != nil {
			t.Fatalf("RecordSolution() error = %v", err)
		}
	}
	if err := store.RecordSolution(other.ID, first); err != nil {
		t.Fatalf("RecordSolution() error = %v", err)
	}

	sols, err := store.ListSolutions(run.ID)
	if err != nil {
		t.Fatalf("ListSolutions() error = %v", err)
	}
	if len(sols) != 2 {
		t.Fatalf("ListSolutions() returned %d, want 2", len(sols))
	}
	if sols[0].Triple != first || sols[1].Triple != second {
		t.Errorf("ListSolutions() = [%v %v], want [%v %v]", sols[0].Triple, sols[1].Triple, first, second)
	}
	if sols[0].RunID != run.ID || sols[0].ID == "" {
		t.Errorf("solution = %+v", sols[0])
	}
}
