package search

import (
	"errors"
	"sync"
)

var (
	ErrBusy          = errors.New("generator is held by another worker")
	ErrNotActive     = errors.New("generator is no longer active")
	ErrEmptyReturn   = errors.New("no admissible triples remained")
	ErrInvalidAmount = errors.New("batch amount must be positive")
)

// SharedGenerator hands out batches from one Enumerator to several workers
// without a control plane. Workers that find the lock held get ErrBusy and are
// expected to retry; there is no pause, resume or backpressure.
type SharedGenerator struct {
	mu      sync.Mutex
	enum    *Enumerator
	active  bool
	fetches uint64
}

// SharedBatch is one successful fetch. Seq numbers fetches from zero in the
// order they were taken; End is the cursor just past everything fetched so far.
type SharedBatch struct {
	Seq     uint64
	Triples []Triple
	End     Cursor
}

// NewSharedGenerator creates a generator over the same space as NewEnumerator.
func NewSharedGenerator(ceiling uint64, start Cursor) (*SharedGenerator, error) {
	enum, err := NewEnumerator(ceiling, start)
	if err != nil {
		return nil, err
	}
	return &SharedGenerator{enum: enum, active: true}, nil
}

// TryFetch returns up to n admissible triples in enumeration order.
//
// A batch shorter than n means the ceiling was reached and the generator is
// deactivated after returning it. An empty fetch deactivates it too and returns
// ErrEmptyReturn; every later call returns ErrNotActive.
func (g *SharedGenerator) TryFetch(n int) ([]Triple, error) {
	b, err := g.TryFetchBatch(n)
	return b.Triples, err
}

// TryFetchBatch is TryFetch with the batch's sequence number and end cursor.
func (g *SharedGenerator) TryFetchBatch(n int) (SharedBatch, error) {
	if n <= 0 {
		return SharedBatch{}, ErrInvalidAmount
	}
	if !g.mu.TryLock() {
		return SharedBatch{}, ErrBusy
	}
	defer g.mu.Unlock()

	if !g.active {
		return SharedBatch{}, ErrNotActive
	}

	batch := make([]Triple, 0, n)
	for len(batch) < n {
		t, ok := g.enum.Next()
		if !ok {
			break
		}
		batch = append(batch, t)
	}

	if len(batch) < n {
		g.active = false
	}
	if len(batch) == 0 {
		return SharedBatch{}, ErrEmptyReturn
	}
	b := SharedBatch{Seq: g.fetches, Triples: batch, End: g.enum.Cursor()}
	g.fetches++
	return b, nil
}

// Active reports whether further fetches can return data.
func (g *SharedGenerator) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Cursor returns the current resumption point.
func (g *SharedGenerator) Cursor() Cursor {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enum.Cursor()
}
