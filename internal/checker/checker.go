// Package checker consumes batches of candidate triples and runs the square
// test on them in parallel, recording every triple that passes.
package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/HyphaGroup/parker/internal/metrics"
	"github.com/HyphaGroup/parker/internal/search"
	"github.com/HyphaGroup/parker/internal/session"
)

const (
	DefaultBatchSize      = 1024
	DefaultRetryPerSecond = 20
)

// BatchSource delivers batches in enumeration order. *session.Session implements it.
type BatchSource interface {
	RequestBatch(ctx context.Context, amount int) (session.Batch, error)
}

// SolutionSink records triples that passed the square test. *store.Store implements it.
type SolutionSink interface {
	RecordSolution(runID string, t search.Triple) error
}

// Config configures a Checker
type Config struct {
	RunID          string
	BatchSize      int
	Workers        int
	RetryPerSecond float64
	Start          search.Cursor // tested marker before the first batch
	Logger         *slog.Logger
}

// Stats counts checker activity
type Stats struct {
	Batches   int64 `json:"batches"`
	Tested    int64 `json:"tested"`
	Solutions int64 `json:"solutions"`
	Retries   int64 `json:"retries"`
}

// Checker pulls batches, tests them and advances the tested marker.
type Checker struct {
	source  BatchSource
	sink    SolutionSink
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger

	mu     sync.Mutex
	tested search.Cursor
	stats  Stats
}

// New creates a checker. Zero config values take defaults.
func New(source BatchSource, sink SolutionSink, cfg Config) *Checker {
	cfg = withDefaults(cfg)
	return &Checker{
		source:  source,
		sink:    sink,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RetryPerSecond), 1),
		logger:  cfg.Logger,
		tested:  cfg.Start,
	}
}

func withDefaults(cfg Config) Config {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryPerSecond <= 0 {
		cfg.RetryPerSecond = DefaultRetryPerSecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// Run checks batches until the source delivers its final batch or ctx ends.
// A rejected request (the session is paused) is retried at the configured rate.
func (c *Checker) Run(ctx context.Context) error {
	for {
		batch, err := c.source.RequestBatch(ctx, c.cfg.BatchSize)
		if errors.Is(err, session.ErrRejected) {
			c.addRetry()
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("requesting batch: %w", err)
		}

		if err := c.checkBatch(ctx, batch.Triples); err != nil {
			return err
		}
		if len(batch.Triples) > 0 {
			c.advance(batch.Triples[len(batch.Triples)-1].Next())
		}
		if batch.Final {
			st := c.Stats()
			c.logger.Info("search complete", "batches", st.Batches, "tested", st.Tested, "solutions", st.Solutions)
			return nil
		}
	}
}

// checkBatch runs the square test across the worker pool and records
// solutions in enumeration order.
func (c *Checker) checkBatch(ctx context.Context, triples []search.Triple) error {
	start := time.Now()
	found, err := c.test(ctx, triples)
	if err != nil {
		return err
	}
	metrics.RecordBatchChecked(time.Since(start))
	return c.record(triples, found)
}

// record stores found and counts the batch.
func (c *Checker) record(triples, found []search.Triple) error {
	for _, t := range found {
		if err := c.sink.RecordSolution(c.cfg.RunID, t); err != nil {
			return fmt.Errorf("recording solution %s: %w", t, err)
		}
		metrics.RecordSolution()
		c.logger.Info("solution found", "triple", t.String())
	}

	c.mu.Lock()
	c.stats.Batches++
	c.stats.Tested += int64(len(triples))
	c.stats.Solutions += int64(len(found))
	c.mu.Unlock()
	return nil
}

// test splits triples into one chunk per worker and returns those passing the
// square test, in input order.
func (c *Checker) test(ctx context.Context, triples []search.Triple) ([]search.Triple, error) {
	if len(triples) == 0 {
		return nil, nil
	}
	chunk := (len(triples) + c.cfg.Workers - 1) / c.cfg.Workers
	passed := make([]bool, len(triples))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for lo := 0; lo < len(triples); lo += chunk {
		hi := min(lo+chunk, len(triples))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%1024 == 0 {
					if err := gCtx.Err(); err != nil {
						return err
					}
				}
				passed[i] = triples[i].PassesSquareTest()
				metrics.RecordSquareTest(passed[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var found []search.Triple
	for i, ok := range passed {
		if ok {
			found = append(found, triples[i])
		}
	}
	return found, nil
}

func (c *Checker) advance(cursor search.Cursor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tested.Less(cursor) {
		c.tested = cursor
	}
}

func (c *Checker) addRetry() {
	c.mu.Lock()
	c.stats.Retries++
	c.mu.Unlock()
}

// Tested returns the cursor below which every triple has been tested.
func (c *Checker) Tested() search.Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tested
}

// Stats returns a snapshot of checker counters
func (c *Checker) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
