package checker

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/HyphaGroup/parker/internal/metrics"
	"github.com/HyphaGroup/parker/internal/search"
)

// RunShared checks the space behind a shared generator with Workers
// independent goroutines. Each worker fetches its own batches and retries when
// the generator is busy; there is no pause and no backpressure.
//
// The tested marker only advances past a batch once every earlier batch has
// been checked too.
func (c *Checker) RunShared(ctx context.Context, gen *search.SharedGenerator) error {
	w := newWatermark(c.Tested())

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				if err := gCtx.Err(); err != nil {
					return err
				}
				batch, err := gen.TryFetchBatch(c.cfg.BatchSize)
				switch {
				case errors.Is(err, search.ErrBusy):
					c.addRetry()
					if err := c.limiter.Wait(gCtx); err != nil {
						return err
					}
					continue
				case errors.Is(err, search.ErrNotActive), errors.Is(err, search.ErrEmptyReturn):
					return nil
				case err != nil:
					return fmt.Errorf("fetching batch: %w", err)
				}

				// Sequential within the worker; the parallelism is across workers.
				var found []search.Triple
				for _, t := range batch.Triples {
					passed := t.PassesSquareTest()
					metrics.RecordSquareTest(passed)
					if passed {
						found = append(found, t)
					}
				}
				if err := c.record(batch.Triples, found); err != nil {
					return err
				}
				c.advance(w.complete(batch.Seq, batch.End))
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	st := c.Stats()
	c.logger.Info("shared search complete", "batches", st.Batches, "tested", st.Tested, "solutions", st.Solutions)
	return nil
}
