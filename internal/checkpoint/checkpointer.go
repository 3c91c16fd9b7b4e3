// Package checkpoint periodically persists how far a search has been tested,
// so a restarted process resumes instead of enumerating from scratch.
package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/HyphaGroup/parker/internal/logger"
	"github.com/HyphaGroup/parker/internal/metrics"
	"github.com/HyphaGroup/parker/internal/search"
)

// ProgressSource reports the cursor below which every triple has been tested
type ProgressSource interface {
	Tested() search.Cursor
}

// Sink persists a checkpoint and reports whether the stored cursor moved
type Sink interface {
	SaveCheckpoint(runID string, cursor search.Cursor) (bool, error)
}

// Checkpointer saves the source's progress on a cron schedule
type Checkpointer struct {
	schedule cron.Schedule
	source   ProgressSource
	sink     Sink
	runID    string
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu        sync.Mutex
	last      search.Cursor
	lastSaved time.Time
	saves     int
}

// Status is a snapshot of checkpoint activity
type Status struct {
	RunID     string        `json:"run_id"`
	Cursor    search.Cursor `json:"cursor"`
	LastSaved time.Time     `json:"last_saved"`
	Saves     int           `json:"saves"`
	NextSave  time.Time     `json:"next_save"`
}

// New creates a checkpointer for runID driven by spec
func New(spec string, source ProgressSource, sink Sink, runID string) (*Checkpointer, error) {
	sched, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	return newWithSchedule(sched, source, sink, runID), nil
}

func newWithSchedule(sched cron.Schedule, source ProgressSource, sink Sink, runID string) *Checkpointer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Checkpointer{
		schedule: sched,
		source:   source,
		sink:     sink,
		runID:    runID,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the checkpoint loop
func (c *Checkpointer) Start() {
	c.wg.Add(1)
	go c.loop()
	logger.Info("Checkpointer started for run %s", c.runID)
}

// Stop ends the loop and writes a final checkpoint
func (c *Checkpointer) Stop() {
	c.cancel()
	c.wg.Wait()
	if _, err := c.SaveNow(); err != nil {
		logger.Error("Final checkpoint for run %s failed: %v", c.runID, err)
	}
	logger.Info("Checkpointer stopped for run %s", c.runID)
}

func (c *Checkpointer) loop() {
	defer c.wg.Done()

	for {
		next := c.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := c.SaveNow(); err != nil {
				logger.Error("Checkpoint for run %s failed: %v", c.runID, err)
			}
		}
	}
}

// SaveNow persists the current progress immediately
func (c *Checkpointer) SaveNow() (search.Cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cursor := c.source.Tested()
	changed, err := c.sink.SaveCheckpoint(c.runID, cursor)
	if err != nil {
		metrics.RecordCheckpoint("error")
		return c.last, err
	}
	if !changed {
		metrics.RecordCheckpoint("unchanged")
		return c.last, nil
	}

	c.last = cursor
	c.lastSaved = time.Now()
	c.saves++
	metrics.RecordCheckpoint("saved")
	logger.Info("Checkpoint saved for run %s at %s", c.runID, cursor)
	return cursor, nil
}

// Status returns the last saved checkpoint
func (c *Checkpointer) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		RunID:     c.runID,
		Cursor:    c.last,
		LastSaved: c.lastSaved,
		Saves:     c.saves,
		NextSave:  c.schedule.Next(time.Now()),
	}
}
