// Package session is the consumer-side facade over a producer.
//
// A Session validates its local state before each request and turns producer
// responses into return values and errors. The local state only ever moves
// Active <-> Paused, then to Exhausted or Closed, which are terminal.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HyphaGroup/parker/internal/producer"
	"github.com/HyphaGroup/parker/internal/search"
)

// State represents the facade's local view of the session
type State string

const (
	StateActive    State = "active"    // Producer running, requests accepted
	StatePaused    State = "paused"    // Only Resume is meaningful
	StateExhausted State = "exhausted" // Ceiling reached and final batch delivered
	StateClosed    State = "closed"    // Producer went away
)

// Config configures the producer behind a session
type Config struct {
	Ceiling   uint64
	Capacity  int
	Start     search.Cursor
	PollEvery int
}

// Batch is the result of RequestBatch. Final marks the last delivery of the
// stream; Triples may then be shorter than requested, or empty.
type Batch struct {
	Triples []search.Triple `json:"triples"`
	Final   bool            `json:"final"`
}

// Info is a point-in-time snapshot of a session
type Info struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	Ceiling   uint64    `json:"ceiling"`
	Capacity  int       `json:"capacity"`
	CreatedAt time.Time `json:"created_at"`
	Batches   int64     `json:"batches"`
	Delivered int64     `json:"delivered"`
}

// Option configures a Session
type Option func(*Session)

// WithObserver attaches an observer to the producer
func WithObserver(o producer.Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithLogger sets the session logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session is safe for concurrent use. Requests are not serialized: a Progress
// or BufferedAmount call is answered while a RequestBatch is waiting.
type Session struct {
	id        string
	cfg       Config
	createdAt time.Time
	producer  *producer.Producer
	observer  producer.Observer
	logger    *slog.Logger

	mu        sync.Mutex
	state     State
	inflight  <-chan producer.Response // reply to a Get whose caller gave up
	batches   int64
	delivered int64
}

// New starts a producer and returns a session bound to it. The producer is
// stopped when ctx is cancelled or Close is called.
func New(ctx context.Context, cfg Config, opts ...Option) (*Session, error) {
	s := &Session{
		id:        "sess_" + uuid.New().String()[:8],
		cfg:       cfg,
		createdAt: time.Now(),
		state:     StateActive,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("session_id", s.id)

	p, err := producer.Start(ctx, producer.Config{
		Ceiling:   cfg.Ceiling,
		Capacity:  cfg.Capacity,
		Start:     cfg.Start,
		PollEvery: cfg.PollEvery,
	}, s.observer)
	if err != nil {
		return nil, fmt.Errorf("starting producer: %w", err)
	}
	s.producer = p
	s.logger.Info("session started", "ceiling", cfg.Ceiling, "capacity", cfg.Capacity, "start", cfg.Start.String())
	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// State returns the local session state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns a snapshot of the session
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:        s.id,
		State:     s.state,
		Ceiling:   s.cfg.Ceiling,
		Capacity:  s.cfg.Capacity,
		CreatedAt: s.createdAt,
		Batches:   s.batches,
		Delivered: s.delivered,
	}
}

// Pause stops enumeration until Resume. An outstanding RequestBatch keeps
// waiting and is served after Resume.
func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateExhausted, StateClosed:
		s.mu.Unlock()
		return ErrNotActive
	case StatePaused:
		s.mu.Unlock()
		return ErrAlreadyPaused
	}
	s.mu.Unlock()

	if _, err := s.call(ctx, producer.Instruction{Kind: producer.InstructionPause}); err != nil {
		return err
	}
	s.setState(StatePaused)
	s.logger.Info("session paused")
	return nil
}

// Resume continues a paused session.
func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateExhausted, StateClosed:
		s.mu.Unlock()
		return ErrNotActive
	case StateActive:
		s.mu.Unlock()
		return ErrNotPaused
	}
	s.mu.Unlock()

	if _, err := s.call(ctx, producer.Instruction{Kind: producer.InstructionResume}); err != nil {
		return err
	}
	s.setState(StateActive)
	s.logger.Info("session resumed")
	return nil
}

// RequestBatch asks for amount triples and blocks until the producer has them
// or the ceiling is reached. The final delivery is returned with Final set and
// a nil error; every later call fails with ErrNotActive.
//
// If ctx is cancelled while waiting, the pending batch is not lost: the next
// RequestBatch returns it regardless of the amount asked for.
func (s *Session) RequestBatch(ctx context.Context, amount int) (Batch, error) {
	s.mu.Lock()
	switch s.state {
	case StateExhausted, StateClosed:
		s.mu.Unlock()
		return Batch{}, ErrNotActive
	case StatePaused:
		s.mu.Unlock()
		return Batch{}, &RejectedError{Reason: producer.ReasonPaused}
	}
	reply := s.inflight
	s.inflight = nil
	s.mu.Unlock()

	if reply == nil {
		var err error
		reply, err = s.send(ctx, producer.Instruction{Kind: producer.InstructionGet, Amount: amount})
		if err != nil {
			return Batch{}, err
		}
	}

	resp, err := s.await(ctx, reply)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			s.mu.Lock()
			s.inflight = reply
			s.mu.Unlock()
		}
		return Batch{}, err
	}
	if err := s.check(resp); err != nil {
		return Batch{}, err
	}

	batch := Batch{Triples: resp.Triples}
	s.mu.Lock()
	s.batches++
	s.delivered += int64(len(resp.Triples))
	s.mu.Unlock()

	switch resp.Kind {
	case producer.ResponseFinalBatch, producer.ResponseEmptyExhausted:
		batch.Final = true
		s.setState(StateExhausted)
		s.logger.Info("session exhausted", "final_batch", len(resp.Triples))
	case producer.ResponseBatch:
	default:
		return Batch{}, fmt.Errorf("unexpected response %s to get", resp.Kind)
	}
	return batch, nil
}

// Progress returns the At-marker: the cursor just past the last delivered
// triple, or the start cursor before any delivery.
func (s *Session) Progress(ctx context.Context) (search.Cursor, error) {
	if err := s.requireActive(); err != nil {
		return search.Cursor{}, err
	}
	resp, err := s.call(ctx, producer.Instruction{Kind: producer.InstructionAt})
	if err != nil {
		return search.Cursor{}, err
	}
	return resp.Marker, nil
}

// BufferedAmount returns how many triples the producer is holding.
func (s *Session) BufferedAmount(ctx context.Context) (int, error) {
	if err := s.requireActive(); err != nil {
		return 0, err
	}
	resp, err := s.call(ctx, producer.Instruction{Kind: producer.InstructionBufferedAmt})
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Close stops the producer. The session is closed afterwards.
func (s *Session) Close() {
	s.producer.Stop()
	s.mu.Lock()
	if s.state != StateExhausted {
		s.state = StateClosed
	}
	s.mu.Unlock()
}

func (s *Session) requireActive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateExhausted || s.state == StateClosed {
		return ErrNotActive
	}
	return nil
}

// call sends in, waits for its reply and maps protocol-level failures to errors.
func (s *Session) call(ctx context.Context, in producer.Instruction) (producer.Response, error) {
	reply, err := s.send(ctx, in)
	if err != nil {
		return producer.Response{}, err
	}
	resp, err := s.await(ctx, reply)
	if err != nil {
		return producer.Response{}, err
	}
	if err := s.check(resp); err != nil {
		return producer.Response{}, err
	}
	return resp, nil
}

func (s *Session) send(ctx context.Context, in producer.Instruction) (<-chan producer.Response, error) {
	reply, err := s.producer.Send(ctx, in)
	if errors.Is(err, producer.ErrStopped) {
		s.closeLocal()
		return nil, ErrChannelClosed
	}
	return reply, err
}

func (s *Session) await(ctx context.Context, reply <-chan producer.Response) (producer.Response, error) {
	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		return producer.Response{}, ctx.Err()
	case <-s.producer.Done():
		// A reply sent just before exit is still valid.
		select {
		case resp := <-reply:
			return resp, nil
		default:
		}
		s.closeLocal()
		return producer.Response{}, ErrChannelClosed
	}
}

// check turns Rejected and Inactive responses into errors.
func (s *Session) check(resp producer.Response) error {
	switch resp.Kind {
	case producer.ResponseRejected:
		return &RejectedError{Reason: resp.Reason}
	case producer.ResponseInactive:
		s.setState(StateExhausted)
		return ErrNotActive
	}
	return nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Terminal states stick.
	if s.state == StateExhausted || s.state == StateClosed {
		return
	}
	s.state = state
}

func (s *Session) closeLocal() {
	s.setState(StateClosed)
	s.logger.Warn("producer channel closed")
}
