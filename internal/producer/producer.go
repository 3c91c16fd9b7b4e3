// Package producer runs the background enumeration of candidate triples.
//
// A single goroutine owns the enumerator cursor, a bounded FIFO of admissible
// triples and the At-marker. Consumers talk to it only through instructions on
// an ordered channel; each instruction carries a one-slot reply channel, so
// every response is paired with exactly one request and the producer never
// blocks on a slow consumer.
//
// STATE MACHINE:
//
//	Filling   buffer below capacity, enumerating; instructions polled between steps
//	Draining  a Get is outstanding and can be served (or the ceiling was reached)
//	Blocked   buffer full, waiting for an instruction
//	Paused    only Resume is accepted; everything else is rejected
//	Exhausted ceiling reached and the last batch delivered; every reply is Inactive
package producer

import (
	"context"
	"errors"
	"fmt"

	"github.com/HyphaGroup/parker/internal/search"
)

// State is the producer's externally observable state.
type State string

const (
	StateFilling   State = "filling"
	StateDraining  State = "draining"
	StateBlocked   State = "blocked"
	StatePaused    State = "paused"
	StateExhausted State = "exhausted"
)

const (
	DefaultPollEvery       = 4096
	instructionQueueLength = 64
)

var (
	ErrStopped         = errors.New("producer stopped")
	ErrInvalidCapacity = errors.New("buffer capacity must be positive")
)

// Config configures a producer.
type Config struct {
	Ceiling   uint64        // exclusive upper bound on x
	Capacity  int           // maximum buffered triples
	Start     search.Cursor // resumption point
	PollEvery int           // candidates inspected between instruction polls
}

// Producer is the handle to a running producer goroutine.
type Producer struct {
	instructions chan envelope
	cancel       context.CancelFunc
	done         chan struct{}

	// Owned by the run goroutine.
	enum     *search.Enumerator
	buffer   *fifo[search.Triple]
	observer Observer
	poll     int
	state    State
	resumeTo State
	marker   search.Cursor
	pending  *envelope
	ceiling  bool
}

// Start validates cfg and launches the producer goroutine. The producer stops
// when ctx is cancelled or Stop is called.
func Start(ctx context.Context, cfg Config, observer Observer) (*Producer, error) {
	p, err := newProducer(cfg, observer)
	if err != nil {
		return nil, err
	}
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
	return p, nil
}

func newProducer(cfg Config, observer Observer) (*Producer, error) {
	if cfg.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	enum, err := search.NewEnumerator(cfg.Ceiling, cfg.Start)
	if err != nil {
		return nil, fmt.Errorf("creating enumerator: %w", err)
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = DefaultPollEvery
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Producer{
		instructions: make(chan envelope, instructionQueueLength),
		done:         make(chan struct{}),
		enum:         enum,
		buffer:       newFIFO[search.Triple](cfg.Capacity),
		observer:     observer,
		poll:         cfg.PollEvery,
		state:        StateFilling,
		marker:       cfg.Start,
	}, nil
}

// Send queues an instruction and returns the channel its single response will
// arrive on. It fails with ErrStopped once the producer goroutine has exited.
func (p *Producer) Send(ctx context.Context, in Instruction) (<-chan Response, error) {
	env := envelope{Instruction: in, reply: make(chan Response, 1)}
	select {
	case <-p.done:
		return nil, ErrStopped
	default:
	}
	select {
	case p.instructions <- env:
		return env.reply, nil
	case <-p.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when the producer goroutine exits.
func (p *Producer) Done() <-chan struct{} {
	return p.done
}

// Stop cancels the producer and waits for it to exit.
func (p *Producer) Stop() {
	p.cancel()
	<-p.done
}

func (p *Producer) run(ctx context.Context) {
	defer close(p.done)

	for {
		if p.state != StatePaused && p.state != StateExhausted {
			p.settle()
		}

		if p.idle() {
			select {
			case <-ctx.Done():
				return
			case env := <-p.instructions:
				p.handle(env)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case env := <-p.instructions:
			p.handle(env)
			continue
		default:
		}
		p.fill()
	}
}

// idle reports whether the producer has nothing to do until the next instruction.
func (p *Producer) idle() bool {
	switch p.state {
	case StatePaused, StateExhausted, StateBlocked:
		return true
	}
	return p.ceiling
}

// fill inspects up to poll candidates and buffers an admissible one.
// A full buffer is left untouched so no admitted triple can be dropped.
func (p *Producer) fill() {
	if p.buffer.Full() {
		return
	}
	t, found, done := p.enum.Step(p.poll)
	if found {
		p.buffer.Push(t)
		p.observer.Admitted(t, p.buffer.Len())
	}
	if done && !p.ceiling {
		p.ceiling = true
		p.observer.CeilingReached(p.enum.Cursor())
	}
}

// settle serves the outstanding Get if it can be served, handles exhaustion and
// recomputes the Filling/Draining/Blocked state.
func (p *Producer) settle() {
	if p.pending != nil {
		amount := p.pending.Amount
		switch {
		case p.buffer.Len() >= amount:
			p.deliver(ResponseBatch, p.buffer.PopN(amount))
		case p.ceiling:
			if p.buffer.Len() > 0 {
				p.deliver(ResponseFinalBatch, p.buffer.PopN(p.buffer.Len()))
			} else {
				p.deliver(ResponseEmptyExhausted, nil)
			}
			p.setState(StateExhausted)
			return
		}
	}

	switch {
	case p.pending != nil && p.ceiling:
		p.setState(StateDraining)
	case p.buffer.Full() || p.ceiling:
		p.setState(StateBlocked)
	default:
		p.setState(StateFilling)
	}
}

func (p *Producer) deliver(kind ResponseKind, triples []search.Triple) {
	if len(triples) > 0 {
		p.marker = triples[len(triples)-1].Next()
	}
	env := p.pending
	p.pending = nil
	p.setState(StateDraining)
	p.reply(*env, Response{Kind: kind, Triples: triples})
	p.observer.Delivered(kind, len(triples), p.marker)
}

func (p *Producer) handle(env envelope) {
	if p.state == StateExhausted {
		p.reply(env, Response{Kind: ResponseInactive})
		return
	}

	if p.state == StatePaused {
		if env.Kind != InstructionResume {
			p.reject(env, ReasonPaused)
			return
		}
		p.setState(p.resumeTo)
		p.reply(env, Response{Kind: ResponseAcknowledged})
		return
	}

	switch env.Kind {
	case InstructionPause:
		p.resumeTo = p.state
		p.setState(StatePaused)
		p.reply(env, Response{Kind: ResponseAcknowledged})
	case InstructionResume:
		p.reject(env, ReasonNotPaused)
	case InstructionGet:
		switch {
		case env.Amount <= 0 || env.Amount > p.buffer.Cap():
			p.reject(env, ReasonInvalidAmount)
		case p.pending != nil:
			p.reject(env, ReasonGetOutstanding)
		default:
			p.pending = &env
		}
	case InstructionAt:
		p.reply(env, Response{Kind: ResponseProgress, Marker: p.marker})
	case InstructionBufferedAmt:
		p.reply(env, Response{Kind: ResponseOccupancy, Count: p.buffer.Len()})
	default:
		p.reject(env, ReasonUnknownOperation)
	}
}

func (p *Producer) reject(env envelope, reason string) {
	p.observer.Rejected(env.Kind, reason)
	p.reply(env, Response{Kind: ResponseRejected, Reason: reason})
}

// reply never blocks: the reply channel has one slot and each envelope is
// answered once. A failed send is reported and the loop carries on.
func (p *Producer) reply(env envelope, resp Response) {
	select {
	case env.reply <- resp:
	default:
		p.observer.ReplyDropped(env.Kind)
	}
}

func (p *Producer) setState(s State) {
	if p.state == s {
		return
	}
	from := p.state
	p.state = s
	p.observer.StateChanged(from, s)
}
