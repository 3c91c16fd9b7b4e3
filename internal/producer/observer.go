package producer

import (
	"log/slog"

	"github.com/HyphaGroup/parker/internal/search"
)

// Observer receives producer events. It is called from the producer goroutine
// and must not block or call back into the producer.
type Observer interface {
	StateChanged(from, to State)
	Admitted(t search.Triple, buffered int)
	Delivered(kind ResponseKind, count int, marker search.Cursor)
	Rejected(kind InstructionKind, reason string)
	ReplyDropped(kind InstructionKind)
	CeilingReached(cursor search.Cursor)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) StateChanged(State, State)                  {}
func (NopObserver) Admitted(search.Triple, int)                {}
func (NopObserver) Delivered(ResponseKind, int, search.Cursor) {}
func (NopObserver) Rejected(InstructionKind, string)           {}
func (NopObserver) ReplyDropped(InstructionKind)               {}
func (NopObserver) CeilingReached(search.Cursor)               {}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) StateChanged(from, to State) {
	for _, o := range m {
		o.StateChanged(from, to)
	}
}

func (m MultiObserver) Admitted(t search.Triple, buffered int) {
	for _, o := range m {
		o.Admitted(t, buffered)
	}
}

func (m MultiObserver) Delivered(kind ResponseKind, count int, marker search.Cursor) {
	for _, o := range m {
		o.Delivered(kind, count, marker)
	}
}

func (m MultiObserver) Rejected(kind InstructionKind, reason string) {
	for _, o := range m {
		o.Rejected(kind, reason)
	}
}

func (m MultiObserver) ReplyDropped(kind InstructionKind) {
	for _, o := range m {
		o.ReplyDropped(kind)
	}
}

func (m MultiObserver) CeilingReached(cursor search.Cursor) {
	for _, o := range m {
		o.CeilingReached(cursor)
	}
}

// LogObserver writes producer events to a structured logger. Admitted triples
// are logged at debug level only.
type LogObserver struct {
	Logger *slog.Logger
}

// NewLogObserver returns a LogObserver, falling back to slog.Default.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{Logger: logger}
}

func (l *LogObserver) StateChanged(from, to State) {
	l.Logger.Info("producer state changed", "from", from, "to", to)
}

func (l *LogObserver) Admitted(t search.Triple, buffered int) {
	l.Logger.Debug("triple admitted", "triple", t.String(), "buffered", buffered)
}

func (l *LogObserver) Delivered(kind ResponseKind, count int, marker search.Cursor) {
	l.Logger.Info("batch delivered", "kind", kind, "count", count, "at", marker.String())
}

func (l *LogObserver) Rejected(kind InstructionKind, reason string) {
	l.Logger.Warn("instruction rejected", "instruction", kind, "reason", reason)
}

func (l *LogObserver) ReplyDropped(kind InstructionKind) {
	l.Logger.Error("reply could not be delivered", "instruction", kind)
}

func (l *LogObserver) CeilingReached(cursor search.Cursor) {
	l.Logger.Info("enumeration ceiling reached", "cursor", cursor.String())
}
