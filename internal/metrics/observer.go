package metrics

import (
	"github.com/HyphaGroup/parker/internal/producer"
	"github.com/HyphaGroup/parker/internal/search"
)

// producerStates lists every state so the state gauge can be zeroed on change
var producerStates = []producer.State{
	producer.StateFilling,
	producer.StateDraining,
	producer.StateBlocked,
	producer.StatePaused,
	producer.StateExhausted,
}

// ProducerObserver exports producer events as Prometheus metrics
type ProducerObserver struct{}

var _ producer.Observer = ProducerObserver{}

func (ProducerObserver) StateChanged(_, to producer.State) {
	for _, s := range producerStates {
		v := 0.0
		if s == to {
			v = 1
		}
		ProducerState.WithLabelValues(string(s)).Set(v)
	}
}

func (ProducerObserver) Admitted(_ search.Triple, buffered int) {
	TriplesAdmitted.Inc()
	BufferOccupancy.Set(float64(buffered))
}

func (ProducerObserver) Delivered(kind producer.ResponseKind, count int, _ search.Cursor) {
	BatchesDelivered.WithLabelValues(string(kind)).Inc()
	TriplesDelivered.WithLabelValues(string(kind)).Add(float64(count))
	BufferOccupancy.Sub(float64(count))
}

func (ProducerObserver) Rejected(kind producer.InstructionKind, reason string) {
	InstructionsRejected.WithLabelValues(string(kind), reason).Inc()
}

func (ProducerObserver) ReplyDropped(kind producer.InstructionKind) {
	RepliesDropped.WithLabelValues(string(kind)).Inc()
}

func (ProducerObserver) CeilingReached(search.Cursor) {}
