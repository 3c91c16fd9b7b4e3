package producer

import "github.com/HyphaGroup/parker/internal/search"

// InstructionKind identifies a control instruction sent to the producer.
type InstructionKind string

const (
	InstructionPause       InstructionKind = "pause"
	InstructionResume      InstructionKind = "resume"
	InstructionGet         InstructionKind = "get"
	InstructionAt          InstructionKind = "at"
	InstructionBufferedAmt InstructionKind = "buffered_amt"
)

// Instruction is a request to the producer. Amount is only used by Get.
type Instruction struct {
	Kind   InstructionKind
	Amount int
}

// ResponseKind identifies the reply to an instruction.
type ResponseKind string

const (
	ResponseBatch          ResponseKind = "batch"           // Get satisfied in full
	ResponseFinalBatch     ResponseKind = "final_batch"     // short batch, ceiling reached
	ResponseEmptyExhausted ResponseKind = "empty_exhausted" // ceiling reached, nothing buffered
	ResponseAcknowledged   ResponseKind = "acknowledged"    // Pause or Resume applied
	ResponseRejected       ResponseKind = "rejected"
	ResponseProgress       ResponseKind = "progress"
	ResponseOccupancy      ResponseKind = "occupancy"
	ResponseInactive       ResponseKind = "inactive" // producer is exhausted
)

// Response is the producer's answer to exactly one Instruction.
type Response struct {
	Kind    ResponseKind
	Triples []search.Triple // Batch, FinalBatch
	Marker  search.Cursor   // Progress
	Count   int             // Occupancy
	Reason  string          // Rejected
}

// Terminal reports whether the response ends the stream.
func (r Response) Terminal() bool {
	switch r.Kind {
	case ResponseFinalBatch, ResponseEmptyExhausted, ResponseInactive:
		return true
	}
	return false
}

// Rejection reasons.
const (
	ReasonPaused           = "paused"
	ReasonNotPaused        = "not paused"
	ReasonInvalidAmount    = "invalid amount"
	ReasonGetOutstanding   = "batch already outstanding"
	ReasonUnknownOperation = "unknown instruction"
)

// envelope carries an instruction with the channel its reply goes to.
type envelope struct {
	Instruction
	reply chan Response
}
