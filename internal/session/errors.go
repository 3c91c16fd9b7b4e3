package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotActive is returned once the session has been exhausted or torn down.
	ErrNotActive = errors.New("session not active")
	// ErrAlreadyPaused is returned by Pause on a paused session.
	ErrAlreadyPaused = errors.New("session already paused")
	// ErrNotPaused is returned by Resume on a session that is not paused.
	ErrNotPaused = errors.New("session not paused")
	// ErrChannelClosed means the producer goroutine is gone. The session is closed.
	ErrChannelClosed = errors.New("producer channel closed")
	// ErrRejected matches every *RejectedError.
	ErrRejected = errors.New("instruction rejected")
)

// RejectedError carries the producer's reason for refusing an instruction.
// The session state is unchanged and the caller may retry.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("instruction rejected: %s", e.Reason)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}
