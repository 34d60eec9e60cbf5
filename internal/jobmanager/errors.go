package jobmanager

import (
	"errors"
	"fmt"
)

var (
	ErrCapacityExceeded = errors.New("max jobs reached")
	ErrNoSuchJob        = errors.New("no such job")
	ErrForkFailed       = errors.New("failed to create process")
	ErrExecFailed       = errors.New("failed to execute program")
)

// InvalidStateError is returned when a job control command targets a Job
// whose state doesn't permit the requested transition.
type InvalidStateError struct {
	from JobState
	to   JobState
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("cannot go from %s to %s", e.from, e.to)
}

func NewInvalidStateError(from, to JobState) InvalidStateError {
	return InvalidStateError{from, to}
}
