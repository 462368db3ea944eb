package poller

import (
	"errors"
	"fmt"

	"anymusic/internal/task"
)

var (
	// ErrPollTimeout is returned by Session.Wait when the maximum polling
	// duration elapsed before the task reached a terminal status.
	ErrPollTimeout = errors.New("polling timed out")

	// ErrEmptyHandle is returned by Start for a blank task handle.
	ErrEmptyHandle = errors.New("empty task handle")
)

// AlreadyPollingError is returned when Start is called for a handle while a
// different one is still being polled.
type AlreadyPollingError struct {
	Active    task.Handle
	Requested task.Handle
}

func (e *AlreadyPollingError) Error() string {
	return fmt.Sprintf("already polling task %s", e.Active)
}

// ApplicationError is the backend-reported failure of a task (status=error).
type ApplicationError struct {
	TaskID  string
	Message string
}

func (e *ApplicationError) Error() string { return e.Message }
