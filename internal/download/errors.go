package download

import (
	"context"
	"errors"

	"anymusic/internal/client"
	"anymusic/internal/poller"
	"anymusic/internal/ui"
)

// ErrBusy is returned while an earlier submission has not been answered yet.
var ErrBusy = errors.New("a download is already being submitted")

// ExitCode maps the outcome of Download or Resume to a process exit status:
// 0 success, 2 bad input, 3 backend refused the submission, 4 the task
// failed or produced nothing, 5 polling timed out, 130 canceled, 1 otherwise.
func ExitCode(err error) int {
	var (
		verr *client.ValidationError
		serr *client.SubmissionError
		aerr *poller.ApplicationError
		busy *poller.AlreadyPollingError
	)
	switch {
	case err == nil:
		return 0
	case errors.As(err, &verr):
		return 2
	case errors.As(err, &serr):
		return 3
	case errors.As(err, &aerr), errors.Is(err, ui.ErrNoFiles):
		return 4
	case errors.Is(err, poller.ErrPollTimeout):
		return 5
	case errors.Is(err, ErrNothingToResume), errors.Is(err, ErrBusy), errors.As(err, &busy):
		return 1
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}
