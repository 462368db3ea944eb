package client

import (
	"errors"
	"fmt"
)

// ValidationError reports bad user input. It is raised before anything is
// sent to the backend.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// SubmissionError reports a request the backend rejected or answered with
// an unreadable body. Message is the backend-supplied text when present.
type SubmissionError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

func (e *SubmissionError) Error() string {
	return e.Message
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// TransientPollError reports a failed status query. Pollers log it and keep
// ticking.
type TransientPollError struct {
	TaskID     string
	StatusCode int
	Err        error
}

func (e *TransientPollError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("progress %s: http %d: %v", e.TaskID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("progress %s: %v", e.TaskID, e.Err)
}

func (e *TransientPollError) Unwrap() error { return e.Err }

var (
	// ErrEmptyURL is the reason carried by the ValidationError for a blank URL.
	ErrEmptyURL = errors.New("empty url")

	// ErrMissingTaskID indicates a 2xx submission response without task_id.
	ErrMissingTaskID = errors.New("missing task_id")

	// ErrUnexpectedStatus indicates a non-2xx response.
	ErrUnexpectedStatus = errors.New("unexpected http status")
)

// Default user-facing messages when the backend does not supply one.
const (
	msgDownloadFailed = "download request failed"
	msgMergeFailed    = "merge failed"
	msgSplitFailed    = "split failed"
	msgRotateFailed   = "rotate failed"
	msgDeleteFailed   = "delete pages failed"
	msgTrimFailed     = "trim failed"
	msgConvertFailed  = "convert failed"
	msgFetchFailed    = "file download failed"
	msgQRCodeFailed   = "qr code generation failed"
	msgShortenFailed  = "url shortening failed"
	msgRemoveBGFailed = "background removal failed"
	msgMaskFailed     = "masking failed"
)

func validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
