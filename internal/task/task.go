package task

import (
	"errors"
	"math"
	"strings"
)

// Handle is the opaque identifier the Task Service returns for an accepted
// download. It has no meaning once polling reaches a terminal status.
type Handle string

func (h Handle) String() string { return string(h) }

// IsZero reports whether the handle is empty.
func (h Handle) IsZero() bool { return strings.TrimSpace(string(h)) == "" }

type Status string

const (
	StatusStarting    Status = "starting"
	StatusDownloading Status = "downloading"
	StatusConverting  Status = "converting"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"

	// StatusNotFound is what the backend answers for an id it does not know.
	// Normalize folds it into StatusError.
	StatusNotFound Status = "not_found"
)

// DefaultErrorMessage is used when the backend reports status=error without a message.
const DefaultErrorMessage = "download failed"

// NotFoundMessage is the error text for a handle the backend does not know.
const NotFoundMessage = "task not found"

// IsTerminal reports whether no further snapshots are expected after s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Label returns a short human readable description of the status.
func (s Status) Label() string {
	switch s {
	case StatusStarting:
		return "Preparing..."
	case StatusDownloading:
		return "Downloading..."
	case StatusConverting:
		return "Converting to MP3..."
	case StatusCompleted:
		return "Download complete!"
	case StatusError:
		return "An error occurred"
	case "":
		return "Preparing..."
	default:
		return string(s)
	}
}

// Snapshot is a point-in-time status payload for a task, as served by
// GET /api/progress/{task_id}.
type Snapshot struct {
	Status   Status   `json:"status" jsonschema:"enum=starting,enum=downloading,enum=converting,enum=completed,enum=error"`
	Progress float64  `json:"progress" jsonschema:"minimum=0,maximum=100"`
	Title    string   `json:"title,omitempty"`
	Files    []string `json:"files,omitempty"`
	Error    string   `json:"error,omitempty"`
}

var (
	// ErrTerminalBoth indicates a terminal snapshot carrying both files and an error.
	ErrTerminalBoth = errors.New("terminal snapshot has both files and error")

	// ErrTerminalNeither indicates a terminal snapshot carrying neither files nor an error.
	ErrTerminalNeither = errors.New("terminal snapshot has neither files nor error")

	// ErrTerminalMismatch indicates a terminal payload that does not match its status.
	ErrTerminalMismatch = errors.New("terminal snapshot payload does not match status")

	// ErrNotTerminal is returned by CheckTerminal for a non-terminal snapshot.
	ErrNotTerminal = errors.New("snapshot is not terminal")
)

// Normalize returns a copy of s that honours the data model: progress is
// clamped to [0,100], files only accompany completed, error only accompanies
// error (with a default message when the backend sent none), and an unknown
// task is reported as an error.
func (s Snapshot) Normalize() Snapshot {
	out := s
	out.Status = Status(strings.ToLower(strings.TrimSpace(string(s.Status))))
	out.Title = strings.TrimSpace(s.Title)

	if out.Status == StatusNotFound {
		out.Status = StatusError
		if strings.TrimSpace(out.Error) == "" {
			out.Error = NotFoundMessage
		}
	}

	switch {
	case out.Progress < 0 || math.IsNaN(out.Progress):
		out.Progress = 0
	case out.Progress > 100:
		out.Progress = 100
	}

	switch out.Status {
	case StatusCompleted:
		out.Error = ""
		out.Files = cleanFiles(s.Files)
	case StatusError:
		out.Files = nil
		out.Error = strings.TrimSpace(out.Error)
		if out.Error == "" {
			out.Error = DefaultErrorMessage
		}
	default:
		out.Files = nil
		out.Error = ""
	}
	return out
}

// Follow applies the sequence rules against the previously reported snapshot:
// progress never goes backwards while the task is running and a known title
// is never replaced by an empty one.
func (s Snapshot) Follow(prev Snapshot) Snapshot {
	out := s
	if out.Title == "" {
		out.Title = prev.Title
	}
	if !out.Status.IsTerminal() && out.Progress < prev.Progress {
		out.Progress = prev.Progress
	}
	return out
}

// CheckTerminal verifies that exactly one of files or error is populated.
func (s Snapshot) CheckTerminal() error {
	if !s.Status.IsTerminal() {
		return ErrNotTerminal
	}
	hasFiles := len(s.Files) > 0
	hasErr := strings.TrimSpace(s.Error) != ""
	switch {
	case hasFiles && hasErr:
		return ErrTerminalBoth
	case !hasFiles && !hasErr:
		return ErrTerminalNeither
	}
	if (s.Status == StatusCompleted) != hasFiles {
		return ErrTerminalMismatch
	}
	return nil
}

func cleanFiles(files []string) []string {
	if len(files) == 0 {
		return nil
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		if strings.TrimSpace(f) == "" {
			continue
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SubmitRequest is the body of POST /api/download.
type SubmitRequest struct {
	URL        string `json:"url" jsonschema:"minLength=1"`
	IsPlaylist bool   `json:"is_playlist"`
}

// SubmitResponse is the body answered by POST /api/download. Error is set
// instead of TaskID when the backend refuses the request.
type SubmitResponse struct {
	TaskID  string `json:"task_id,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
