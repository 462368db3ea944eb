package download

import "anymusic/internal/task"

// Hooks provide optional callbacks for persistence / external tracking.
// Manager invokes them synchronously on the polling goroutine, so they must
// be fast.
type Hooks interface {
	OnSubmitted(h task.Handle, url string, isPlaylist bool)
	OnSnapshot(h task.Handle, snap task.Snapshot)
}
