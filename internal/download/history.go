package download

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"anymusic/internal/logging"
	"anymusic/internal/store"
	"anymusic/internal/task"
)

// HistoryStore is the subset of the task store used for persistence.
type HistoryStore interface {
	CreateTask(ctx context.Context, h task.Handle, url string, isPlaylist bool) (int64, error)
	AdoptTask(ctx context.Context, h task.Handle) error
	UpdateSnapshot(ctx context.Context, h task.Handle, snap task.Snapshot) error
	LatestUnfinished(ctx context.Context) (store.Task, bool, error)
}

// ErrNothingToResume is returned by ResumeLatest when every recorded task
// has finished.
var ErrNothingToResume = errors.New("no unfinished task")

// HistoryHooks records every submission and snapshot in a HistoryStore.
// Write failures are logged and never interrupt polling.
type HistoryHooks struct {
	store   HistoryStore
	timeout time.Duration
}

func NewHistoryHooks(s HistoryStore) *HistoryHooks {
	return &HistoryHooks{store: s, timeout: 5 * time.Second}
}

func (hh *HistoryHooks) OnSubmitted(h task.Handle, url string, isPlaylist bool) {
	ctx, cancel := context.WithTimeout(context.Background(), hh.timeout)
	defer cancel()
	if _, err := hh.store.CreateTask(ctx, h, url, isPlaylist); err != nil && !isExpectedError(err) {
		logging.LogDBOperation("create_task", 0, fmt.Errorf("task %s: %w", h, err))
	}
}

// OnSnapshot stores snap. A task resumed by handle without a history row
// gets one on its first snapshot.
func (hh *HistoryHooks) OnSnapshot(h task.Handle, snap task.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), hh.timeout)
	defer cancel()
	err := hh.store.UpdateSnapshot(ctx, h, snap)
	if errors.Is(err, store.ErrNotFound) {
		if err = hh.store.AdoptTask(ctx, h); err == nil {
			err = hh.store.UpdateSnapshot(ctx, h, snap)
		}
	}
	if err != nil && !isExpectedError(err) {
		logging.LogDBOperation("update_snapshot", 0, fmt.Errorf("task %s: %w", h, err))
	}
}

// isExpectedError reports errors seen while the process shuts down.
func isExpectedError(err error) bool {
	return errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		err.Error() == "sql: database is closed"
}

// ResumeLatest re-attaches m to the most recent unfinished task in s.
func ResumeLatest(ctx context.Context, m *Manager, s HistoryStore) (task.Snapshot, error) {
	t, ok, err := s.LatestUnfinished(ctx)
	if err != nil {
		return task.Snapshot{}, fmt.Errorf("load unfinished task: %w", err)
	}
	if !ok {
		return task.Snapshot{}, ErrNothingToResume
	}
	return m.Resume(ctx, t.Handle())
}
