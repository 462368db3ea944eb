// Package download drives one submission at a time from URL entry to
// presented results: submit, poll until terminal, then show links or the
// error.
package download

import (
	"context"
	"errors"
	"strings"
	"sync"

	"anymusic/internal/client"
	"anymusic/internal/poller"
	"anymusic/internal/task"
	"anymusic/internal/ui"
)

// MsgEnterURL is shown when the URL field is blank.
const MsgEnterURL = "Please enter a URL"

// Submitter sends a download request to the backend.
type Submitter interface {
	Submit(ctx context.Context, url string, isPlaylist bool) (task.Handle, error)
}

// View is the presentation surface driven by Manager. Calls arrive from the
// polling goroutine as well as the caller's.
type View interface {
	SetBusy(busy bool)
	Reset()
	ShowProgress(snap task.Snapshot)
	ShowResults(links []ui.Link)
	ShowError(msg string)
}

type Manager struct {
	sub    Submitter
	poller *poller.Poller
	view   View
	hooks  Hooks

	mu      sync.Mutex
	busy    bool
	current task.Handle
}

// ManagerOptions configures optional collaborators.
type ManagerOptions struct {
	View  View
	Hooks Hooks
}

// NewManager wires a submitter and poller. A nil View discards output.
func NewManager(sub Submitter, p *poller.Poller, opts ManagerOptions) *Manager {
	m := &Manager{
		sub:    sub,
		poller: p,
		view:   opts.View,
		hooks:  opts.Hooks,
	}
	if m.view == nil {
		m.view = nopView{}
	}
	return m
}

// Busy reports whether a submission is in flight.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// Current returns the handle being polled, if any.
func (m *Manager) Current() task.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Download submits url and follows the resulting task to a terminal status.
// It returns the terminal snapshot. The error is a *client.ValidationError
// or *client.SubmissionError before a handle exists, then whatever the
// poller session ended with, or ui.ErrNoFiles for a completed task without
// files.
func (m *Manager) Download(ctx context.Context, url string, isPlaylist bool) (task.Snapshot, error) {
	u := strings.TrimSpace(url)
	if u == "" {
		m.view.ShowError(MsgEnterURL)
		return task.Snapshot{}, &client.ValidationError{Field: "url", Reason: client.ErrEmptyURL.Error(), Err: client.ErrEmptyURL}
	}
	if err := m.acquire(); err != nil {
		return task.Snapshot{}, err
	}
	m.view.SetBusy(true)
	m.view.Reset()

	h, err := m.sub.Submit(ctx, u, isPlaylist)
	if err != nil {
		m.release()
		m.view.SetBusy(false)
		m.view.ShowError(err.Error())
		return task.Snapshot{}, err
	}
	if m.hooks != nil {
		m.hooks.OnSubmitted(h, u, isPlaylist)
	}
	return m.follow(ctx, h)
}

// Resume re-attaches to a task submitted earlier, for example one recorded
// in the history store before the process exited.
func (m *Manager) Resume(ctx context.Context, h task.Handle) (task.Snapshot, error) {
	if h.IsZero() {
		return task.Snapshot{}, poller.ErrEmptyHandle
	}
	if err := m.acquire(); err != nil {
		return task.Snapshot{}, err
	}
	m.view.SetBusy(true)
	m.view.Reset()
	return m.follow(ctx, h)
}

// Cancel stops the in-flight poll loop. Safe to call at any time, including
// from a View or Hooks callback.
func (m *Manager) Cancel() {
	m.poller.Stop()
}

func (m *Manager) acquire() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		if m.current.IsZero() {
			return ErrBusy
		}
		return &poller.AlreadyPollingError{Active: m.current}
	}
	m.busy = true
	m.current = ""
	return nil
}

func (m *Manager) release() {
	m.mu.Lock()
	m.busy = false
	m.current = ""
	m.mu.Unlock()
}

func (m *Manager) follow(ctx context.Context, h task.Handle) (task.Snapshot, error) {
	m.mu.Lock()
	m.current = h
	m.mu.Unlock()

	s, err := m.poller.Start(ctx, h, func(snap task.Snapshot) {
		m.view.ShowProgress(snap)
		if m.hooks != nil {
			m.hooks.OnSnapshot(h, snap)
		}
	})
	if err != nil {
		m.release()
		m.view.SetBusy(false)
		m.view.ShowError(err.Error())
		return task.Snapshot{}, err
	}

	// The loop observes ctx itself, so waiting without a deadline still
	// returns once ctx is done.
	snap, err := s.Wait(context.Background())
	m.release()
	m.view.SetBusy(false)

	switch {
	case err == nil:
		links, lerr := ui.ResultLinks(snap.Files)
		if lerr != nil {
			m.view.ShowError(lerr.Error())
			return snap, lerr
		}
		m.view.ShowResults(links)
		return snap, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return snap, err
	default:
		m.view.ShowError(snap.Error)
		return snap, err
	}
}

type nopView struct{}

func (nopView) SetBusy(bool)               {}
func (nopView) Reset()                     {}
func (nopView) ShowProgress(task.Snapshot) {}
func (nopView) ShowResults([]ui.Link)      {}
func (nopView) ShowError(string)           {}
