// Package poller periodically queries the status of one submitted task and
// reports every snapshot until the task reaches a terminal status.
//
// At most one task is polled at a time per Poller. Ticks are strictly
// sequential: the next query is scheduled only once the previous response
// (or failure) has been handled.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"anymusic/internal/logging"
	"anymusic/internal/task"
)

const (
	DefaultInterval    = 500 * time.Millisecond
	DefaultMaxDuration = 30 * time.Minute
)

type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateCompleted State = "completed"
	StateErrored   State = "errored"
	StateCanceled  State = "canceled"
)

//go:generate mockgen -destination=mocks/mock_status_source.go -package=mock_poller anymusic/internal/poller StatusSource

// StatusSource returns the current snapshot of a task. Errors are treated as
// transient.
type StatusSource interface {
	Progress(ctx context.Context, h task.Handle) (task.Snapshot, error)
}

// ReportFunc receives each snapshot in tick order. It runs on the polling
// goroutine and must not block for long. It may call Stop.
type ReportFunc func(task.Snapshot)

type Options struct {
	// Interval between the end of one query and the start of the next.
	Interval time.Duration
	// MaxDuration bounds the whole session. Zero disables the guard.
	MaxDuration time.Duration
}

type Poller struct {
	src  StatusSource
	opts Options

	mu     sync.Mutex
	active *Session
}

// New returns an idle Poller. A non-positive Interval falls back to
// DefaultInterval; a negative MaxDuration to DefaultMaxDuration.
func New(src StatusSource, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxDuration < 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	return &Poller{src: src, opts: opts}
}

// Session is one polling run for a single handle.
type Session struct {
	ID     string
	Handle task.Handle

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     State
	last      task.Snapshot
	err       error
	ticks     int
	reporting bool
}

// State reports the poller state: polling while a session is live, idle
// otherwise.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		return StatePolling
	}
	return StateIdle
}

// Active returns the live session, or nil.
func (p *Poller) Active() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Start begins polling h. Calling Start for the handle already being polled
// returns the live session; any other handle fails with *AlreadyPollingError
// and leaves the running loop untouched.
func (p *Poller) Start(ctx context.Context, h task.Handle, report ReportFunc) (*Session, error) {
	if h.IsZero() {
		return nil, ErrEmptyHandle
	}

	p.mu.Lock()
	if s := p.active; s != nil {
		p.mu.Unlock()
		if s.Handle == h {
			return s, nil
		}
		return nil, &AlreadyPollingError{Active: s.Handle, Requested: h}
	}
	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:     uuid.NewString(),
		Handle: h,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StatePolling,
	}
	p.active = s
	p.mu.Unlock()

	logging.LogPollerState(s.ID, h.String(), string(StatePolling))
	go p.run(runCtx, s, report)
	return s, nil
}

// Stop cancels the live session, if any, and waits for its loop to exit.
// It is safe to call at any time and any number of times. While a ReportFunc
// is running, Stop only cancels: the loop exits once the callback returns
// and no further snapshot is reported.
func (p *Poller) Stop() {
	p.mu.Lock()
	s := p.active
	p.mu.Unlock()
	if s == nil {
		return
	}
	s.cancel()
	if s.inReport() {
		return
	}
	<-s.done
}

func (p *Poller) run(ctx context.Context, s *Session, report ReportFunc) {
	defer close(s.done)
	defer s.cancel()
	defer p.release(s)

	start := time.Now()
	timer := time.NewTimer(p.opts.Interval)
	defer timer.Stop()

	var prev task.Snapshot
	for {
		select {
		case <-ctx.Done():
			s.finish(StateCanceled, prev, ctx.Err())
			return
		case <-timer.C:
		}

		if p.opts.MaxDuration > 0 && time.Since(start) >= p.opts.MaxDuration {
			snap := task.Snapshot{
				Status:   task.StatusError,
				Progress: prev.Progress,
				Title:    prev.Title,
				Error:    fmt.Sprintf("polling timed out after %s", p.opts.MaxDuration),
			}
			s.report(report, snap)
			logging.LogTaskTerminal(s.ID, s.Handle.String(), string(snap.Status), 0, snap.Error)
			s.finish(StateErrored, snap, ErrPollTimeout)
			return
		}

		raw, err := p.src.Progress(ctx, s.Handle)
		if ctx.Err() != nil {
			s.finish(StateCanceled, prev, ctx.Err())
			return
		}
		s.tick()
		if err != nil {
			logging.LogPollError(s.ID, s.Handle.String(), err)
			timer.Reset(p.opts.Interval)
			continue
		}

		snap := raw.Normalize().Follow(prev)
		prev = snap
		logging.LogPollTick(s.ID, s.Handle.String(), string(snap.Status), snap.Progress)
		s.report(report, snap)

		switch snap.Status {
		case task.StatusCompleted:
			logging.LogTaskTerminal(s.ID, s.Handle.String(), string(snap.Status), len(snap.Files), "")
			s.finish(StateCompleted, snap, nil)
			return
		case task.StatusError:
			logging.LogTaskTerminal(s.ID, s.Handle.String(), string(snap.Status), 0, snap.Error)
			s.finish(StateErrored, snap, &ApplicationError{TaskID: s.Handle.String(), Message: snap.Error})
			return
		}
		if ctx.Err() != nil {
			s.finish(StateCanceled, prev, ctx.Err())
			return
		}
		timer.Reset(p.opts.Interval)
	}
}

func (p *Poller) release(s *Session) {
	p.mu.Lock()
	if p.active == s {
		p.active = nil
	}
	p.mu.Unlock()
	logging.LogPollerState(s.ID, s.Handle.String(), string(s.State()))
}

func (s *Session) finish(st State, snap task.Snapshot, err error) {
	s.mu.Lock()
	s.state = st
	s.last = snap
	s.err = err
	s.mu.Unlock()
}

func (s *Session) report(fn ReportFunc, snap task.Snapshot) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.reporting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.reporting = false
		s.mu.Unlock()
	}()
	fn(snap)
}

func (s *Session) inReport() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reporting
}

func (s *Session) tick() {
	s.mu.Lock()
	s.ticks++
	s.mu.Unlock()
}

// State reports the session state; it stays StatePolling until the loop exits.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ticks returns the number of status queries issued so far.
func (s *Session) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Done is closed once the loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session ends or ctx is done. It returns the last
// reported snapshot and nil for a completed task, *ApplicationError for a
// failed one, ErrPollTimeout when the duration guard fired, or the
// cancellation cause.
func (s *Session) Wait(ctx context.Context) (task.Snapshot, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		return task.Snapshot{}, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.err
}
