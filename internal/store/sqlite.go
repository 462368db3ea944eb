package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"anymusic/internal/logging"
	"anymusic/internal/task"
)

// Task represents a row in the tasks table: one submission and the last
// snapshot observed for it.
type Task struct {
	ID           int64     `json:"id"`
	TaskID       string    `json:"task_id"`
	URL          string    `json:"url"`
	IsPlaylist   bool      `json:"is_playlist"`
	Status       string    `json:"status"`
	Progress     float64   `json:"progress"`
	Title        string    `json:"title,omitempty"`
	Files        []string  `json:"files,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (t Task) Handle() task.Handle { return task.Handle(t.TaskID) }

// Snapshot returns the recorded status as a task snapshot.
func (t Task) Snapshot() task.Snapshot {
	return task.Snapshot{
		Status:   task.Status(t.Status),
		Progress: t.Progress,
		Title:    t.Title,
		Files:    t.Files,
		Error:    t.ErrorMessage,
	}.Normalize()
}

// Finished reports whether the task reached a terminal status.
func (t Task) Finished() bool { return task.Status(t.Status).IsTerminal() }

// Store wraps an sql.DB and provides typed helpers.
type Store struct {
	db *sql.DB

	subMu sync.RWMutex
	subs  map[chan ChangeEvent]struct{}
}

type ChangeType string

const (
	ChangeUpsert ChangeType = "upsert"
	ChangeDelete ChangeType = "delete"
)

type ChangeEvent struct {
	Type   ChangeType
	TaskID string // "" means "resync needed"
}

// Open opens or creates a SQLite database at the given path and ensures schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{
		db:   db,
		subs: make(map[chan ChangeEvent]struct{}),
	}, nil
}

func initSchema(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tasks (
    id INTEGER PRIMARY KEY,
    task_id TEXT NOT NULL UNIQUE,
    url TEXT NOT NULL,
    is_playlist INTEGER NOT NULL DEFAULT 0,
    status TEXT,
    progress REAL,
    title TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
`
	if _, err := db.Exec(ddl); err != nil {
		return err
	}
	// Columns added after the first schema.
	if err := ensureColumn(db, "tasks", "files", "TEXT"); err != nil {
		return err
	}
	if err := ensureColumn(db, "tasks", "error_message", "TEXT"); err != nil {
		return err
	}
	return nil
}

func ensureColumn(db *sql.DB, table, column, colType string) error {
	hasCol, err := hasColumn(db, table, column)
	if err != nil {
		return err
	}
	if hasCol {
		return nil
	}
	_, err = db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, colType))
	return err
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Close closes the underlying DB.
func (s *Store) Close() error { return s.db.Close() }

// SubscribeChanges subscribes to mutation events.
// The returned unsubscribe function must be called to avoid leaks.
func (s *Store) SubscribeChanges(buffer int) (<-chan ChangeEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan ChangeEvent, buffer)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	unsubscribe := func() {
		s.subMu.Lock()
		delete(s.subs, ch)
		s.subMu.Unlock()
	}
	return ch, unsubscribe
}

func (s *Store) emitChange(evt ChangeEvent) {
	s.subMu.RLock()
	targets := make([]chan ChangeEvent, 0, len(s.subs))
	for ch := range s.subs {
		targets = append(targets, ch)
	}
	s.subMu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- evt:
		default:
			// Channel is saturated; collapse to a single resync event.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ChangeEvent{Type: ChangeUpsert}:
			default:
			}
		}
	}
}

// CreateTask records a freshly submitted task in status "starting" and
// returns its row ID. Recording the same handle twice returns the existing row.
func (s *Store) CreateTask(ctx context.Context, h task.Handle, url string, isPlaylist bool) (int64, error) {
	if strings.TrimSpace(url) == "" {
		return 0, ErrEmptyURL
	}
	if h.IsZero() {
		return 0, ErrEmptyHandle
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tasks (task_id, url, is_playlist, status, progress, files)
VALUES (?, ?, ?, ?, 0, '[]')
ON CONFLICT(task_id) DO NOTHING`, h.String(), url, isPlaylist, string(task.StatusStarting))
	if err != nil {
		return 0, err
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM tasks WHERE task_id = ?`, h.String()).Scan(&id); err != nil {
		return 0, fmt.Errorf("get task id: %w", err)
	}
	logging.LogDBCreate(id, h.String(), url, isPlaylist)
	s.emitChange(ChangeEvent{Type: ChangeUpsert, TaskID: h.String()})
	return id, nil
}

// AdoptTask records a task that was submitted elsewhere, so only its
// handle is known. An existing row is left untouched.
func (s *Store) AdoptTask(ctx context.Context, h task.Handle) error {
	if h.IsZero() {
		return ErrEmptyHandle
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO tasks (task_id, url, status, progress, files)
VALUES (?, '', ?, 0, '[]')
ON CONFLICT(task_id) DO NOTHING`, h.String(), string(task.StatusStarting))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logging.LogDBCreate(0, h.String(), "", false)
		s.emitChange(ChangeEvent{Type: ChangeUpsert, TaskID: h.String()})
	}
	return nil
}

// UpdateSnapshot stores the latest snapshot of h. An empty title keeps the
// recorded one.
func (s *Store) UpdateSnapshot(ctx context.Context, h task.Handle, snap task.Snapshot) error {
	snap = snap.Normalize()
	payload, err := json.Marshal(cleanFilePaths(snap.Files))
	if err != nil {
		return err
	}
	var errMsg any
	if snap.Error != "" {
		errMsg = snap.Error
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE tasks SET
    status = ?,
    progress = ?,
    title = COALESCE(NULLIF(?, ''), title),
    files = ?,
    error_message = ?,
    updated_at = CURRENT_TIMESTAMP
WHERE task_id = ?`,
		normalizeStatus(string(snap.Status)), snap.Progress, snap.Title, string(payload), errMsg, h.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	fields := map[string]any{"task_id": h.String(), "status": snap.Status, "progress": snap.Progress}
	if snap.Error != "" {
		fields["error_message"] = snap.Error
	}
	logging.LogDBUpdate("update_snapshot", 0, fields)
	s.emitChange(ChangeEvent{Type: ChangeUpsert, TaskID: h.String()})
	return nil
}

const selectTask = `SELECT id, task_id, url, is_playlist, status, progress, title, files, error_message, created_at, updated_at FROM tasks`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (Task, error) {
	var (
		t      Task
		status sql.NullString
		prog   sql.NullFloat64
		title  sql.NullString
		files  sql.NullString
		errMsg sql.NullString
	)
	if err := sc.Scan(&t.ID, &t.TaskID, &t.URL, &t.IsPlaylist, &status, &prog, &title, &files, &errMsg, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Task{}, err
	}
	t.Status = normalizeStatus(status.String)
	t.Progress = prog.Float64
	t.Title = title.String
	t.Files = parseFilePaths(files.String)
	t.ErrorMessage = errMsg.String
	return t, nil
}

// GetTask returns the row for h.
func (s *Store) GetTask(ctx context.Context, h task.Handle) (Task, bool, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, selectTask+` WHERE task_id = ?`, h.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, err
	}
	return t, true, nil
}

// LatestUnfinished returns the most recent task that never reached a
// terminal status.
func (s *Store) LatestUnfinished(ctx context.Context) (Task, bool, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		selectTask+` WHERE status NOT IN ('completed', 'error') ORDER BY created_at DESC, id DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, err
	}
	return t, true, nil
}

type ListFilter struct {
	Status string // optional: starting|downloading|converting|completed|error
	Order  string // asc|desc (by created_at)
	Limit  int    // optional
	Offset int    // optional
}

func (s *Store) ListTasks(ctx context.Context, f ListFilter) ([]Task, error) {
	order := "DESC"
	if strings.ToLower(f.Order) == "asc" {
		order = "ASC"
	}
	var args []any
	sb := strings.Builder{}
	sb.WriteString(selectTask)
	if f.Status != "" {
		sb.WriteString(" WHERE status = ?")
		args = append(args, normalizeStatus(f.Status))
	}
	sb.WriteString(" ORDER BY created_at ")
	sb.WriteString(order)
	sb.WriteString(", id ")
	sb.WriteString(order)
	if f.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
		if f.Offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, f.Offset)
		}
	} else if f.Offset > 0 {
		sb.WriteString(" LIMIT -1 OFFSET ?")
		args = append(args, f.Offset)
	}
	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Task, 0, 16)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountByStatus returns the number of tasks in the given status.
func (s *Store) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE status = ?`, normalizeStatus(status)).Scan(&n)
	return n, err
}

// DeleteTask removes the row for h, or returns ErrNotFound.
func (s *Store) DeleteTask(ctx context.Context, h task.Handle) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE task_id = ?`, h.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	logging.LogDBOperation("delete_task", n, nil)
	s.emitChange(ChangeEvent{Type: ChangeDelete, TaskID: h.String()})
	return nil
}

func normalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "starting", "downloading", "converting", "completed", "error":
		return s
	case "failed", "not_found":
		return "error"
	default:
		return "starting"
	}
}

func parseFilePaths(input string) []string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil
	}
	var parsed []string
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil
	}
	return cleanFilePaths(parsed)
}

func cleanFilePaths(paths []string) []string {
	if len(paths) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		out = append(out, path)
	}
	return out
}
