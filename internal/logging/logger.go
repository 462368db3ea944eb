package logging

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"
)

var (
	// Logger is the global structured logger instance
	Logger *slog.Logger
)

// Init initializes the global structured logger. Output goes to stderr so
// that stdout stays free for command output.
func Init(level slog.Level) {
	InitWriter(os.Stderr, level)
}

// InitWriter is like Init but writes to w.
func InitWriter(w io.Writer, level slog.Level) {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Format time as ISO8601
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	handler := slog.NewJSONHandler(w, opts)
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel converts a string log level to slog.Level
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "info", "INFO":
		return slog.LevelInfo
	case "warn", "WARN":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RedactURL removes secrets from URL logs while retaining debugging value.
// It strips userinfo and masks query parameter values.
func RedactURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed == nil {
		return rawURL
	}

	parsed.User = nil

	if parsed.RawQuery != "" {
		query := parsed.Query()
		for key := range query {
			query.Set(key, "***")
		}
		parsed.RawQuery = query.Encode()
	}

	return parsed.String()
}

// LogTaskSubmitted logs an accepted download submission
func LogTaskSubmitted(taskID, url string, isPlaylist bool) {
	if Logger == nil {
		return
	}
	Logger.Info("task submitted",
		"event", "task_submitted",
		"task_id", taskID,
		"url", RedactURL(url),
		"is_playlist", isPlaylist)
}

// LogSubmissionError logs a rejected download submission
func LogSubmissionError(url string, err error) {
	if Logger == nil {
		return
	}
	Logger.Error("task submission failed",
		"event", "task_submission_error",
		"url", RedactURL(url),
		"error", err)
}

// LogPollTick logs one decoded status snapshot
func LogPollTick(sessionID, taskID, status string, progress float64) {
	if Logger == nil {
		return
	}
	Logger.Debug("poll tick",
		"event", "poll_tick",
		"session_id", sessionID,
		"task_id", taskID,
		"status", status,
		"progress", progress)
}

// LogPollError logs a transient status query failure; polling continues
func LogPollError(sessionID, taskID string, err error) {
	if Logger == nil {
		return
	}
	Logger.Warn("poll tick failed",
		"event", "poll_error",
		"session_id", sessionID,
		"task_id", taskID,
		"error", err)
}

// LogTaskTerminal logs the terminal snapshot of a task
func LogTaskTerminal(sessionID, taskID, status string, files int, errMsg string) {
	if Logger == nil {
		return
	}
	if errMsg != "" {
		Logger.Error("task failed",
			"event", "task_terminal",
			"session_id", sessionID,
			"task_id", taskID,
			"status", status,
			"error", errMsg)
		return
	}
	Logger.Info("task completed",
		"event", "task_terminal",
		"session_id", sessionID,
		"task_id", taskID,
		"status", status,
		"files", files)
}

// LogPollerState logs poller state transitions
func LogPollerState(sessionID, taskID, state string) {
	if Logger == nil {
		return
	}
	Logger.Info("poller state changed",
		"event", "poller_state_change",
		"session_id", sessionID,
		"task_id", taskID,
		"state", state)
}

// LogTransform logs a synchronous file transform call
func LogTransform(endpoint string, inputs int, duration time.Duration, err error) {
	if Logger == nil {
		return
	}
	if err != nil {
		Logger.Error("transform failed",
			"event", "transform_error",
			"endpoint", endpoint,
			"inputs", inputs,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return
	}
	Logger.Info("transform complete",
		"event", "transform",
		"endpoint", endpoint,
		"inputs", inputs,
		"duration_ms", duration.Milliseconds())
}

// LogDBOperation logs database operations
func LogDBOperation(operation string, id int64, err error) {
	if Logger == nil {
		return
	}
	if err != nil {
		Logger.Error("database operation failed",
			"event", "db_operation_error",
			"operation", operation,
			"id", id,
			"error", err)
	} else {
		Logger.Info("database operation",
			"event", "db_operation",
			"operation", operation,
			"id", id)
	}
}

// LogDBCreate logs database record creation
func LogDBCreate(id int64, taskID, url string, isPlaylist bool) {
	if Logger == nil {
		return
	}
	Logger.Info("database record created",
		"event", "db_create",
		"id", id,
		"task_id", taskID,
		"url", RedactURL(url),
		"is_playlist", isPlaylist)
}

// LogDBUpdate logs database updates
func LogDBUpdate(operation string, id int64, fields map[string]any) {
	if Logger == nil {
		return
	}
	attrs := []any{
		"event", "db_update",
		"operation", operation,
		"id", id,
	}
	for k, v := range fields {
		if strings.EqualFold(k, "url") {
			if urlValue, ok := v.(string); ok {
				v = RedactURL(urlValue)
			}
		}
		attrs = append(attrs, k, v)
	}
	Logger.Debug("database updated", attrs...)
}

// LogHTTPRequest logs HTTP request handling
func LogHTTPRequest(method, path, remoteAddr string, duration time.Duration, status int, responseBytes int) {
	if Logger == nil {
		return
	}
	Logger.Info("http request",
		"event", "http_request",
		"method", method,
		"path", path,
		"remote_addr", remoteAddr,
		"duration_ms", duration.Milliseconds(),
		"status", status,
		"response_bytes", responseBytes)
}

// LogServerStart logs server startup
func LogServerStart(addr string, config map[string]any) {
	if Logger == nil {
		return
	}
	attrs := []any{
		"event", "server_start",
		"addr", addr,
	}
	for k, v := range config {
		attrs = append(attrs, k, v)
	}
	Logger.Info("server started", attrs...)
}

// LogServerShutdown logs server shutdown events
func LogServerShutdown(msg string, err error) {
	if Logger == nil {
		return
	}
	if err != nil {
		Logger.Error(msg,
			"event", "server_shutdown_error",
			"error", err)
	} else {
		Logger.Info(msg,
			"event", "server_shutdown")
	}
}

// LogPanic logs a recovered handler panic
func LogPanic(method, path string, v any) {
	if Logger == nil {
		return
	}
	Logger.Error("panic recovered",
		"event", "http_panic",
		"method", method,
		"path", path,
		"panic", v)
}

// With returns a logger with additional context
func With(ctx context.Context, attrs ...any) *slog.Logger {
	if Logger == nil {
		return slog.Default()
	}
	return Logger.With(attrs...)
}
