// Package server implements a scripted stand-in for the media tools backend.
// Every accepted download follows a fixed sequence of snapshots, one step per
// progress query, which makes client behaviour reproducible in tests and
// during local development.
package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"anymusic/internal/logging"
	"anymusic/internal/task"
)

const maxUpload = 64 << 20

// ScriptFunc returns the snapshots a new task goes through. The last one
// must be terminal; it is repeated for every later query.
type ScriptFunc func(url string, isPlaylist bool) []task.Snapshot

type Options struct {
	// Script defaults to DefaultScript.
	Script ScriptFunc
	// FailFirst answers that many progress queries per task with HTTP 500
	// before the script starts.
	FailFirst int
	// RateLimit caps requests per minute per client IP; 0 disables it.
	RateLimit int
}

type Backend struct {
	opts Options
	rl   rateLimiter

	mu    sync.Mutex
	tasks map[string]*scripted
	files map[string][]byte
}

type scripted struct {
	steps    []task.Snapshot
	next     int
	failures int
}

type rateLimiter interface {
	Allow(key string) bool
}

type allowAll struct{}

func (allowAll) Allow(string) bool { return true }

func NewBackend(opts Options) *Backend {
	if opts.Script == nil {
		opts.Script = DefaultScript
	}
	b := &Backend{
		opts:  opts,
		rl:    allowAll{},
		tasks: make(map[string]*scripted),
		files: make(map[string][]byte),
	}
	if opts.RateLimit > 0 {
		b.rl = newIPRateLimiter(opts.RateLimit, time.Minute)
	}
	return b
}

// AddFile makes content retrievable under /downloads/name.
func (b *Backend) AddFile(name string, content []byte) {
	b.mu.Lock()
	b.files[name] = content
	b.mu.Unlock()
}

// Handler returns an http.Handler with routes and middleware wired.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/download", b.with(b.handleDownload))
	mux.HandleFunc("/api/progress/", b.with(b.handleProgress))
	mux.HandleFunc("/downloads/", b.with(b.handleFile))

	mux.HandleFunc("/api/pdf/merge", b.with(transform(transformSpec{files: "pdfs", min: 2, name: fixedName("merged.pdf"), contentType: "application/pdf"})))
	mux.HandleFunc("/api/pdf/split", b.with(transform(transformSpec{files: "pdf", min: 1, name: fixedName("split.pdf"), contentType: "application/pdf", fields: []string{"pages"}})))
	mux.HandleFunc("/api/pdf/rotate", b.with(transform(transformSpec{files: "pdf", min: 1, name: fixedName("rotated.pdf"), contentType: "application/pdf", fields: []string{"rotation", "pages"}})))
	mux.HandleFunc("/api/pdf/delete", b.with(transform(transformSpec{files: "pdf", min: 1, name: fixedName("modified.pdf"), contentType: "application/pdf", fields: []string{"pages"}})))
	mux.HandleFunc("/api/trim", b.with(transform(transformSpec{files: "audio", min: 1, name: prefixName("trimmed_"), contentType: "application/octet-stream", fields: []string{"start_time", "end_time"}})))
	mux.HandleFunc("/api/convert-to-mp3", b.with(transform(transformSpec{files: "audio", min: 1, name: mp3Name, contentType: "audio/mpeg", fields: []string{"bitrate"}})))
	mux.HandleFunc("/api/remove-bg", b.with(transform(transformSpec{files: "image", min: 1, name: nobgName, contentType: "image/png"})))

	mux.HandleFunc("/api/qrcode", b.with(handleQRCode))
	mux.HandleFunc("/api/qrcode/download", b.with(handleQRCodeDownload))
	mux.HandleFunc("/api/shorten", b.with(handleShorten))
	mux.HandleFunc("/api/mask-text", b.with(handleMaskText))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return recoverer(logger(mux))
}

func (b *Backend) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req task.SubmitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "Please enter a URL")
		return
	}
	if !validURL(req.URL) {
		writeError(w, http.StatusBadRequest, "Unsupported URL")
		return
	}

	id := uuid.NewString()
	steps := b.opts.Script(req.URL, req.IsPlaylist)
	if len(steps) == 0 {
		steps = []task.Snapshot{{Status: task.StatusError, Error: task.DefaultErrorMessage}}
	}
	b.mu.Lock()
	b.tasks[id] = &scripted{steps: steps, failures: b.opts.FailFirst}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, task.SubmitResponse{TaskID: id, Message: "Download started"})
}

func (b *Backend) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/progress/")

	b.mu.Lock()
	t, ok := b.tasks[id]
	if !ok {
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"status": task.StatusNotFound})
		return
	}
	if t.failures > 0 {
		t.failures--
		b.mu.Unlock()
		writeError(w, http.StatusInternalServerError, "temporarily unavailable")
		return
	}
	snap := t.steps[t.next]
	if t.next < len(t.steps)-1 {
		t.next++
	}
	if snap.Status == task.StatusCompleted {
		for _, f := range snap.Files {
			if _, exists := b.files[f]; !exists {
				b.files[f] = []byte("ID3" + f)
			}
		}
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, snap)
}

func (b *Backend) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/downloads/")
	b.mu.Lock()
	content, ok := b.files[name]
	b.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(name)}))
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(content))
}

// DefaultScript walks through every non-terminal status and completes with
// one MP3 per track. URLs containing "unavailable" fail instead.
func DefaultScript(rawURL string, isPlaylist bool) []task.Snapshot {
	title := titleFromURL(rawURL)
	steps := []task.Snapshot{
		{Status: task.StatusStarting},
		{Status: task.StatusDownloading, Progress: 25, Title: title},
		{Status: task.StatusDownloading, Progress: 60, Title: title},
	}
	if strings.Contains(strings.ToLower(rawURL), "unavailable") {
		return append(steps, task.Snapshot{Status: task.StatusError, Progress: 60, Title: title, Error: "Video unavailable"})
	}
	files := []string{title + ".mp3"}
	if isPlaylist {
		files = []string{title + " - 01.mp3", title + " - 02.mp3", title + " - 03.mp3"}
	}
	return append(steps,
		task.Snapshot{Status: task.StatusDownloading, Progress: 100, Title: title},
		task.Snapshot{Status: task.StatusConverting, Progress: 100, Title: title},
		task.Snapshot{Status: task.StatusCompleted, Progress: 100, Title: title, Files: files},
	)
}

func titleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "Track"
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	if base := path.Base(u.Path); base != "." && base != "/" {
		return base
	}
	return "Track"
}

type transformSpec struct {
	files       string
	min         int
	fields      []string
	name        func(upload string) string
	contentType string
}

func fixedName(n string) func(string) string { return func(string) string { return n } }

func prefixName(p string) func(string) string {
	return func(upload string) string { return p + path.Base(upload) }
}

func mp3Name(upload string) string {
	base := path.Base(upload)
	return strings.TrimSuffix(base, path.Ext(base)) + ".mp3"
}

// transform echoes the concatenated uploads back as an attachment.
func transform(spec transformSpec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if err := r.ParseMultipartForm(maxUpload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		uploads := r.MultipartForm.File[spec.files]
		if len(uploads) < spec.min {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("at least %d %s file(s) required", spec.min, spec.files))
			return
		}
		for _, f := range spec.fields {
			if strings.TrimSpace(r.FormValue(f)) == "" && f != "pages" {
				writeError(w, http.StatusBadRequest, "missing field "+f)
				return
			}
		}

		var out bytes.Buffer
		for _, fh := range uploads {
			f, err := fh.Open()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "read upload")
				return
			}
			_, err = io.Copy(&out, f)
			f.Close()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "read upload")
				return
			}
		}
		w.Header().Set("Content-Type", spec.contentType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": spec.name(uploads[0].Filename)}))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out.Bytes())
	}
}

// Utilities

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func validURL(u string) bool {
	if len(u) == 0 || len(u) > 2048 {
		return false
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed == nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}

// Middleware

func (b *Backend) with(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !b.rl.Allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		h(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(p)
	s.bytes += n
	return n, err
}

func logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		// Progress polling is too chatty to log at info.
		if strings.HasPrefix(r.URL.Path, "/api/progress/") {
			return
		}
		logging.LogHTTPRequest(r.Method, r.URL.Path, r.RemoteAddr, time.Since(start), rec.status, rec.bytes)
	})
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logging.LogPanic(r.Method, r.URL.Path, v)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xr := r.Header.Get("X-Real-IP"); xr != "" {
		return strings.TrimSpace(xr)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
