package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"anymusic/internal/task"
)

// helpers
func doJSON(t *testing.T, h http.Handler, method, path, ip string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func submit(t *testing.T, h http.Handler, url string, playlist bool) string {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/api/download", "", map[string]any{"url": url, "is_playlist": playlist})
	if w.Code != http.StatusOK {
		t.Fatalf("submit status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		TaskID  string `json:"task_id"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TaskID == "" {
		t.Fatalf("missing task_id: %s", w.Body.String())
	}
	return resp.TaskID
}

func progress(t *testing.T, h http.Handler, id string) (int, task.Snapshot) {
	t.Helper()
	w := doJSON(t, h, http.MethodGet, "/api/progress/"+id, "", nil)
	var snap task.Snapshot
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
			t.Fatal(err)
		}
	}
	return w.Code, snap
}

func TestDownload_Success(t *testing.T) {
	h := NewBackend(Options{}).Handler()
	w := doJSON(t, h, http.MethodPost, "/api/download", "10.0.0.1", map[string]any{"url": "https://example.com/watch?v=abc"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%s", ct)
	}
}

func TestDownload_Invalid(t *testing.T) {
	h := NewBackend(Options{}).Handler()
	tests := []struct {
		name string
		body any
		want string
	}{
		{"empty", map[string]any{"url": " "}, "Please enter a URL"},
		{"scheme", map[string]any{"url": "ftp://example.com/x"}, "Unsupported URL"},
		{"garbage", "not an object", "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPost, "/api/download", "", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status=%d", w.Code)
			}
			var resp struct{ Error string }
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Error != tt.want {
				t.Fatalf("error=%q want %q", resp.Error, tt.want)
			}
		})
	}
}

func TestDownload_MethodNotAllowed(t *testing.T) {
	h := NewBackend(Options{}).Handler()
	w := doJSON(t, h, http.MethodGet, "/api/download", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestProgress_FollowsScript(t *testing.T) {
	h := NewBackend(Options{}).Handler()
	id := submit(t, h, "https://example.com/watch?v=abc", false)

	var seen []task.Status
	for i := 0; i < 10; i++ {
		code, snap := progress(t, h, id)
		if code != http.StatusOK {
			t.Fatalf("status=%d", code)
		}
		seen = append(seen, snap.Status)
		if snap.Status.IsTerminal() {
			if len(snap.Files) != 1 || snap.Files[0] != "abc.mp3" {
				t.Fatalf("files=%v", snap.Files)
			}
			break
		}
	}
	want := []task.Status{task.StatusStarting, task.StatusDownloading, task.StatusDownloading, task.StatusDownloading, task.StatusConverting, task.StatusCompleted}
	if len(seen) != len(want) {
		t.Fatalf("seen=%v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("step %d: %s want %s", i, seen[i], want[i])
		}
	}

	// Terminal snapshot repeats.
	if _, snap := progress(t, h, id); snap.Status != task.StatusCompleted {
		t.Fatalf("after terminal: %s", snap.Status)
	}

	w := doJSON(t, h, http.MethodGet, "/downloads/abc.mp3", "", nil)
	if w.Code != http.StatusOK || w.Body.String() != "ID3abc.mp3" {
		t.Fatalf("file status=%d body=%q", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "abc.mp3") {
		t.Fatalf("content-disposition=%q", cd)
	}
}

func TestProgress_UnavailableFails(t *testing.T) {
	h := NewBackend(Options{}).Handler()
	id := submit(t, h, "https://example.com/unavailable", false)
	var last task.Snapshot
	for i := 0; i < 10 && !last.Status.IsTerminal(); i++ {
		_, last = progress(t, h, id)
	}
	if last.Status != task.StatusError || last.Error != "Video unavailable" {
		t.Fatalf("last=%+v", last)
	}
}

func TestProgress_Playlist(t *testing.T) {
	h := NewBackend(Options{}).Handler()
	id := submit(t, h, "https://example.com/list/mix", true)
	var last task.Snapshot
	for i := 0; i < 10 && !last.Status.IsTerminal(); i++ {
		_, last = progress(t, h, id)
	}
	if len(last.Files) != 3 {
		t.Fatalf("files=%v", last.Files)
	}
}

func TestProgress_UnknownTask(t *testing.T) {
	h := NewBackend(Options{}).Handler()
	code, snap := progress(t, h, "does-not-exist")
	if code != http.StatusOK || snap.Status != task.StatusNotFound {
		t.Fatalf("code=%d snap=%+v", code, snap)
	}
}

func TestProgress_FailFirst(t *testing.T) {
	h := NewBackend(Options{FailFirst: 2}).Handler()
	id := submit(t, h, "https://example.com/x", false)
	for i := 0; i < 2; i++ {
		if code, _ := progress(t, h, id); code != http.StatusInternalServerError {
			t.Fatalf("query %d: status=%d", i, code)
		}
	}
	if code, snap := progress(t, h, id); code != http.StatusOK || snap.Status != task.StatusStarting {
		t.Fatalf("status=%d snap=%+v", code, snap)
	}
}

func TestDownloads_Missing(t *testing.T) {
	h := NewBackend(Options{}).Handler()
	w := doJSON(t, h, http.MethodGet, "/downloads/nope.mp3", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	h := NewBackend(Options{RateLimit: 2}).Handler()
	for i := 0; i < 2; i++ {
		if w := doJSON(t, h, http.MethodGet, "/api/progress/x", "10.0.0.9", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: status=%d", i, w.Code)
		}
	}
	if w := doJSON(t, h, http.MethodGet, "/api/progress/x", "10.0.0.9", nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", w.Code)
	}
	if w := doJSON(t, h, http.MethodGet, "/api/progress/x", "10.0.0.10", nil); w.Code != http.StatusOK {
		t.Fatalf("other ip status=%d", w.Code)
	}
}

func multipartRequest(t *testing.T, path string, files map[string][]string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, names := range files {
		for _, name := range names {
			fw, err := mw.CreateFormFile(field, name)
			if err != nil {
				t.Fatal(err)
			}
			_, _ = fw.Write([]byte("<" + name + ">"))
		}
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestTransforms(t *testing.T) {
	h := NewBackend(Options{}).Handler()
	tests := []struct {
		path     string
		files    map[string][]string
		fields   map[string]string
		wantName string
		wantBody string
	}{
		{"/api/pdf/merge", map[string][]string{"pdfs": {"a.pdf", "b.pdf"}}, nil, "merged.pdf", "<a.pdf><b.pdf>"},
		{"/api/pdf/split", map[string][]string{"pdf": {"a.pdf"}}, map[string]string{"pages": "1-2"}, "split.pdf", "<a.pdf>"},
		{"/api/pdf/rotate", map[string][]string{"pdf": {"a.pdf"}}, map[string]string{"rotation": "90", "pages": "all"}, "rotated.pdf", "<a.pdf>"},
		{"/api/pdf/delete", map[string][]string{"pdf": {"a.pdf"}}, map[string]string{"pages": "1"}, "modified.pdf", "<a.pdf>"},
		{"/api/trim", map[string][]string{"audio": {"song.wav"}}, map[string]string{"start_time": "1", "end_time": "5"}, "trimmed_song.wav", "<song.wav>"},
		{"/api/convert-to-mp3", map[string][]string{"audio": {"song.flac"}}, map[string]string{"bitrate": "192"}, "song.mp3", "<song.flac>"},
		{"/api/remove-bg", map[string][]string{"image": {"cat.jpg"}}, nil, "nobg_cat.png", "<cat.jpg>"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, multipartRequest(t, tt.path, tt.files, tt.fields))
			if w.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
			}
			if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, tt.wantName) {
				t.Fatalf("content-disposition=%q want %q", cd, tt.wantName)
			}
			if w.Body.String() != tt.wantBody {
				t.Fatalf("body=%q", w.Body.String())
			}
		})
	}
}

func TestTransform_MergeNeedsTwo(t *testing.T) {
	h := NewBackend(Options{}).Handler()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, multipartRequest(t, "/api/pdf/merge", map[string][]string{"pdfs": {"a.pdf"}}, nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestRecoverer(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := doJSON(t, h, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := NewBackend(Options{}).Handler()
	w := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if got := clientIP(req); got != "192.0.2.1" {
		t.Fatalf("got %q", got)
	}
	req.Header.Set("X-Real-IP", "198.51.100.2")
	if got := clientIP(req); got != "198.51.100.2" {
		t.Fatalf("got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.5" {
		t.Fatalf("got %q", got)
	}
}
