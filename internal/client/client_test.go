package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anymusic/internal/task"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL + "/")
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	for _, in := range []string{"", "localhost:5000", "ftp://x", "http://"} {
		_, err := New(in)
		assert.Error(t, err, in)
	}
}

func TestSubmit_Success(t *testing.T) {
	var got struct {
		URL        string `json:"url"`
		IsPlaylist bool   `json:"is_playlist"`
	}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/download", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"task_id":"t1","message":"Download started"}`))
	}))

	h, err := c.Submit(context.Background(), "  https://example.com/watch?v=1  ", true)
	require.NoError(t, err)
	assert.Equal(t, task.Handle("t1"), h)
	assert.Equal(t, "https://example.com/watch?v=1", got.URL)
	assert.True(t, got.IsPlaylist)
}

func TestSubmit_EmptyURLDoesNotContactBackend(t *testing.T) {
	called := false
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	_, err := c.Submit(context.Background(), "   ", false)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.ErrorIs(t, err, ErrEmptyURL)
	assert.False(t, called)
}

func TestSubmit_BackendError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"with message", http.StatusBadRequest, `{"error":"Unsupported URL"}`, "Unsupported URL"},
		{"without message", http.StatusInternalServerError, `oops`, msgDownloadFailed},
		{"missing task id", http.StatusOK, `{"message":"ok"}`, msgDownloadFailed},
		{"garbage 200", http.StatusOK, `not json`, msgDownloadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			h, err := c.Submit(context.Background(), "https://example.com/x", false)
			require.Error(t, err)
			assert.True(t, h.IsZero())
			var serr *SubmissionError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.want, serr.Error())
		})
	}
}

func TestSubmit_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(base)
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), "https://example.com/x", false)
	var serr *SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, msgDownloadFailed, serr.Message)
}

func TestProgress_DecodesSnapshot(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/progress/a%2Fb", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{"status":"downloading","progress":42.5,"title":"Song"}`))
	}))

	snap, err := c.Progress(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, task.StatusDownloading, snap.Status)
	assert.InDelta(t, 42.5, snap.Progress, 0.001)
	assert.Equal(t, "Song", snap.Title)
}

func TestProgress_TransientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, `{"error":"upstream"}`},
		{"bad json", http.StatusOK, `{"status":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			_, err := c.Progress(context.Background(), "t1")
			var perr *TransientPollError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "t1", perr.TaskID)
		})
	}
}

func TestProgress_NotFoundPassesThrough(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"not_found"}`))
	}))
	snap, err := c.Progress(context.Background(), "gone")
	require.NoError(t, err)
	assert.Equal(t, task.StatusNotFound, snap.Status)
	assert.Equal(t, task.StatusError, snap.Normalize().Status)
}

func TestFetchResult(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/downloads/My%20Song.mp3", r.URL.EscapedPath())
		_, _ = w.Write([]byte("ID3data"))
	}))

	var buf bytes.Buffer
	n, err := c.FetchResult(context.Background(), "My Song.mp3", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "ID3data", buf.String())
}

func TestFetchResult_NotFound(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	_, err := c.FetchResult(context.Background(), "missing.mp3", io.Discard)
	var serr *SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestEncodeComponent(t *testing.T) {
	assert.Equal(t, "a%20b.mp3", EncodeComponent("a b.mp3"))
	assert.Equal(t, "dir%2Ffile.mp3", EncodeComponent("dir/file.mp3"))
	assert.Equal(t, "R%26B%3F.mp3", EncodeComponent("R&B?.mp3"))
	assert.Equal(t, "Don't%20Stop!%20(Live)%20*.mp3", EncodeComponent("Don't Stop! (Live) *.mp3"))
	assert.Equal(t, "50%25%2B~_.-", EncodeComponent("50%+~_.-"))
}

func TestResultURL(t *testing.T) {
	c, err := New("http://localhost:5000/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/downloads/a%20b.mp3", c.ResultURL("a b.mp3"))
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestMergePDFs(t *testing.T) {
	a := writeTemp(t, "a.pdf", "%PDF-a")
	b := writeTemp(t, "b.pdf", "%PDF-b")

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/pdf/merge", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		files := r.MultipartForm.File["pdfs"]
		require.Len(t, files, 2)
		assert.Equal(t, "a.pdf", files[0].Filename)
		assert.Equal(t, "b.pdf", files[1].Filename)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-merged"))
	}))

	f, err := c.MergePDFs(context.Background(), []string{a, b})
	require.NoError(t, err)
	defer f.Body.Close()
	assert.Equal(t, "merged.pdf", f.Name)
	assert.Equal(t, "application/pdf", f.ContentType)
	body, _ := io.ReadAll(f.Body)
	assert.Equal(t, "%PDF-merged", string(body))
}

func TestMergePDFs_NeedsTwo(t *testing.T) {
	c, err := New("http://localhost:5000")
	require.NoError(t, err)
	_, err = c.MergePDFs(context.Background(), []string{"only.pdf"})
	assert.True(t, IsValidation(err))
}

func TestTransform_FieldsAndFilename(t *testing.T) {
	pdf := writeTemp(t, "doc.pdf", "%PDF")
	song := writeTemp(t, "song.wav", "RIFF")

	var form map[string][]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		form = r.MultipartForm.Value
		if r.URL.Path == "/api/trim" {
			w.Header().Set("Content-Disposition", `attachment; filename="../../evil.wav"`)
		}
		_, _ = w.Write([]byte("ok"))
	}))
	ctx := context.Background()

	f, err := c.SplitPDF(ctx, pdf, "1-3,5")
	require.NoError(t, err)
	f.Body.Close()
	assert.Equal(t, "split.pdf", f.Name)
	assert.Equal(t, []string{"1-3,5"}, form["pages"])

	f, err = c.RotatePDF(ctx, pdf, 90, "")
	require.NoError(t, err)
	f.Body.Close()
	assert.Equal(t, "rotated.pdf", f.Name)
	assert.Equal(t, []string{"90"}, form["rotation"])
	assert.Equal(t, []string{"all"}, form["pages"])

	f, err = c.DeletePDFPages(ctx, pdf, "1,3")
	require.NoError(t, err)
	f.Body.Close()
	assert.Equal(t, "modified.pdf", f.Name)

	f, err = c.TrimAudio(ctx, song, 10, 20)
	require.NoError(t, err)
	f.Body.Close()
	assert.Equal(t, "evil.wav", f.Name)
	assert.Equal(t, []string{"10"}, form["start_time"])
	assert.Equal(t, []string{"20"}, form["end_time"])

	f, err = c.ConvertToMP3(ctx, song, "")
	require.NoError(t, err)
	f.Body.Close()
	assert.Equal(t, "song.mp3", f.Name)
	assert.Equal(t, []string{"192"}, form["bitrate"])
}

func TestTransform_Validation(t *testing.T) {
	pdf := writeTemp(t, "doc.pdf", "%PDF")
	c, err := New("http://localhost:5000")
	require.NoError(t, err)
	ctx := context.Background()

	cases := map[string]error{}
	_, cases["rotation"] = c.RotatePDF(ctx, pdf, 45, "all")
	_, cases["rotate pages"] = c.RotatePDF(ctx, pdf, 90, "1,x")
	_, cases["split"] = c.SplitPDF(ctx, pdf, "3-1")
	_, cases["delete empty"] = c.DeletePDFPages(ctx, pdf, " ")
	_, cases["trim order"] = c.TrimAudio(ctx, pdf, 20, 10)
	_, cases["trim negative"] = c.TrimAudio(ctx, pdf, -1, 10)
	_, cases["bitrate"] = c.ConvertToMP3(ctx, pdf, "64")
	_, cases["missing file"] = c.SplitPDF(ctx, filepath.Join(t.TempDir(), "nope.pdf"), "")

	for name, err := range cases {
		assert.True(t, IsValidation(err), "%s: %v", name, err)
	}
}

func TestTransform_BackendError(t *testing.T) {
	pdf := writeTemp(t, "doc.pdf", "%PDF")
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Invalid page range"}`))
	}))

	_, err := c.SplitPDF(context.Background(), pdf, "1-99")
	var serr *SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "Invalid page range", serr.Error())
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
}

func TestAttachmentName(t *testing.T) {
	assert.Equal(t, "x.pdf", attachmentName("", "x.pdf"))
	assert.Equal(t, "x.pdf", attachmentName("garbage;;", "x.pdf"))
	assert.Equal(t, "out.pdf", attachmentName(`attachment; filename="out.pdf"`, "x.pdf"))
	assert.Equal(t, "b.pdf", attachmentName(`attachment; filename="/etc/b.pdf"`, "x.pdf"))
	assert.True(t, strings.HasSuffix(mp3Name("/tmp/My Song.flac"), "My Song.mp3"))
}
