package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anymusic/internal/tools"
)

func TestQRCode(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tools.QRCodeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Content)
		switch r.URL.Path {
		case "/api/qrcode/download":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("\x89PNG"))
		case "/api/qrcode":
			_, _ = w.Write([]byte(`{"success":true,"image":"data:image/png;base64,iVBO"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	ctx := context.Background()

	f, err := c.QRCode(ctx, "hello")
	require.NoError(t, err)
	defer f.Body.Close()
	assert.Equal(t, "qrcode.png", f.Name)
	body, _ := io.ReadAll(f.Body)
	assert.Equal(t, "\x89PNG", string(body))

	uri, err := c.QRCodeDataURI(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,iVBO", uri)

	_, err = c.QRCode(ctx, "  ")
	assert.True(t, IsValidation(err))
}

func TestQRCodeDataURI_BadImage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"image":"nope"}`))
	}))
	_, err := c.QRCodeDataURI(context.Background(), "x")
	var serr *SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "/api/qrcode", serr.Endpoint)
}

func TestShortenURL(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/shorten", r.URL.Path)
		var req tools.ShortenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.URL == "https://example.com/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"upstream unavailable"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(tools.ShortenResponse{Success: true, Original: req.URL, Short: "https://tinyurl.com/abc"})
	}))
	ctx := context.Background()

	got, err := c.ShortenURL(ctx, " https://example.com/a/very/long/path ")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a/very/long/path", got.Original)
	assert.Equal(t, "https://tinyurl.com/abc", got.Short)

	_, err = c.ShortenURL(ctx, "https://example.com/broken")
	var serr *SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "upstream unavailable", serr.Error())

	_, err = c.ShortenURL(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyURL)
}

func TestRemoveBackground(t *testing.T) {
	img := writeTemp(t, "cat.jpg", "JPEG")
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/remove-bg", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Len(t, r.MultipartForm.File["image"], 1)
		_, _ = w.Write([]byte("PNG"))
	}))

	f, err := c.RemoveBackground(context.Background(), img)
	require.NoError(t, err)
	defer f.Body.Close()
	assert.Equal(t, "nobg_cat.png", f.Name)
}

func TestMaskText(t *testing.T) {
	var got tools.MaskRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/mask-text", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		masked, items := tools.Mask(got.Text, got.Patterns, got.MaskChar)
		_ = json.NewEncoder(w).Encode(tools.MaskResponse{Success: true, Original: got.Text, Masked: masked, Items: items})
	}))
	ctx := context.Background()

	res, err := c.MaskText(ctx, tools.MaskRequest{Text: "write to bob@example.com", Patterns: []string{"email"}, MaskChar: "#"})
	require.NoError(t, err)
	assert.Equal(t, "write to ###############", res.Masked)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "email", res.Items[0].Type)
	assert.Equal(t, []string{"email"}, got.Patterns)

	for name, req := range map[string]tools.MaskRequest{
		"empty":     {Text: " "},
		"pattern":   {Text: "x", Patterns: []string{"ssn"}},
		"mask char": {Text: "x", MaskChar: "ab"},
	} {
		_, err := c.MaskText(ctx, req)
		assert.True(t, IsValidation(err), name)
	}
}
