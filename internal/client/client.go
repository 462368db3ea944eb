// Package client talks to the media tools backend: it submits download tasks,
// queries their progress, retrieves produced files and calls the synchronous
// PDF and audio transform endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"anymusic/internal/logging"
	"anymusic/internal/task"
)

const (
	pathDownload  = "/api/download"
	pathProgress  = "/api/progress/"
	pathDownloads = "/downloads/"

	// maxJSONBody caps decoded JSON responses.
	maxJSONBody = 1 << 20
)

// Client is safe for concurrent use.
type Client struct {
	base      *url.URL
	http      *http.Client
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New returns a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	c := &Client{
		base:      u,
		http:      &http.Client{Timeout: 30 * time.Second},
		userAgent: "anymusic/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.base.String() }

// Submit asks the backend to download and convert url. It returns the task
// handle to poll, a *ValidationError for a blank url, or a *SubmissionError
// when the backend refuses.
func (c *Client) Submit(ctx context.Context, rawURL string, isPlaylist bool) (task.Handle, error) {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return "", &ValidationError{Field: "url", Reason: ErrEmptyURL.Error(), Err: ErrEmptyURL}
	}

	payload, err := json.Marshal(task.SubmitRequest{URL: u, IsPlaylist: isPlaylist})
	if err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, http.MethodPost, pathDownload, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		serr := &SubmissionError{Endpoint: pathDownload, Message: msgDownloadFailed, Err: err}
		logging.LogSubmissionError(u, err)
		return "", serr
	}
	defer resp.Body.Close()

	var body task.SubmitResponse
	decErr := json.NewDecoder(io.LimitReader(resp.Body, maxJSONBody)).Decode(&body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &SubmissionError{
			Endpoint:   pathDownload,
			StatusCode: resp.StatusCode,
			Message:    firstNonEmpty(body.Error, msgDownloadFailed),
			Err:        fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode),
		}
		logging.LogSubmissionError(u, serr)
		return "", serr
	}
	if decErr != nil {
		serr := &SubmissionError{Endpoint: pathDownload, StatusCode: resp.StatusCode, Message: msgDownloadFailed, Err: decErr}
		logging.LogSubmissionError(u, serr)
		return "", serr
	}
	h := task.Handle(strings.TrimSpace(body.TaskID))
	if h.IsZero() {
		serr := &SubmissionError{Endpoint: pathDownload, StatusCode: resp.StatusCode, Message: msgDownloadFailed, Err: ErrMissingTaskID}
		logging.LogSubmissionError(u, serr)
		return "", serr
	}
	logging.LogTaskSubmitted(h.String(), u, isPlaylist)
	return h, nil
}

// Progress queries the status of h once. Any failure to obtain a decodable
// snapshot is reported as *TransientPollError.
func (c *Client) Progress(ctx context.Context, h task.Handle) (task.Snapshot, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pathProgress+url.PathEscape(h.String()), nil)
	if err != nil {
		return task.Snapshot{}, &TransientPollError{TaskID: h.String(), Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return task.Snapshot{}, &TransientPollError{TaskID: h.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxJSONBody))
		return task.Snapshot{}, &TransientPollError{TaskID: h.String(), StatusCode: resp.StatusCode, Err: ErrUnexpectedStatus}
	}
	var snap task.Snapshot
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONBody)).Decode(&snap); err != nil {
		return task.Snapshot{}, &TransientPollError{TaskID: h.String(), StatusCode: resp.StatusCode, Err: fmt.Errorf("decode snapshot: %w", err)}
	}
	return snap, nil
}

// FetchResult streams the produced file at path (as listed in a completed
// snapshot) into w and returns the number of bytes written.
func (c *Client) FetchResult(ctx context.Context, path string, w io.Writer) (int64, error) {
	if strings.TrimSpace(path) == "" {
		return 0, validation("path", "empty path")
	}
	req, err := c.newRequest(ctx, http.MethodGet, pathDownloads+EncodeComponent(path), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &SubmissionError{Endpoint: pathDownloads, Message: msgFetchFailed, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, decodeFailure(pathDownloads, resp, msgFetchFailed)
	}
	return io.Copy(w, resp.Body)
}

// ResultURL returns the absolute URL of a produced file.
func (c *Client) ResultURL(path string) string {
	return c.base.String() + pathDownloads + EncodeComponent(path)
}

// componentUnescaper restores the marks QueryEscape encodes but a URI
// component leaves alone, and writes spaces as %20.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeComponent percent-encodes s as a single URL component: everything
// except letters, digits and -_.!~*'() is escaped, "/" included.
func EncodeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	// path may already carry escapes; build the URL from the raw string so
	// they are preserved.
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// decodeFailure turns a non-2xx response into a *SubmissionError, using the
// backend's {"error": "..."} message when present.
func decodeFailure(endpoint string, resp *http.Response, fallback string) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			body.Error = ""
		}
	}
	return &SubmissionError{
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Message:    firstNonEmpty(body.Error, fallback),
		Err:        fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
