package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"anymusic/internal/logging"
	"anymusic/internal/tools"
)

const (
	pathQRCode         = "/api/qrcode"
	pathQRCodeDownload = "/api/qrcode/download"
	pathShorten        = "/api/shorten"
	pathRemoveBG       = "/api/remove-bg"
	pathMaskText       = "/api/mask-text"
)

// QRCode renders content as a PNG QR code.
func (c *Client) QRCode(ctx context.Context, content string) (*File, error) {
	if strings.TrimSpace(content) == "" {
		return nil, validation("content", "content is required")
	}
	start := time.Now()
	resp, err := c.postJSON(ctx, pathQRCodeDownload, tools.QRCodeRequest{Content: content}, msgQRCodeFailed)
	logging.LogTransform(pathQRCodeDownload, 0, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &File{
		Name:        attachmentName(resp.Header.Get("Content-Disposition"), "qrcode.png"),
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
		Body:        resp.Body,
	}, nil
}

// QRCodeDataURI renders content as a QR code and returns it as a
// data:image/png;base64 URI.
func (c *Client) QRCodeDataURI(ctx context.Context, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", validation("content", "content is required")
	}
	var out tools.QRCodeResponse
	if err := c.callJSON(ctx, pathQRCode, tools.QRCodeRequest{Content: content}, &out, msgQRCodeFailed); err != nil {
		return "", err
	}
	if !strings.HasPrefix(out.Image, "data:image/") {
		return "", &SubmissionError{Endpoint: pathQRCode, StatusCode: http.StatusOK, Message: msgQRCodeFailed, Err: fmt.Errorf("unexpected image %q", truncate(out.Image, 32))}
	}
	return out.Image, nil
}

// ShortenURL asks the backend for a short alias of rawURL.
func (c *Client) ShortenURL(ctx context.Context, rawURL string) (tools.ShortenResponse, error) {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return tools.ShortenResponse{}, &ValidationError{Field: "url", Reason: ErrEmptyURL.Error(), Err: ErrEmptyURL}
	}
	var out tools.ShortenResponse
	if err := c.callJSON(ctx, pathShorten, tools.ShortenRequest{URL: u}, &out, msgShortenFailed); err != nil {
		return tools.ShortenResponse{}, err
	}
	if strings.TrimSpace(out.Short) == "" {
		return tools.ShortenResponse{}, &SubmissionError{Endpoint: pathShorten, StatusCode: http.StatusOK, Message: msgShortenFailed, Err: errors.New("empty short url")}
	}
	return out, nil
}

// RemoveBackground uploads an image and returns it as a PNG with the
// background made transparent.
func (c *Client) RemoveBackground(ctx context.Context, path string) (*File, error) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return c.transform(ctx, pathRemoveBG,
		[]formFile{{field: "image", path: path}},
		nil,
		"nobg_"+stem+".png", msgRemoveBGFailed)
}

// MaskText replaces e-mail addresses, phone numbers, ID numbers and card
// numbers in req.Text. An empty Patterns selects every rule.
func (c *Client) MaskText(ctx context.Context, req tools.MaskRequest) (tools.MaskResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return tools.MaskResponse{}, validation("text", "text is required")
	}
	for _, p := range req.Patterns {
		if !tools.KnownPattern(p) {
			return tools.MaskResponse{}, validation("patterns", fmt.Sprintf("unknown pattern %q (want one of %s)", p, strings.Join(tools.PatternNames(), ", ")))
		}
	}
	if req.MaskChar != "" && utf8.RuneCountInString(req.MaskChar) != 1 {
		return tools.MaskResponse{}, validation("mask_char", "must be a single character")
	}
	var out tools.MaskResponse
	if err := c.callJSON(ctx, pathMaskText, req, &out, msgMaskFailed); err != nil {
		return tools.MaskResponse{}, err
	}
	return out, nil
}

// callJSON posts in and decodes the JSON answer into out.
func (c *Client) callJSON(ctx context.Context, endpoint string, in, out any, failMsg string) error {
	start := time.Now()
	resp, err := c.postJSON(ctx, endpoint, in, failMsg)
	if err == nil {
		defer resp.Body.Close()
		if derr := json.NewDecoder(io.LimitReader(resp.Body, maxJSONBody)).Decode(out); derr != nil {
			err = &SubmissionError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: failMsg, Err: fmt.Errorf("decode response: %w", derr)}
		}
	}
	logging.LogTransform(endpoint, 0, time.Since(start), err)
	return err
}

// postJSON sends in as a JSON body. A non-2xx answer is returned as
// *SubmissionError with the body already consumed.
func (c *Client) postJSON(ctx context.Context, endpoint string, in any, failMsg string) (*http.Response, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &SubmissionError{Endpoint: endpoint, Message: failMsg, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeFailure(endpoint, resp, failMsg)
	}
	return resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
