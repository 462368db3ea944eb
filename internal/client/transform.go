package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"anymusic/internal/logging"
)

const (
	pathPDFMerge   = "/api/pdf/merge"
	pathPDFSplit   = "/api/pdf/split"
	pathPDFRotate  = "/api/pdf/rotate"
	pathPDFDelete  = "/api/pdf/delete"
	pathTrim       = "/api/trim"
	pathConvertMP3 = "/api/convert-to-mp3"
)

// Bitrates accepted by ConvertToMP3, in kbps.
var Bitrates = []string{"128", "192", "256", "320"}

// File is the binary result of a transform. The caller must close Body.
type File struct {
	Name        string
	ContentType string
	Size        int64 // -1 when unknown
	Body        io.ReadCloser
}

type formFile struct {
	field string
	path  string
}

type formField struct {
	name  string
	value string
}

// MergePDFs concatenates the given PDFs in order.
func (c *Client) MergePDFs(ctx context.Context, paths []string) (*File, error) {
	if len(paths) < 2 {
		return nil, validation("pdfs", "at least 2 PDF files are required")
	}
	files := make([]formFile, 0, len(paths))
	for _, p := range paths {
		files = append(files, formFile{field: "pdfs", path: p})
	}
	return c.transform(ctx, pathPDFMerge, files, nil, "merged.pdf", msgMergeFailed)
}

// SplitPDF extracts the pages selected by spec ("1-3,5"; empty means all).
func (c *Client) SplitPDF(ctx context.Context, path, spec string) (*File, error) {
	if _, err := ParsePageSpec(spec); err != nil {
		return nil, validation("pages", err.Error())
	}
	return c.transform(ctx, pathPDFSplit,
		[]formFile{{field: "pdf", path: path}},
		[]formField{{name: "pages", value: strings.TrimSpace(spec)}},
		"split.pdf", msgSplitFailed)
}

// RotatePDF rotates the listed pages (or all pages when pages is empty or
// "all") clockwise by rotation degrees.
func (c *Client) RotatePDF(ctx context.Context, path string, rotation int, pages string) (*File, error) {
	switch rotation {
	case 90, 180, 270:
	default:
		return nil, validation("rotation", fmt.Sprintf("must be 90, 180 or 270, got %d", rotation))
	}
	pages = strings.TrimSpace(pages)
	if pages == "" {
		pages = "all"
	}
	if !strings.EqualFold(pages, "all") {
		if _, err := ParsePageList(pages); err != nil {
			return nil, validation("pages", err.Error())
		}
	} else {
		pages = "all"
	}
	return c.transform(ctx, pathPDFRotate,
		[]formFile{{field: "pdf", path: path}},
		[]formField{{name: "rotation", value: strconv.Itoa(rotation)}, {name: "pages", value: pages}},
		"rotated.pdf", msgRotateFailed)
}

// DeletePDFPages removes the listed pages.
func (c *Client) DeletePDFPages(ctx context.Context, path, pages string) (*File, error) {
	list, err := ParsePageList(pages)
	if err != nil {
		return nil, validation("pages", err.Error())
	}
	if len(list) == 0 {
		return nil, validation("pages", "no pages to delete")
	}
	return c.transform(ctx, pathPDFDelete,
		[]formFile{{field: "pdf", path: path}},
		[]formField{{name: "pages", value: strings.TrimSpace(pages)}},
		"modified.pdf", msgDeleteFailed)
}

// TrimAudio cuts the clip [start, end) seconds out of the audio file.
func (c *Client) TrimAudio(ctx context.Context, path string, start, end int) (*File, error) {
	if start < 0 {
		return nil, validation("start_time", "must not be negative")
	}
	if start >= end {
		return nil, validation("start_time", "start time must be before end time")
	}
	return c.transform(ctx, pathTrim,
		[]formFile{{field: "audio", path: path}},
		[]formField{{name: "start_time", value: strconv.Itoa(start)}, {name: "end_time", value: strconv.Itoa(end)}},
		"trimmed_"+filepath.Base(path), msgTrimFailed)
}

// ConvertToMP3 transcodes the audio file to MP3 at bitrate kbps (192 when empty).
func (c *Client) ConvertToMP3(ctx context.Context, path, bitrate string) (*File, error) {
	bitrate = strings.TrimSpace(bitrate)
	if bitrate == "" {
		bitrate = "192"
	}
	ok := false
	for _, b := range Bitrates {
		if b == bitrate {
			ok = true
			break
		}
	}
	if !ok {
		return nil, validation("bitrate", fmt.Sprintf("unsupported bitrate %q (want one of %s)", bitrate, strings.Join(Bitrates, ", ")))
	}
	return c.transform(ctx, pathConvertMP3,
		[]formFile{{field: "audio", path: path}},
		[]formField{{name: "bitrate", value: bitrate}},
		mp3Name(path), msgConvertFailed)
}

// transform uploads files and fields as multipart/form-data and returns the
// binary response. The body is streamed from disk.
func (c *Client) transform(ctx context.Context, endpoint string, files []formFile, fields []formField, defaultName, failMsg string) (*File, error) {
	for _, f := range files {
		st, err := os.Stat(f.path)
		if err != nil {
			return nil, validation(f.field, err.Error())
		}
		if st.IsDir() {
			return nil, validation(f.field, fmt.Sprintf("%s is a directory", f.path))
		}
	}

	start := time.Now()
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, files, fields))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		serr := &SubmissionError{Endpoint: endpoint, Message: failMsg, Err: err}
		logging.LogTransform(endpoint, len(files), time.Since(start), serr)
		return nil, serr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		serr := decodeFailure(endpoint, resp, failMsg)
		logging.LogTransform(endpoint, len(files), time.Since(start), serr)
		return nil, serr
	}
	logging.LogTransform(endpoint, len(files), time.Since(start), nil)

	return &File{
		Name:        attachmentName(resp.Header.Get("Content-Disposition"), defaultName),
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
		Body:        resp.Body,
	}, nil
}

func writeForm(mw *multipart.Writer, files []formFile, fields []formField) error {
	for _, f := range files {
		if err := copyFilePart(mw, f); err != nil {
			return err
		}
	}
	for _, fld := range fields {
		if err := mw.WriteField(fld.name, fld.value); err != nil {
			return err
		}
	}
	return mw.Close()
}

func copyFilePart(mw *multipart.Writer, f formFile) error {
	src, err := os.Open(f.path)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := mw.CreateFormFile(f.field, filepath.Base(f.path))
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// attachmentName extracts a safe file name from a Content-Disposition header.
func attachmentName(header, fallback string) string {
	if header == "" {
		return fallback
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return fallback
	}
	name := filepath.Base(strings.ReplaceAll(params["filename"], "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return fallback
	}
	return name
}

func mp3Name(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem = base
	}
	return stem + ".mp3"
}
