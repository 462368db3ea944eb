// Package ui renders task progress and results: link construction for
// produced files, a terminal view and an HTML results page.
package ui

import (
	"errors"
	"strings"

	"anymusic/internal/client"
)

// DownloadsPrefix is the path under which the backend serves produced files.
const DownloadsPrefix = "/downloads/"

// ErrNoFiles is reported for a completed task that produced nothing.
var ErrNoFiles = errors.New("no files produced")

// Link is one retrievable result file.
type Link struct {
	Name string // last path segment, for display
	Path string // path as reported by the backend
	Href string // DownloadsPrefix + percent-encoded Path
}

// ResultLinks builds one link per produced file, in order. Blank entries are
// skipped; an empty result is ErrNoFiles.
func ResultLinks(files []string) ([]Link, error) {
	out := make([]Link, 0, len(files))
	for _, f := range files {
		if strings.TrimSpace(f) == "" {
			continue
		}
		out = append(out, Link{
			Name: LinkName(f),
			Path: f,
			Href: DownloadsPrefix + client.EncodeComponent(f),
		})
	}
	if len(out) == 0 {
		return nil, ErrNoFiles
	}
	return out, nil
}

// LinkName returns the display name of a result path: its last "/" segment.
func LinkName(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
