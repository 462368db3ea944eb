package ui

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"anymusic/internal/task"
)

const pageHead = `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>%s</title>` +
	`<style>body{font-family:sans-serif;max-width:40rem;margin:2rem auto}` +
	`.error{color:#b00020}.bar{background:#eee;height:.6rem}.bar>div{background:#4ade80;height:100%%}</style></head><body>`

// ResultsPage renders the links of a completed task. base is prefixed to each
// href; pass "" for links relative to the backend root.
func ResultsPage(title, base string, links []Link) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, pageHead, templ.EscapeString(pageTitle(title))); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "<h1>%s</h1><ul class=\"results\">", templ.EscapeString(pageTitle(title))); err != nil {
			return err
		}
		for _, l := range links {
			href := templ.URL(base + l.Href)
			if _, err := fmt.Fprintf(w, `<li><a href="%s" download>%s</a></li>`,
				templ.EscapeString(string(href)), templ.EscapeString(l.Name)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</ul></body></html>")
		return err
	})
}

// StatusPage renders a single snapshot: progress while running, the error
// message on failure.
func StatusPage(snap task.Snapshot) templ.Component {
	title := snap.Status.Label()
	if snap.Title != "" {
		title = TruncateWithEllipsis(snap.Title, 80)
	}
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, pageHead, templ.EscapeString(title)); err != nil {
			return err
		}
		if snap.Status == task.StatusError {
			if _, err := fmt.Fprintf(w, `<p class="error">%s</p>`, templ.EscapeString(snap.Error)); err != nil {
				return err
			}
		} else {
			if _, err := fmt.Fprintf(w, `<p>%s</p><div class="bar"><div style="width:%.0f%%"></div></div>`,
				templ.EscapeString(snap.Status.Label()), snap.Progress); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</body></html>")
		return err
	})
}

func pageTitle(title string) string {
	if title == "" {
		return "Download complete"
	}
	return TruncateWithEllipsis(title, 80)
}
