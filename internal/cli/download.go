package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"anymusic/internal/client"
	"anymusic/internal/download"
	"anymusic/internal/logging"
	"anymusic/internal/poller"
	"anymusic/internal/store"
	"anymusic/internal/task"
	"anymusic/internal/ui"
)

// maxParallelFetches bounds concurrent result downloads.
const maxParallelFetches = 3

type followFunc func(ctx context.Context, m *download.Manager, h download.HistoryStore) (task.Snapshot, error)

type followOptions struct {
	html string
}

func newDownloadCmd(a *app) *cobra.Command {
	var (
		playlist bool
		opts     followOptions
	)
	cmd := &cobra.Command{
		Use:   "download [URL]",
		Short: "Submit a media URL for MP3 conversion and follow it to the end",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var url string
			if len(args) > 0 {
				url = args[0]
			}
			return a.follow(cmd.Context(), opts, func(ctx context.Context, m *download.Manager, _ download.HistoryStore) (task.Snapshot, error) {
				return m.Download(ctx, url, playlist)
			})
		},
	}
	cmd.Flags().BoolVarP(&playlist, "playlist", "p", false, "treat the URL as a playlist")
	cmd.Flags().Bool("fetch", true, "save produced files into the output directory")
	cmd.Flags().StringVar(&opts.html, "html", "", "keep an HTML status page in this file, replaced by the results when done")
	return cmd
}

func newResumeCmd(a *app) *cobra.Command {
	var opts followOptions
	cmd := &cobra.Command{
		Use:   "resume [TASK_ID]",
		Short: "Re-attach to a task, by default the latest unfinished one in history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.follow(cmd.Context(), opts, func(ctx context.Context, m *download.Manager, h download.HistoryStore) (task.Snapshot, error) {
				if len(args) > 0 {
					return m.Resume(ctx, task.Handle(args[0]))
				}
				return download.ResumeLatest(ctx, m, h)
			})
		},
	}
	cmd.Flags().Bool("fetch", true, "save produced files into the output directory")
	cmd.Flags().StringVar(&opts.html, "html", "", "keep an HTML status page in this file, replaced by the results when done")
	return cmd
}

// follow wires client, poller, history and terminal view, runs fn and then
// saves the produced files.
func (a *app) follow(ctx context.Context, opts followOptions, fn followFunc) error {
	c, err := a.newClient()
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	view := ui.NewTerminalView(a.out, c.BaseURL())
	p := poller.New(c, poller.Options{Interval: a.cfg.PollInterval, MaxDuration: a.cfg.MaxPollDuration})
	m := download.NewManager(c, p, download.ManagerOptions{View: view, Hooks: download.NewHistoryHooks(st)})

	stopWatch := func() {}
	if opts.html != "" {
		stopWatch = watchStatusPage(ctx, st, m, opts.html)
	}
	snap, err := fn(ctx, m, st)
	stopWatch()

	if err != nil {
		if opts.html != "" && snap.Status == task.StatusError {
			if perr := writePage(opts.html, ui.StatusPage(snap)); perr != nil {
				logging.With(ctx, "page", opts.html).Warn("write status page", "error", perr)
			}
		}
		if reportedByView(err) {
			return &reportedError{err: err}
		}
		return err
	}

	if opts.html != "" {
		if err := writeResultsPage(opts.html, snap, c.BaseURL()); err != nil {
			return err
		}
	}
	if !a.cfg.FetchResults {
		return nil
	}
	return a.fetchResults(ctx, c, snap.Files)
}

// reportedByView lists the failures Manager already showed to the user.
func reportedByView(err error) bool {
	switch download.ExitCode(err) {
	case 2, 3, 4, 5:
		return true
	}
	return false
}

// watchStatusPage rewrites the status page at path each time the history
// row of the followed task changes. The returned func stops the watcher and
// waits for it.
func watchStatusPage(ctx context.Context, st *store.Store, m *download.Manager, path string) func() {
	changes, unsubscribe := st.SubscribeChanges(16)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-changes:
				if evt.Type != store.ChangeUpsert {
					continue
				}
				h := task.Handle(evt.TaskID)
				if h.IsZero() {
					// Collapsed event: refresh whatever is being followed.
					h = m.Current()
				}
				if h.IsZero() {
					continue
				}
				row, ok, err := st.GetTask(ctx, h)
				if err != nil || !ok {
					continue
				}
				if err := writePage(path, ui.StatusPage(row.Snapshot())); err != nil {
					logging.With(ctx, "page", path).Warn("write status page", "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
		unsubscribe()
	}
}

func writeResultsPage(path string, snap task.Snapshot, base string) error {
	links, err := ui.ResultLinks(snap.Files)
	if err != nil {
		return err
	}
	return writePage(path, ui.ResultsPage(snap.Title, base, links))
}

// writePage renders c next to path and renames it into place, so a browser
// reloading the page never sees a partial file.
func writePage(path string, c templ.Component) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".anymusic-page-*")
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := c.Render(context.Background(), tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("render page: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write page: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save page: %w", err)
	}
	return nil
}

// fetchResults downloads every produced file into the output directory.
func (a *app) fetchResults(ctx context.Context, c *client.Client, files []string) error {
	dir := a.cfg.AbsOutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	sizes := make([]int64, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			n, err := saveResult(gctx, c, f, filepath.Join(dir, ui.LinkName(f)))
			sizes[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, f := range files {
		fmt.Fprintf(a.out, "saved %s (%s)\n", filepath.Join(dir, ui.LinkName(f)), humanize.Bytes(uint64(sizes[i])))
	}
	return nil
}

// saveResult writes to a temporary file first so that a failed transfer
// never leaves a truncated result behind.
func saveResult(ctx context.Context, c *client.Client, path, dest string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".anymusic-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := c.FetchResult(ctx, path, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("save %s: %w", dest, err)
	}
	return n, nil
}
