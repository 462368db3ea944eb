package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"anymusic/internal/store"
	"anymusic/internal/task"
	"anymusic/internal/ui"
)

var historyStatuses = []task.Status{
	task.StatusStarting,
	task.StatusDownloading,
	task.StatusConverting,
	task.StatusCompleted,
	task.StatusError,
}

func newHistoryCmd(a *app) *cobra.Command {
	var f store.ListFilter
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			rows, err := st.ListTasks(ctx, f)
			if err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}
			if len(rows) == 0 {
				fmt.Fprintln(a.out, "no tasks recorded")
				return nil
			}
			fmt.Fprintln(a.out, historyTable(rows))

			var counts []string
			for _, s := range historyStatuses {
				n, err := st.CountByStatus(ctx, string(s))
				if err != nil {
					return fmt.Errorf("count tasks: %w", err)
				}
				if n > 0 {
					counts = append(counts, fmt.Sprintf("%d %s", n, s))
				}
			}
			fmt.Fprintln(a.out, ui.DefaultTheme().Subtle.Render(strings.Join(counts, ", ")))
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "only tasks in this status")
	cmd.Flags().StringVar(&f.Order, "order", "desc", "order by creation time: asc|desc")
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 20, "maximum rows (0 for all)")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "rows to skip")

	cmd.AddCommand(&cobra.Command{
		Use:   "rm TASK_ID...",
		Short: "Forget recorded tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			var missing []string
			for _, id := range args {
				err := st.DeleteTask(cmd.Context(), task.Handle(id))
				if errors.Is(err, store.ErrNotFound) {
					missing = append(missing, id)
					continue
				}
				if err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintln(a.out, "removed", id)
			}
			if len(missing) > 0 {
				return fmt.Errorf("no recorded task %s", strings.Join(missing, ", "))
			}
			return nil
		},
	})
	return cmd
}

func historyTable(rows []store.Task) string {
	theme := ui.DefaultTheme()
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(theme.Subtle).
		Headers("ID", "STATUS", "PROGRESS", "TITLE", "FILES", "UPDATED")
	for _, r := range rows {
		title := r.Title
		if title == "" {
			title = r.URL
		}
		t.Row(
			ui.ShortID(r.TaskID),
			statusCell(r),
			fmt.Sprintf("%.0f%%", r.Progress),
			ui.TruncateWithEllipsis(title, 40),
			fmt.Sprint(len(r.Files)),
			humanize.Time(r.UpdatedAt),
		)
	}
	return t.Render()
}

func statusCell(r store.Task) string {
	s := task.Status(r.Status)
	if s == task.StatusError && r.ErrorMessage != "" {
		return ui.TruncateWithEllipsis(string(s)+": "+r.ErrorMessage, 30)
	}
	return string(s)
}
