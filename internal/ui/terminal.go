package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"anymusic/internal/task"
)

// Theme holds the lipgloss styles of the terminal view.
type Theme struct {
	Title   lipgloss.Style
	Subtle  lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Link    lipgloss.Style
}

// DefaultTheme returns the dark palette used by the CLI.
func DefaultTheme() Theme {
	return Theme{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff")),
		Subtle:  lipgloss.NewStyle().Foreground(lipgloss.Color("#909090")),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f87171")),
		Success: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ade80")),
		Link:    lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("#60a5fa")),
	}
}

// TerminalView prints progress and results as lines of text. It is safe for
// concurrent use.
type TerminalView struct {
	mu    sync.Mutex
	out   io.Writer
	base  string
	theme Theme
	bar   progress.Model

	busy      bool
	lastLine  string
	lastTitle string
}

// NewTerminalView writes to out; base is the backend URL prefixed to result
// links.
func NewTerminalView(out io.Writer, base string) *TerminalView {
	return &TerminalView{
		out:   out,
		base:  strings.TrimRight(base, "/"),
		theme: DefaultTheme(),
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(30), progress.WithoutPercentage()),
	}
}

func (v *TerminalView) SetBusy(busy bool) {
	v.mu.Lock()
	v.busy = busy
	v.mu.Unlock()
}

// Busy reports whether a submission is in flight.
func (v *TerminalView) Busy() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.busy
}

// Reset forgets the previous task's output.
func (v *TerminalView) Reset() {
	v.mu.Lock()
	v.lastLine = ""
	v.lastTitle = ""
	v.mu.Unlock()
}

// ShowProgress prints a line when the rendered status changes.
func (v *TerminalView) ShowProgress(snap task.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if snap.Title != "" && snap.Title != v.lastTitle {
		v.lastTitle = snap.Title
		fmt.Fprintln(v.out, v.theme.Title.Render(TruncateWithEllipsis(snap.Title, 72)))
	}
	line := v.progressLine(snap)
	if line == v.lastLine {
		return
	}
	v.lastLine = line
	fmt.Fprintln(v.out, line)
}

func (v *TerminalView) progressLine(snap task.Snapshot) string {
	if snap.Status.IsTerminal() {
		return ""
	}
	return fmt.Sprintf("%s %3.0f%% %s",
		v.bar.ViewAs(snap.Progress/100),
		snap.Progress,
		v.theme.Subtle.Render(snap.Status.Label()))
}

// ShowResults prints one link per produced file.
func (v *TerminalView) ShowResults(links []Link) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.out, v.theme.Success.Render(task.StatusCompleted.Label()))
	for _, l := range links {
		fmt.Fprintf(v.out, "  %s  %s\n", l.Name, v.theme.Link.Render(v.base+l.Href))
	}
}

func (v *TerminalView) ShowError(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.out, v.theme.Error.Render("Error: "+msg))
}
