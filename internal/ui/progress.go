package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/ahart-dev/vaultmind/internal/model"
)

// IsTTY reports whether w is a terminal file descriptor.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether the NO_COLOR convention is set.
func DetectNoColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

// ProgressRenderer drives a terminal view of one indexing run. Feed requires
// every model.Progress snapshot the orchestrator reports via
// indexer.ProgressFunc; Done signals completion.
type ProgressRenderer interface {
	Feed(p model.Progress)
	Done(result string)
}

// NewProgressRenderer picks a TUI renderer for a TTY, a plain line-per-update
// renderer otherwise (CI logs, piped output).
func NewProgressRenderer(out *os.File, vault model.Vault) ProgressRenderer {
	if !IsTTY(out) {
		return &plainRenderer{out: out, vault: vault}
	}
	return newTUIRenderer(out, vault)
}

// plainRenderer prints one line per progress update — the right shape for
// non-interactive logs, grounded on the teacher's PlainRenderer fallback.
type plainRenderer struct {
	out   *os.File
	vault model.Vault
}

func (r *plainRenderer) Feed(p model.Progress) {
	fmt.Fprintf(r.out, "[%s] %d/%d (%.0f%%) eta=%s %s\n",
		r.vault, p.Processed, p.Total, p.Percent,
		formatETA(p.ETASeconds), p.CurrentFile)
}

func (r *plainRenderer) Done(result string) {
	fmt.Fprintf(r.out, "[%s] %s\n", r.vault, result)
}

// tuiRenderer drives a bubbletea full-screen progress view.
type tuiRenderer struct {
	program *tea.Program
	done    chan struct{}
}

func newTUIRenderer(out *os.File, vault model.Vault) *tuiRenderer {
	m := newProgressModel(vault)
	if DetectNoColor() {
		m.styles = NoColorStyles()
	}
	program := tea.NewProgram(m, tea.WithOutput(out))
	r := &tuiRenderer{program: program, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		_, _ = program.Run()
	}()
	return r
}

func (r *tuiRenderer) Feed(p model.Progress) { r.program.Send(progressMsg(p)) }

func (r *tuiRenderer) Done(result string) {
	r.program.Send(doneMsg(result))
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
}

type progressMsg model.Progress
type doneMsg string

type progressModel struct {
	vault    model.Vault
	spinner  spinner.Model
	bar      progress.Model
	styles   Styles
	progress model.Progress
	result   string
	done     bool
}

func newProgressModel(vault model.Vault) *progressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	bar := progress.New(progress.WithSolidFill(ColorLime), progress.WithWidth(40))

	return &progressModel{vault: vault, spinner: sp, bar: bar, styles: DefaultStyles()}
}

func (m *progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case progressMsg:
		m.progress = model.Progress(msg)
		return m, nil
	case doneMsg:
		m.done = true
		m.result = string(msg)
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if m.done {
		return m.styles.Active.Render(fmt.Sprintf("✓ %s: %s", m.vault, m.result)) + "\n"
	}

	header := m.styles.Header.Render(fmt.Sprintf("vaultmind indexing — %s", m.vault))
	bar := m.bar.ViewAs(m.progress.Percent / 100)
	counts := m.styles.Dim.Render(fmt.Sprintf("%d/%d files · eta %s", m.progress.Processed, m.progress.Total, formatETA(m.progress.ETASeconds)))
	file := m.styles.Dim.Render(m.progress.CurrentFile)

	return strings.Join([]string{
		header,
		fmt.Sprintf("%s %s", m.spinner.View(), bar),
		counts,
		file,
	}, "\n") + "\n"
}

func formatETA(seconds float64) string {
	if seconds <= 0 {
		return "—"
	}
	d := time.Duration(seconds) * time.Second
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
