// Package tui renders a progress board as a live terminal view.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	board "github.com/mmcdole/hoard/internal/progress"
	"github.com/mmcdole/hoard/internal/tui/styles"
)

const (
	tickInterval = 100 * time.Millisecond
	maxFileRows  = 8
	labelWidth   = 8
	defaultWidth = 80
)

// BoardSource is what the view polls on every tick
type BoardSource interface {
	Snapshot() board.Snapshot
	DrainMessages() []string
}

// Model is the bubbletea model of the progress view
type Model struct {
	source      BoardSource
	onInterrupt func()

	bar        progress.Model
	snap       board.Snapshot
	width      int
	frame      int
	interrupts int
	done       bool
	aborted    bool
}

// NewModel creates a model polling source. onInterrupt is called on the
// first ctrl+c; a second one quits the view.
func NewModel(source BoardSource, onInterrupt func()) Model {
	return Model{
		source:      source,
		onInterrupt: onInterrupt,
		bar:         progress.New(progress.WithGradient(styles.BarStart, styles.BarEnd), progress.WithoutPercentage()),
		width:       defaultWidth,
	}
}

// Aborted reports whether the user asked to quit before the run finished
func (m Model) Aborted() bool {
	return m.aborted
}

func (m Model) Init() tea.Cmd {
	return TickCmd(tickInterval)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() != "ctrl+c" {
			return m, nil
		}
		m.interrupts++
		if m.interrupts == 1 {
			if m.onInterrupt != nil {
				m.onInterrupt()
			}
			return m, nil
		}
		m.aborted = true
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case TickMsg:
		if m.done {
			return m, nil
		}
		m.frame++
		m.snap = m.source.Snapshot()
		cmds := printCmds(m.source.DrainMessages())
		if len(cmds) == 0 {
			return m, TickCmd(tickInterval)
		}
		return m, tea.Batch(tea.Sequence(cmds...), TickCmd(tickInterval))

	case DoneMsg:
		m.done = true
		m.snap = m.source.Snapshot()
		cmds := printCmds(m.source.DrainMessages())
		return m, tea.Sequence(append(cmds, tea.Quit)...)
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	for _, batch := range m.snap.Batches {
		b.WriteString(m.renderBatch(batch))
		b.WriteString("\n")
	}

	if m.done {
		return b.String()
	}

	if m.interrupts > 0 {
		b.WriteString(styles.ErrorStyle.Render("Cancelling, waiting for active transfers (ctrl+c again to quit)"))
		b.WriteString("\n")
	}

	if len(m.snap.Files) == 0 {
		if len(m.snap.Batches) == 0 {
			spin := styles.SpinnerFrames[m.frame%len(styles.SpinnerFrames)]
			b.WriteString(styles.AccentStyle.Render(spin) + styles.DimStyle.Render(" Waiting for listing..."))
			b.WriteString("\n")
		}
		return b.String()
	}

	b.WriteString(styles.SectionStyle.Render(fmt.Sprintf("Active (%d)", len(m.snap.Files))))
	b.WriteString("\n")
	for i, f := range m.snap.Files {
		if i == maxFileRows {
			b.WriteString(styles.DimStyle.Render(fmt.Sprintf("  +%d more", len(m.snap.Files)-maxFileRows)))
			b.WriteString("\n")
			break
		}
		b.WriteString(m.renderFile(f))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) barWidth() int {
	w := m.width - labelWidth - 30
	return min(max(w, 10), 50)
}

func (m Model) renderBatch(v board.BatchView) string {
	frac := 0.0
	if v.Total > 0 {
		frac = float64(v.Done) / float64(v.Total)
	}
	bar := m.bar
	bar.Width = m.barWidth()

	label := styles.TitleStyle.Render(styles.Pad(v.Label, labelWidth))
	count := styles.SubtitleStyle.Render(fmt.Sprintf("%d/%d", v.Done, v.Total))
	return label + " " + bar.ViewAs(frac) + " " + count
}

func (m Model) renderFile(f board.FileView) string {
	nameWidth := max(m.width-m.barWidth()-30, 12)
	name := styles.Pad(styles.Truncate(f.Name, nameWidth), nameWidth)

	if f.Total <= 0 {
		spin := styles.SpinnerFrames[m.frame%len(styles.SpinnerFrames)]
		return "  " + name + " " + styles.AccentStyle.Render(spin) + " " + styles.DimStyle.Render(styles.FormatBytes(f.Current))
	}

	bar := m.bar
	bar.Width = m.barWidth()
	frac := min(float64(f.Current)/float64(f.Total), 1)
	size := fmt.Sprintf("%s / %s", styles.FormatBytes(f.Current), styles.FormatBytes(f.Total))
	return "  " + name + " " + bar.ViewAs(frac) + " " + styles.DimStyle.Render(size)
}
