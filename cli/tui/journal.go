package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/vkernel/journal"
)

const (
	defaultWidth  = 100
	defaultHeight = 30
	listWidth     = 34
	// chrome is the rows taken by the title, the help line and pane borders.
	chrome = 6
)

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Top      key.Binding
	Bottom   key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Up:       key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "prev cell")),
	Down:     key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "next cell")),
	Top:      key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "first")),
	Bottom:   key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "last")),
	PageUp:   key.NewBinding(key.WithKeys("pgup", "b"), key.WithHelp("b", "scroll up")),
	PageDown: key.NewBinding(key.WithKeys("pgdown", " ", "f"), key.WithHelp("f", "scroll down")),
	Quit:     key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

// JournalModel lists journal records on the left and shows the selected
// record's code and output on the right.
type JournalModel struct {
	records  []journal.Record
	cursor   int
	width    int
	height   int
	detail   viewport.Model
	quitting bool
}

// NewJournalModel creates a viewer over records, sized for an 100x30
// terminal until the first WindowSizeMsg arrives.
func NewJournalModel(records []journal.Record) JournalModel {
	m := JournalModel{
		records: records,
		width:   defaultWidth,
		height:  defaultHeight,
	}
	m.detail = viewport.New(m.detailWidth(), m.paneHeight())
	m.detail.SetContent(m.detailContent())
	return m
}

// Init implements tea.Model.
func (m JournalModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m JournalModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.detail.Width = m.detailWidth()
		m.detail.Height = m.paneHeight()
		m.detail.SetContent(m.detailContent())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			m.selectCell(m.cursor - 1)
		case key.Matches(msg, keys.Down):
			m.selectCell(m.cursor + 1)
		case key.Matches(msg, keys.Top):
			m.selectCell(0)
		case key.Matches(msg, keys.Bottom):
			m.selectCell(len(m.records) - 1)
		case key.Matches(msg, keys.PageUp):
			m.detail.SetYOffset(m.detail.YOffset - m.detail.Height/2)
		case key.Matches(msg, keys.PageDown):
			m.detail.SetYOffset(m.detail.YOffset + m.detail.Height/2)
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m JournalModel) View() string {
	if m.quitting {
		return ""
	}

	title := TitleStyle.Render(m.title())
	if len(m.records) == 0 {
		return title + "\n(no executions recorded)\n" + HelpStyle.Render("q quit")
	}

	list := ListStyle.Width(listWidth+2).Height(m.paneHeight()).Render(m.listContent())
	detail := DetailStyle.Width(m.detailWidth()+2).Height(m.paneHeight()).Render(m.detail.View())
	help := HelpStyle.Render("j/k select · f/b scroll · g/G first/last · q quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		lipgloss.JoinHorizontal(lipgloss.Top, list, detail),
		help,
	)
}

// Selected returns the record under the cursor, or nil when empty.
func (m JournalModel) Selected() *journal.Record {
	if len(m.records) == 0 {
		return nil
	}
	return &m.records[m.cursor]
}

func (m *JournalModel) selectCell(i int) {
	if len(m.records) == 0 {
		return
	}
	i = max(0, min(i, len(m.records)-1))
	if i == m.cursor {
		return
	}
	m.cursor = i
	m.detail.SetContent(m.detailContent())
	m.detail.GotoTop()
}

func (m JournalModel) title() string {
	if len(m.records) == 0 {
		return "V kernel journal"
	}
	failed := 0
	for _, r := range m.records {
		if r.Status != "ok" {
			failed++
		}
	}
	return fmt.Sprintf("V kernel journal · session %s · %d cells · %d failed",
		shortID(m.records[0].SessionID), len(m.records), failed)
}

func (m JournalModel) listContent() string {
	var b strings.Builder
	for i, r := range m.records {
		first, _, _ := strings.Cut(r.Code, "\n")
		line := fmt.Sprintf("[%d] %s", r.ExecutionCount, truncate(first, listWidth-14))
		status := StatusStyle(r.Status).Render(fmt.Sprintf("%-5s", r.Status))
		if i == m.cursor {
			b.WriteString(SelectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString(" " + status + "\n")
	}
	return b.String()
}

func (m JournalModel) detailContent() string {
	r := m.Selected()
	if r == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %d  %s  %dms\n",
		LabelStyle.Render("In"), r.ExecutionCount,
		StatusStyle(r.Status).Render(statusText(r)), r.DurationMs)
	if r.StartedAt != "" {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Started"), r.StartedAt)
	}
	section(&b, "Code", r.Code)
	section(&b, "Stdout", r.Stdout)
	section(&b, "Stderr", r.Stderr)
	if r.SourcePath != "" {
		fmt.Fprintf(&b, "\n%s %s\n", LabelStyle.Render("Source"), r.SourcePath)
	}
	return b.String()
}

func section(b *strings.Builder, label, body string) {
	if body == "" {
		return
	}
	b.WriteString("\n" + LabelStyle.Render(label) + "\n")
	b.WriteString(strings.TrimRight(body, "\n") + "\n")
}

func statusText(r *journal.Record) string {
	if r.ErrorKind != "" {
		return r.Status + " (" + r.ErrorKind + ")"
	}
	return r.Status
}

func (m JournalModel) detailWidth() int {
	return max(20, m.width-listWidth-8)
}

func (m JournalModel) paneHeight() int {
	return max(3, m.height-chrome)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// RunJournal starts the viewer on the alternate screen and blocks until
// the user quits.
func RunJournal(records []journal.Record) error {
	_, err := tea.NewProgram(NewJournalModel(records), tea.WithAltScreen()).Run()
	return err
}
