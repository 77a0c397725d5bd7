package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/vkernel/journal"
)

func testRecords() []journal.Record {
	return []journal.Record{
		{SessionID: "0123456789abcdef", ExecutionCount: 1, Status: "ok", Code: "x := 5", DurationMs: 10},
		{SessionID: "0123456789abcdef", ExecutionCount: 2, Status: "ok", Code: "println(x)", Stdout: "5\n", DurationMs: 12},
		{SessionID: "0123456789abcdef", ExecutionCount: 3, Status: "error", ErrorKind: "guest", Code: "println(y)", Stderr: "error: undefined ident: `y`\n"},
	}
}

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m JournalModel, msg tea.Msg) JournalModel {
	t.Helper()
	next, _ := m.Update(msg)
	jm, ok := next.(JournalModel)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return jm
}

func TestJournalModel_Navigation(t *testing.T) {
	m := NewJournalModel(testRecords())

	steps := []struct {
		name string
		msg  tea.Msg
		want int
	}{
		{"down", runeKey("j"), 2},
		{"arrow down", tea.KeyMsg{Type: tea.KeyDown}, 3},
		{"clamped at end", runeKey("j"), 3},
		{"up", runeKey("k"), 2},
		{"top", runeKey("g"), 1},
		{"clamped at start", tea.KeyMsg{Type: tea.KeyUp}, 1},
		{"bottom", runeKey("G"), 3},
	}
	for _, s := range steps {
		m = update(t, m, s.msg)
		if got := m.Selected().ExecutionCount; got != s.want {
			t.Fatalf("after %s: selected cell %d, want %d", s.name, got, s.want)
		}
	}
}

func TestJournalModel_ViewShowsSelectedCell(t *testing.T) {
	m := NewJournalModel(testRecords())
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m = update(t, m, runeKey("G"))

	view := m.View()
	for _, want := range []string{"session 01234567", "3 cells", "1 failed", "undefined ident", "error (guest)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestJournalModel_Quit(t *testing.T) {
	m := NewJournalModel(testRecords())
	next, cmd := m.Update(runeKey("q"))
	if cmd == nil {
		t.Fatal("quit key returned no command")
	}
	if view := next.View(); view != "" {
		t.Errorf("view after quit = %q, want empty", view)
	}
}

func TestJournalModel_Empty(t *testing.T) {
	m := NewJournalModel(nil)
	m = update(t, m, runeKey("j"))
	if m.Selected() != nil {
		t.Error("Selected on empty journal should be nil")
	}
	if !strings.Contains(m.View(), "no executions recorded") {
		t.Errorf("empty view = %q", m.View())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Errorf("truncate short = %q", got)
	}
}
