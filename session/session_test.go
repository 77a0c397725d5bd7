package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/justapithecus/vkernel/journal"
	"github.com/justapithecus/vkernel/types"
)

// recordingRunner captures every source file it is asked to run.
type recordingRunner struct {
	mu      sync.Mutex
	paths   []string
	sources []string
	result  types.ExecutionResult
}

func (r *recordingRunner) Run(_ context.Context, path string) types.ExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, _ := os.ReadFile(path)
	r.paths = append(r.paths, path)
	r.sources = append(r.sources, string(src))
	return r.result
}

func newTestSession(t *testing.T, runner Runner) *Session {
	t.Helper()
	s, err := New(Config{ID: "sess-test", ScratchRoot: t.TempDir(), Runner: runner})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Runner: &recordingRunner{}}); err == nil {
		t.Error("expected error for missing id")
	}
	if _, err := New(Config{ID: "x"}); err == nil {
		t.Error("expected error for missing runner")
	}
	if _, err := New(Config{ID: "x", Runner: &recordingRunner{}, ScratchRoot: filepath.Join(t.TempDir(), "missing", "dir")}); err == nil {
		t.Error("expected error for missing scratch root")
	}
}

func TestNew_ScratchDir(t *testing.T) {
	root := t.TempDir()
	s, err := New(Config{ID: "x", Runner: &recordingRunner{}, ScratchRoot: root})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = s.Close() }()

	if filepath.Dir(s.ScratchDir()) != root {
		t.Errorf("ScratchDir() = %q, want under %q", s.ScratchDir(), root)
	}
	if !strings.HasPrefix(filepath.Base(s.ScratchDir()), "v-kernel-") {
		t.Errorf("ScratchDir() base = %q", filepath.Base(s.ScratchDir()))
	}
	if _, err := os.Stat(s.JournalPath()); err != nil {
		t.Errorf("journal not created: %v", err)
	}
}

func TestExecute_SingleStatement(t *testing.T) {
	runner := &recordingRunner{result: types.ExecutionResult{Stdout: "hi\n"}}
	s := newTestSession(t, runner)

	out := s.Execute(t.Context(), "println('hi')")

	if out.Count != 1 {
		t.Errorf("Count = %d, want 1", out.Count)
	}
	if out.Result.IsError || out.Result.Stdout != "hi\n" {
		t.Errorf("Result = %+v", out.Result)
	}
	if filepath.Base(out.SourcePath) != "cell_1.v" {
		t.Errorf("SourcePath = %q", out.SourcePath)
	}

	want := "module main\n\nfn main() {\n\tprintln('hi')\n}\n"
	if runner.sources[0] != want {
		t.Errorf("source =\n%s\nwant\n%s", runner.sources[0], want)
	}
}

func TestExecute_Accumulates(t *testing.T) {
	runner := &recordingRunner{}
	s := newTestSession(t, runner)

	s.Execute(t.Context(), "fn add(a int, b int) int { return a + b }")
	out := s.Execute(t.Context(), "println(add(2,3))")

	if out.Count != 2 {
		t.Errorf("Count = %d, want 2", out.Count)
	}
	if filepath.Base(runner.paths[1]) != "cell_2.v" {
		t.Errorf("second path = %q", runner.paths[1])
	}

	want := "module main\n\n" +
		"fn add(a int, b int) int { return a + b }\n\n" +
		"fn main() {\n\tprintln(add(2,3))\n}\n"
	if runner.sources[1] != want {
		t.Errorf("source =\n%s\nwant\n%s", runner.sources[1], want)
	}

	// First cell has no statements, so no main.
	if strings.Contains(runner.sources[0], "fn main()") {
		t.Errorf("declaration-only program has main:\n%s", runner.sources[0])
	}

	// Earlier artifacts stay on disk.
	if _, err := os.Stat(runner.paths[0]); err != nil {
		t.Errorf("cell_1.v removed: %v", err)
	}
}

func TestExecute_ImportsFirst(t *testing.T) {
	runner := &recordingRunner{}
	s := newTestSession(t, runner)

	s.Execute(t.Context(), "struct Point {\n\tx int\n\ty int\n}")
	s.Execute(t.Context(), "import math\nprintln(math.sqrt(4))")

	want := "module main\n\n" +
		"import math\n\n" +
		"struct Point {\n\tx int\n\ty int\n}\n\n" +
		"fn main() {\n\tprintln(math.sqrt(4))\n}\n"
	if got := s.Synthesize(); got != want {
		t.Errorf("Synthesize() =\n%s\nwant\n%s", got, want)
	}
}

func TestExecute_MultiLineStatementIndented(t *testing.T) {
	s := newTestSession(t, &recordingRunner{})

	s.Execute(t.Context(), "x := 3\nif x > 2 {\n\tprintln('big')\n}")

	want := "module main\n\n" +
		"fn main() {\n" +
		"\tx := 3\n" +
		"\tif x > 2 {\n" +
		"\t\tprintln('big')\n" +
		"\t}\n" +
		"}\n"
	if got := s.Synthesize(); got != want {
		t.Errorf("Synthesize() =\n%s\nwant\n%s", got, want)
	}
}

func TestExecute_DuplicateDeclarationKeptOnce(t *testing.T) {
	s := newTestSession(t, &recordingRunner{})

	cell := "fn greet() { println('hey') }\ngreet()"
	s.Execute(t.Context(), cell)
	s.Execute(t.Context(), cell)

	src := s.Synthesize()
	if n := strings.Count(src, "fn greet()"); n != 1 {
		t.Errorf("fn greet() appears %d times:\n%s", n, src)
	}
	if n := strings.Count(src, "\tgreet()"); n != 2 {
		t.Errorf("greet() statement appears %d times, want 2:\n%s", n, src)
	}
}

func TestExecute_CounterIncrementsOnFailure(t *testing.T) {
	runner := &recordingRunner{result: types.ExecutionResult{Stderr: "boom", IsError: true, Kind: types.ErrorGuest}}
	s := newTestSession(t, runner)

	for i := 1; i <= 3; i++ {
		out := s.Execute(t.Context(), "panic('x')")
		if out.Count != i {
			t.Errorf("call %d: Count = %d", i, out.Count)
		}
		if !out.Result.IsError {
			t.Errorf("call %d: expected error result", i)
		}
	}
	if s.Count() != 3 {
		t.Errorf("Count() = %d, want 3", s.Count())
	}
}

func TestExecute_WriteFailureSkipsRunner(t *testing.T) {
	runner := &recordingRunner{}
	s := newTestSession(t, runner)

	// A directory where the source file should go makes the write fail.
	if err := os.Mkdir(filepath.Join(s.ScratchDir(), "cell_1.v"), 0o755); err != nil {
		t.Fatal(err)
	}

	out := s.Execute(t.Context(), "println('hi')")

	if !out.Result.IsError || out.Result.Kind != types.ErrorSynthesis {
		t.Errorf("Result = %+v, want synthesis error", out.Result)
	}
	if !strings.HasPrefix(out.Result.Stderr, "Failed to write source:") {
		t.Errorf("Stderr = %q", out.Result.Stderr)
	}
	if len(runner.paths) != 0 {
		t.Errorf("runner invoked %d times, want 0", len(runner.paths))
	}

	// The next attempt still gets its own number.
	out = s.Execute(t.Context(), "println('again')")
	if out.Count != 2 || out.Result.IsError {
		t.Errorf("second attempt: Count = %d, Result = %+v", out.Count, out.Result)
	}
}

func TestExecute_Journal(t *testing.T) {
	runner := &recordingRunner{result: types.ExecutionResult{Stdout: "5\n"}}
	s := newTestSession(t, runner)

	out := s.Execute(t.Context(), "println(5)")
	if out.JournalErr != nil {
		t.Fatalf("JournalErr = %v", out.JournalErr)
	}
	s.Execute(t.Context(), "println(6)")

	records, err := journal.ReadFile(s.JournalPath())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	first := records[0]
	if first.SessionID != "sess-test" || first.ExecutionCount != 1 || first.Status != "ok" {
		t.Errorf("first record = %+v", first)
	}
	if first.Code != "println(5)" || first.Stdout != "5\n" {
		t.Errorf("first record = %+v", first)
	}
	if first.SourcePath != out.SourcePath {
		t.Errorf("SourcePath = %q, want %q", first.SourcePath, out.SourcePath)
	}
}

func TestClose_RemovesScratchDir(t *testing.T) {
	s, err := New(Config{ID: "x", Runner: &recordingRunner{}, ScratchRoot: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	s.Execute(t.Context(), "println(1)")

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(s.ScratchDir()); !os.IsNotExist(err) {
		t.Errorf("scratch dir still exists: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	out := s.Execute(t.Context(), "println(2)")
	if !out.Result.IsError || out.Result.Kind != types.ErrorSynthesis {
		t.Errorf("Execute after Close = %+v", out.Result)
	}
}

func TestSynthesize_Empty(t *testing.T) {
	if got := Synthesize(nil, nil); got != "module main\n\n" {
		t.Errorf("Synthesize(nil, nil) = %q", got)
	}
}
