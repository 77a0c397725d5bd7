// Package session holds the accumulated program state of one kernel
// session and turns each cell into a complete, runnable V program.
//
// State is strictly additive: declarations and statements from every cell
// are kept for the session's lifetime and the whole program is
// re-synthesized and re-run on every execution.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/justapithecus/vkernel/classify"
	"github.com/justapithecus/vkernel/journal"
	"github.com/justapithecus/vkernel/types"
)

// JournalFileName is the journal file written inside the scratch directory.
const JournalFileName = "journal.msgpack"

// scratchPattern is the os.MkdirTemp pattern for scratch directories.
const scratchPattern = "v-kernel-"

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Runner executes a synthesized source file.
type Runner interface {
	Run(ctx context.Context, sourcePath string) types.ExecutionResult
}

// Config configures a Session.
type Config struct {
	// ID identifies the session in journal records. Required.
	ID string
	// ScratchRoot is the parent of the scratch directory.
	// Empty means os.TempDir().
	ScratchRoot string
	// Runner executes synthesized programs. Required.
	Runner Runner
}

// Outcome is the result of one Execute call.
type Outcome struct {
	Result     types.ExecutionResult
	Count      int
	SourcePath string
	StartedAt  time.Time
	Duration   time.Duration
	// Record is the journal record for this attempt.
	Record *journal.Record
	// JournalErr is set when the record could not be appended.
	// It never affects Result.
	JournalErr error
}

// Session is the single mutable program state of a kernel process.
// Safe for concurrent use; Execute calls are serialized.
type Session struct {
	mu sync.Mutex

	id         string
	runner     Runner
	scratchDir string

	declarations []string
	declSeen     map[string]struct{}
	statements   []string
	count        int

	journalFile *os.File
	journal     *journal.Writer
	closed      bool
}

// New creates a session and its scratch directory.
func New(cfg Config) (*Session, error) {
	if cfg.ID == "" {
		return nil, errors.New("session id is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("runner is required")
	}

	root := cfg.ScratchRoot
	if root == "" {
		root = os.TempDir()
	}
	dir, err := os.MkdirTemp(root, scratchPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, JournalFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return &Session{
		id:          cfg.ID,
		runner:      cfg.Runner,
		scratchDir:  dir,
		declSeen:    make(map[string]struct{}),
		journalFile: f,
		journal:     journal.NewWriter(f),
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// ScratchDir returns the session's scratch directory.
func (s *Session) ScratchDir() string { return s.scratchDir }

// JournalPath returns the path of the session journal.
func (s *Session) JournalPath() string {
	return filepath.Join(s.scratchDir, JournalFileName)
}

// Count returns the current execution counter.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Execute folds code into the session, synthesizes the full program,
// writes it to cell_<count>.v and runs it.
//
// The counter is incremented before anything else, so it counts attempts,
// including ones that fail to synthesize. The lock is held for the whole
// call, including the toolchain run.
func (s *Session) Execute(ctx context.Context, code string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	s.count++
	out := Outcome{Count: s.count, StartedAt: started}

	if s.closed {
		out.Result = types.FailedResult(types.ErrorSynthesis, ErrClosed.Error())
		out.Duration = time.Since(started)
		return out
	}

	s.fold(classify.Classify(code))

	out.SourcePath = filepath.Join(s.scratchDir, fmt.Sprintf("cell_%d.v", s.count))
	if err := os.WriteFile(out.SourcePath, []byte(s.synthesizeLocked()), 0o644); err != nil {
		out.Result = types.FailedResult(types.ErrorSynthesis, fmt.Sprintf("Failed to write source: %v", err))
	} else {
		out.Result = s.runner.Run(ctx, out.SourcePath)
	}
	out.Duration = time.Since(started)

	out.Record = &journal.Record{
		SessionID:      s.id,
		ExecutionCount: out.Count,
		Status:         out.Result.Status(),
		ErrorKind:      string(out.Result.Kind),
		Code:           code,
		Stdout:         out.Result.Stdout,
		Stderr:         out.Result.Stderr,
		SourcePath:     out.SourcePath,
		StartedAt:      started.UTC().Format(time.RFC3339Nano),
		DurationMs:     out.Duration.Milliseconds(),
	}
	out.JournalErr = s.journal.Write(out.Record)

	return out
}

// fold appends a classified cell to the accumulated state. A declaration
// block identical to one already held is not added again, so re-running a
// cell does not redefine its functions or types. Statements always append.
func (s *Session) fold(cell classify.Cell) {
	for _, decl := range cell.Declarations {
		if _, ok := s.declSeen[decl]; ok {
			continue
		}
		s.declSeen[decl] = struct{}{}
		s.declarations = append(s.declarations, decl)
	}
	s.statements = append(s.statements, cell.Statements...)
}

// Synthesize returns the program the next run would execute, without
// changing state.
func (s *Session) Synthesize() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synthesizeLocked()
}

func (s *Session) synthesizeLocked() string {
	return Synthesize(s.declarations, s.statements)
}

// Synthesize builds a complete program: module header, imports, the
// remaining declarations, then a main function wrapping every statement.
// main is omitted when there are no statements.
func Synthesize(declarations, statements []string) string {
	var b strings.Builder
	b.WriteString("module main\n\n")

	var imports, others []string
	for _, decl := range declarations {
		if classify.IsImport(decl) {
			imports = append(imports, decl)
		} else {
			others = append(others, decl)
		}
	}

	for _, imp := range imports {
		b.WriteString(imp)
		b.WriteByte('\n')
	}
	if len(imports) > 0 {
		b.WriteByte('\n')
	}

	for _, decl := range others {
		b.WriteString(decl)
		b.WriteString("\n\n")
	}

	if len(statements) > 0 {
		b.WriteString("fn main() {\n")
		for _, stmt := range statements {
			for _, line := range classify.Lines(stmt) {
				b.WriteByte('\t')
				b.WriteString(line)
				b.WriteByte('\n')
			}
		}
		b.WriteString("}\n")
	}

	return b.String()
}

// Close closes the journal and removes the scratch directory.
// Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	return errors.Join(s.journalFile.Close(), os.RemoveAll(s.scratchDir))
}
