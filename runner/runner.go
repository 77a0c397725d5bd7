// Package runner invokes the external V toolchain on a synthesized source file.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/justapithecus/vkernel/types"
)

// DefaultToolchain is the toolchain binary looked up on PATH.
const DefaultToolchain = "v"

// waitDelay bounds how long Wait blocks on inherited pipes after the
// toolchain is killed.
const waitDelay = 2 * time.Second

// Config configures toolchain invocation.
type Config struct {
	// Toolchain is the binary name or path (default "v").
	Toolchain string
	// Timeout kills the toolchain after the deadline. Zero means no limit.
	Timeout time.Duration
}

// Runner runs `<toolchain> run <source>` and captures both output streams.
type Runner struct {
	config Config
}

// New creates a runner.
func New(cfg Config) *Runner {
	if cfg.Toolchain == "" {
		cfg.Toolchain = DefaultToolchain
	}
	return &Runner{config: cfg}
}

// Toolchain returns the configured toolchain binary.
func (r *Runner) Toolchain() string {
	return r.config.Toolchain
}

// Run executes the source file and maps the outcome to an ExecutionResult.
// Standard streams are captured, never inherited. Failure is determined
// solely by exit status.
func (r *Runner) Run(ctx context.Context, sourcePath string) types.ExecutionResult {
	runCtx := ctx
	cancel := func() {}
	if r.config.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.config.Toolchain, "run", sourcePath)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return types.FailedResult(types.ErrorLaunch, fmt.Sprintf(
			"Could not start `%s`. Is V installed and in PATH?\nError: %v", r.config.Toolchain, err))
	}

	err := cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return types.FailedResult(types.ErrorWait, fmt.Sprintf(
				"Failed to wait on `%s run`: %v", r.config.Toolchain, err))
		}
	}

	result := types.ExecutionResult{
		Stdout: lossy(stdout.Bytes()),
		Stderr: lossy(stderr.Bytes()),
	}
	if err != nil {
		result.IsError = true
		result.Kind = types.ErrorGuest
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			result.Stderr += fmt.Sprintf("\nexecution timed out after %s", r.config.Timeout)
		}
	}
	return result
}

// lossy decodes b as UTF-8, writing one U+FFFD for each maximal
// invalid subsequence.
func lossy(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b) + 8)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
			b = b[invalidPrefix(b):]
			continue
		}
		sb.Write(b[:size])
		b = b[size:]
	}
	return sb.String()
}

// invalidPrefix returns the length of the truncated or ill-formed sequence
// starting at b[0]: the lead byte plus any continuation bytes that could
// still have formed a valid encoding.
func invalidPrefix(b []byte) int {
	var n int
	lo, hi := byte(0x80), byte(0xBF)
	switch c := b[0]; {
	case c >= 0xC2 && c <= 0xDF:
		n = 2
	case c == 0xE0:
		n, lo = 3, 0xA0
	case c >= 0xE1 && c <= 0xEC, c == 0xEE, c == 0xEF:
		n = 3
	case c == 0xED:
		n, hi = 3, 0x9F
	case c == 0xF0:
		n, lo = 4, 0x90
	case c >= 0xF1 && c <= 0xF3:
		n = 4
	case c == 0xF4:
		n, hi = 4, 0x8F
	default:
		return 1
	}
	i := 1
	for ; i < n && i < len(b); i++ {
		if b[i] < lo || b[i] > hi {
			break
		}
		lo, hi = 0x80, 0xBF
	}
	return i
}
