package types

// ErrorKind classifies why an execution failed.
type ErrorKind string

const (
	// ErrorNone indicates the toolchain ran and exited zero.
	ErrorNone ErrorKind = ""
	// ErrorSynthesis indicates the synthesized source could not be written.
	// The toolchain was never invoked.
	ErrorSynthesis ErrorKind = "synthesis"
	// ErrorLaunch indicates the toolchain binary could not be started.
	ErrorLaunch ErrorKind = "launch"
	// ErrorWait indicates a process-management failure after spawn.
	ErrorWait ErrorKind = "wait"
	// ErrorGuest indicates the toolchain ran and exited non-zero.
	ErrorGuest ErrorKind = "guest"
)

// ExecutionResult is the captured outcome of one toolchain invocation.
type ExecutionResult struct {
	// Stdout is the captured standard output (invalid UTF-8 replaced).
	Stdout string
	// Stderr is the captured standard error (invalid UTF-8 replaced).
	Stderr string
	// IsError is set exactly when the execution failed, independent of
	// whether Stderr is empty.
	IsError bool
	// Kind is the failure category. ErrorNone when IsError is false.
	Kind ErrorKind
}

// FailedResult builds an error result carrying a diagnostic on stderr.
func FailedResult(kind ErrorKind, diagnostic string) ExecutionResult {
	return ExecutionResult{
		Stderr:  diagnostic,
		IsError: true,
		Kind:    kind,
	}
}

// Status returns "ok" or "error" as used in execute_reply.
func (r ExecutionResult) Status() string {
	if r.IsError {
		return "error"
	}
	return "ok"
}
