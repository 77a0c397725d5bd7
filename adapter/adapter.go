// Package adapter defines the notification boundary for downstream
// systems that want to know when a cell has been executed.
//
// Notifications are best effort: failures are reported to the caller's
// logger and never reach the notebook client.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/justapithecus/vkernel/journal"
	"github.com/justapithecus/vkernel/types"
)

// EventTypeCellExecuted is the event_type of every published event.
const EventTypeCellExecuted = "cell_executed"

// CellExecutedEvent is the payload published after each execution attempt.
type CellExecutedEvent struct {
	EventType      string `json:"event_type"` // always "cell_executed"
	KernelVersion  string `json:"kernel_version"`
	SessionID      string `json:"session_id"`
	ExecutionCount int    `json:"execution_count"`
	Status         string `json:"status"` // ok or error
	ErrorKind      string `json:"error_kind,omitempty"`
	SourcePath     string `json:"source_path"`
	Timestamp      string `json:"timestamp"` // RFC 3339
	DurationMs     int64  `json:"duration_ms"`
}

// EventFromRecord builds the event for a journal record.
func EventFromRecord(rec *journal.Record) *CellExecutedEvent {
	return &CellExecutedEvent{
		EventType:      EventTypeCellExecuted,
		KernelVersion:  types.Version,
		SessionID:      rec.SessionID,
		ExecutionCount: rec.ExecutionCount,
		Status:         rec.Status,
		ErrorKind:      rec.ErrorKind,
		SourcePath:     rec.SourcePath,
		Timestamp:      rec.StartedAt,
		DurationMs:     rec.DurationMs,
	}
}

// Adapter publishes cell execution events to a downstream system.
type Adapter interface {
	// Publish sends an event. Must respect context cancellation.
	Publish(ctx context.Context, event *CellExecutedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry. Each further retry
// doubles it.
var BaseBackoff = 500 * time.Millisecond

// Permanent marks an error as non-retriable for Retry.
type Permanent struct {
	Err error
}

func (e *Permanent) Error() string { return e.Err.Error() }

func (e *Permanent) Unwrap() error { return e.Err }

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. A *Permanent error stops immediately. name prefixes errors.
func Retry(ctx context.Context, name string, retries int, fn func(ctx context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BaseBackoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *Permanent
		if errors.As(lastErr, &perm) {
			return fmt.Errorf("%s: non-retriable error: %w", name, perm.Err)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
