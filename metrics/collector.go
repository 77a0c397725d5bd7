// Package metrics counts kernel activity for the lifetime of one process.
//
// The Collector is a leaf package with no internal dependencies. A nil
// *Collector is valid and records nothing, so callers never need to check
// whether metrics are enabled.
package metrics

import "sync"

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	// Wire
	MessagesReceived int64
	MessagesByType   map[string]int64
	AuthFailures     int64
	MalformedFrames  int64
	Unhandled        int64
	Heartbeats       int64

	// Execution
	ExecutionsStarted   int64
	ExecutionsSucceeded int64
	ExecutionsFailed    int64
	FailuresByKind      map[string]int64

	// Side channels
	ArchiveWrites        int64
	ArchiveFailures      int64
	Notifications        int64
	NotificationFailures int64
	JournalFailures      int64

	// Dimensions
	SessionID      string
	Toolchain      string
	ArchiveBackend string
	Adapter        string
}

// Fields flattens the snapshot for structured logging.
func (s Snapshot) Fields() map[string]any {
	return map[string]any{
		"messages_received":     s.MessagesReceived,
		"messages_by_type":      s.MessagesByType,
		"auth_failures":         s.AuthFailures,
		"malformed_frames":      s.MalformedFrames,
		"unhandled":             s.Unhandled,
		"heartbeats":            s.Heartbeats,
		"executions_started":    s.ExecutionsStarted,
		"executions_succeeded":  s.ExecutionsSucceeded,
		"executions_failed":     s.ExecutionsFailed,
		"failures_by_kind":      s.FailuresByKind,
		"archive_writes":        s.ArchiveWrites,
		"archive_failures":      s.ArchiveFailures,
		"notifications":         s.Notifications,
		"notification_failures": s.NotificationFailures,
		"journal_failures":      s.JournalFailures,
		"session_id":            s.SessionID,
		"toolchain":             s.Toolchain,
		"archive_backend":       s.ArchiveBackend,
		"adapter":               s.Adapter,
	}
}

// Collector accumulates counters. Safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	messagesReceived int64
	messagesByType   map[string]int64
	authFailures     int64
	malformedFrames  int64
	unhandled        int64
	heartbeats       int64

	executionsStarted   int64
	executionsSucceeded int64
	executionsFailed    int64
	failuresByKind      map[string]int64

	archiveWrites        int64
	archiveFailures      int64
	notifications        int64
	notificationFailures int64
	journalFailures      int64

	dims Dimensions
}

// Dimensions label a collector. All optional.
type Dimensions struct {
	SessionID      string
	Toolchain      string
	ArchiveBackend string
	Adapter        string
}

// NewCollector creates a Collector.
func NewCollector(dims Dimensions) *Collector {
	return &Collector{
		messagesByType: make(map[string]int64),
		failuresByKind: make(map[string]int64),
		dims:           dims,
	}
}

func (c *Collector) inc(counter *int64) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}

// IncMessage records a decoded inbound message of the given type.
func (c *Collector) IncMessage(msgType string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.messagesReceived++
	c.messagesByType[msgType]++
	c.mu.Unlock()
}

// IncAuthFailure records a message dropped for a bad signature.
func (c *Collector) IncAuthFailure() {
	if c == nil {
		return
	}
	c.inc(&c.authFailures)
}

// IncMalformed records a message dropped for bad framing.
func (c *Collector) IncMalformed() {
	if c == nil {
		return
	}
	c.inc(&c.malformedFrames)
}

// IncUnhandled records a message type the kernel does not answer.
func (c *Collector) IncUnhandled() {
	if c == nil {
		return
	}
	c.inc(&c.unhandled)
}

// IncHeartbeat records one echoed heartbeat.
func (c *Collector) IncHeartbeat() {
	if c == nil {
		return
	}
	c.inc(&c.heartbeats)
}

// IncExecutionStarted records an execute_request reaching the session.
func (c *Collector) IncExecutionStarted() {
	if c == nil {
		return
	}
	c.inc(&c.executionsStarted)
}

// RecordExecutionResult records how an execution ended. kind is the
// error kind for failures and ignored on success.
func (c *Collector) RecordExecutionResult(failed bool, kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !failed {
		c.executionsSucceeded++
		return
	}
	c.executionsFailed++
	c.failuresByKind[kind]++
}

// RecordArchive records one archive write attempt.
func (c *Collector) RecordArchive(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.inc(&c.archiveFailures)
		return
	}
	c.inc(&c.archiveWrites)
}

// RecordNotification records one notification outcome.
func (c *Collector) RecordNotification(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.inc(&c.notificationFailures)
		return
	}
	c.inc(&c.notifications)
}

// IncJournalFailure records a journal append failure.
func (c *Collector) IncJournalFailure() {
	if c == nil {
		return
	}
	c.inc(&c.journalFailures)
}

// Snapshot returns a copy of all counters. The maps are copied.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		MessagesReceived: c.messagesReceived,
		MessagesByType:   copyCounts(c.messagesByType),
		AuthFailures:     c.authFailures,
		MalformedFrames:  c.malformedFrames,
		Unhandled:        c.unhandled,
		Heartbeats:       c.heartbeats,

		ExecutionsStarted:   c.executionsStarted,
		ExecutionsSucceeded: c.executionsSucceeded,
		ExecutionsFailed:    c.executionsFailed,
		FailuresByKind:      copyCounts(c.failuresByKind),

		ArchiveWrites:        c.archiveWrites,
		ArchiveFailures:      c.archiveFailures,
		Notifications:        c.notifications,
		NotificationFailures: c.notificationFailures,
		JournalFailures:      c.journalFailures,

		SessionID:      c.dims.SessionID,
		Toolchain:      c.dims.Toolchain,
		ArchiveBackend: c.dims.ArchiveBackend,
		Adapter:        c.dims.Adapter,
	}
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
