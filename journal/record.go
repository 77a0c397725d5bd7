// Package journal implements the per-session execution journal: one
// length-prefixed msgpack frame per execution attempt.
package journal

import "time"

// Record describes one execution attempt.
type Record struct {
	SessionID      string `msgpack:"session_id" json:"session_id" yaml:"session_id"`
	ExecutionCount int    `msgpack:"execution_count" json:"execution_count" yaml:"execution_count"`
	Status         string `msgpack:"status" json:"status" yaml:"status"`
	ErrorKind      string `msgpack:"error_kind,omitempty" json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Code           string `msgpack:"code" json:"code" yaml:"code"`
	Stdout         string `msgpack:"stdout" json:"stdout" yaml:"stdout"`
	Stderr         string `msgpack:"stderr" json:"stderr" yaml:"stderr"`
	SourcePath     string `msgpack:"source_path" json:"source_path" yaml:"source_path"`
	StartedAt      string `msgpack:"started_at" json:"started_at" yaml:"started_at"`
	DurationMs     int64  `msgpack:"duration_ms" json:"duration_ms" yaml:"duration_ms"`
}

// Day returns the UTC day (YYYY-MM-DD) the attempt started on.
// Falls back to today when StartedAt is unparsable.
func (r *Record) Day() string {
	t, err := time.Parse(time.RFC3339Nano, r.StartedAt)
	if err != nil {
		t = time.Now()
	}
	return t.UTC().Format("2006-01-02")
}
