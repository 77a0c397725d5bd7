// Package archive copies execution records into a Lode dataset so they
// outlive the session's scratch directory.
//
// Records are partitioned with a Hive layout of day/session_id and encoded
// as JSONL.
package archive

import (
	"context"
	"errors"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/vkernel/journal"
)

// DefaultDataset is the dataset id used when none is configured.
const DefaultDataset = "vkernel"

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"day", "session_id"}

// Recorder persists execution records.
type Recorder interface {
	Record(ctx context.Context, rec *journal.Record) error
	Close() error
}

// LodeRecorder writes one Lode snapshot per execution record.
type LodeRecorder struct {
	mu      sync.Mutex
	dataset lode.Dataset
	name    string
	closed  bool
}

// NewFSRecorder creates a recorder backed by the local filesystem at root.
func NewFSRecorder(dataset, root string) (*LodeRecorder, error) {
	return NewRecorderWithFactory(dataset, lode.NewFSFactory(root))
}

// NewRecorderWithFactory creates a recorder with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewRecorderWithFactory(dataset string, factory lode.StoreFactory) (*LodeRecorder, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := NewDataset(dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	return &LodeRecorder{dataset: ds, name: dataset}, nil
}

// NewDataset opens a dataset with the archive's layout and codec.
func NewDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// Record writes rec to the dataset.
func (r *LodeRecorder) Record(ctx context.Context, rec *journal.Record) error {
	if rec == nil {
		return errors.New("nil record")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("archive closed")
	}

	_, err := r.dataset.Write(ctx, []any{toRecordMap(rec)}, lode.Metadata{})
	return WrapWriteError(err, r.name+"/"+rec.Day()+"/"+rec.SessionID)
}

// Close marks the recorder closed. Lode datasets hold no resources.
func (r *LodeRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// toRecordMap flattens a record into the JSONL row, including the
// partition keys.
func toRecordMap(rec *journal.Record) map[string]any {
	m := map[string]any{
		"day":             rec.Day(),
		"session_id":      rec.SessionID,
		"execution_count": rec.ExecutionCount,
		"status":          rec.Status,
		"code":            rec.Code,
		"stdout":          rec.Stdout,
		"stderr":          rec.Stderr,
		"source_path":     rec.SourcePath,
		"started_at":      rec.StartedAt,
		"duration_ms":     rec.DurationMs,
	}
	if rec.ErrorKind != "" {
		m["error_kind"] = rec.ErrorKind
	}
	return m
}

var _ Recorder = (*LodeRecorder)(nil)
