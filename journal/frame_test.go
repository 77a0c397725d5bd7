package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func sampleRecord(count int) *Record {
	return &Record{
		SessionID:      "sess-001",
		ExecutionCount: count,
		Status:         "ok",
		Code:           "println('hi')",
		Stdout:         "hi\n",
		SourcePath:     "/tmp/v-kernel-x/cell_1.v",
		StartedAt:      "2026-03-01T10:00:00Z",
		DurationMs:     42,
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	for i := 1; i <= 3; i++ {
		if err := w.Write(sampleRecord(i)); err != nil {
			t.Fatalf("Write(%d) failed: %v", i, err)
		}
	}

	records, err := ReadAll(&buf)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	for i, rec := range records {
		if rec.ExecutionCount != i+1 {
			t.Errorf("records[%d].ExecutionCount = %d, want %d", i, rec.ExecutionCount, i+1)
		}
		if rec.Stdout != "hi\n" {
			t.Errorf("records[%d].Stdout = %q", i, rec.Stdout)
		}
	}
}

func TestWriter_LengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).Write(sampleRecord(1)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	raw := buf.Bytes()
	size := binary.BigEndian.Uint32(raw[:LengthPrefixSize])
	if int(size) != len(raw)-LengthPrefixSize {
		t.Errorf("length prefix = %d, payload = %d", size, len(raw)-LengthPrefixSize)
	}
}

func TestFrameDecoder_EmptyStream(t *testing.T) {
	_, err := NewFrameDecoder(bytes.NewReader(nil)).ReadFrame()
	if err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestFrameDecoder_TruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).Write(sampleRecord(1)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	raw := buf.Bytes()

	_, err := NewFrameDecoder(bytes.NewReader(raw[:len(raw)-3])).ReadFrame()
	if !IsTruncated(err) {
		t.Errorf("err = %v, want truncated frame error", err)
	}
}

func TestFrameDecoder_TruncatedPrefix(t *testing.T) {
	_, err := NewFrameDecoder(bytes.NewReader([]byte{0, 0})).ReadFrame()
	if !IsTruncated(err) {
		t.Errorf("err = %v, want truncated frame error", err)
	}
}

func TestFrameDecoder_TooLarge(t *testing.T) {
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], MaxPayloadSize+1)

	_, err := NewFrameDecoder(bytes.NewReader(prefix[:])).ReadFrame()
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorTooLarge {
		t.Errorf("err = %v, want FrameErrorTooLarge", err)
	}
}

func TestDecodeRecord_Garbage(t *testing.T) {
	_, err := DecodeRecord([]byte{0xc1})
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorDecode {
		t.Errorf("err = %v, want FrameErrorDecode", err)
	}
}

func TestReadAll_KeepsRecordsBeforeTruncation(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	_ = w.Write(sampleRecord(1))
	_ = w.Write(sampleRecord(2))
	raw := buf.Bytes()

	records, err := ReadAll(bytes.NewReader(raw[:len(raw)-1]))
	if !IsTruncated(err) {
		t.Fatalf("err = %v, want truncated", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.msgpack")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewWriter(f).Write(sampleRecord(7)); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	records, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(records) != 1 || records[0].ExecutionCount != 7 {
		t.Errorf("records = %+v", records)
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRecord_Day(t *testing.T) {
	rec := sampleRecord(1)
	if got := rec.Day(); got != "2026-03-01" {
		t.Errorf("Day() = %q", got)
	}
}
