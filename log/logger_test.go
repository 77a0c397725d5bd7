package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, m)
	}
	return entries
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(Options{SessionID: "sess-1", Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	l.Info("kernel started", map[string]any{"shell": "tcp://127.0.0.1:5555"})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e["message"] != "kernel started" || e["level"] != "info" {
		t.Errorf("entry = %v", e)
	}
	if e["session_id"] != "sess-1" || e["kernel"] != "v-kernel" {
		t.Errorf("context fields missing: %v", e)
	}
	if _, ok := e["timestamp"]; !ok {
		t.Error("timestamp missing")
	}
	fields, _ := e["fields"].(map[string]any)
	if fields["shell"] != "tcp://127.0.0.1:5555" {
		t.Errorf("fields = %v", e["fields"])
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(Options{Level: "warn", Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	l.Debug("hidden", nil)
	l.Info("hidden", nil)
	l.Warn("shown", nil)
	l.Sugar().Errorf("shown %d", 2)

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %s", len(entries), buf.String())
	}
	if entries[1]["message"] != "shown 2" {
		t.Errorf("sugared message = %v", entries[1]["message"])
	}
	if _, ok := entries[0]["session_id"]; ok {
		t.Error("session_id present without a session")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}

	if _, err := NewLogger(Options{Level: "loud"}); err == nil {
		t.Error("NewLogger accepted an invalid level")
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("ignored", map[string]any{"k": 1})
	l.Sugar().Infof("ignored %s", "too")
}
