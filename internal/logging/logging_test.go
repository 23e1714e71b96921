package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestLoggerTagsServiceAndEnv(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info", "wyvernd", "test")
	logger.Debug("dropped")
	logger.Info("kept", "tx_hash", "0x01")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if line["service"] != "wyvernd" || line["env"] != "test" || line["msg"] != "kept" || line["tx_hash"] != "0x01" {
		t.Fatalf("unexpected log line: %v", line)
	}
}
