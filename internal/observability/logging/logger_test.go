package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "api", "warn", "")

	logger.Info("dropped")
	logger.Warn("duplicate_rejected", "checksum", "abc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the warn line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected json output: %v", err)
	}
	if entry["service"] != "api" || entry["msg"] != "duplicate_rejected" || entry["checksum"] != "abc" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "worker", "debug", "TEXT").Debug("document_processed", "document_id", "doc-1")
	if out := buf.String(); !strings.Contains(out, "msg=document_processed") || !strings.Contains(out, "service=worker") {
		t.Fatalf("unexpected text output: %q", out)
	}
}
