package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("hidden")
	Component(logger, "notary").Warn("shown")

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("expected a single json line, got %q: %v", line, err)
	}
	if entry["msg"] != "shown" || entry["component"] != "notary" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestTextFormatAndInvalidLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "loud", "TEXT")

	logger.Debug("hidden")
	logger.Info("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "msg=visible") {
		t.Fatalf("unexpected output %q", out)
	}
}
