package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONIncludesServiceAndRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json", "warn")

	l.Info("hidden")
	l.Warn("shown", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["service"] != "ai-factcheck" || rec["k"] != "v" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestTrim(t *testing.T) {
	if got := Trim("  abcdef  ", 3); got != "abc..." {
		t.Fatalf("Trim = %q", got)
	}
	if got := Trim("ab", 3); got != "ab" {
		t.Fatalf("Trim = %q", got)
	}
}
