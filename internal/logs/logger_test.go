package logs

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "info"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("mission loaded", "mission", "Outrun the Swarm")
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at info level, got %d: %q", len(lines), buf.String())
	}

	var rec map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if rec["msg"] != "mission loaded" || rec["mission"] != "Outrun the Swarm" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestSetLevelAffectsExistingLoggers(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "warn", Format: "text"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("quiet")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn, got %q", buf.String())
	}

	if err := SetLevel("debug"); err != nil {
		t.Fatal(err)
	}
	defer SetLevel("info")

	logger.Debug("loud")
	if !strings.Contains(buf.String(), "loud") {
		t.Errorf("expected debug record after SetLevel, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"", slog.LevelInfo, true},
		{"DEBUG", slog.LevelDebug, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseLevel(%q) err=%v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestToJournalKey(t *testing.T) {
	if got := toJournalKey("session_id"); got != "SESSION_ID" {
		t.Errorf("got %s", got)
	}
	if got := toJournalKey("charge.percent"); got != "CHARGE_PERCENT" {
		t.Errorf("got %s", got)
	}
}
