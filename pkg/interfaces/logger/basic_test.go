package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestBasicLoggerFormatsFields(t *testing.T) {
	var buf bytes.Buffer
	lgr := New(&buf, LevelInfo)
	lgr.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

	lgr.With(F("component", "cycle")).Info("cycle finished", F("accepted", 2), F("message", "rate limit hit"))

	got := strings.TrimSpace(buf.String())
	want := `2024-05-01T10:00:00Z [INFO] cycle finished component=cycle accepted=2 message="rate limit hit"`
	if got != want {
		t.Fatalf("unexpected line\n got: %s\nwant: %s", got, want)
	}
}

func TestBasicLoggerMasksCredentialFields(t *testing.T) {
	var buf bytes.Buffer
	lgr := New(&buf, LevelDebug)

	lgr.With(F("team_token", "s3cr3t-team-value")).Debug("request built", F("Token", "another-secret"), F("flag", "FLAG_A"))

	line := buf.String()
	if strings.Contains(line, "s3cr3t-team-value") || strings.Contains(line, "another-secret") {
		t.Fatalf("credential leaked into log line: %s", line)
	}
	if !strings.Contains(line, "team_token=s3") || !strings.Contains(line, "flag=FLAG_A") {
		t.Fatalf("expected masked token and untouched flag, got %s", line)
	}
}

func TestBasicLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	lgr := New(&buf, LevelWarn)

	lgr.Debug("hidden")
	lgr.Info("hidden")
	lgr.Warn("shown")
	lgr.Error("shown too")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"WARNING": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"loud":    LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}
