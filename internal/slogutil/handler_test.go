package slogutil

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelDebug)

	logger.Info("building module tree", "modules", 12, "source", "scip")

	out := buf.String()
	if !strings.Contains(out, "[info] building module tree") {
		t.Errorf("unexpected log line: %q", out)
	}
	if !strings.Contains(out, "modules=12") {
		t.Errorf("missing int attr: %q", out)
	}
	if !strings.Contains(out, "source=scip") {
		t.Errorf("missing string attr: %q", out)
	}
}

func TestHandlerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)

	logger.Debug("noise")
	logger.Info("noise")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "noise") {
		t.Errorf("below-level records leaked: %q", out)
	}
	if !strings.Contains(out, "[warn] kept") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestHandlerWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo).With("run", "abc").WithGroup("trace")

	logger.Info("done", "steps", 3)

	out := buf.String()
	if !strings.Contains(out, "run=abc") {
		t.Errorf("pre-set attr missing: %q", out)
	}
	if !strings.Contains(out, "trace.steps=3") {
		t.Errorf("group prefix missing: %q", out)
	}
}

func TestHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Info("flow", "name", "User Login")

	if !strings.Contains(buf.String(), `name="User Login"`) {
		t.Errorf("value with space not quoted: %q", buf.String())
	}
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := LevelFromString(tt.in); got != tt.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelFromVerbosity(t *testing.T) {
	if got := LevelFromVerbosity(0, true); got <= slog.LevelError {
		t.Errorf("quiet should suppress everything, got %v", got)
	}
	if got := LevelFromVerbosity(0, false); got != slog.LevelWarn {
		t.Errorf("verbosity 0 = %v, want warn", got)
	}
	if got := LevelFromVerbosity(1, false); got != slog.LevelInfo {
		t.Errorf("verbosity 1 = %v, want info", got)
	}
	if got := LevelFromVerbosity(5, false); got != slog.LevelDebug {
		t.Errorf("verbosity 5 = %v, want debug", got)
	}
}

func TestNewDiscardLogger(t *testing.T) {
	logger := NewDiscardLogger()
	// Must not panic and must swallow output at every level.
	logger.Debug("x")
	logger.Error("x")
}
