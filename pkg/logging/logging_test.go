package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(42), "UNKNOWN"},
	}

	for _, tc := range tests {
		if got := tc.level.String(); got != tc.expected {
			t.Errorf("String(%d) = %q, expected %q", tc.level, got, tc.expected)
		}
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	if LevelDebug.SlogLevel() != slog.LevelDebug {
		t.Error("LevelDebug should map to slog.LevelDebug")
	}
	if LevelError.SlogLevel() != slog.LevelError {
		t.Error("LevelError should map to slog.LevelError")
	}
}

func TestLogging_SubsystemAndFormatting(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, &buf)

	Info("Test", "Processing key=%s", "service-a")

	out := buf.String()
	if !strings.Contains(out, "subsystem=Test") {
		t.Errorf("Output should carry the subsystem attr: %q", out)
	}
	if !strings.Contains(out, "Processing key=service-a") {
		t.Errorf("Output should carry the formatted message: %q", out)
	}
}

func TestLogging_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelWarn, &buf)

	Debug("Test", "Hidden")
	Info("Test", "Hidden too")
	Warn("Test", "Visible")

	out := buf.String()
	if strings.Contains(out, "Hidden") {
		t.Errorf("Messages below the configured level should be suppressed: %q", out)
	}
	if !strings.Contains(out, "Visible") {
		t.Errorf("Messages at the configured level should appear: %q", out)
	}
}

func TestLogging_ErrorAttr(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, &buf)

	Error("Test", errors.New("boom"), "Operation failed")

	out := buf.String()
	if !strings.Contains(out, "error=boom") {
		t.Errorf("Output should carry the error attr: %q", out)
	}
}
