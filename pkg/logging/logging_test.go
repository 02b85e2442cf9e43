package logging

import (
	"bytes"
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
		{LogLevel(999), "UNKNOWN"},
	}

	for _, test := range tests {
		result := test.level.String()
		if result != test.expected {
			t.Errorf("LogLevel(%d).String() = %s, expected %s", test.level, result, test.expected)
		}
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{LogLevel(999), slog.LevelInfo},
	}

	for _, test := range tests {
		result := test.level.SlogLevel()
		if result != test.expected {
			t.Errorf("LogLevel(%d).SlogLevel() = %v, expected %v", test.level, result, test.expected)
		}
	}
}

func TestInitForCLI(t *testing.T) {
	var buf bytes.Buffer

	InitForCLI(LevelInfo, &buf)

	if defaultLogger == nil {
		t.Fatal("expected defaultLogger to be set after InitForCLI")
	}

	Info("test-subsystem", "test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Error("expected log message to appear in CLI output")
	}
	if !strings.Contains(output, "test-subsystem") {
		t.Error("expected subsystem to appear in CLI output")
	}
}

func TestCLILevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	InitForCLI(LevelInfo, &buf)

	Debug("test", "debug message")
	Info("test", "info message")

	output := buf.String()
	if strings.Contains(output, "debug message") {
		t.Error("debug message should be filtered out at INFO level")
	}
	if !strings.Contains(output, "info message") {
		t.Error("info message should appear at INFO level")
	}
}

func TestSinkDrainPreservesOrderAndLevel(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelDebug, &buf)

	s := NewSink()
	s.Info("Compose", "first %s", "event")
	s.Debug("Compose", "second event")
	s.Warn("Compose", "third event")

	s.Drain()

	output := buf.String()
	firstIdx := strings.Index(output, "first event")
	secondIdx := strings.Index(output, "second event")
	thirdIdx := strings.Index(output, "third event")

	if firstIdx == -1 || secondIdx == -1 || thirdIdx == -1 {
		t.Fatalf("expected all three buffered records in output, got: %s", output)
	}
	if !(firstIdx < secondIdx && secondIdx < thirdIdx) {
		t.Errorf("expected records replayed in insertion order, got: %s", output)
	}
	if !strings.Contains(output, "level=WARN") {
		t.Errorf("expected third record replayed at WARN level, got: %s", output)
	}
}

func TestSinkDrainClearsBuffer(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelInfo, &buf)

	s := NewSink()
	s.Info("Compose", "only once")
	s.Drain()
	s.Drain()

	count := strings.Count(buf.String(), "only once")
	if count != 1 {
		t.Errorf("expected exactly one replay, got %d", count)
	}
}
