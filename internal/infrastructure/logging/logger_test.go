package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/fleet-relay/internal/infrastructure/config"
)

func TestNew_Outputs(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", "discard", ""} {
		t.Run(output, func(t *testing.T) {
			logger := New(config.LoggingConfig{Level: "info", Format: "json", Output: output}, "1.0.0")
			if logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewWithWriter_DefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info"}, "v1.2.3", &buf)

	logger.Info("relay started", "port", 8080)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	if entry["service"] != ServiceName {
		t.Errorf("service = %v, want %q", entry["service"], ServiceName)
	}
	if entry["version"] != "v1.2.3" {
		t.Errorf("version = %v, want v1.2.3", entry["version"])
	}
	if entry["msg"] != "relay started" {
		t.Errorf("msg = %v, want 'relay started'", entry["msg"])
	}
	if entry["port"] != float64(8080) {
		t.Errorf("port = %v, want 8080", entry["port"])
	}
}

func TestNewWithWriter_TextFormatAndLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, "dev", &buf)

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info entry should be filtered at warn level")
	}
	if !strings.Contains(out, "msg=kept") {
		t.Errorf("expected text-format warn entry, got %q", out)
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{}, "dev", &buf)

	child := logger.Component("dispatch")
	if child == logger {
		t.Fatal("expected child logger to be different from parent")
	}
	child.Info("hello")

	if !strings.Contains(buf.String(), `"component":"dispatch"`) {
		t.Errorf("expected component field, got %q", buf.String())
	}
}

func TestDefaultAndDiscard(t *testing.T) {
	if Default() == nil {
		t.Fatal("expected non-nil default logger")
	}
	if Discard() == nil {
		t.Fatal("expected non-nil discard logger")
	}
}
