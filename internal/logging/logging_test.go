package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     LogLevel
		expected slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{LevelError, slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			if got := ParseLevel(tt.name); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level %s, got %s", LevelInfo, cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("Expected default format %s, got %s", FormatText, cfg.Format)
	}
	if cfg.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got '%s'", cfg.Output)
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("stdout", func(t *testing.T) {
		logger, err := New(Config{Level: LevelInfo, Format: FormatText, Output: "stdout"})
		if err != nil {
			t.Fatalf("Failed to create logger: %v", err)
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close on stdout logger should be a no-op, got %v", err)
		}
	})

	t.Run("file output creates directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "reconnode.log")
		logger, err := New(Config{Level: LevelInfo, Format: FormatJSON, Output: path})
		if err != nil {
			t.Fatalf("Failed to create file logger: %v", err)
		}
		logger.Info("scan started", "hosts", 3)
		if err := logger.Close(); err != nil {
			t.Fatalf("Failed to close logger: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Failed to read log file: %v", err)
		}
		if !strings.Contains(string(data), `"msg":"scan started"`) {
			t.Errorf("Expected log line in file, got %q", string(data))
		}
	})
}

func TestJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: LevelDebug, Format: FormatJSON})

	logger.WithComponent("orchestrator").WithScanID("abc").InfoScan("host visited", "192.168.0.5", "ports", 10)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	for key, want := range map[string]any{
		"component": "orchestrator",
		"scan_id":   "abc",
		"target":    "192.168.0.5",
		"ports":     float64(10),
	} {
		if entry[key] != want {
			t.Errorf("Expected %s=%v, got %v", key, want, entry[key])
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: LevelWarn, Format: FormatText})

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("Warn line should be written: %q", out)
	}
}

func TestDomainHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: LevelDebug, Format: FormatText})

	logger.ErrorStore("history write failed", errors.New("boom"))
	logger.InfoDaemon("scheduler started")
	logger.ErrorDiscovery("sweep failed", "192.168.0.0/24", errors.New("no nmap"))

	out := buf.String()
	for _, want := range []string{"component=store", "error=boom", "component=daemon", "network=192.168.0.0/24"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output %q", want, out)
		}
	}
}

func TestSetDefault(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	var buf bytes.Buffer
	SetDefault(NewWithWriter(&buf, Config{Level: LevelDebug, Format: FormatText}))
	SetDefault(nil)

	Info("through package logger", "k", "v")
	InfoStore("store event")

	if !strings.Contains(buf.String(), "through package logger") {
		t.Errorf("Expected package-level Info to use replaced logger, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "component=store") {
		t.Errorf("Expected store helper output, got %q", buf.String())
	}
}
