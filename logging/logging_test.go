package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "radio-tui.log")

	logger, err := NewLogger(false, path)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Named("test").Infow("Station selected", "station", "jazz")
	logger.Debug("hidden at info level")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, `"station":"jazz"`) || !strings.Contains(content, `"logger":"test"`) {
		t.Errorf("expected structured entry, got %q", content)
	}
	if strings.Contains(content, "hidden at info level") {
		t.Error("debug entry written by a non-verbose logger")
	}
}

func TestNewLogger_Verbose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verbose.log")

	logger, err := NewLogger(true, path)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Debug("visible when verbose")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "visible when verbose") {
		t.Errorf("expected debug entry, got %q", data)
	}
}

func TestDefaultLogPath(t *testing.T) {
	if got := filepath.Base(DefaultLogPath()); got != logFilename {
		t.Errorf("unexpected log file name %q", got)
	}
}
