package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer Close()

	Info("replaying %s", "com.example")
	Warn("missing dump at %.4f", 12.5)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, "[INFO] replaying com.example") {
		t.Errorf("log = %q, want info line", got)
	}
	if !strings.Contains(got, "[WARN] missing dump at 12.5000") {
		t.Errorf("log = %q, want warn line", got)
	}
}

func TestSetConsoleMirrors(t *testing.T) {
	var buf bytes.Buffer
	SetConsole(&buf)
	defer SetConsole(nil)

	Error("device %s lost", "emulator-5554")

	if got := buf.String(); got != "[ERROR] device emulator-5554 lost\n" {
		t.Errorf("console = %q", got)
	}
}

func TestGetWriterBeforeInit(t *testing.T) {
	Close()
	if w := GetWriter(); w == nil {
		t.Error("GetWriter() returned nil")
	}
	// Logging without Init must not panic.
	Debug("noop")
}

func TestInitBadPath(t *testing.T) {
	if err := Init(filepath.Join(t.TempDir(), "missing", "dir", "x.log")); err == nil {
		t.Error("Init() expected error for missing directory")
	}
}
