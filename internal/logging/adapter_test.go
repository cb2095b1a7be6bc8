package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNewCronAdapter_WithNil(t *testing.T) {
	adapter := NewCronAdapter(nil)
	if adapter == nil {
		t.Fatal("NewCronAdapter returned nil")
	}
	if adapter.logger == nil {
		t.Error("adapter.logger should not be nil when created with nil")
	}
}

func TestNewCronAdapter_WithLogger(t *testing.T) {
	logger := slog.Default()
	adapter := NewCronAdapter(logger)
	if adapter.Logger() != logger {
		t.Error("Logger() should return the underlying logger")
	}
}

func TestCronAdapter_InfoIsDebug(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewCronAdapter(New(&buf, "info", "text"))
	adapter.Info("wake", "now", "12:00")
	if buf.Len() != 0 {
		t.Errorf("cron info should log at debug level, got %q", buf.String())
	}
}

func TestCronAdapter_Error(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewCronAdapter(New(&buf, "info", "text"))
	adapter.Error(errors.New("boom"), "job panicked", "entry", 3)

	out := buf.String()
	for _, want := range []string{"level=ERROR", "job panicked", "error=boom", "entry=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}
