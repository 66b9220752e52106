package localdisc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AnishMulay/sandos/internal/log_service"
)

func readLog(t *testing.T, logDir, source string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, source+".log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(data)
}

func TestLogWritesToFile(t *testing.T) {
	logDir := t.TempDir()
	ls := NewLocalDiscLogService(logDir, "kernel")

	ls.Info(log_service.LogEvent{
		Message:  "Process bootstrapped",
		Metadata: map[string]any{"pid": "abc"},
	})

	got := readLog(t, logDir, "kernel")
	if !strings.Contains(got, "[kernel] INFO: Process bootstrapped") {
		t.Errorf("log output = %q, want source, level and message", got)
	}
	if !strings.Contains(got, "pid=abc") {
		t.Errorf("log output = %q, want metadata", got)
	}
}

func TestMinLogLevelFiltering(t *testing.T) {
	logDir := t.TempDir()
	ls := NewLocalDiscLogService(logDir, "kernel", "WARN")

	ls.Debug(log_service.LogEvent{Message: "dropped debug"})
	ls.Info(log_service.LogEvent{Message: "dropped info"})
	ls.Warn(log_service.LogEvent{Message: "kept warn"})
	ls.Error(log_service.LogEvent{Message: "kept error"})

	got := readLog(t, logDir, "kernel")
	if strings.Contains(got, "dropped") {
		t.Errorf("log output = %q, want below-threshold events dropped", got)
	}
	if !strings.Contains(got, "kept warn") || !strings.Contains(got, "kept error") {
		t.Errorf("log output = %q, want warn and error events kept", got)
	}
}

func TestSetMinLogLevel(t *testing.T) {
	logDir := t.TempDir()
	ls := NewLocalDiscLogService(logDir, "kernel", "ERROR")

	ls.Info(log_service.LogEvent{Message: "before"})
	ls.SetMinLogLevel("INFO")
	ls.Info(log_service.LogEvent{Message: "after"})

	got := readLog(t, logDir, "kernel")
	if strings.Contains(got, "before") {
		t.Errorf("log output = %q, want pre-change info dropped", got)
	}
	if !strings.Contains(got, "after") {
		t.Errorf("log output = %q, want post-change info kept", got)
	}
}
