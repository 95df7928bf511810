package logging_test

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stormview/internal/config"
	"stormview/internal/logging"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestConsoleLoggerFormatsComponentAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "launcher").Info("cache cleared",
		logging.String("path", "/tmp/my cache"),
		logging.Error(errors.New("boom")),
	)

	content := readLog(t, logPath)
	if !strings.Contains(content, " INFO launcher: cache cleared") {
		t.Fatalf("expected component prefix, got %q", content)
	}
	if !strings.Contains(content, `path="/tmp/my cache"`) {
		t.Fatalf("expected quoted path, got %q", content)
	}
	if !strings.Contains(content, "error=boom") {
		t.Fatalf("expected error field, got %q", content)
	}
	if strings.Contains(content, "\x1b[") {
		t.Fatalf("expected no colour codes in file output, got %q", content)
	}
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("message with caller")

	if content := readLog(t, logPath); !strings.Contains(content, "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestLevelFiltering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Level: "warn", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hidden")
	logging.WarnWithContext(logger, "preprocess failed", "preprocess_failed")

	content := readLog(t, logPath)
	if strings.Contains(content, "hidden") {
		t.Fatalf("info line should be filtered, got %q", content)
	}
	for _, want := range []string{"event_type=preprocess_failed", "error_hint=", "impact="} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in %q", want, content)
		}
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("launch", logging.String(logging.FieldRunID, "abc"))

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if entry["level"] != "warn" || entry["msg"] != "launch" || entry["run_id"] != "abc" {
		t.Fatalf("unexpected json entry: %#v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %#v", entry)
	}
}

func TestFanoutWritesEveryDestination(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.log")
	second := filepath.Join(dir, "nested", "b.log")
	logger, err := logging.New(logging.Options{OutputPaths: []string{first, second, first}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.With(logging.String("phase", "launch")).Info("hello")

	for _, path := range []string{first, second} {
		content := readLog(t, path)
		if strings.Count(content, "hello") != 1 || !strings.Contains(content, "phase=launch") {
			t.Fatalf("unexpected content in %s: %q", path, content)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigWritesStateLog(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(t.TempDir(), "state")
	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("ready")
	if content := readLog(t, cfg.LogPath()); !strings.Contains(content, "ready") {
		t.Fatalf("expected state log to receive output, got %q", content)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := logging.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
