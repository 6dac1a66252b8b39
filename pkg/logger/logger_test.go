package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"DEBUG":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"fatal":   zerolog.FatalLevel,
		"bogus":   zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitWritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "mindrian.log")
	defer func() { _ = Close() }()

	if err := Init(LogConfig{Level: "debug", Format: "json", File: logPath}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Info().Str("run_id", "r1").Msg("run started")
	if err := Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(content), "run started") {
		t.Errorf("log file missing message: %s", content)
	}
}

func TestInitRejectsBadPath(t *testing.T) {
	defer func() { _ = Close() }()
	if err := Init(LogConfig{Level: "info", File: "/nonexistent/dir/x.log"}); err == nil {
		t.Error("expected error for invalid file path")
	}
}

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")

	SetLevel("error")
	if Level() != "error" {
		t.Errorf("Level() = %q, want error", Level())
	}
	SetLevel("debug")
	if Level() != "debug" {
		t.Errorf("Level() = %q, want debug", Level())
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	mu.Lock()
	prev, prevInit := globalLogger, initialized
	globalLogger = zerolog.New(&buf)
	initialized = true
	mu.Unlock()
	defer func() {
		mu.Lock()
		globalLogger, initialized = prev, prevInit
		mu.Unlock()
	}()
	SetLevel("debug")
	defer SetLevel("info")

	l := Component("confirm")
	l.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse entry: %v", err)
	}
	if entry["component"] != "confirm" {
		t.Errorf("component = %v, want confirm", entry["component"])
	}
}

func TestGetWithoutInit(t *testing.T) {
	mu.Lock()
	initialized = false
	mu.Unlock()

	if Get() == nil {
		t.Fatal("Get() should return a default logger when not initialized")
	}
	Warn().Msg("warn")
}

func TestForRun(t *testing.T) {
	var buf bytes.Buffer
	l := ForRun(zerolog.New(&buf), "r1", "s1")
	l.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse entry: %v", err)
	}
	if entry["run_id"] != "r1" || entry["session_id"] != "s1" {
		t.Errorf("entry = %v", entry)
	}
}
