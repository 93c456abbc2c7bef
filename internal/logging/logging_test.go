package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestDefaultLogDir(t *testing.T) {
	dir := DefaultLogDir()
	if dir == "" {
		t.Error("DefaultLogDir returned empty string")
	}

	if !strings.Contains(dir, ".beacon") || !strings.Contains(dir, "logs") {
		t.Errorf("DefaultLogDir should contain .beacon/logs, got: %s", dir)
	}
}

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()
	if filepath.Base(path) != "engine.log" {
		t.Errorf("DefaultLogPath should end with engine.log, got: %s", path)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got: %s", cfg.Level)
	}
	if cfg.MaxSizeMB != 10 {
		t.Errorf("expected MaxSizeMB 10, got: %d", cfg.MaxSizeMB)
	}
	if cfg.MaxFiles != 5 {
		t.Errorf("expected MaxFiles 5, got: %d", cfg.MaxFiles)
	}
	if !cfg.WriteToStderr {
		t.Error("expected WriteToStderr to be true")
	}
}

func TestDebugConfig(t *testing.T) {
	cfg := DebugConfig()
	if cfg.Level != "debug" {
		t.Errorf("expected level 'debug', got: %s", cfg.Level)
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test.log")

	cfg := Config{
		Level:         "debug",
		FilePath:      logPath,
		MaxSizeMB:     1,
		MaxFiles:      3,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger.Info("test message", slog.String("component", "coordinator"))
	cleanup()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, `"msg":"test message"`) {
		t.Errorf("log file missing message, got: %s", content)
	}
	if !strings.Contains(content, `"component":"coordinator"`) {
		t.Errorf("log file missing attribute, got: %s", content)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestRotatingWriter_RotatesAtMaxSize(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "rotate.log")

	w, err := NewRotatingWriter(logPath, 1, 3) // 1MB max
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()
	w.SetImmediateSync(false)

	// Write ~1.5MB in 64KB chunks to force one rotation
	chunk := strings.Repeat("x", 64*1024)
	for i := 0; i < 24; i++ {
		if _, err := w.Write([]byte(chunk)); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Errorf("expected rotated file %s.1 to exist: %v", logPath, err)
	}
}

func TestRotatingWriter_KeepsAtMostMaxFiles(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "rotate.log")

	w, err := NewRotatingWriter(logPath, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()
	w.SetImmediateSync(false)

	chunk := strings.Repeat("y", 256*1024)
	for i := 0; i < 40; i++ {
		if _, err := w.Write([]byte(chunk)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	matches, err := filepath.Glob(logPath + ".*")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) > 2 {
		t.Errorf("expected at most 2 rotated files, got %d: %v", len(matches), matches)
	}
}

func TestViewer_TailReturnsLastN(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "view.log")

	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString(fmt.Sprintf(`{"time":"%s","level":"INFO","msg":"entry %d"}`,
			time.Now().Format(time.RFC3339Nano), i))
		sb.WriteString("\n")
	}
	if err := os.WriteFile(logPath, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	v := NewViewer(ViewerConfig{NoColor: true}, os.Stdout)
	entries, err := v.Tail(logPath, 5)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}

	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	if entries[4].Msg != "entry 19" {
		t.Errorf("expected last entry 'entry 19', got %q", entries[4].Msg)
	}
}

func TestViewer_LevelFilter(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "view.log")

	content := `{"time":"2025-06-01T12:00:00Z","level":"DEBUG","msg":"noise"}
{"time":"2025-06-01T12:00:01Z","level":"ERROR","msg":"boom"}
`
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	v := NewViewer(ViewerConfig{Level: "error", NoColor: true}, os.Stdout)
	entries, err := v.Tail(logPath, 10)
	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != 1 || entries[0].Msg != "boom" {
		t.Errorf("expected only the error entry, got %+v", entries)
	}
}

func TestViewer_PatternFilter(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "view.log")

	content := `{"time":"2025-06-01T12:00:00Z","level":"INFO","msg":"cache hit"}
{"time":"2025-06-01T12:00:01Z","level":"INFO","msg":"cache miss"}
`
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	v := NewViewer(ViewerConfig{Pattern: regexp.MustCompile("miss"), NoColor: true}, os.Stdout)
	entries, err := v.Tail(logPath, 10)
	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != 1 || entries[0].Msg != "cache miss" {
		t.Errorf("expected only the miss entry, got %+v", entries)
	}
}

func TestViewer_FormatEntry_InvalidJSONPassthrough(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, os.Stdout)
	entry := v.parseLine("not json at all")

	if entry.IsValid {
		t.Error("expected invalid entry")
	}
	if got := v.FormatEntry(entry); got != "not json at all" {
		t.Errorf("expected raw passthrough, got %q", got)
	}
}

func TestFindLogFile_ExplicitMissing(t *testing.T) {
	if _, err := FindLogFile(filepath.Join(t.TempDir(), "nope.log")); err == nil {
		t.Error("expected error for missing explicit path")
	}
}
