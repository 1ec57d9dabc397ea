package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"courseopt/internal/services"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
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
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConsoleHandlerFormatsCourseAndComponent(t *testing.T) {
	var buf bytes.Buffer
	lv := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lv, false))
	logger = NewComponentLogger(logger, "scanner").With(String(FieldCourseID, "edX_DemoX_Demo"))
	logger.Info("references collected", Int("count", 12), String("doc", "html/intro one.html"))

	line := buf.String()
	for _, want := range []string{"INFO [edX_DemoX_Demo] scanner: references collected", "count=12", `doc="html/intro one.html"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestJSONHandlerKeys(t *testing.T) {
	var buf bytes.Buffer
	lv := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, lv, false))
	logger.Warn("orphan removed", String(FieldAsset, "old.png"))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["level"] != "warn" || payload["msg"] != "orphan removed" || payload["asset"] != "old.png" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatal("expected ts key")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	WarnWithContext(logger, "document unparseable", "parse_warning", String(FieldImpact, "references in document ignored"))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload[FieldEventType] != "parse_warning" {
		t.Fatalf("event_type = %v", payload[FieldEventType])
	}
	if payload[FieldErrorHint] == nil {
		t.Fatal("expected default error_hint")
	}
	if payload[FieldImpact] != "references in document ignored" {
		t.Fatalf("impact overridden: %v", payload[FieldImpact])
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := services.WithCourseID(context.Background(), "MITx_6.00x_2T2024")
	ctx = services.WithStage(ctx, "scan")
	ctx = services.WithRequestID(ctx, "run-1")

	WithContext(ctx, logger).Info("hello")
	for _, want := range []string{`"course_id":"MITx_6.00x_2T2024"`, `"stage":"scan"`, `"correlation_id":"run-1"`} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("expected %s in %s", want, buf.String())
		}
	}
}

func TestNewCourseLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	base := slog.New(slog.NewTextHandler(&console, nil))

	logger, closer, err := NewCourseLogger(base, dir, "edX_DemoX_Demo", "debug")
	if err != nil {
		t.Fatalf("NewCourseLogger: %v", err)
	}
	logger.Debug("debug only in file")
	logger.Info("extracted")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "edX_DemoX_Demo.log"))
	if err != nil {
		t.Fatalf("read course log: %v", err)
	}
	if !strings.Contains(string(data), "debug only in file") || !strings.Contains(string(data), "extracted") {
		t.Fatalf("course log missing lines: %s", data)
	}
	if strings.Contains(console.String(), "debug only in file") {
		t.Fatal("console should stay at info")
	}
	if !strings.Contains(console.String(), "course_id=edX_DemoX_Demo") {
		t.Fatalf("console missing course id: %s", console.String())
	}
}

func TestNewCourseLoggerRejectsEmptyID(t *testing.T) {
	if _, _, err := NewCourseLogger(nil, t.TempDir(), "  ", "info"); err == nil {
		t.Fatal("expected error")
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.log")
	oldReport := filepath.Join(dir, "old.report.json")
	fresh := filepath.Join(dir, "fresh.log")
	app := filepath.Join(dir, "application.log")
	db := filepath.Join(dir, "history.db")
	for _, p := range []string{old, oldReport, fresh, app, db} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().AddDate(0, 0, -40)
	for _, p := range []string{old, oldReport, app, db} {
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatal(err)
		}
	}

	removed := CleanupOldLogs(NewNop(), 30, DefaultRetentionTargets(dir, app)...)
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	for _, p := range []string{fresh, app, db} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("%s should remain: %v", p, err)
		}
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("old log should be removed")
	}
}

func TestCleanupOldLogsDisabled(t *testing.T) {
	if got := CleanupOldLogs(nil, 0, RetentionTarget{Dir: t.TempDir()}); got != 0 {
		t.Fatalf("expected no pruning, got %d", got)
	}
}
