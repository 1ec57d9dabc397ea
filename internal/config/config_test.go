package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"courseopt/internal/config"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadDefaultConfigExpandsRelativePaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	work := t.TempDir()
	chdir(t, work)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent")
	}

	// macOS temp dirs resolve through /private; compare against the cwd Go sees.
	cwd, _ := os.Getwd()
	if cfg.Paths.SourceDir != filepath.Join(cwd, "source-courses") {
		t.Fatalf("unexpected source dir: %q", cfg.Paths.SourceDir)
	}
	if cfg.Paths.OptimizedDir != filepath.Join(cwd, "optimized-courses") {
		t.Fatalf("unexpected optimized dir: %q", cfg.Paths.OptimizedDir)
	}
	if cfg.Paths.TmpDir != filepath.Join(cwd, "tmp") {
		t.Fatalf("unexpected tmp dir: %q", cfg.Paths.TmpDir)
	}
	if cfg.History.Path != filepath.Join(cwd, "logs", "history.db") {
		t.Fatalf("unexpected history path: %q", cfg.History.Path)
	}
	if cfg.Workflow.Workers != 2 {
		t.Fatalf("expected two workers by default, got %d", cfg.Workflow.Workers)
	}
	if cfg.CourseTimeout() != 30*time.Minute {
		t.Fatalf("unexpected course timeout: %s", cfg.CourseTimeout())
	}
	if cfg.Manifest.Policy != config.ManifestPolicyLenient {
		t.Fatalf("unexpected manifest policy: %q", cfg.Manifest.Policy)
	}
	if !cfg.Scan.KeepLocked {
		t.Fatal("expected keep_locked enabled by default")
	}
	if cfg.Imaging.Encoder != config.EncoderAuto {
		t.Fatalf("unexpected encoder: %q", cfg.Imaging.Encoder)
	}
}

func TestLoadCustomConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	payload := map[string]any{
		"paths": map[string]any{
			"source_dir":    filepath.Join(dir, "in"),
			"optimized_dir": filepath.Join(dir, "out"),
			"tmp_dir":       filepath.Join(dir, "work"),
			"log_dir":       "~/logs",
		},
		"workflow": map[string]any{
			"workers":        4,
			"course_timeout": 0,
		},
		"imaging":  map[string]any{"encoder": "NATIVE"},
		"manifest": map[string]any{"policy": "strict"},
		"report":   map[string]any{"format": "yml"},
		"scan":     map[string]any{"keep_patterns": []string{"/static/dnd_*.png", "  "}},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config to be read from %q (exists=%v resolved=%q)", path, exists, resolved)
	}
	if cfg.Workflow.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Workflow.Workers)
	}
	if cfg.CourseTimeout() != 0 {
		t.Fatalf("expected disabled timeout, got %s", cfg.CourseTimeout())
	}
	if cfg.Imaging.Encoder != config.EncoderNative {
		t.Fatalf("expected encoder to be lower-cased, got %q", cfg.Imaging.Encoder)
	}
	if cfg.Manifest.Policy != config.ManifestPolicyStrict {
		t.Fatalf("unexpected manifest policy: %q", cfg.Manifest.Policy)
	}
	if cfg.Report.Format != config.ReportFormatYAML {
		t.Fatalf("expected yml alias to map to yaml, got %q", cfg.Report.Format)
	}
	if len(cfg.Scan.KeepPatterns) != 1 || cfg.Scan.KeepPatterns[0] != "dnd_*.png" {
		t.Fatalf("unexpected keep patterns: %v", cfg.Scan.KeepPatterns)
	}
	home, _ := os.UserHomeDir()
	if cfg.Paths.LogDir != filepath.Join(home, "logs") {
		t.Fatalf("expected tilde expansion for log dir, got %q", cfg.Paths.LogDir)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())
	t.Setenv("COURSEOPT_WORKERS", "3")
	t.Setenv("COURSEOPT_MAGICK_BINARY", "/opt/im/bin/magick")
	t.Setenv("COURSEOPT_NTFY_TOPIC", "https://ntfy.sh/courses")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Workflow.Workers != 3 {
		t.Fatalf("expected workers from env, got %d", cfg.Workflow.Workers)
	}
	if cfg.Imaging.MagickBinary != "/opt/im/bin/magick" {
		t.Fatalf("expected magick binary from env, got %q", cfg.Imaging.MagickBinary)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.sh/courses" {
		t.Fatalf("expected ntfy topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"workers", func(c *config.Config) { c.Workflow.Workers = 0 }, "workflow.workers"},
		{"encoder", func(c *config.Config) { c.Imaging.Encoder = "gimp" }, "imaging.encoder"},
		{"policy", func(c *config.Config) { c.Manifest.Policy = "loose" }, "manifest.policy"},
		{"report", func(c *config.Config) { c.Report.Format = "xml" }, "report.format"},
		{"tmp", func(c *config.Config) { c.Paths.TmpDir = c.Paths.SourceDir }, "paths.tmp_dir"},
		{"pattern", func(c *config.Config) { c.Scan.KeepPatterns = []string{"[a-"} }, "scan.keep_patterns"},
		{"ntfy", func(c *config.Config) { c.Notifications.NtfyTopic = "not a url" }, "notifications.ntfy_topic"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestEnsureDirectoriesCreatesLayout(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.SourceDir = filepath.Join(base, "source-courses")
	cfg.Paths.OptimizedDir = filepath.Join(base, "optimized-courses")
	cfg.Paths.TmpDir = filepath.Join(base, "tmp")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.History.Path = filepath.Join(base, "state", "history.db")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("second EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.SourceDir, cfg.Paths.OptimizedDir, cfg.Paths.TmpDir, cfg.Paths.LogDir, filepath.Join(base, "state")} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Workflow.Workers != config.Default().Workflow.Workers {
		t.Fatalf("sample workers drifted from defaults: %d", cfg.Workflow.Workers)
	}
}
