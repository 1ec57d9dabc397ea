package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the working directories the optimizer reads from and writes to.
type Paths struct {
	SourceDir    string `toml:"source_dir"`
	OptimizedDir string `toml:"optimized_dir"`
	TmpDir       string `toml:"tmp_dir"`
	LogDir       string `toml:"log_dir"`
}

// Workflow contains scheduling knobs for batch runs.
type Workflow struct {
	Workers             int  `toml:"workers"`
	CourseTimeout       int  `toml:"course_timeout"`
	SkipUnchanged       bool `toml:"skip_unchanged"`
	WatchSettleSeconds  int  `toml:"watch_settle_seconds"`
	KeepFailedWorkspace bool `toml:"keep_failed_workspace"`
}

// Imaging selects the encoder backend used for raster transcoding.
type Imaging struct {
	// Encoder is one of "auto", "magick", or "native".
	Encoder      string `toml:"encoder"`
	MagickBinary string `toml:"magick_binary"`
}

// Scan contains reference scanning options.
type Scan struct {
	// KeepLocked treats manifest entries marked "locked" as in use.
	KeepLocked bool `toml:"keep_locked"`
	// KeepPatterns are glob patterns (matched against static-relative paths)
	// for assets that are always kept, e.g. files only reached via templated URLs.
	KeepPatterns []string `toml:"keep_patterns"`
}

// Manifest contains the assets.json consistency policy.
type Manifest struct {
	// Policy is "lenient" (untracked static files allowed) or "strict"
	// (every static file gets an entry, synthesized when missing).
	Policy string `toml:"policy"`
}

// Report contains per-course report output options.
type Report struct {
	Format string `toml:"format"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// History contains configuration for the run history database.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Notifications contains ntfy delivery settings. An empty topic disables them.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	// OnlyFailures suppresses batch summaries for batches without failures.
	OnlyFailures bool `toml:"only_failures"`
}

// Config encapsulates all configuration values for courseopt.
//
// Configuration sections by subsystem:
//   - Paths: source, optimized output, temporary work and log directories
//   - Workflow: worker count, per-course timeout, watch settings
//   - Imaging: encoder backend selection
//   - Scan: reference scanning policy
//   - Manifest: assets.json one-to-one policy
//   - Report: per-course report format
//   - Logging: log format, level, and retention
//   - History: run history database
//   - Notifications: ntfy batch alerts
type Config struct {
	Paths    Paths    `toml:"paths"`
	Workflow Workflow `toml:"workflow"`
	Imaging  Imaging  `toml:"imaging"`
	Scan     Scan     `toml:"scan"`
	Manifest Manifest `toml:"manifest"`
	Report   Report   `toml:"report"`
	Logging  Logging  `toml:"logging"`
	History  History  `toml:"history"`

	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/courseopt/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("courseopt.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the log, optimized output, source and temporary
// directories. Running it repeatedly is harmless.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.OptimizedDir, c.Paths.SourceDir, c.Paths.TmpDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.History.Enabled && strings.TrimSpace(c.History.Path) != "" {
		if err := os.MkdirAll(filepath.Dir(c.History.Path), 0o755); err != nil {
			return fmt.Errorf("create history directory %q: %w", filepath.Dir(c.History.Path), err)
		}
	}
	return nil
}

// CourseTimeout returns the per-course deadline. Zero disables the deadline.
func (c *Config) CourseTimeout() time.Duration {
	if c.Workflow.CourseTimeout <= 0 {
		return 0
	}
	return time.Duration(c.Workflow.CourseTimeout) * time.Second
}

// ApplicationLogPath returns the path of the batch-level log file.
func (c *Config) ApplicationLogPath() string {
	return filepath.Join(c.Paths.LogDir, "application.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
