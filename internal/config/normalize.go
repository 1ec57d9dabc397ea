package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnv()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeImaging()
	c.normalizeScan()
	c.Manifest.Policy = lowerOr(c.Manifest.Policy, defaultManifestPolicy)
	c.Report.Format = lowerOr(c.Report.Format, defaultReportFormat)
	if c.Report.Format == "yml" {
		c.Report.Format = ReportFormatYAML
	}
	c.normalizeLogging()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
	return c.normalizeHistory()
}

// applyEnv lets COURSEOPT_* variables (typically from a .env file) fill in
// values without editing the config file.
func (c *Config) applyEnv() {
	if value, ok := os.LookupEnv("COURSEOPT_SOURCE_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.SourceDir = value
	}
	if value, ok := os.LookupEnv("COURSEOPT_OPTIMIZED_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.OptimizedDir = value
	}
	if value, ok := os.LookupEnv("COURSEOPT_MAGICK_BINARY"); ok && strings.TrimSpace(value) != "" {
		c.Imaging.MagickBinary = value
	}
	if value, ok := os.LookupEnv("COURSEOPT_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	if value, ok := os.LookupEnv("COURSEOPT_NTFY_TOPIC"); ok && strings.TrimSpace(value) != "" {
		c.Notifications.NtfyTopic = value
	}
	if value, ok := os.LookupEnv("COURSEOPT_WORKERS"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			c.Workflow.Workers = n
		}
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.SourceDir, err = expandPath(orDefault(c.Paths.SourceDir, defaultSourceDir)); err != nil {
		return fmt.Errorf("paths.source_dir: %w", err)
	}
	if c.Paths.OptimizedDir, err = expandPath(orDefault(c.Paths.OptimizedDir, defaultOptimizedDir)); err != nil {
		return fmt.Errorf("paths.optimized_dir: %w", err)
	}
	if c.Paths.TmpDir, err = expandPath(orDefault(c.Paths.TmpDir, defaultTmpDir)); err != nil {
		return fmt.Errorf("paths.tmp_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(orDefault(c.Paths.LogDir, defaultLogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeImaging() {
	c.Imaging.Encoder = lowerOr(c.Imaging.Encoder, defaultEncoder)
	c.Imaging.MagickBinary = orDefault(c.Imaging.MagickBinary, defaultMagickBinary)
}

func (c *Config) normalizeScan() {
	patterns := c.Scan.KeepPatterns[:0]
	for _, pattern := range c.Scan.KeepPatterns {
		pattern = strings.TrimPrefix(strings.TrimSpace(pattern), "/static/")
		if pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	c.Scan.KeepPatterns = patterns
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = lowerOr(c.Logging.Format, defaultLogFormat)
	c.Logging.Level = lowerOr(c.Logging.Level, defaultLogLevel)
}

func (c *Config) normalizeHistory() error {
	if !c.History.Enabled {
		return nil
	}
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = filepath.Join(c.Paths.LogDir, defaultHistoryFile)
		return nil
	}
	var err error
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func lowerOr(value, fallback string) string {
	return strings.ToLower(orDefault(value, fallback))
}
