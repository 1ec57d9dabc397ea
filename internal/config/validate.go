package config

import (
	"fmt"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateImaging(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	return validation.Errors{
		"manifest.policy": validation.Validate(c.Manifest.Policy,
			validation.Required, validation.In(ManifestPolicyLenient, ManifestPolicyStrict)),
		"report.format": validation.Validate(c.Report.Format,
			validation.Required, validation.In(ReportFormatJSON, ReportFormatYAML)),
		"logging.format": validation.Validate(c.Logging.Format,
			validation.Required, validation.In("console", "json")),
		"logging.level": validation.Validate(c.Logging.Level,
			validation.In("debug", "info", "warn", "error")),
		"logging.retention_days": validation.Validate(c.Logging.RetentionDays, validation.Min(0)),
		"notifications.ntfy_topic": validation.Validate(c.Notifications.NtfyTopic,
			is.URL),
	}.Filter()
}

func (c *Config) validatePaths() error {
	return validation.Errors{
		"paths.source_dir":    validation.Validate(c.Paths.SourceDir, validation.Required),
		"paths.optimized_dir": validation.Validate(c.Paths.OptimizedDir, validation.Required),
		"paths.tmp_dir":       validation.Validate(c.Paths.TmpDir, validation.Required, validation.By(notSameDir(c.Paths.SourceDir, "paths.source_dir"))),
		"paths.log_dir":       validation.Validate(c.Paths.LogDir, validation.Required),
	}.Filter()
}

func (c *Config) validateWorkflow() error {
	return validation.Errors{
		"workflow.workers":              validation.Validate(c.Workflow.Workers, validation.Required, validation.Min(1), validation.Max(64)),
		"workflow.course_timeout":       validation.Validate(c.Workflow.CourseTimeout, validation.Min(0)),
		"workflow.watch_settle_seconds": validation.Validate(c.Workflow.WatchSettleSeconds, validation.Required, validation.Min(1)),
	}.Filter()
}

func (c *Config) validateImaging() error {
	return validation.Errors{
		"imaging.encoder": validation.Validate(c.Imaging.Encoder,
			validation.Required, validation.In(EncoderAuto, EncoderMagick, EncoderNative)),
		"imaging.magick_binary": validation.Validate(c.Imaging.MagickBinary, validation.Required),
	}.Filter()
}

func (c *Config) validateScan() error {
	for _, pattern := range c.Scan.KeepPatterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("scan.keep_patterns: invalid pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// notSameDir rejects a temporary directory that would clobber the input directory
// when a course workspace is cleared.
func notSameDir(other, otherKey string) validation.RuleFunc {
	return func(value any) error {
		dir, _ := value.(string)
		if dir != "" && filepath.Clean(dir) == filepath.Clean(other) {
			return fmt.Errorf("must differ from %s", otherKey)
		}
		return nil
	}
}
