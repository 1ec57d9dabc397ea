package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names files (a glob inside Dir) subject to age-based pruning.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// DefaultRetentionTargets covers course logs and reports in logDir. The
// application log and the history database are never pruned.
func DefaultRetentionTargets(logDir string, exclude ...string) []RetentionTarget {
	patterns := []string{"*.log", "*.report.json", "*.report.yaml", "*.refused.json", "*.refused.yaml"}
	targets := make([]RetentionTarget, len(patterns))
	for i, p := range patterns {
		targets[i] = RetentionTarget{Dir: logDir, Pattern: p, Exclude: exclude}
	}
	return targets
}

// CleanupOldLogs removes target files last modified more than retentionDays
// ago and returns how many were removed. Zero or negative days disables it.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, target := range targets {
		for _, path := range expired(target, cutoff) {
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check file permissions on log_dir"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			if logger != nil {
				logger.Debug("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
			}
		}
	}
	return removed
}

func expired(target RetentionTarget, cutoff time.Time) []string {
	dir := strings.TrimSpace(target.Dir)
	pattern := strings.TrimSpace(target.Pattern)
	if dir == "" || pattern == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}
	skip := make(map[string]bool, len(target.Exclude))
	for _, ex := range target.Exclude {
		if abs, err := filepath.Abs(strings.TrimSpace(ex)); err == nil && ex != "" {
			skip[abs] = true
		}
	}
	var out []string
	for _, path := range matches {
		if abs, err := filepath.Abs(path); err == nil && skip[abs] {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		out = append(out, path)
	}
	return out
}
