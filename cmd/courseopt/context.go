package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"courseopt/internal/config"
	"courseopt/internal/history"
	"courseopt/internal/logging"
	"courseopt/internal/notifications"
	"courseopt/internal/pipeline"
	"courseopt/internal/report"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config, c.configPath, c.configSeen = cfg, resolved, exists
	})
	return c.config, c.configErr
}

// app bundles what processing commands share. close must be called.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	history  *history.Store
	pipeline *pipeline.Pipeline
	notifier notifications.Service
}

func (c *commandContext) newApp(ctx context.Context) (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, notifier: notifications.NewService(cfg)}

	var opts []pipeline.Option
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			logging.WarnWithContext(logger, "history unavailable", "history_open_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "runs are not recorded and skip_unchanged is inactive"),
			)
		} else {
			a.history = store
			opts = append(opts, pipeline.WithHistory(store))
		}
	}
	p, err := pipeline.New(cfg, logger, opts...)
	if err != nil {
		_ = a.close()
		return nil, err
	}
	a.pipeline = p

	removed := logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.DefaultRetentionTargets(cfg.Paths.LogDir, cfg.ApplicationLogPath())...)
	if removed > 0 {
		logger.Debug("old logs pruned", logging.Int("removed", removed))
	}
	if a.history != nil && cfg.Logging.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -cfg.Logging.RetentionDays)
		if n, err := a.history.Prune(ctx, cutoff); err != nil {
			logging.WarnWithContext(logger, "history prune failed", "history_prune_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "old runs remain in the history database"),
			)
		} else if n > 0 {
			logger.Debug("old runs pruned", logging.Int64("removed", n))
		}
	}
	return a, nil
}

// notify publishes a batch outcome. Delivery failures only warn.
func (a *app) notify(ctx context.Context, reports report.Batch, elapsed time.Duration, perCourse bool) {
	if perCourse {
		for _, c := range reports {
			if !c.Failed() {
				continue
			}
			if err := a.notifier.NotifyCourseFailed(ctx, c); err != nil {
				a.warnNotify(err)
			}
		}
	}
	if err := a.notifier.NotifyBatchCompleted(ctx, reports, elapsed); err != nil {
		a.warnNotify(err)
	}
}

func (a *app) warnNotify(err error) {
	logging.WarnWithContext(a.logger, "notification failed", "notification_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		logging.String(logging.FieldImpact, "batch outcome was not delivered"),
	)
}

func (a *app) close() error {
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
