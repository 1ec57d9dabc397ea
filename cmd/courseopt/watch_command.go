package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"courseopt/internal/batch"
	"courseopt/internal/report"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var workers int
	var skipUnchanged bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Optimize archives as they arrive in the source directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg, workers, skipUnchanged)
			a, err := ctx.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			runner := batch.NewRunner(a.pipeline, a.cfg.Workflow.Workers, a.logger)
			settle := time.Duration(a.cfg.Workflow.WatchSettleSeconds) * time.Second
			watcher := batch.NewWatcher(runner, a.cfg.Paths.SourceDir, settle, a.logger)

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", a.cfg.Paths.SourceDir)
			started := time.Now()
			return watcher.Watch(cmd.Context(), func(reports report.Batch) {
				_ = printBatch(cmd, reports, false)
				a.notify(cmd.Context(), reports, time.Since(started), true)
				started = time.Now()
			})
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Courses processed in parallel (default from config)")
	cmd.Flags().BoolVar(&skipUnchanged, "skip-unchanged", false, "Skip archives unchanged since their last successful run")
	return cmd
}
