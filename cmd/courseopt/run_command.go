package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"courseopt/internal/batch"
	"courseopt/internal/config"
	"courseopt/internal/logging"
	"courseopt/internal/report"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var workers int
	var skipUnchanged bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run [archive...]",
		Short: "Optimize course archives",
		Long: `Optimize the given archives, or every *.tar.gz / *.tgz in the source
directory when none are given. The command exits non-zero when any course
failed; each course still gets its report in the log directory.`,
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

			archives, err := resolveArchives(a.cfg, args)
			if err != nil {
				return err
			}
			if len(archives) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No course archives found in %s\n", a.cfg.Paths.SourceDir)
				return nil
			}

			runner := batch.NewRunner(a.pipeline, a.cfg.Workflow.Workers, a.logger)
			started := time.Now()
			reports := runner.Run(cmd.Context(), archives)
			a.notify(cmd.Context(), reports, time.Since(started), false)
			if err := printBatch(cmd, reports, jsonOutput); err != nil {
				return err
			}
			if err := batch.Err(reports); err != nil {
				a.logger.Error("batch finished with failures", logging.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Courses processed in parallel (default from config)")
	cmd.Flags().BoolVar(&skipUnchanged, "skip-unchanged", false, "Skip archives unchanged since their last successful run")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print course reports as JSON instead of a table")
	return cmd
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config, workers int, skipUnchanged bool) {
	if cmd.Flags().Changed("workers") && workers > 0 {
		cfg.Workflow.Workers = workers
	}
	if cmd.Flags().Changed("skip-unchanged") {
		cfg.Workflow.SkipUnchanged = skipUnchanged
	}
}

func resolveArchives(cfg *config.Config, args []string) ([]string, error) {
	if len(args) == 0 {
		return batch.Discover(cfg.Paths.SourceDir)
	}
	archives := make([]string, 0, len(args))
	for _, arg := range args {
		path, err := config.ExpandPath(arg)
		if err != nil {
			return nil, err
		}
		if !batch.IsArchive(path) {
			return nil, fmt.Errorf("%s is not a .tar.gz or .tgz archive", filepath.Base(path))
		}
		archives = append(archives, path)
	}
	return archives, nil
}

func printBatch(cmd *cobra.Command, reports report.Batch, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(cmd, reports)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, reports.Summary())
	for _, rep := range reports {
		if rep.Failed() {
			fmt.Fprintf(out, "%s: %s\n", rep.CourseID, rep.Error)
		}
	}
	return nil
}
