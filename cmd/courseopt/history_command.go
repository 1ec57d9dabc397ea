package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"courseopt/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var course string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent course runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return errors.New("history is disabled in the configuration")
			}
			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Recent(cmd.Context(), course, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, runs)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				status := string(run.Status)
				if run.FailureKind != "" {
					status += " (" + string(run.FailureKind) + ")"
				}
				rows = append(rows, []string{
					run.FinishedAt.Local().Format(time.DateTime),
					run.CourseID,
					status,
					strconv.Itoa(run.Removed),
					strconv.Itoa(run.Transcoded),
					humanize.Bytes(uint64(max(run.BytesIn, 0))),
					humanize.Bytes(uint64(max(run.BytesOut, 0))),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Finished", "Course", "Status", "Removed", "Images", "In", "Out"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().StringVar(&course, "course", "", "Only show runs of this course id")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print runs as JSON")
	return cmd
}
