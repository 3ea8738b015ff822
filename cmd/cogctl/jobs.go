package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/raster-cog-converter/internal/cli"
	"github.com/fpang/raster-cog-converter/internal/status"
)

func newJobsCmd(load loader) *cobra.Command {
	var logLines int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Refresh and show the status of submitted Batch jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			records, err := e.tracker.Load(ctx)
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(e.out, "No tracked jobs, run `cogctl submit` first")
				return nil
			}
			if err != nil {
				return runFailure(err)
			}

			refreshed, refreshErr := status.NewAggregator(e.queue).Refresh(ctx, records)
			if err := e.tracker.Save(ctx, refreshed); err != nil {
				return runFailure(err)
			}

			cli.Banner(e.out, "Batch Jobs")
			cli.JobsTable(e.out, refreshed, e.now())
			fmt.Fprintln(e.out)
			cli.CountsTable(e.out, status.Counts(refreshed))

			if logLines > 0 {
				for _, r := range status.Failed(refreshed) {
					fmt.Fprintf(e.out, "\n--- %s (%s) ---\n", r.JobName, r.JobID)
					lines, err := e.logs.Tail(ctx, r.LogStream, logLines)
					if err != nil {
						log.Warn().Err(err).Str("jobId", r.JobID).Msg("Failed to read job logs")
						fmt.Fprintf(e.out, "  (logs unavailable: %v)\n", err)
						continue
					}
					for _, l := range lines {
						fmt.Fprintf(e.out, "  %s\n", l)
					}
				}
			}

			if refreshErr != nil {
				return runFailure(fmt.Errorf("some job statuses were not refreshed: %w", refreshErr))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&logLines, "logs", 0, "Print the last N log lines of every FAILED job")
	return cmd
}
