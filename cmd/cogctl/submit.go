package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fpang/raster-cog-converter/internal/cli"
	"github.com/fpang/raster-cog-converter/internal/inventory"
	"github.com/fpang/raster-cog-converter/internal/submit"
	"github.com/fpang/raster-cog-converter/internal/tracking"
)

// dryRunPreview is how many pending keys a dry run prints.
const dryRunPreview = 20

func newSubmitCmd(load loader) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit pending rasters to AWS Batch in manifest-backed chunks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load(cmd)
			if err != nil {
				return err
			}
			s := e.settings
			if !s.DryRun {
				if err := s.RequireQueue(); err != nil {
					return configError(err)
				}
			}

			rec, err := inventory.New(e.store, s)
			if err != nil {
				return configError(err)
			}
			inv, err := rec.Reconcile(cmd.Context())
			if err != nil {
				return runFailure(err)
			}

			sub := submit.New(e.store, e.queue, e.tracker, s)
			plan, err := sub.Plan(inv.Pending)
			if err != nil {
				return configError(err)
			}
			if len(plan.Chunks) == 0 {
				fmt.Fprintln(e.out, "Nothing pending, no jobs to submit")
				return nil
			}

			printPlan(e, plan)
			if s.DryRun {
				fmt.Fprintf(e.out, "\n[DRY RUN] First %d pending rasters:\n", dryRunPreview)
				cli.Preview(e.out, plan.Keys(), dryRunPreview)
				return nil
			}

			if !yes && !cli.Confirm(e.in, e.out, fmt.Sprintf("Submit %d jobs for %d rasters?", len(plan.Chunks), plan.FileCount())) {
				fmt.Fprintln(e.out, "Aborted, nothing submitted")
				return nil
			}

			report, err := sub.Execute(cmd.Context(), plan)
			if err != nil {
				return runFailure(err)
			}
			fmt.Fprintf(e.out, "\nSubmitted %d of %d jobs (run %s)\n", len(report.Records), len(plan.Chunks), plan.RunID)
			if ft, ok := fileTracker(e.tracker); ok {
				fmt.Fprintf(e.out, "Tracking file: %s\n", ft.Path())
			}
			if len(report.Failures) > 0 {
				fmt.Fprintln(e.out, "\nNot submitted:")
				for _, f := range report.Failures {
					fmt.Fprintf(e.out, "  %s\n", f.Error())
				}
				return runFailure(fmt.Errorf("%d of %d chunks failed: %w", len(report.Failures), len(plan.Chunks), report.Err()))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Submit without asking for confirmation")
	return cmd
}

func printPlan(e *env, plan submit.Plan) {
	cli.Banner(e.out, "Submission Plan")
	fmt.Fprintf(e.out, "Rasters: %d in %d chunks of up to %d\n", plan.FileCount(), len(plan.Chunks), e.settings.ChunkSize)
	cli.Separator(e.out)
	for _, c := range plan.Chunks {
		fmt.Fprintf(e.out, "  %4d  %s  %4d files  %10s  %s\n",
			c.Index+1, c.JobName, len(c.Keys), cli.FormatGiB(c.Bytes), c.ManifestKey)
	}
}

func fileTracker(t tracking.Tracker) (*tracking.FileTracker, bool) {
	switch tt := t.(type) {
	case *tracking.FileTracker:
		return tt, true
	case tracking.MirroredTracker:
		return fileTracker(tt.Primary)
	}
	return nil, false
}
