package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fpang/raster-cog-converter/internal/cli"
	"github.com/fpang/raster-cog-converter/internal/inventory"
)

func newStatusCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show how much of the source set has been converted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load(cmd)
			if err != nil {
				return err
			}
			rec, err := inventory.New(e.store, e.settings)
			if err != nil {
				return configError(err)
			}
			inv, err := rec.Reconcile(cmd.Context())
			if err != nil {
				return runFailure(err)
			}
			sum := inv.Summarize(e.settings.Deriver().Key)

			s := e.settings
			cli.Banner(e.out, "COG Conversion Status")
			fmt.Fprintf(e.out, "Source:      s3://%s/%s\n", s.Bucket, s.SourcePrefix)
			fmt.Fprintf(e.out, "Destination: s3://%s/%s\n", s.Bucket, s.COGPrefix)
			cli.Separator(e.out)
			fmt.Fprintf(e.out, "Total raw rasters:    %8d\n", sum.Total)
			fmt.Fprintf(e.out, "Existing COGs:        %8d\n", sum.Derived)
			fmt.Fprintf(e.out, "Already converted:    %8d\n", sum.Converted)
			fmt.Fprintf(e.out, "Pending conversion:   %8d\n", sum.Pending)
			if sum.Total > 0 {
				fmt.Fprintf(e.out, "Progress:             %7.1f%%\n", sum.Progress())
			}
			if sum.Pending > 0 {
				fmt.Fprintf(e.out, "\nPending data size: %s\n", cli.FormatGiB(sum.PendingBytes))
				fmt.Fprintf(e.out, "Pending list saved to: %s\n", filepath.Join(s.OutputDir, inventory.PendingSnapshot))
			}
			return nil
		},
	}
}
