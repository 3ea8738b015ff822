package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fpang/raster-cog-converter/internal/inventory"
)

func newListCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the source rasters that pass the filters",
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
			source, err := rec.ListSource(cmd.Context())
			if err != nil {
				return runFailure(err)
			}

			fmt.Fprintln(e.out, len(source))
			fmt.Fprintf(e.out, "\nRaw rasters listed in: %s\n", filepath.Join(e.settings.OutputDir, inventory.RawSnapshot))
			if len(source) == 0 {
				return nil
			}
			fmt.Fprintln(e.out, "\nFirst 10 entries:")
			for i, o := range source {
				if i == 10 {
					break
				}
				fmt.Fprintf(e.out, "  %s\t%d\n", o.Key, o.Size)
			}
			return nil
		},
	}
}
