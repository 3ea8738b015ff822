package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/raster-cog-converter/internal/cli"
	"github.com/fpang/raster-cog-converter/internal/config"
	"github.com/fpang/raster-cog-converter/internal/inventory"
	"github.com/fpang/raster-cog-converter/internal/worker"
)

// Result files written to OUTPUT_DIR by Lambda-driven conversions.
const (
	completedFile = "completed_conversions.txt"
	failedFile    = "failed_conversions.txt"
)

var errNoResult = errors.New("conversion response has no result")

func convertRequest(s *config.Settings, key string) worker.ConvertRequest {
	prefix, compression, overwrite := s.COGPrefix, s.Compression, s.Overwrite
	return worker.ConvertRequest{
		RequestOptions: worker.RequestOptions{
			SourceBucket: s.Bucket,
			DestBucket:   s.Bucket,
			DestPrefix:   &prefix,
			Compression:  &compression,
			Overwrite:    &overwrite,
		},
		SourceKey: key,
	}
}

// invokeConvert converts one key through the Lambda and returns its result.
func invokeConvert(ctx context.Context, inv invoker, s *config.Settings, key string) (worker.ConversionResult, error) {
	payload, err := json.Marshal(convertRequest(s, key))
	if err != nil {
		return worker.ConversionResult{}, err
	}
	body, err := inv.InvokeSync(ctx, payload)
	if err != nil {
		return worker.ConversionResult{}, err
	}
	var resp worker.InvocationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return worker.ConversionResult{}, fmt.Errorf("decode conversion response: %w", err)
	}
	if resp.Result == nil {
		return worker.ConversionResult{}, fmt.Errorf("%w: %s", errNoResult, resp.Message)
	}
	return *resp.Result, nil
}

// resultFiles appends each conversion to the completed or failed list.
type resultFiles struct {
	completed string
	failed    string
}

func newResultFiles(dir string) resultFiles {
	return resultFiles{completed: filepath.Join(dir, completedFile), failed: filepath.Join(dir, failedFile)}
}

func (f resultFiles) reset() error {
	if err := cli.Truncate(f.completed); err != nil {
		return err
	}
	return cli.Truncate(f.failed)
}

// record returns the failure reason, or "" when the conversion succeeded.
func (f resultFiles) record(key string, res worker.ConversionResult, invokeErr error) string {
	reason := res.Error
	if invokeErr != nil {
		reason = invokeErr.Error()
	}
	var err error
	if invokeErr == nil && res.Success {
		err = cli.AppendLine(f.completed, key)
	} else {
		err = cli.AppendLine(f.failed, key+"\t"+reason)
	}
	if err != nil {
		log.Warn().Err(err).Str("sourceKey", key).Msg("Failed to record conversion result")
	}
	if invokeErr == nil && res.Success {
		return ""
	}
	return reason
}

func newConvertOneCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "convert-one <source-key>",
		Short: "Convert one raster synchronously through the conversion Lambda",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load(cmd)
			if err != nil {
				return err
			}
			key := args[0]
			if e.settings.DryRun {
				fmt.Fprintf(e.out, "[DRY RUN] Would invoke %s for: %s\n", e.settings.LambdaFunction, key)
				return nil
			}

			res, invokeErr := invokeConvert(cmd.Context(), e.invoker, e.settings, key)
			if reason := newResultFiles(e.settings.OutputDir).record(key, res, invokeErr); reason != "" {
				fmt.Fprintf(e.out, "Failed to convert: %s - %s\n", key, reason)
				return runFailure(fmt.Errorf("convert %s: %s", key, reason))
			}
			if res.Skipped {
				fmt.Fprintf(e.out, "Already converted: %s -> %s\n", key, res.DestKey)
			} else {
				fmt.Fprintf(e.out, "Successfully converted: %s -> %s (via %s)\n", key, res.DestKey, e.invoker.Function())
			}
			return nil
		},
	}
}

func newConvertCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "convert",
		Short: "Convert every pending raster one at a time through the conversion Lambda",
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
			if len(inv.Pending) == 0 {
				fmt.Fprintln(e.out, "No rasters pending conversion")
				return nil
			}

			if e.settings.DryRun {
				fmt.Fprintf(e.out, "[DRY RUN] Would convert %d rasters:\n", len(inv.Pending))
				keys := make([]string, len(inv.Pending))
				for i, o := range inv.Pending {
					keys[i] = fmt.Sprintf("%s (%d bytes)", o.Key, o.Size)
				}
				cli.Preview(e.out, keys, dryRunPreview)
				return nil
			}

			files := newResultFiles(e.settings.OutputDir)
			if err := files.reset(); err != nil {
				return runFailure(err)
			}
			var failed int
			for i, o := range inv.Pending {
				log.Info().Int("item", i+1).Int("of", len(inv.Pending)).Str("sourceKey", o.Key).Msg("Converting")
				res, invokeErr := invokeConvert(cmd.Context(), e.invoker, e.settings, o.Key)
				if reason := files.record(o.Key, res, invokeErr); reason != "" {
					failed++
					log.Error().Str("sourceKey", o.Key).Str("error", reason).Msg("Conversion failed")
				}
			}

			fmt.Fprintf(e.out, "Conversion complete: %d succeeded, %d failed\n", len(inv.Pending)-failed, failed)
			if failed > 0 {
				return runFailure(fmt.Errorf("%d of %d conversions failed", failed, len(inv.Pending)))
			}
			return nil
		},
	}
}
