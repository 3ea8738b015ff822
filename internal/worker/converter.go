// Package worker converts the rasters named by one job request and reports
// a per-item result for each.
package worker

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/raster-cog-converter/internal/gdal"
	"github.com/fpang/raster-cog-converter/internal/metrics"
	"github.com/fpang/raster-cog-converter/internal/naming"
	"github.com/fpang/raster-cog-converter/internal/objstore"
)

// Upload metadata keys.
const (
	MetaSourceKey   = "source-key"
	MetaCompression = "cog-compression"
	cogContentType  = "image/tiff"
)

// Options configure a Converter.
type Options struct {
	DestPrefix  string
	Compression string
	Overwrite   bool
	NamingRule  naming.Rule
	// TempDir holds per-item scratch directories; empty uses os.TempDir.
	TempDir string
	// EmitMetrics writes EMF lines for every item and batch.
	EmitMetrics bool
}

// Converter runs the per-item pipeline. Items are processed one at a time.
type Converter struct {
	store     objstore.Store
	transcode gdal.Transcoder
	inspect   gdal.Inspector
	opts      Options
	derive    naming.Deriver
}

// New returns a Converter.
func New(store objstore.Store, transcoder gdal.Transcoder, inspector gdal.Inspector, opts Options) *Converter {
	return &Converter{
		store:     store,
		transcode: transcoder,
		inspect:   inspector,
		opts:      opts,
		derive:    naming.Deriver{Prefix: opts.DestPrefix, Rule: opts.NamingRule},
	}
}

// Run converts keys in order. One item's failure never stops the next.
func (c *Converter) Run(ctx context.Context, keys []string) (*BatchOutcome, error) {
	if len(keys) == 0 {
		return nil, ErrNoRequest
	}
	start := time.Now()
	outcome := &BatchOutcome{Failures: []Failure{}}
	for i, key := range keys {
		log.Info().Int("item", i+1).Int("of", len(keys)).Str("sourceKey", key).Msg("Converting")
		outcome.Add(c.Convert(ctx, key))
	}

	log.Info().
		Int("total", outcome.Total).
		Int("succeeded", outcome.Succeeded).
		Int("skipped", outcome.Skipped).
		Int("failed", outcome.Failed).
		Str("kind", outcome.Kind()).
		Dur("elapsed", time.Since(start)).
		Msg("Batch complete")
	if c.opts.EmitMetrics {
		metrics.New(metrics.Namespace).
			Metric("BatchItems", float64(outcome.Total), metrics.UnitCount).
			Metric("BatchFailures", float64(outcome.Failed), metrics.UnitCount).
			Metric("BatchMs", float64(time.Since(start).Milliseconds()), metrics.UnitMilliseconds).
			Flush()
	}
	return outcome, nil
}

// Convert runs one source key to a terminal state. Scratch files are
// removed on every path, including a panic inside a stage.
func (c *Converter) Convert(ctx context.Context, sourceKey string) (res ConversionResult) {
	start := time.Now()
	res = ConversionResult{SourceKey: sourceKey, DestKey: c.derive.Key(sourceKey)}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("sourceKey", sourceKey).Interface("panic", p).Bytes("stack", debug.Stack()).Msg("Conversion panicked")
			res.fail(StageInternal, fmt.Errorf("panic: %v", p))
		}
		res.DurationMs = time.Since(start).Milliseconds()
		c.logResult(res)
	}()

	if !c.opts.Overwrite {
		exists, err := c.store.Exists(ctx, res.DestKey)
		if err != nil {
			res.fail(StageIdempotency, err)
			return res
		}
		if exists {
			res.Success = true
			res.Skipped = true
			return res
		}
	}

	dir, err := os.MkdirTemp(c.opts.TempDir, "cog-*")
	if err != nil {
		res.fail(StageInternal, fmt.Errorf("create scratch dir: %w", err))
		return res
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("Failed to remove scratch dir")
		}
	}()

	srcPath := filepath.Join(dir, "source"+strings.ToLower(path.Ext(sourceKey)))
	n, err := c.store.Download(ctx, sourceKey, srcPath)
	if err != nil {
		res.fail(StageDownload, err)
		return res
	}
	res.SourceBytes = n

	res.SourceCRS, err = c.inspect.CRS(ctx, srcPath)
	if err != nil {
		res.fail(StageSourceCRS, err)
		return res
	}
	if res.SourceCRS == "" {
		res.fail(StageSourceCRS, fmt.Errorf("%w: %s has no coordinate reference system", ErrMissingCRS, sourceKey))
		return res
	}

	dstPath := filepath.Join(dir, "cog.tif")
	if err := c.transcode.Transcode(ctx, srcPath, dstPath, c.opts.Compression); err != nil {
		res.fail(StageTranscode, err)
		return res
	}

	report, err := c.inspect.Inspect(ctx, dstPath)
	if err != nil {
		res.fail(StageOutputCRS, err)
		return res
	}
	res.OutputCRS = report.CRS()
	res.OutputDriver = report.Driver
	res.Tiled = report.Tiled
	res.HasOverviews = report.HasOverviews
	if res.OutputCRS == "" {
		res.fail(StageOutputCRS, fmt.Errorf("%w: output lost the source CRS %s", ErrMissingCRS, res.SourceCRS))
		return res
	}
	if res.OutputCRS != res.SourceCRS {
		res.fail(StageOutputCRS, fmt.Errorf("%w: source %s, output %s", ErrCRSMismatch, res.SourceCRS, res.OutputCRS))
		return res
	}

	if info, err := os.Stat(dstPath); err == nil {
		res.OutputBytes = info.Size()
	}

	err = c.store.Upload(ctx, res.DestKey, dstPath, objstore.UploadOptions{
		ContentType: cogContentType,
		Metadata: map[string]string{
			MetaSourceKey:   sourceKey,
			MetaCompression: c.opts.Compression,
		},
	})
	if err != nil {
		res.fail(StageUpload, err)
		return res
	}

	res.Success = true
	return res
}

func (c *Converter) logResult(res ConversionResult) {
	switch {
	case !res.Success:
		log.Error().
			Str("sourceKey", res.SourceKey).
			Str("destKey", res.DestKey).
			Str("stage", string(res.Stage)).
			Str("error", res.Error).
			Int64("durationMs", res.DurationMs).
			Msg("Conversion failed")
	case res.Skipped:
		log.Info().Str("sourceKey", res.SourceKey).Str("destKey", res.DestKey).Msg("Already converted, skipping")
	default:
		log.Info().
			Str("sourceKey", res.SourceKey).
			Str("destKey", res.DestKey).
			Str("crs", res.SourceCRS).
			Str("driver", res.OutputDriver).
			Bool("tiled", res.Tiled).
			Bool("hasOverviews", res.HasOverviews).
			Int64("sourceBytes", res.SourceBytes).
			Int64("outputBytes", res.OutputBytes).
			Float64("compressionRatio", res.CompressionRatio()).
			Int64("durationMs", res.DurationMs).
			Msg("Conversion complete")
	}

	if !c.opts.EmitMetrics {
		return
	}
	rec := metrics.New(metrics.Namespace).
		Dimension("Compression", c.opts.Compression).
		Property("sourceKey", res.SourceKey).
		Metric("ConversionMs", float64(res.DurationMs), metrics.UnitMilliseconds)
	switch {
	case !res.Success:
		rec.Dimension("Stage", string(res.Stage)).Count("Failures")
	case res.Skipped:
		rec.Count("Skipped")
	default:
		rec.Count("Conversions").
			Metric("SourceBytes", float64(res.SourceBytes), metrics.UnitBytes).
			Metric("OutputBytes", float64(res.OutputBytes), metrics.UnitBytes)
	}
	rec.Flush()
}
