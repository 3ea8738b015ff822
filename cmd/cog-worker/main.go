// Command cog-worker is the AWS Batch container entry point. It converts
// the rasters named by TIFF_KEYS or MANIFEST_KEY and exits non-zero if any
// of them failed.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/raster-cog-converter/internal/awsboot"
	"github.com/fpang/raster-cog-converter/internal/config"
	"github.com/fpang/raster-cog-converter/internal/gdal"
	"github.com/fpang/raster-cog-converter/internal/logging"
	"github.com/fpang/raster-cog-converter/internal/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	initStart := time.Now()
	logging.Init()

	ctx := context.Background()

	s, err := config.Load(config.LoadOptions{})
	if err == nil {
		err = s.Validate()
	}
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return worker.ExitConfig
	}
	if err := gdal.CheckAvailable(gdal.TranslateBinary, gdal.InfoBinary); err != nil {
		log.Error().Err(err).Msg("GDAL is not installed")
		return worker.ExitConfig
	}

	clients, err := awsboot.Load(ctx, s)
	if err != nil {
		log.Error().Err(err).Msg("AWS setup failed")
		return worker.ExitConfig
	}
	store := clients.Store()

	awsboot.StartupLog("cog-worker", s, initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		Config("manifestKey", s.ManifestKey).
		Config("transcodeTimeout", s.TranscodeTimeout.String()).
		Log()

	req := worker.RequestFromSettings(s)
	keys, err := req.Resolve(ctx, store)
	if err != nil {
		log.Error().Err(err).Msg("Cannot load work request")
		if errors.Is(err, worker.ErrNoRequest) {
			return worker.ExitConfig
		}
		return worker.ExitFailure
	}

	conv := worker.New(store,
		gdal.Translate{Timeout: s.TranscodeTimeout},
		gdal.Info{Timeout: s.RequestTimeout},
		worker.Options{
			DestPrefix:  s.COGPrefix,
			Compression: s.Compression,
			Overwrite:   s.Overwrite,
			NamingRule:  s.NamingRule,
			TempDir:     s.TempDir,
			EmitMetrics: true,
		})

	outcome, err := conv.Run(ctx, keys)
	if err != nil {
		log.Error().Err(err).Msg("Worker run failed")
		return worker.ExitFailure
	}

	reportCtx, cancel := context.WithTimeout(ctx, s.RequestTimeout)
	defer cancel()
	if req.UsesManifest() {
		if err := worker.WriteReport(reportCtx, store, req.ManifestKey, outcome); err != nil {
			log.Warn().Err(err).Msg("Failed to write batch report")
		}
	}
	worker.Notify(reportCtx, clients.Notifier(),
		worker.CompletionEvent("batch", os.Getenv("AWS_BATCH_JOB_ID"), s.ManifestKey, outcome, time.Now()))

	outcome.WriteSummary(os.Stdout)
	return outcome.ExitCode()
}
