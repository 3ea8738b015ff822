// Package main provides the Lambda entry point for raster conversion.
//
// The function accepts three payload shapes: a single {"source_key": ...}
// request (used by `cogctl convert-one`), a {"batch": [...]} request, and
// S3 ObjectCreated notifications for new rasters under SOURCE_PREFIX.
// Items are converted sequentially with the Lambda transcode timeout.
//
// Container: GDAL base image with /tmp sized for the largest expected raster.
package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/raster-cog-converter/internal/awsboot"
	"github.com/fpang/raster-cog-converter/internal/config"
	"github.com/fpang/raster-cog-converter/internal/gdal"
	"github.com/fpang/raster-cog-converter/internal/inventory"
	"github.com/fpang/raster-cog-converter/internal/logging"
)

var (
	app       *converterHandler
	coldStart = true
)

// setup runs once per cold start, before the first invocation.
func setup() {
	initStart := time.Now()
	logging.Init()

	s, err := config.Load(config.LoadOptions{})
	if err == nil {
		err = s.Validate()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if err := gdal.CheckAvailable(gdal.TranslateBinary, gdal.InfoBinary); err != nil {
		log.Fatal().Err(err).Msg("GDAL is not installed")
	}
	filter, err := inventory.FilterFromSettings(s)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid source filter")
	}

	clients, err := awsboot.Load(context.Background(), s)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}

	app = &converterHandler{
		settings:   s,
		store:      clients.Store(),
		transcoder: gdal.Translate{Timeout: s.LambdaTranscodeTimeout},
		inspector:  gdal.Info{Timeout: s.RequestTimeout},
		notifier:   clients.Notifier(),
		filter:     filter,
		now:        time.Now,
	}

	awsboot.StartupLog("cog-lambda", s, initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		Config("transcodeTimeout", s.LambdaTranscodeTimeout.String()).
		Log()
}

func handler(ctx context.Context, payload json.RawMessage) (Response, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "cog-lambda").Msg("Cold start, first invocation")
	}
	start := time.Now()
	resp, err := app.Handle(ctx, payload)
	if err != nil {
		log.Error().Err(err).RawJSON("payload", payload).Msg("Rejected invocation")
		return resp, err
	}
	log.Info().Str("message", resp.Message).Dur("duration", time.Since(start)).Msg("Invocation complete")
	return resp, nil
}

func main() {
	setup()
	lambda.Start(handler)
}
