package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/fpang/raster-cog-converter/internal/config"
	"github.com/fpang/raster-cog-converter/internal/gdal"
	"github.com/fpang/raster-cog-converter/internal/inventory"
	"github.com/fpang/raster-cog-converter/internal/objstore"
	"github.com/fpang/raster-cog-converter/internal/worker"
)

// errForeignBucket rejects payloads naming a bucket other than S3_BUCKET.
var errForeignBucket = errors.New("bucket is not the configured bucket")

// Response is returned to the invoker.
type Response = worker.InvocationResponse

type converterHandler struct {
	settings   *config.Settings
	store      objstore.Store
	transcoder gdal.Transcoder
	inspector  gdal.Inspector
	notifier   worker.Notifier
	filter     inventory.Filter
	now        func() time.Time
}

// Handle converts the keys named by payload. Item failures are reported in
// the response; only an unusable payload returns an error.
func (h *converterHandler) Handle(ctx context.Context, payload json.RawMessage) (Response, error) {
	inv, err := worker.ParseInvocation(payload)
	if err != nil {
		return Response{}, err
	}
	for _, b := range inv.Buckets() {
		if b != h.settings.Bucket {
			return Response{}, fmt.Errorf("%w: %q", errForeignBucket, b)
		}
	}

	opts := inv.Params().Apply(worker.Options{
		DestPrefix:  h.settings.COGPrefix,
		Compression: h.settings.Compression,
		Overwrite:   h.settings.Overwrite,
		NamingRule:  h.settings.NamingRule,
		TempDir:     h.settings.TempDir,
		EmitMetrics: true,
	})
	if !config.ValidCompression(opts.Compression) {
		return Response{}, fmt.Errorf("%w: compression %q", worker.ErrBadInvocation, opts.Compression)
	}
	if opts.DestPrefix == h.settings.SourcePrefix {
		return Response{}, fmt.Errorf("%w: dest_prefix %q", config.ErrSamePrefix, opts.DestPrefix)
	}
	conv := worker.New(h.store, h.transcoder, h.inspector, opts)

	if req, ok := inv.(worker.ConvertRequest); ok {
		res := conv.Convert(ctx, req.SourceKey)
		return Response{Message: resultMessage(res), Result: &res}, nil
	}

	keys := inv.Keys()
	if _, ok := inv.(worker.S3Notification); ok {
		keys = lo.Filter(keys, func(k string, _ int) bool {
			return strings.HasPrefix(k, h.settings.SourcePrefix) && h.filter.Match(k)
		})
		if len(keys) == 0 {
			log.Info().Int("records", len(inv.Keys())).Msg("No matching rasters in notification")
			return Response{Message: "no matching rasters"}, nil
		}
	}

	outcome, err := conv.Run(ctx, keys)
	if err != nil {
		return Response{}, err
	}
	worker.Notify(ctx, h.notifier, worker.CompletionEvent("lambda", requestID(ctx), "", outcome, h.now()))
	return Response{
		Message: fmt.Sprintf("%s: %d succeeded, %d skipped, %d failed of %d",
			outcome.Kind(), outcome.Succeeded, outcome.Skipped, outcome.Failed, outcome.Total),
		Outcome: outcome,
	}, nil
}

func resultMessage(res worker.ConversionResult) string {
	switch {
	case !res.Success:
		return fmt.Sprintf("conversion failed at %s", res.Stage)
	case res.Skipped:
		return "already converted"
	default:
		return "converted"
	}
}

func requestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return lc.AwsRequestID
	}
	return ""
}
