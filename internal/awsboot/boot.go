// Package awsboot builds the AWS clients every binary needs from one
// validated Settings value, so each main is a short composition of helpers.
package awsboot

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/fpang/raster-cog-converter/internal/config"
	"github.com/fpang/raster-cog-converter/internal/events"
	"github.com/fpang/raster-cog-converter/internal/jobqueue"
	"github.com/fpang/raster-cog-converter/internal/logging"
	"github.com/fpang/raster-cog-converter/internal/objstore"
	"github.com/fpang/raster-cog-converter/internal/status"
	"github.com/fpang/raster-cog-converter/internal/tracking"
	"github.com/fpang/raster-cog-converter/internal/worker"
)

// Clients builds service clients from one shared AWS config.
type Clients struct {
	Config   aws.Config
	settings *config.Settings
}

// Load resolves AWS credentials and region. The configured region wins
// over the SDK's default chain.
func Load(ctx context.Context, s *config.Settings) (*Clients, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if s.Region != "" {
		opts = append(opts, awsconfig.WithRegion(s.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return &Clients{Config: cfg, settings: s}, nil
}

// Store returns the S3 object store for the configured bucket.
func (c *Clients) Store() *objstore.S3Store {
	return objstore.NewS3Store(s3.NewFromConfig(c.Config), c.settings.Bucket, objstore.Timeouts{
		Request:  c.settings.RequestTimeout,
		Transfer: c.settings.TransferTimeout,
	})
}

// Queue returns the Batch job queue. Call Settings.RequireQueue first.
func (c *Clients) Queue() *jobqueue.BatchQueue {
	return jobqueue.NewBatchQueue(batch.NewFromConfig(c.Config), c.settings.JobQueue, c.settings.JobDefinition,
		c.settings.JobAttempts, c.settings.RequestTimeout)
}

// Invoker returns the synchronous conversion Lambda invoker. Its timeout
// covers a full Lambda-side conversion.
func (c *Clients) Invoker() *jobqueue.LambdaInvoker {
	return jobqueue.NewLambdaInvoker(lambdasvc.NewFromConfig(c.Config), c.settings.LambdaFunction,
		c.settings.LambdaTranscodeTimeout+c.settings.TransferTimeout)
}

// Tracker returns the local tracking file, mirrored to DynamoDB when
// JOBS_TABLE is set.
func (c *Clients) Tracker() tracking.Tracker {
	file := tracking.NewFileTracker(c.settings.OutputDir)
	if c.settings.JobsTable == "" {
		return file
	}
	mirror := tracking.NewDynamoTracker(dynamodb.NewFromConfig(c.Config), c.settings.JobsTable, c.settings.JobNamePrefix)
	return tracking.MirroredTracker{Primary: file, Secondary: mirror}
}

// LogTail returns a reader for Batch job log streams.
func (c *Clients) LogTail() *status.LogTail {
	return status.NewLogTail(cloudwatchlogs.NewFromConfig(c.Config), c.settings.BatchLogGroup, c.settings.RequestTimeout)
}

// Notifier returns the EventBridge publisher, or nil when EVENT_BUS is unset.
func (c *Clients) Notifier() worker.Notifier {
	if c.settings.EventBus == "" {
		return nil
	}
	return events.NewPublisher(eventbridge.NewFromConfig(c.Config), c.settings.EventBus)
}

// StartupLog returns a startup logger pre-filled with the settings every
// binary shares.
func StartupLog(name string, s *config.Settings, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).
		S3Bucket("data", s.Bucket).
		DynamoTable("jobs", s.JobsTable).
		EventBus("events", s.EventBus).
		Feature("overwrite", s.Overwrite).
		Feature("dryRun", s.DryRun).
		Config("sourcePrefix", s.SourcePrefix).
		Config("cogPrefix", s.COGPrefix).
		Config("compression", s.Compression).
		Config("namingRule", string(s.NamingRule)).
		InitDuration(time.Since(initStart))
}
