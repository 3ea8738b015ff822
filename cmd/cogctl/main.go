// Command cogctl is the operator CLI for raster to COG conversion.
//
// It inventories the source and destination prefixes, submits pending work
// to AWS Batch as manifest-backed chunks, tracks the submitted jobs, and
// can convert individual rasters through the conversion Lambda.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/raster-cog-converter/internal/awsboot"
	"github.com/fpang/raster-cog-converter/internal/config"
	"github.com/fpang/raster-cog-converter/internal/jobqueue"
	"github.com/fpang/raster-cog-converter/internal/logging"
	"github.com/fpang/raster-cog-converter/internal/objstore"
	"github.com/fpang/raster-cog-converter/internal/tracking"
	"github.com/fpang/raster-cog-converter/internal/worker"
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func configError(err error) error { return &exitError{code: worker.ExitConfig, err: err} }

func runFailure(err error) error { return &exitError{code: worker.ExitFailure, err: err} }

// invoker calls the conversion Lambda synchronously.
type invoker interface {
	InvokeSync(ctx context.Context, payload []byte) ([]byte, error)
	Function() string
}

// logTailer reads the end of a job's log stream.
type logTailer interface {
	Tail(ctx context.Context, stream string, n int) ([]string, error)
}

// env is everything a subcommand needs. Remote clients are built from the
// loaded settings; tests substitute in-process fakes.
type env struct {
	settings *config.Settings
	store    objstore.Store
	queue    jobqueue.Queue
	tracker  tracking.Tracker
	invoker  invoker
	logs     logTailer
	in       io.Reader
	out      io.Writer
	now      func() time.Time
}

// newEnv builds the production env. Replaced in tests.
var newEnv = func(ctx context.Context, s *config.Settings) (*env, error) {
	clients, err := awsboot.Load(ctx, s)
	if err != nil {
		return nil, err
	}
	return &env{
		settings: s,
		store:    clients.Store(),
		queue:    clients.Queue(),
		tracker:  clients.Tracker(),
		invoker:  clients.Invoker(),
		logs:     clients.LogTail(),
		in:       os.Stdin,
		out:      os.Stdout,
		now:      time.Now,
	}, nil
}

// settingFlags maps persistent flags to the setting keys they override.
var settingFlags = map[string]string{
	"bucket":         "s3_bucket",
	"region":         "aws_region",
	"source-prefix":  "source_prefix",
	"cog-prefix":     "cog_prefix",
	"compression":    "compression",
	"chunk-size":     "chunk_size",
	"overwrite":      "overwrite",
	"dry-run":        "dry_run",
	"filter":         "filename_filter",
	"category":       "category_filter",
	"naming-rule":    "naming_rule",
	"output-dir":     "output_dir",
	"job-queue":      "job_queue",
	"job-definition": "job_definition",
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "cogctl",
		Short: "Convert raster collections in S3 to Cloud Optimized GeoTIFFs",
		Long: `cogctl reconciles the rasters under SOURCE_PREFIX with the COGs under
COG_PREFIX and drives the conversion of whatever is missing.

Settings come from cog.yaml, .env and the environment; flags override them.

Examples:
  cogctl status --bucket my-bucket
  cogctl submit --dry-run
  cogctl submit --chunk-size 100 --yes
  cogctl jobs --logs 20
  cogctl convert-one cartodb_exports/rasters/public_rain.tif`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML settings file (default ./cog.yaml or ./configs/cog.yaml)")
	pf.String("bucket", "", "S3 bucket holding source and converted rasters")
	pf.String("region", "", "AWS region")
	pf.String("source-prefix", "", "Prefix of the source rasters")
	pf.String("cog-prefix", "", "Prefix for converted COGs")
	pf.String("compression", "", "COG compression codec (LZW, DEFLATE, ZSTD, JPEG, WEBP, NONE)")
	pf.Int("chunk-size", 0, "Rasters per Batch job")
	pf.Bool("overwrite", false, "Reconvert rasters whose COG already exists")
	pf.Bool("dry-run", false, "Show what would be done without doing it")
	pf.String("filter", "", "Regular expression the source basename must match")
	pf.String("category", "", "Filename category: all, public or cdb_importer")
	pf.String("naming-rule", "", "Derived name rule: strip-prefix or cog-suffix")
	pf.String("output-dir", "", "Directory for snapshots, tracking and result files")
	pf.String("job-queue", "", "AWS Batch job queue")
	pf.String("job-definition", "", "AWS Batch job definition")

	load := func(cmd *cobra.Command) (*env, error) {
		overrides := map[string]any{}
		for flag, key := range settingFlags {
			if cmd.Flags().Changed(flag) {
				overrides[key] = cmd.Flags().Lookup(flag).Value.String()
			}
		}
		s, err := config.Load(config.LoadOptions{ConfigPath: configPath, Overrides: overrides})
		if err != nil {
			return nil, configError(err)
		}
		if err := s.Validate(); err != nil {
			return nil, configError(err)
		}
		e, err := newEnv(cmd.Context(), s)
		if err != nil {
			return nil, configError(err)
		}
		return e, nil
	}

	root.AddCommand(
		newListCmd(load),
		newStatusCmd(load),
		newSubmitCmd(load),
		newJobsCmd(load),
		newConvertOneCmd(load),
		newConvertCmd(load),
	)
	return root
}

// loader resolves settings and clients for a subcommand.
type loader func(cmd *cobra.Command) (*env, error)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:]))
}

func execute(ctx context.Context, args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return worker.ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		log.Error().Err(ee.err).Msg("cogctl failed")
		return ee.code
	}
	// Usage errors from cobra itself.
	fmt.Fprintln(os.Stderr, "Error:", err)
	return worker.ExitConfig
}
