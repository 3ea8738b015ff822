// Package config loads the converter's settings once at startup.
//
// Values come from (lowest to highest precedence) built-in defaults, an
// optional YAML file, a .env file, the process environment, and explicit
// overrides supplied by the caller (CLI flags). The result is a Settings
// value that components receive in their constructors and treat as read-only.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fpang/raster-cog-converter/internal/naming"
)

var (
	// ErrMissingSetting is returned when a required setting is empty.
	ErrMissingSetting = errors.New("required setting is not set")

	// ErrSamePrefix is returned when source and destination prefixes are equal.
	ErrSamePrefix = errors.New("destination prefix must differ from source prefix")

	// ErrInvalidSetting is returned when a setting has an unusable value.
	ErrInvalidSetting = errors.New("invalid setting")
)

// Compression codecs accepted by the COG driver.
var compressionCodecs = []string{"LZW", "DEFLATE", "ZSTD", "JPEG", "WEBP", "NONE"}

// Settings is the complete, validated configuration of one process.
type Settings struct {
	Bucket         string
	Region         string
	SourcePrefix   string
	COGPrefix      string
	ManifestPrefix string

	Compression    string
	ChunkSize      int
	Overwrite      bool
	DryRun         bool
	FilenameFilter string
	Category       naming.Category
	NamingRule     naming.Rule
	Extensions     []string

	JobQueue       string
	JobDefinition  string
	JobNamePrefix  string
	JobAttempts    int
	LambdaFunction string
	JobsTable      string
	EventBus       string
	BatchLogGroup  string

	OutputDir string
	TempDir   string

	RequestTimeout         time.Duration
	TransferTimeout        time.Duration
	TranscodeTimeout       time.Duration
	LambdaTranscodeTimeout time.Duration

	// Worker request: an inline key list wins over a manifest reference.
	TIFFKeys    []string
	ManifestKey string
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// ConfigPath is an explicit YAML file. Empty searches ./cog.yaml and ./configs/cog.yaml.
	ConfigPath string

	// Overrides are applied last, keyed by setting name (e.g. "dry_run").
	Overrides map[string]any
}

// Load reads settings. It does not validate them; call Validate.
func Load(opts LoadOptions) (*Settings, error) {
	_ = godotenv.Load()

	v := viper.New()
	if opts.ConfigPath != "" {
		v.SetConfigFile(opts.ConfigPath)
	} else {
		v.SetConfigName("cog")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for k, val := range opts.Overrides {
		v.Set(k, val)
	}

	rule, err := naming.ParseRule(v.GetString("naming_rule"))
	if err != nil {
		return nil, fmt.Errorf("%w: NAMING_RULE: %v", ErrInvalidSetting, err)
	}
	category, err := naming.ParseCategory(v.GetString("category_filter"))
	if err != nil {
		return nil, fmt.Errorf("%w: CATEGORY_FILTER: %v", ErrInvalidSetting, err)
	}

	s := &Settings{
		Bucket:         strings.TrimSpace(v.GetString("s3_bucket")),
		Region:         v.GetString("aws_region"),
		SourcePrefix:   NormalizePrefix(v.GetString("source_prefix")),
		COGPrefix:      NormalizePrefix(v.GetString("cog_prefix")),
		ManifestPrefix: NormalizePrefix(v.GetString("manifest_prefix")),

		Compression:    strings.ToUpper(strings.TrimSpace(v.GetString("compression"))),
		ChunkSize:      v.GetInt("chunk_size"),
		Overwrite:      v.GetBool("overwrite"),
		DryRun:         v.GetBool("dry_run"),
		FilenameFilter: v.GetString("filename_filter"),
		Category:       category,
		NamingRule:     rule,
		Extensions:     naming.NormalizeExtensions(splitList(v.GetString("extensions"))),

		JobQueue:       v.GetString("job_queue"),
		JobDefinition:  v.GetString("job_definition"),
		JobNamePrefix:  v.GetString("job_name_prefix"),
		JobAttempts:    v.GetInt("job_attempts"),
		LambdaFunction: v.GetString("lambda_function_name"),
		JobsTable:      v.GetString("jobs_table"),
		EventBus:       v.GetString("event_bus"),
		BatchLogGroup:  v.GetString("batch_log_group"),

		OutputDir: v.GetString("output_dir"),
		TempDir:   v.GetString("temp_dir"),

		RequestTimeout:         v.GetDuration("request_timeout"),
		TransferTimeout:        v.GetDuration("transfer_timeout"),
		TranscodeTimeout:       v.GetDuration("transcode_timeout"),
		LambdaTranscodeTimeout: v.GetDuration("lambda_transcode_timeout"),

		TIFFKeys:    splitList(v.GetString("tiff_keys")),
		ManifestKey: strings.TrimSpace(v.GetString("manifest_key")),
	}
	return s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("source_prefix", "cartodb_exports/rasters/")
	v.SetDefault("cog_prefix", "cartodb_exports/cogs/")
	v.SetDefault("manifest_prefix", "cog_manifests/")
	v.SetDefault("compression", "LZW")
	v.SetDefault("chunk_size", 50)
	v.SetDefault("overwrite", false)
	v.SetDefault("dry_run", false)
	v.SetDefault("category_filter", string(naming.CategoryAll))
	v.SetDefault("naming_rule", string(naming.DefaultRule))
	v.SetDefault("extensions", strings.Join(naming.DefaultExtensions, ","))
	v.SetDefault("job_name_prefix", "cog-convert")
	v.SetDefault("job_attempts", 2)
	v.SetDefault("lambda_function_name", "cog-converter")
	v.SetDefault("batch_log_group", "/aws/batch/job")
	v.SetDefault("output_dir", "./cog_status")
	v.SetDefault("request_timeout", time.Minute)
	v.SetDefault("transfer_timeout", 30*time.Minute)
	v.SetDefault("transcode_timeout", time.Hour)
	v.SetDefault("lambda_transcode_timeout", 10*time.Minute)

	// Keys without a default must still be bound so AutomaticEnv sees them
	// and so YAML files can set them.
	for _, k := range []string{
		"s3_bucket", "filename_filter", "job_queue", "job_definition",
		"jobs_table", "event_bus", "temp_dir", "tiff_keys", "manifest_key",
	} {
		_ = v.BindEnv(k)
	}
}

// Validate checks the settings every process needs.
func (s *Settings) Validate() error {
	if s.Bucket == "" {
		return fmt.Errorf("%w: S3_BUCKET", ErrMissingSetting)
	}
	if s.COGPrefix == "" {
		return fmt.Errorf("%w: COG_PREFIX", ErrMissingSetting)
	}
	if s.SourcePrefix == s.COGPrefix {
		return fmt.Errorf("%w: both are %q", ErrSamePrefix, s.SourcePrefix)
	}
	if !ValidCompression(s.Compression) {
		return fmt.Errorf("%w: COMPRESSION %q (want one of %s)", ErrInvalidSetting, s.Compression, strings.Join(compressionCodecs, ", "))
	}
	if s.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive, got %d", ErrInvalidSetting, s.ChunkSize)
	}
	if len(s.Extensions) == 0 {
		return fmt.Errorf("%w: EXTENSIONS is empty", ErrInvalidSetting)
	}
	if s.FilenameFilter != "" {
		if _, err := regexp.Compile(s.FilenameFilter); err != nil {
			return fmt.Errorf("%w: FILENAME_FILTER: %v", ErrInvalidSetting, err)
		}
	}
	if s.RequestTimeout <= 0 || s.TransferTimeout <= 0 || s.TranscodeTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidSetting)
	}
	return nil
}

// RequireQueue checks the additional settings needed to submit jobs.
func (s *Settings) RequireQueue() error {
	if s.JobQueue == "" {
		return fmt.Errorf("%w: JOB_QUEUE", ErrMissingSetting)
	}
	if s.JobDefinition == "" {
		return fmt.Errorf("%w: JOB_DEFINITION", ErrMissingSetting)
	}
	if s.JobAttempts < 1 || s.JobAttempts > 10 {
		return fmt.Errorf("%w: JOB_ATTEMPTS must be 1-10, got %d", ErrInvalidSetting, s.JobAttempts)
	}
	return nil
}

// SourcePattern compiles FilenameFilter. It returns nil when no filter is set.
func (s *Settings) SourcePattern() (*regexp.Regexp, error) {
	if s.FilenameFilter == "" {
		return nil, nil
	}
	return regexp.Compile(s.FilenameFilter)
}

// Deriver returns the derived-key mapping for the configured destination.
func (s *Settings) Deriver() naming.Deriver {
	return naming.Deriver{Prefix: s.COGPrefix, Rule: s.NamingRule}
}

// NormalizePrefix strips a leading slash and ensures a trailing one.
// The empty prefix (bucket root) stays empty.
func NormalizePrefix(p string) string {
	p = strings.TrimLeft(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// ValidCompression reports whether c is a codec the COG driver accepts.
func ValidCompression(c string) bool {
	for _, known := range compressionCodecs {
		if c == known {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
