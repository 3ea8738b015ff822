package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/raster-cog-converter/internal/naming"
)

// chdirTemp isolates Load from any cog.yaml or .env in the package directory.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("S3_BUCKET", "rasters-bucket")

	s, err := Load(LoadOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	assert.Equal(t, "rasters-bucket", s.Bucket)
	assert.Equal(t, "cartodb_exports/rasters/", s.SourcePrefix)
	assert.Equal(t, "cartodb_exports/cogs/", s.COGPrefix)
	assert.Equal(t, "LZW", s.Compression)
	assert.Equal(t, 50, s.ChunkSize)
	assert.Equal(t, naming.CategoryAll, s.Category)
	assert.Equal(t, naming.RuleStripPrefix, s.NamingRule)
	assert.Equal(t, []string{".tif", ".tiff"}, s.Extensions)
	assert.Equal(t, time.Hour, s.TranscodeTimeout)
	assert.Equal(t, 10*time.Minute, s.LambdaTranscodeTimeout)
	assert.False(t, s.Overwrite)
	assert.False(t, s.DryRun)
}

func TestLoad_EnvAndOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("S3_BUCKET", "b")
	t.Setenv("SOURCE_PREFIX", "/raw")
	t.Setenv("COG_PREFIX", "cogs")
	t.Setenv("COMPRESSION", "zstd")
	t.Setenv("CHUNK_SIZE", "7")
	t.Setenv("OVERWRITE", "true")
	t.Setenv("CATEGORY_FILTER", "public")
	t.Setenv("TIFF_KEYS", "a.tif, b.tif,,")
	t.Setenv("TRANSCODE_TIMEOUT", "90s")

	s, err := Load(LoadOptions{Overrides: map[string]any{"dry_run": true, "chunk_size": 3}})
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	assert.Equal(t, "raw/", s.SourcePrefix)
	assert.Equal(t, "cogs/", s.COGPrefix)
	assert.Equal(t, "ZSTD", s.Compression)
	assert.Equal(t, 3, s.ChunkSize)
	assert.True(t, s.Overwrite)
	assert.True(t, s.DryRun)
	assert.Equal(t, naming.CategoryPublic, s.Category)
	assert.Equal(t, []string{"a.tif", "b.tif"}, s.TIFFKeys)
	assert.Equal(t, 90*time.Second, s.TranscodeTimeout)
}

func TestLoad_ConfigFile(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "cog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("s3_bucket: from-file\njob_queue: q\njob_definition: d\n"), 0o644))

	s, err := Load(LoadOptions{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "from-file", s.Bucket)
	require.NoError(t, s.RequireQueue())
}

func TestLoad_BadCategory(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CATEGORY_FILTER", "nope")
	_, err := Load(LoadOptions{})
	assert.ErrorIs(t, err, ErrInvalidSetting)
}

func TestValidate(t *testing.T) {
	valid := func() *Settings {
		return &Settings{
			Bucket: "b", SourcePrefix: "raw/", COGPrefix: "cogs/", Compression: "LZW",
			ChunkSize: 10, Extensions: []string{".tif"},
			RequestTimeout: time.Second, TransferTimeout: time.Second, TranscodeTimeout: time.Second,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr error
	}{
		{"missing bucket", func(s *Settings) { s.Bucket = "" }, ErrMissingSetting},
		{"same prefix", func(s *Settings) { s.COGPrefix = "raw/" }, ErrSamePrefix},
		{"bad codec", func(s *Settings) { s.Compression = "BZIP" }, ErrInvalidSetting},
		{"zero chunk", func(s *Settings) { s.ChunkSize = 0 }, ErrInvalidSetting},
		{"bad regex", func(s *Settings) { s.FilenameFilter = "([" }, ErrInvalidSetting},
		{"no extensions", func(s *Settings) { s.Extensions = nil }, ErrInvalidSetting},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := valid()
			tc.mutate(s)
			assert.ErrorIs(t, s.Validate(), tc.wantErr)
		})
	}
}

func TestRequireQueue(t *testing.T) {
	s := &Settings{JobQueue: "q", JobAttempts: 2}
	assert.ErrorIs(t, s.RequireQueue(), ErrMissingSetting)
	s.JobDefinition = "d"
	assert.NoError(t, s.RequireQueue())
	s.JobAttempts = 0
	assert.ErrorIs(t, s.RequireQueue(), ErrInvalidSetting)
}

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "", NormalizePrefix(""))
	assert.Equal(t, "a/b/", NormalizePrefix("/a/b"))
	assert.Equal(t, "a/", NormalizePrefix("a/"))
}
