package worker

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInvocation_Single(t *testing.T) {
	inv, err := ParseInvocation([]byte(`{"source_bucket":"rasters","source_key":"raw/a.tif","compression":"deflate","overwrite":true}`))
	require.NoError(t, err)
	req, ok := inv.(ConvertRequest)
	require.True(t, ok)
	assert.Equal(t, []string{"raw/a.tif"}, req.Keys())
	assert.Equal(t, []string{"rasters"}, req.Buckets())

	opts := req.Params().Apply(Options{DestPrefix: "cogs/", Compression: "LZW"})
	assert.Equal(t, "DEFLATE", opts.Compression)
	assert.True(t, opts.Overwrite)
	assert.Equal(t, "cogs/", opts.DestPrefix)
}

func TestParseInvocation_Batch(t *testing.T) {
	inv, err := ParseInvocation([]byte(`{"batch":[{"source_key":"raw/a.tif"},{"source_key":"raw/b.tif"}],"dest_prefix":"out"}`))
	require.NoError(t, err)
	req, ok := inv.(BatchRequest)
	require.True(t, ok)
	assert.Equal(t, []string{"raw/a.tif", "raw/b.tif"}, req.Keys())
	assert.Equal(t, "out/", req.Params().Apply(Options{}).DestPrefix)

	_, err = ParseInvocation([]byte(`{"batch":[]}`))
	assert.ErrorIs(t, err, ErrNoRequest)
	_, err = ParseInvocation([]byte(`{"batch":[{"source_key":""}]}`))
	assert.ErrorIs(t, err, ErrBadInvocation)
}

func TestParseInvocation_S3Event(t *testing.T) {
	payload := `{"Records":[
		{"eventName":"ObjectCreated:Put","s3":{"bucket":{"name":"rasters"},"object":{"key":"raw/new+file.tif","size":10}}},
		{"eventName":"ObjectRemoved:Delete","s3":{"bucket":{"name":"rasters"},"object":{"key":"raw/gone.tif"}}}
	]}`
	inv, err := ParseInvocation([]byte(payload))
	require.NoError(t, err)
	n, ok := inv.(S3Notification)
	require.True(t, ok)
	assert.Equal(t, []string{"raw/new file.tif"}, n.Keys())
	assert.Equal(t, []string{"rasters", "rasters"}, n.Buckets())
}

func TestParseInvocation_Rejects(t *testing.T) {
	for _, bad := range []string{`{}`, `{"source_key":""}`, `not json`, `{"foo":1}`} {
		_, err := ParseInvocation([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestWriteSummary(t *testing.T) {
	out := &BatchOutcome{}
	out.Add(ConversionResult{SourceKey: "raw/a.tif", Success: true})
	out.Add(ConversionResult{SourceKey: "raw/b.tif", Error: "source-crs: missing CRS"})

	var buf bytes.Buffer
	out.WriteSummary(&buf)
	assert.Equal(t, "Total: 2  Succeeded: 1  Skipped: 0  Failed: 1\nFailed keys:\n  raw/b.tif\tsource-crs: missing CRS\n", buf.String())
}
