package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RuntimeIdentity(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "cog-converter")
	t.Setenv("AWS_BATCH_JOB_ID", "")

	r := NewTo(&bytes.Buffer{}, Namespace)
	assert.Equal(t, "cog-converter", r.dimensions["FunctionName"])
	assert.NotContains(t, r.properties, "batchJobId")

	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	t.Setenv("AWS_BATCH_JOB_ID", "job-1")
	r = NewTo(&bytes.Buffer{}, Namespace)
	assert.Empty(t, r.dimensions)
	assert.Equal(t, "job-1", r.properties["batchJobId"])
}

func TestRecorder_Flush(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	t.Setenv("AWS_BATCH_JOB_ID", "")

	var buf bytes.Buffer
	rec := NewTo(&buf, Namespace).
		Dimension("Stage", "transcode").
		Dimension("Compression", "LZW").
		Metric("ConversionMs", 1234.5, UnitMilliseconds).
		Count("Failures").
		Property("sourceKey", "raw/a.tif")
	rec.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	rec.Flush()

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc), buf.String())
	assert.Equal(t, 1234.5, doc["ConversionMs"])
	assert.Equal(t, float64(1), doc["Failures"])
	assert.Equal(t, "transcode", doc["Stage"])
	assert.Equal(t, "raw/a.tif", doc["sourceKey"])

	aws := doc["_aws"].(map[string]any)
	assert.Equal(t, float64(1_700_000_000_000), aws["Timestamp"])
	cw := aws["CloudWatchMetrics"].([]any)[0].(map[string]any)
	assert.Equal(t, Namespace, cw["Namespace"])
	assert.Equal(t, []any{[]any{"Compression", "Stage"}}, cw["Dimensions"])

	metrics := cw["Metrics"].([]any)
	require.Len(t, metrics, 2)
	assert.Equal(t, "ConversionMs", metrics[0].(map[string]any)["Name"])
}

func TestRecorder_FlushEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewTo(&buf, "Test").Property("id", "x").Flush()
	assert.Zero(t, buf.Len())
}

func TestRecorder_Count(t *testing.T) {
	rec := NewTo(&bytes.Buffer{}, "Test").Count("Skipped")
	assert.Equal(t, float64(1), rec.values["Skipped"])
	assert.Equal(t, UnitCount, rec.metrics["Skipped"].Unit)
}
