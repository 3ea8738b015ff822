package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/raster-cog-converter/internal/status"
	"github.com/fpang/raster-cog-converter/internal/tracking"
)

func TestFormatDurationShort(t *testing.T) {
	assert.Equal(t, "0:05", FormatDurationShort(5*time.Second))
	assert.Equal(t, "12:03", FormatDurationShort(12*time.Minute+3*time.Second))
	assert.Equal(t, "2:00:09", FormatDurationShort(2*time.Hour+9*time.Second))
}

func TestFormatGiB(t *testing.T) {
	assert.Equal(t, "0.00 GiB", FormatGiB(0))
	assert.Equal(t, "1.50 GiB", FormatGiB(3<<29))
}

func TestPreview(t *testing.T) {
	var buf bytes.Buffer
	Preview(&buf, []string{"a", "b", "c"}, 2)
	assert.Equal(t, "  a\n  b\n  ... and 1 more\n", buf.String())

	buf.Reset()
	Preview(&buf, []string{"a"}, 2)
	assert.Equal(t, "  a\n", buf.String())
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"yes", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		assert.Equal(t, tt.want, Confirm(strings.NewReader(tt.input), &out, "Submit?"), "input %q", tt.input)
		assert.Equal(t, "Submit? (y/N): ", out.String())
	}
}

func TestJobsTable(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	stopped := started.Add(90 * time.Second)
	var buf bytes.Buffer
	JobsTable(&buf, []tracking.JobRecord{
		{JobName: "cog-convert-1", JobID: "job-1", FileCount: 50, Status: tracking.StatusSucceeded, StartedAt: &started, StoppedAt: &stopped},
		{JobName: "cog-convert-2", JobID: "job-2", FileCount: 7, Status: tracking.StatusSubmitted},
	}, started.Add(time.Hour))

	out := buf.String()
	assert.Contains(t, out, "cog-convert-1")
	assert.Contains(t, out, "1:30")
	assert.Contains(t, out, "SUBMITTED")
}

func TestCountsTable(t *testing.T) {
	var buf bytes.Buffer
	CountsTable(&buf, []status.StatusCount{
		{Status: "FAILED", Jobs: 1, Files: 50},
		{Status: "SUCCEEDED", Jobs: 2, Files: 57},
	})
	out := buf.String()
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "107")
}

func TestAppendLineAndTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status", "done.txt")
	require.NoError(t, AppendLine(path, "a.tif"))
	require.NoError(t, AppendLine(path, "b.tif\tdownload: boom"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a.tif\nb.tif\tdownload: boom\n", string(data))

	require.NoError(t, Truncate(path))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}
