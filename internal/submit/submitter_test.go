package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/raster-cog-converter/internal/config"
	"github.com/fpang/raster-cog-converter/internal/jobqueue"
	"github.com/fpang/raster-cog-converter/internal/naming"
	"github.com/fpang/raster-cog-converter/internal/objstore"
	"github.com/fpang/raster-cog-converter/internal/tracking"
)

var fixedNow = time.Date(2026, 3, 14, 9, 15, 0, 0, time.UTC)

func objects(n int) []objstore.Object {
	out := make([]objstore.Object, n)
	for i := range out {
		out[i] = objstore.Object{Key: fmt.Sprintf("raw/r%03d.tif", i), Size: int64(i + 1)}
	}
	return out
}

func testSettings(chunk int) *config.Settings {
	return &config.Settings{
		Bucket:         "rasters",
		SourcePrefix:   "raw/",
		COGPrefix:      "cogs/",
		ManifestPrefix: "cog_manifests/",
		Compression:    "LZW",
		ChunkSize:      chunk,
		NamingRule:     naming.RuleStripPrefix,
		JobNamePrefix:  "cog-convert",
	}
}

func newTestSubmitter(t *testing.T, chunk int) (*Submitter, *objstore.MemoryStore, *jobqueue.FakeQueue, *tracking.FileTracker) {
	t.Helper()
	store := objstore.NewMemoryStore()
	queue := jobqueue.NewFakeQueue()
	tracker := tracking.NewFileTracker(t.TempDir())
	s := New(store, queue, tracker, testSettings(chunk))
	s.now = func() time.Time { return fixedNow }
	s.newRunID = func() string { return "run-1" }
	return s, store, queue, tracker
}

func TestPartition_Property(t *testing.T) {
	for _, n := range []int{0, 1, 2, 49, 50, 51, 137} {
		for _, c := range []int{1, 3, 50, 200} {
			pending := objects(n)
			parts, err := Partition(pending, c)
			require.NoError(t, err)

			assert.Len(t, parts, (n+c-1)/c, "n=%d c=%d", n, c)
			var joined []objstore.Object
			for _, p := range parts {
				assert.LessOrEqual(t, len(p), c)
				assert.NotEmpty(t, p)
				joined = append(joined, p...)
			}
			if n == 0 {
				assert.Empty(t, joined)
			} else {
				assert.Equal(t, pending, joined, "n=%d c=%d", n, c)
			}
		}
	}
}

func TestPartition_RejectsZero(t *testing.T) {
	_, err := Partition(objects(3), 0)
	assert.Error(t, err)
}

func TestBuildPlan(t *testing.T) {
	plan, err := BuildPlan(objects(5), 2, "cog-convert", "cog_manifests/", fixedNow, "run-1")
	require.NoError(t, err)
	require.Len(t, plan.Chunks, 3)
	assert.Equal(t, 5, plan.FileCount())

	last := plan.Chunks[2]
	assert.Equal(t, "cog-convert-20260314-091500-run1-0002", last.JobName)
	assert.Equal(t, "cog_manifests/cog-convert-20260314-091500-run1-0002.json", last.ManifestKey)
	assert.Equal(t, []string{"raw/r004.tif"}, last.Keys)
	assert.Equal(t, int64(5), last.Bytes)

	keys := plan.Keys()
	require.Len(t, keys, 5)
	assert.Equal(t, "raw/r000.tif", keys[0])
	assert.Equal(t, "raw/r004.tif", keys[4])
}

func TestBuildPlan_SameSecondRunsDoNotCollide(t *testing.T) {
	a, err := BuildPlan(objects(4), 2, "cog-convert", "cog_manifests/", fixedNow, "3f2a9c1e-77b0-4c1e-9d1a-0c6f0e5f8a21")
	require.NoError(t, err)
	b, err := BuildPlan(objects(4), 2, "cog-convert", "cog_manifests/", fixedNow, "9b04d2aa-1c3e-4f6a-8e21-5d7c0a9b3f10")
	require.NoError(t, err)

	for i := range a.Chunks {
		assert.NotEqual(t, a.Chunks[i].JobName, b.Chunks[i].JobName)
		assert.NotEqual(t, a.Chunks[i].ManifestKey, b.Chunks[i].ManifestKey)
	}
	assert.Equal(t, "cog_manifests/cog-convert-20260314-091500-3f2a9c1e-0000.json", a.Chunks[0].ManifestKey)
}

func TestDryRunMatchesLiveRun(t *testing.T) {
	pending := objects(7)
	s, store, queue, _ := newTestSubmitter(t, 3)

	dry, err := s.Plan(pending)
	require.NoError(t, err)
	assert.Empty(t, store.Keys())

	report, err := s.Submit(context.Background(), pending)
	require.NoError(t, err)
	require.Len(t, report.Records, len(dry.Chunks))

	reqs := queue.Requests()
	for i, chunk := range dry.Chunks {
		assert.Equal(t, chunk.JobName, report.Records[i].JobName)
		assert.Equal(t, chunk.ManifestKey, reqs[i].ManifestKey)

		body, _, ok := store.Object(chunk.ManifestKey)
		require.True(t, ok)
		var keys []string
		require.NoError(t, json.Unmarshal(body, &keys))
		assert.Equal(t, chunk.Keys, keys)
	}
}

func TestSubmit_NothingPending(t *testing.T) {
	s, store, queue, tracker := newTestSubmitter(t, 10)

	report, err := s.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Records)
	assert.NoError(t, report.Err())
	assert.Empty(t, store.Keys())
	assert.Empty(t, queue.Requests())

	_, err = tracker.Load(context.Background())
	assert.Error(t, err, "tracking file must not be written for a no-op")
}

func TestSubmit_ManifestFailureSkipsChunk(t *testing.T) {
	s, store, queue, tracker := newTestSubmitter(t, 2)
	boom := errors.New("access denied")
	store.FailWrites("cog_manifests/cog-convert-20260314-091500-run1-0001.json", boom)

	report, err := s.Submit(context.Background(), objects(6))
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, StageManifest, report.Failures[0].Stage)
	assert.ErrorIs(t, report.Err(), boom)

	// The failed chunk is never submitted; the chunk after it is.
	var names []string
	for _, r := range queue.Requests() {
		names = append(names, r.JobName)
	}
	assert.Equal(t, []string{"cog-convert-20260314-091500-run1-0000", "cog-convert-20260314-091500-run1-0002"}, names)

	saved, err := tracker.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, saved, 2)
}

func TestSubmit_QueueFailureContinues(t *testing.T) {
	s, _, queue, _ := newTestSubmitter(t, 1)
	queue.FailSubmit("cog-convert-20260314-091500-run1-0000", errors.New("queue disabled"))

	report, err := s.Submit(context.Background(), objects(2))
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, StageSubmit, report.Failures[0].Stage)
	require.Len(t, report.Records, 1)
	assert.Equal(t, "cog-convert-20260314-091500-run1-0001", report.Records[0].JobName)
}

func TestSubmit_RecordsAndEnvironment(t *testing.T) {
	s, _, queue, tracker := newTestSubmitter(t, 1)

	report, err := s.Submit(context.Background(), []objstore.Object{{Key: "a.tif", Size: 100}, {Key: "b.tif", Size: 200}})
	require.NoError(t, err)
	require.Len(t, report.Records, 2)

	rec := report.Records[0]
	assert.Equal(t, 1, rec.FileCount)
	assert.Equal(t, tracking.StatusSubmitted, rec.Status)
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, fixedNow, rec.SubmittedAt)
	assert.NotEqual(t, report.Records[0].JobID, report.Records[1].JobID)

	env := queue.Requests()[0].Environment
	assert.Equal(t, "cogs/", env["COG_PREFIX"])
	assert.Equal(t, "false", env["OVERWRITE"])
	assert.Equal(t, "strip-prefix", env["NAMING_RULE"])

	saved, err := tracker.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Records[1].JobID, saved[1].JobID)
}
