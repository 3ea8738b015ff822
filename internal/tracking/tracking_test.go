package tracking

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []JobRecord {
	submitted := time.Date(2026, 3, 14, 9, 15, 0, 0, time.UTC)
	started := submitted.Add(2 * time.Minute)
	return []JobRecord{
		{JobID: "a", JobName: "cog-convert-20260314-091500-0000", ManifestKey: "cog_manifests/cog-convert-20260314-091500-0000.json", FileCount: 50, SubmittedAt: submitted, Status: StatusSubmitted, RunID: "run-1"},
		{JobID: "b", JobName: "cog-convert-20260314-091500-0001", ManifestKey: "cog_manifests/cog-convert-20260314-091500-0001.json", FileCount: 7, SubmittedAt: submitted, Status: "RUNNING", StartedAt: &started, RunID: "run-1"},
	}
}

func TestFileTracker_RoundTrip(t *testing.T) {
	ctx := context.Background()
	tr := NewFileTracker(t.TempDir())

	require.NoError(t, tr.Save(ctx, sampleRecords()))
	got, err := tr.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[1].JobID)
	require.NotNil(t, got[1].StartedAt)
	assert.True(t, got[1].StartedAt.Equal(*sampleRecords()[1].StartedAt))
	assert.Nil(t, got[0].StoppedAt)
}

func TestFileTracker_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	tr := NewFileTracker(t.TempDir())

	require.NoError(t, tr.Save(ctx, sampleRecords()))
	require.NoError(t, tr.Save(ctx, sampleRecords()[:1]))

	got, err := tr.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, tr.Save(ctx, nil))
	data, err := os.ReadFile(tr.Path())
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestFileTracker_Missing(t *testing.T) {
	_, err := NewFileTracker(t.TempDir()).Load(context.Background())
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestJobRecord_Duration(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stop := start.Add(90 * time.Second)
	r := JobRecord{StartedAt: &start}
	assert.Equal(t, time.Minute, r.Duration(start.Add(time.Minute)))
	r.StoppedAt = &stop
	assert.Equal(t, 90*time.Second, r.Duration(start.Add(time.Hour)))
	assert.Zero(t, JobRecord{}.Duration(stop))
	assert.True(t, JobRecord{Status: StatusFailed}.Terminal())
	assert.False(t, JobRecord{Status: "RUNNING"}.Terminal())
}

// fakeDynamo stores items of a single partition keyed by SK.
type fakeDynamo struct {
	items  map[string]map[string]types.AttributeValue
	writes int
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	sks := make([]string, 0, len(f.items))
	for sk := range f.items {
		sks = append(sks, sk)
	}
	sort.Strings(sks)
	out := &dynamodb.QueryOutput{}
	for _, sk := range sks {
		out.Items = append(out.Items, f.items[sk])
	}
	return out, nil
}

func (f *fakeDynamo) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.writes++
	for _, reqs := range in.RequestItems {
		if len(reqs) > maxBatchWrite {
			return nil, errors.New("too many items")
		}
		for _, r := range reqs {
			switch {
			case r.PutRequest != nil:
				sk := r.PutRequest.Item["SK"].(*types.AttributeValueMemberS).Value
				f.items[sk] = r.PutRequest.Item
			case r.DeleteRequest != nil:
				sk := r.DeleteRequest.Key["SK"].(*types.AttributeValueMemberS).Value
				delete(f.items, sk)
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func TestDynamoTracker_SaveReplacesSet(t *testing.T) {
	ctx := context.Background()
	api := &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
	tr := &DynamoTracker{client: api, tableName: "cog-jobs", set: "cog-convert"}

	require.NoError(t, tr.Save(ctx, sampleRecords()))
	require.NoError(t, tr.Save(ctx, sampleRecords()[1:]))

	got, err := tr.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].JobID)
	assert.Equal(t, 7, got[0].FileCount)
	assert.Equal(t, "RUNNING", got[0].Status)
	require.NotNil(t, got[0].StartedAt)
}

func TestDynamoTracker_ChunksWrites(t *testing.T) {
	ctx := context.Background()
	api := &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
	tr := &DynamoTracker{client: api, tableName: "cog-jobs", set: "cog-convert"}

	var recs []JobRecord
	for i := 0; i < 60; i++ {
		recs = append(recs, JobRecord{JobID: string(rune('A'+i%26)) + string(rune('a'+i/26)), Status: StatusSubmitted})
	}
	require.NoError(t, tr.Save(ctx, recs))
	assert.Equal(t, 3, api.writes)
	assert.Len(t, api.items, 60)
}

type failingTracker struct{ err error }

func (f failingTracker) Save(context.Context, []JobRecord) error   { return f.err }
func (f failingTracker) Load(context.Context) ([]JobRecord, error) { return nil, f.err }

func TestMirroredTracker(t *testing.T) {
	ctx := context.Background()
	primary := NewFileTracker(t.TempDir())
	m := MirroredTracker{Primary: primary, Secondary: failingTracker{err: errors.New("throttled")}}

	require.NoError(t, m.Save(ctx, sampleRecords()))
	got, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	m = MirroredTracker{Primary: failingTracker{err: errors.New("disk full")}}
	assert.Error(t, m.Save(ctx, nil))
}
