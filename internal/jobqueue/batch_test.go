package jobqueue

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	batchtypes "github.com/aws/aws-sdk-go-v2/service/batch/types"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBatch struct {
	submitted []*batch.SubmitJobInput
	described []*batch.DescribeJobsInput
	jobs      []batchtypes.JobDetail
	err       error
}

func (f *fakeBatch) SubmitJob(ctx context.Context, in *batch.SubmitJobInput, _ ...func(*batch.Options)) (*batch.SubmitJobOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.submitted = append(f.submitted, in)
	return &batch.SubmitJobOutput{JobId: aws.String("id-1"), JobName: in.JobName}, nil
}

func (f *fakeBatch) DescribeJobs(ctx context.Context, in *batch.DescribeJobsInput, _ ...func(*batch.Options)) (*batch.DescribeJobsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.described = append(f.described, in)
	return &batch.DescribeJobsOutput{Jobs: f.jobs}, nil
}

func TestBatchQueue_SubmitSetsOverrides(t *testing.T) {
	api := &fakeBatch{}
	q := &BatchQueue{api: api, queue: "cog-queue", definition: "cog-def:3", attempts: 2}

	sub, err := q.Submit(context.Background(), SubmitRequest{
		JobName:     "cog-convert-20260101-000000-0000",
		ManifestKey: "cog_manifests/cog-convert-20260101-000000-0000.json",
		Environment: map[string]string{"COMPRESSION": "DEFLATE", "S3_BUCKET": "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "id-1", sub.JobID)

	require.Len(t, api.submitted, 1)
	in := api.submitted[0]
	assert.Equal(t, "cog-queue", aws.ToString(in.JobQueue))
	assert.Equal(t, "cog-def:3", aws.ToString(in.JobDefinition))
	assert.Equal(t, int32(2), aws.ToInt32(in.RetryStrategy.Attempts))

	var names []string
	for _, kv := range in.ContainerOverrides.Environment {
		names = append(names, aws.ToString(kv.Name))
	}
	assert.Equal(t, []string{"COMPRESSION", ManifestEnv, "S3_BUCKET"}, names)
	assert.Equal(t, "cog_manifests/cog-convert-20260101-000000-0000.json", aws.ToString(in.ContainerOverrides.Environment[1].Value))
}

func TestBatchQueue_SubmitRejectsEmptyManifest(t *testing.T) {
	api := &fakeBatch{}
	q := &BatchQueue{api: api}
	_, err := q.Submit(context.Background(), SubmitRequest{JobName: "j"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, api.submitted)
}

func TestBatchQueue_Describe(t *testing.T) {
	api := &fakeBatch{jobs: []batchtypes.JobDetail{{
		JobId:        aws.String("a"),
		JobName:      aws.String("cog-convert-x-0000"),
		Status:       batchtypes.JobStatusFailed,
		StatusReason: aws.String("Essential container in task exited"),
		StartedAt:    aws.Int64(1_700_000_000_000),
		StoppedAt:    aws.Int64(1_700_000_060_000),
		Container:    &batchtypes.ContainerDetail{LogStreamName: aws.String("cog/default/abc")},
	}}}
	q := &BatchQueue{api: api}

	got, err := q.Describe(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "FAILED", got[0].Status)
	assert.Equal(t, "cog/default/abc", got[0].LogStream)
	require.NotNil(t, got[0].StoppedAt)
	assert.Equal(t, 60.0, got[0].StoppedAt.Sub(*got[0].StartedAt).Seconds())
	assert.Equal(t, []string{"a", "b"}, api.described[0].Jobs)
}

func TestBatchQueue_DescribeLimits(t *testing.T) {
	q := &BatchQueue{api: &fakeBatch{}}
	ids := make([]string, MaxDescribeBatch+1)
	_, err := q.Describe(context.Background(), ids)
	assert.ErrorIs(t, err, ErrTooManyIDs)

	got, err := q.Describe(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestBatchQueue_DescribeError(t *testing.T) {
	q := &BatchQueue{api: &fakeBatch{err: errors.New("throttled")}}
	_, err := q.Describe(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "throttled")
}

type fakeLambda struct {
	in  *lambdasvc.InvokeInput
	out *lambdasvc.InvokeOutput
}

func (f *fakeLambda) Invoke(ctx context.Context, in *lambdasvc.InvokeInput, _ ...func(*lambdasvc.Options)) (*lambdasvc.InvokeOutput, error) {
	f.in = in
	return f.out, nil
}

func TestLambdaInvoker(t *testing.T) {
	api := &fakeLambda{out: &lambdasvc.InvokeOutput{Payload: []byte(`{"success":true}`)}}
	l := &LambdaInvoker{api: api, function: "cog-convert"}

	body, err := l.InvokeSync(context.Background(), []byte(`{"key":"a.tif"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(body))
	assert.Equal(t, "RequestResponse", string(api.in.InvocationType))

	api.out = &lambdasvc.InvokeOutput{FunctionError: aws.String("Unhandled"), Payload: []byte(`{"errorMessage":"boom"}`)}
	_, err = l.InvokeSync(context.Background(), nil)
	assert.ErrorIs(t, err, ErrFunctionError)

	_, err = (&LambdaInvoker{api: api}).InvokeSync(context.Background(), nil)
	assert.Error(t, err)
}
