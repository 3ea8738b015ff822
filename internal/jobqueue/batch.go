package jobqueue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	batchtypes "github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/rs/zerolog/log"
)

type batchAPI interface {
	SubmitJob(ctx context.Context, params *batch.SubmitJobInput, optFns ...func(*batch.Options)) (*batch.SubmitJobOutput, error)
	DescribeJobs(ctx context.Context, params *batch.DescribeJobsInput, optFns ...func(*batch.Options)) (*batch.DescribeJobsOutput, error)
}

// BatchQueue implements Queue on an AWS Batch job queue and definition.
type BatchQueue struct {
	api        batchAPI
	queue      string
	definition string
	attempts   int32
	timeout    time.Duration
}

var _ Queue = (*BatchQueue)(nil)

// NewBatchQueue returns a queue that submits to jobQueue using jobDefinition.
// attempts is the Batch retry strategy; values below 1 leave it unset.
func NewBatchQueue(client *batch.Client, jobQueue, jobDefinition string, attempts int, timeout time.Duration) *BatchQueue {
	return &BatchQueue{
		api:        client,
		queue:      jobQueue,
		definition: jobDefinition,
		attempts:   int32(attempts),
		timeout:    timeout,
	}
}

func (q *BatchQueue) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if q.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, q.timeout)
}

func (q *BatchQueue) Submit(ctx context.Context, req SubmitRequest) (Submission, error) {
	if err := req.Validate(); err != nil {
		return Submission{}, err
	}

	in := &batch.SubmitJobInput{
		JobName:       aws.String(req.JobName),
		JobQueue:      aws.String(q.queue),
		JobDefinition: aws.String(q.definition),
		ContainerOverrides: &batchtypes.ContainerOverrides{
			Environment: environment(req),
		},
	}
	if q.attempts > 0 {
		in.RetryStrategy = &batchtypes.RetryStrategy{Attempts: aws.Int32(q.attempts)}
	}

	cctx, cancel := q.callCtx(ctx)
	defer cancel()
	out, err := q.api.SubmitJob(cctx, in)
	if err != nil {
		return Submission{}, fmt.Errorf("batch SubmitJob %s: %w", req.JobName, err)
	}

	sub := Submission{JobID: aws.ToString(out.JobId), JobName: aws.ToString(out.JobName)}
	if sub.JobName == "" {
		sub.JobName = req.JobName
	}
	log.Info().
		Str("jobId", sub.JobID).
		Str("jobName", sub.JobName).
		Str("manifestKey", req.ManifestKey).
		Msg("Batch job submitted")
	return sub, nil
}

func (q *BatchQueue) Describe(ctx context.Context, ids []string) ([]JobStatus, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxDescribeBatch {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyIDs, len(ids), MaxDescribeBatch)
	}

	cctx, cancel := q.callCtx(ctx)
	defer cancel()
	out, err := q.api.DescribeJobs(cctx, &batch.DescribeJobsInput{Jobs: ids})
	if err != nil {
		return nil, fmt.Errorf("batch DescribeJobs (%d ids): %w", len(ids), err)
	}

	statuses := make([]JobStatus, 0, len(out.Jobs))
	for _, job := range out.Jobs {
		statuses = append(statuses, jobStatusFromDetail(job))
	}
	return statuses, nil
}

// environment builds sorted container overrides so identical requests
// produce identical API calls.
func environment(req SubmitRequest) []batchtypes.KeyValuePair {
	env := make(map[string]string, len(req.Environment)+1)
	for k, v := range req.Environment {
		env[k] = v
	}
	env[ManifestEnv] = req.ManifestKey

	names := make([]string, 0, len(env))
	for k := range env {
		names = append(names, k)
	}
	sort.Strings(names)

	pairs := make([]batchtypes.KeyValuePair, 0, len(names))
	for _, k := range names {
		pairs = append(pairs, batchtypes.KeyValuePair{Name: aws.String(k), Value: aws.String(env[k])})
	}
	return pairs
}

func jobStatusFromDetail(job batchtypes.JobDetail) JobStatus {
	st := JobStatus{
		JobID:        aws.ToString(job.JobId),
		JobName:      aws.ToString(job.JobName),
		Status:       string(job.Status),
		StatusReason: aws.ToString(job.StatusReason),
		StartedAt:    millis(job.StartedAt),
		StoppedAt:    millis(job.StoppedAt),
	}
	if job.Container != nil {
		st.LogStream = aws.ToString(job.Container.LogStreamName)
	}
	return st
}

// millis converts Batch's epoch-millisecond timestamps.
func millis(ms *int64) *time.Time {
	if ms == nil || *ms == 0 {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}
