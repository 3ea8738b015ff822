// Package jobqueue submits conversion jobs to AWS Batch and queries their
// state. It also wraps the synchronous Lambda variant of the worker.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MaxDescribeBatch is the largest id list DescribeJobs accepts per call.
const MaxDescribeBatch = 100

// ManifestEnv names the environment variable that hands a worker its manifest.
const ManifestEnv = "MANIFEST_KEY"

var (
	// ErrInvalidRequest is returned for a submit request missing a name or manifest.
	ErrInvalidRequest = errors.New("invalid job request")
	// ErrTooManyIDs is returned when Describe is asked for more than MaxDescribeBatch ids.
	ErrTooManyIDs = errors.New("too many job ids")
)

// SubmitRequest describes one job to enqueue.
type SubmitRequest struct {
	JobName     string
	ManifestKey string
	// Environment is merged into the container overrides. ManifestEnv is
	// always set from ManifestKey.
	Environment map[string]string
}

// Validate checks that the request can be submitted.
func (r SubmitRequest) Validate() error {
	if r.JobName == "" {
		return fmt.Errorf("%w: job name is empty", ErrInvalidRequest)
	}
	if r.ManifestKey == "" {
		return fmt.Errorf("%w: manifest key is empty for %s", ErrInvalidRequest, r.JobName)
	}
	return nil
}

// Submission is the queue's acknowledgement of a submitted job.
type Submission struct {
	JobID   string
	JobName string
}

// JobStatus is the queue-reported state of one job.
type JobStatus struct {
	JobID        string
	JobName      string
	Status       string
	StatusReason string
	StartedAt    *time.Time
	StoppedAt    *time.Time
	LogStream    string
}

// Queue is the job service used by the submitter and the status aggregator.
type Queue interface {
	Submit(ctx context.Context, req SubmitRequest) (Submission, error)
	// Describe returns the state of up to MaxDescribeBatch jobs. Ids the
	// service does not know are absent from the result.
	Describe(ctx context.Context, ids []string) ([]JobStatus, error)
}
