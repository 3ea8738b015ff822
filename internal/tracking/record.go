// Package tracking persists the JobRecords written by a submit run and
// refreshed by the status aggregator.
package tracking

import (
	"context"
	"time"
)

// Sentinel statuses. Queue-reported statuses (RUNNABLE, RUNNING, SUCCEEDED,
// FAILED, ...) are stored verbatim.
const (
	StatusSubmitted = "SUBMITTED"
	StatusUnknown   = "UNKNOWN"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// JobRecord is the local view of one submitted job.
type JobRecord struct {
	JobID        string     `json:"jobId" dynamodbav:"jobId"`
	JobName      string     `json:"jobName" dynamodbav:"jobName"`
	ManifestKey  string     `json:"manifestKey" dynamodbav:"manifestKey"`
	FileCount    int        `json:"fileCount" dynamodbav:"fileCount"`
	SubmittedAt  time.Time  `json:"submittedAt" dynamodbav:"submittedAt"`
	Status       string     `json:"status" dynamodbav:"status"`
	StatusReason string     `json:"statusReason,omitempty" dynamodbav:"statusReason,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty" dynamodbav:"startedAt,omitempty"`
	StoppedAt    *time.Time `json:"stoppedAt,omitempty" dynamodbav:"stoppedAt,omitempty"`
	RunID        string     `json:"runId,omitempty" dynamodbav:"runId,omitempty"`
	LogStream    string     `json:"logStream,omitempty" dynamodbav:"logStream,omitempty"`
}

// Terminal reports whether the queue will not change the job's status again.
func (r JobRecord) Terminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}

// Duration is the run time of a started job, measured to now if it has
// not stopped.
func (r JobRecord) Duration(now time.Time) time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	end := now
	if r.StoppedAt != nil {
		end = *r.StoppedAt
	}
	return end.Sub(*r.StartedAt)
}

// Tracker stores the full list of tracked jobs. Save replaces whatever
// was stored before.
type Tracker interface {
	Save(ctx context.Context, records []JobRecord) error
	Load(ctx context.Context) ([]JobRecord, error)
}
