package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/raster-cog-converter/internal/config"
	"github.com/fpang/raster-cog-converter/internal/jobqueue"
	"github.com/fpang/raster-cog-converter/internal/jobs"
	"github.com/fpang/raster-cog-converter/internal/objstore"
	"github.com/fpang/raster-cog-converter/internal/tracking"
)

// Failure stages.
const (
	StageManifest = "manifest"
	StageSubmit   = "submit"
)

// ChunkFailure is a chunk that was not submitted.
type ChunkFailure struct {
	JobName     string
	ManifestKey string
	Stage       string
	Err         error
}

func (f ChunkFailure) Error() string {
	return fmt.Sprintf("%s [%s]: %v", f.JobName, f.Stage, f.Err)
}

func (f ChunkFailure) Unwrap() error { return f.Err }

// Report is the result of a live submit run.
type Report struct {
	Plan     Plan
	Records  []tracking.JobRecord
	Failures []ChunkFailure
}

// Err joins every chunk failure, or returns nil.
func (r *Report) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Submitter writes manifests and submits jobs for a plan.
type Submitter struct {
	store    objstore.Store
	queue    jobqueue.Queue
	tracker  tracking.Tracker
	settings *config.Settings

	now      func() time.Time
	newRunID func() string
}

// New returns a Submitter. tracker may be nil, in which case records are
// returned but not persisted.
func New(store objstore.Store, queue jobqueue.Queue, tracker tracking.Tracker, s *config.Settings) *Submitter {
	return &Submitter{
		store:    store,
		queue:    queue,
		tracker:  tracker,
		settings: s,
		now:      time.Now,
		newRunID: jobs.NewRunID,
	}
}

// Plan partitions pending using the configured chunk size and naming.
func (s *Submitter) Plan(pending []objstore.Object) (Plan, error) {
	return BuildPlan(pending, s.settings.ChunkSize, s.settings.JobNamePrefix, s.settings.ManifestPrefix, s.now(), s.newRunID())
}

// Submit plans and executes in one step.
func (s *Submitter) Submit(ctx context.Context, pending []objstore.Object) (*Report, error) {
	plan, err := s.Plan(pending)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, plan)
}

// Execute writes each chunk's manifest and submits its job. A failed chunk
// is recorded and the next one is attempted. The returned error covers
// only tracking persistence; chunk failures are in Report.Failures.
func (s *Submitter) Execute(ctx context.Context, plan Plan) (*Report, error) {
	report := &Report{Plan: plan}
	if len(plan.Chunks) == 0 {
		log.Info().Msg("Nothing pending, no jobs submitted")
		return report, nil
	}

	for _, chunk := range plan.Chunks {
		rec, failure := s.submitChunk(ctx, plan, chunk)
		if failure != nil {
			log.Error().
				Err(failure.Err).
				Str("jobName", chunk.JobName).
				Str("stage", failure.Stage).
				Int("files", len(chunk.Keys)).
				Msg("Chunk not submitted")
			report.Failures = append(report.Failures, *failure)
			continue
		}
		report.Records = append(report.Records, rec)
	}

	log.Info().
		Str("runId", plan.RunID).
		Int("chunks", len(plan.Chunks)).
		Int("submitted", len(report.Records)).
		Int("failed", len(report.Failures)).
		Msg("Submission complete")

	if s.tracker != nil && len(report.Records) > 0 {
		if err := s.tracker.Save(ctx, report.Records); err != nil {
			return report, fmt.Errorf("save job records: %w", err)
		}
	}
	return report, nil
}

func (s *Submitter) submitChunk(ctx context.Context, plan Plan, chunk Chunk) (tracking.JobRecord, *ChunkFailure) {
	fail := func(stage string, err error) (tracking.JobRecord, *ChunkFailure) {
		return tracking.JobRecord{}, &ChunkFailure{JobName: chunk.JobName, ManifestKey: chunk.ManifestKey, Stage: stage, Err: err}
	}

	body, err := json.Marshal(chunk.Keys)
	if err != nil {
		return fail(StageManifest, err)
	}
	if err := s.store.Put(ctx, chunk.ManifestKey, body, objstore.UploadOptions{ContentType: "application/json"}); err != nil {
		return fail(StageManifest, err)
	}

	sub, err := s.queue.Submit(ctx, jobqueue.SubmitRequest{
		JobName:     chunk.JobName,
		ManifestKey: chunk.ManifestKey,
		Environment: s.jobEnvironment(),
	})
	if err != nil {
		return fail(StageSubmit, err)
	}

	return tracking.JobRecord{
		JobID:       sub.JobID,
		JobName:     chunk.JobName,
		ManifestKey: chunk.ManifestKey,
		FileCount:   len(chunk.Keys),
		SubmittedAt: s.now().UTC(),
		Status:      tracking.StatusSubmitted,
		RunID:       plan.RunID,
	}, nil
}

// jobEnvironment is passed to every worker so it converts with the same
// settings the submitter reconciled with.
func (s *Submitter) jobEnvironment() map[string]string {
	return map[string]string{
		"S3_BUCKET":   s.settings.Bucket,
		"COG_PREFIX":  s.settings.COGPrefix,
		"COMPRESSION": s.settings.Compression,
		"OVERWRITE":   strconv.FormatBool(s.settings.Overwrite),
		"NAMING_RULE": string(s.settings.NamingRule),
	}
}
