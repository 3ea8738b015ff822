// Package status refreshes tracked job records from the job queue.
package status

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/fpang/raster-cog-converter/internal/jobqueue"
	"github.com/fpang/raster-cog-converter/internal/tracking"
)

// Aggregator merges queue-reported state into tracked records. It only
// reads from the queue.
type Aggregator struct {
	queue     jobqueue.Queue
	batchSize int
}

// NewAggregator describes jobs in batches of jobqueue.MaxDescribeBatch.
func NewAggregator(queue jobqueue.Queue) *Aggregator {
	return &Aggregator{queue: queue, batchSize: jobqueue.MaxDescribeBatch}
}

// Refresh returns a copy of tracked with status fields updated. Terminal
// records are kept as they are and never described, since the queue
// stops reporting finished jobs after a retention period. Jobs the queue
// does not report become StatusUnknown. When a describe call fails,
// the records in that batch are returned unchanged and the error is
// included in the joined error; other batches are still refreshed.
func (a *Aggregator) Refresh(ctx context.Context, tracked []tracking.JobRecord) ([]tracking.JobRecord, error) {
	out := make([]tracking.JobRecord, len(tracked))
	copy(out, tracked)
	if len(tracked) == 0 {
		return out, nil
	}

	ids := lo.Uniq(lo.FilterMap(tracked, func(r tracking.JobRecord, _ int) (string, bool) {
		return r.JobID, r.JobID != "" && !r.Terminal()
	}))

	remote := make(map[string]jobqueue.JobStatus, len(ids))
	failed := make(map[string]bool)
	var errs []error
	for _, batch := range lo.Chunk(ids, a.batchSize) {
		statuses, err := a.queue.Describe(ctx, batch)
		if err != nil {
			log.Warn().Err(err).Int("jobs", len(batch)).Msg("Failed to describe jobs")
			errs = append(errs, fmt.Errorf("describe %d jobs starting at %s: %w", len(batch), batch[0], err))
			for _, id := range batch {
				failed[id] = true
			}
			continue
		}
		for _, st := range statuses {
			remote[st.JobID] = st
		}
	}

	for i := range out {
		rec := &out[i]
		if rec.JobID == "" || rec.Terminal() || failed[rec.JobID] {
			continue
		}
		st, ok := remote[rec.JobID]
		if !ok {
			rec.Status = tracking.StatusUnknown
			rec.StatusReason = "job not reported by the queue"
			continue
		}
		rec.Status = st.Status
		rec.StatusReason = st.StatusReason
		rec.StartedAt = st.StartedAt
		rec.StoppedAt = st.StoppedAt
		if st.LogStream != "" {
			rec.LogStream = st.LogStream
		}
	}

	log.Info().Int("jobs", len(ids)).Int("terminal", lo.CountBy(tracked, tracking.JobRecord.Terminal)).Int("reported", len(remote)).Int("errors", len(errs)).Msg("Job statuses refreshed")
	return out, errors.Join(errs...)
}

// StatusCount is the number of jobs in one status.
type StatusCount struct {
	Status string
	Jobs   int
	Files  int
}

// Counts tallies records by status, ordered by status name.
func Counts(records []tracking.JobRecord) []StatusCount {
	byStatus := lo.GroupBy(records, func(r tracking.JobRecord) string { return r.Status })
	out := make([]StatusCount, 0, len(byStatus))
	for st, recs := range byStatus {
		out = append(out, StatusCount{
			Status: st,
			Jobs:   len(recs),
			Files:  lo.SumBy(recs, func(r tracking.JobRecord) int { return r.FileCount }),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out
}

// Failed returns the records whose status is FAILED.
func Failed(records []tracking.JobRecord) []tracking.JobRecord {
	return lo.Filter(records, func(r tracking.JobRecord, _ int) bool { return r.Status == tracking.StatusFailed })
}
