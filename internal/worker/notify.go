package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/raster-cog-converter/internal/events"
)

// Notifier receives batch completion events.
type Notifier interface {
	PublishBatchCompleted(ctx context.Context, ev events.BatchCompleted) error
}

// CompletionEvent describes outcome for publication.
func CompletionEvent(runtime, jobID, manifestKey string, outcome *BatchOutcome, at time.Time) events.BatchCompleted {
	ev := events.BatchCompleted{
		JobID:       jobID,
		ManifestKey: manifestKey,
		Runtime:     runtime,
		Kind:        outcome.Kind(),
		Total:       outcome.Total,
		Succeeded:   outcome.Succeeded,
		Skipped:     outcome.Skipped,
		Failed:      outcome.Failed,
		FinishedAt:  at.UTC(),
	}
	for _, f := range outcome.Failures {
		ev.Failures = append(ev.Failures, events.FailedItem{Key: f.Key, Error: f.Error})
	}
	return ev
}

// Notify publishes outcome when n is set. Publication errors are logged only.
func Notify(ctx context.Context, n Notifier, ev events.BatchCompleted) {
	if n == nil {
		return
	}
	if err := n.PublishBatchCompleted(ctx, ev); err != nil {
		log.Warn().Err(err).Str("manifestKey", ev.ManifestKey).Msg("Failed to publish batch completion")
	}
}
