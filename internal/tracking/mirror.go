package tracking

import (
	"context"

	"github.com/rs/zerolog/log"
)

// MirroredTracker writes to a primary tracker and copies every save to a
// secondary one. Loads come from the primary only, and secondary failures
// are logged rather than returned.
type MirroredTracker struct {
	Primary   Tracker
	Secondary Tracker
}

var _ Tracker = MirroredTracker{}

func (m MirroredTracker) Save(ctx context.Context, records []JobRecord) error {
	if err := m.Primary.Save(ctx, records); err != nil {
		return err
	}
	if m.Secondary != nil {
		if err := m.Secondary.Save(ctx, records); err != nil {
			log.Warn().Err(err).Int("jobs", len(records)).Msg("Failed to mirror job records")
		}
	}
	return nil
}

func (m MirroredTracker) Load(ctx context.Context) ([]JobRecord, error) {
	return m.Primary.Load(ctx)
}
