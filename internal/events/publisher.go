// Package events announces finished conversion batches on EventBridge.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

const (
	// Source is the EventBridge source of every event published here.
	Source = "raster-cog-converter"
	// DetailTypeBatchCompleted marks a finished worker invocation.
	DetailTypeBatchCompleted = "CogBatchCompleted"
)

// BatchCompleted is the detail of a DetailTypeBatchCompleted event.
type BatchCompleted struct {
	JobID       string       `json:"jobId,omitempty"`
	ManifestKey string       `json:"manifestKey,omitempty"`
	Runtime     string       `json:"runtime"`
	Kind        string       `json:"kind"`
	Total       int          `json:"total"`
	Succeeded   int          `json:"succeeded"`
	Skipped     int          `json:"skipped"`
	Failed      int          `json:"failed"`
	Failures    []FailedItem `json:"failures,omitempty"`
	FinishedAt  time.Time    `json:"finishedAt"`
}

// FailedItem is one failed key in a BatchCompleted event.
type FailedItem struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

type putEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher sends events to one bus.
type Publisher struct {
	client putEventsAPI
	bus    string
}

// NewPublisher returns a Publisher for bus. An empty bus means the default bus.
func NewPublisher(client *eventbridge.Client, bus string) *Publisher {
	return &Publisher{client: client, bus: bus}
}

// PublishBatchCompleted sends ev. Failures are returned but callers treat
// them as non-fatal: the batch outcome is already decided.
func (p *Publisher) PublishBatchCompleted(ctx context.Context, ev BatchCompleted) error {
	detail, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal BatchCompleted: %w", err)
	}

	entry := eventbridgetypes.PutEventsRequestEntry{
		Source:     aws.String(Source),
		DetailType: aws.String(DetailTypeBatchCompleted),
		Detail:     aws.String(string(detail)),
	}
	if p.bus != "" {
		entry.EventBusName = aws.String(p.bus)
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("PutEvents: %w", err)
	}
	if result.FailedEntryCount > 0 {
		for i, e := range result.Entries {
			if e.ErrorCode != nil || e.ErrorMessage != nil {
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
		return fmt.Errorf("PutEvents: %d entries failed", result.FailedEntryCount)
	}

	log.Debug().Str("bus", p.bus).Str("manifestKey", ev.ManifestKey).Str("kind", ev.Kind).Msg("Batch completion published")
	return nil
}
