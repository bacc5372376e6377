// Package bus publishes output connector events to in-process or Kafka
// subscribers.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handler handles one event.
type Handler func(ctx context.Context, event Event) error

// Bus is an event bus.
type Bus interface {
	// Publish sends event to every subscriber of topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe registers handler for topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close releases the bus.
	Close() error
}

// Event is a bus message.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
	Payload   any    `json:"payload"`
}

// NewEvent stamps a payload with a fresh id and the current time.
func NewEvent(eventType, source string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// Topics.
const (
	// A test pass produced a measure record.
	TopicMeasureCompleted = "measure.completed"

	// Several test passes were averaged into one record.
	TopicMeasureAggregated = "measure.aggregated"

	// A prediction response was finalized.
	TopicPredictionsFinalized = "predictions.finalized"
)
