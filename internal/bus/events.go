package bus

import (
	"context"

	"github.com/corner4world/deepdetect/internal/pkg/logger"
)

// MeasurePayload is carried by measure.completed and measure.aggregated.
type MeasurePayload struct {
	TestID   int    `json:"test_id"`
	TestName string `json:"test_name,omitempty"`
	Measure  any    `json:"measure"`
}

// FinalizedPayload is carried by predictions.finalized.
type FinalizedPayload struct {
	Predictions int  `json:"predictions"`
	Indexed     int  `json:"indexed"`
	Searched    bool `json:"searched"`
}

// Notifier publishes connector events. A nil Notifier or one without a bus
// drops them.
type Notifier struct {
	bus    Bus
	source string
	log    *logger.Logger
}

// NewNotifier creates a notifier publishing on b as source.
func NewNotifier(b Bus, source string, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.Default()
	}
	return &Notifier{bus: b, source: source, log: log.WithComponent("bus")}
}

// MeasureCompleted announces the record of one test pass.
func (n *Notifier) MeasureCompleted(ctx context.Context, p MeasurePayload) {
	n.publish(ctx, TopicMeasureCompleted, p)
}

// MeasureAggregated announces the averaged record of several test passes.
func (n *Notifier) MeasureAggregated(ctx context.Context, p MeasurePayload) {
	n.publish(ctx, TopicMeasureAggregated, p)
}

// PredictionsFinalized announces a finalized prediction response.
func (n *Notifier) PredictionsFinalized(ctx context.Context, p FinalizedPayload) {
	n.publish(ctx, TopicPredictionsFinalized, p)
}

func (n *Notifier) publish(ctx context.Context, topic string, payload any) {
	if n == nil || n.bus == nil {
		return
	}
	ev := NewEvent(topic, n.source, payload)
	if err := n.bus.Publish(ctx, topic, ev); err != nil {
		n.log.WithContext(ctx).Warn("Failed to publish event", "topic", topic, "event_id", ev.ID, "error", err.Error())
	}
}
