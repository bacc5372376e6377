package bus

import (
	"context"
	"time"
)

// MetricsRecorder records publish outcomes. Implemented by the metrics
// package.
type MetricsRecorder interface {
	RecordBusPublish(topic string, latencyMs int64, err error)
}

// InstrumentedBus records the latency and outcome of every publish.
type InstrumentedBus struct {
	Bus
	metrics MetricsRecorder
}

// NewInstrumentedBus wraps inner.
func NewInstrumentedBus(inner Bus, metrics MetricsRecorder) *InstrumentedBus {
	return &InstrumentedBus{Bus: inner, metrics: metrics}
}

// Publish delegates to the wrapped bus and records the call.
func (b *InstrumentedBus) Publish(ctx context.Context, topic string, event Event) error {
	start := time.Now()
	err := b.Bus.Publish(ctx, topic, event)
	if b.metrics != nil {
		b.metrics.RecordBusPublish(topic, time.Since(start).Milliseconds(), err)
	}
	return err
}
