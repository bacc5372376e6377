package bus

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corner4world/deepdetect/internal/config"
	"github.com/corner4world/deepdetect/internal/pkg/logger"
)

func waitGroup(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timeout waiting for handlers")
	}
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(TopicMeasureCompleted, "test", 42)
	if ev.ID == "" {
		t.Error("event should get an id")
	}
	if ev.Type != TopicMeasureCompleted || ev.Source != "test" || ev.Payload != 42 {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Timestamp == 0 {
		t.Error("event should be timestamped")
	}
	if other := NewEvent(TopicMeasureCompleted, "test", nil); other.ID == ev.ID {
		t.Error("event ids should be unique")
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	b := NewMemoryBus(logger.Discard())
	defer b.Close()

	var received atomic.Int32
	var wg sync.WaitGroup

	if err := b.Subscribe(context.Background(), TopicMeasureCompleted, func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	wg.Add(3)
	for i := 0; i < 3; i++ {
		if err := b.Publish(context.Background(), TopicMeasureCompleted, NewEvent("test", "test", i)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	waitGroup(t, &wg, time.Second)

	if got := received.Load(); got != 3 {
		t.Errorf("received %d events, want 3", got)
	}
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	b := NewMemoryBus(logger.Discard())
	defer b.Close()

	var count1, count2 atomic.Int32
	var wg sync.WaitGroup
	b.Subscribe(context.Background(), "t", func(ctx context.Context, event Event) error {
		count1.Add(1)
		wg.Done()
		return nil
	})
	b.Subscribe(context.Background(), "t", func(ctx context.Context, event Event) error {
		count2.Add(1)
		wg.Done()
		return errors.New("handler failure is logged only")
	})

	wg.Add(2)
	if err := b.Publish(context.Background(), "t", Event{ID: "x"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	waitGroup(t, &wg, time.Second)

	if count1.Load() != 1 || count2.Load() != 1 {
		t.Errorf("expected both subscribers to receive 1 event, got %d and %d", count1.Load(), count2.Load())
	}
}

func TestMemoryBus_NoSubscribers(t *testing.T) {
	b := NewMemoryBus(logger.Discard())
	defer b.Close()

	if err := b.Publish(context.Background(), "empty", Event{ID: "x"}); err != nil {
		t.Errorf("Publish() to empty topic error = %v", err)
	}
}

func TestMemoryBus_HandlerOutlivesRequestContext(t *testing.T) {
	b := NewMemoryBus(logger.Discard())
	defer b.Close()

	var wg sync.WaitGroup
	var ctxErr atomic.Value
	b.Subscribe(context.Background(), "t", func(ctx context.Context, event Event) error {
		time.Sleep(10 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			ctxErr.Store(err)
		}
		wg.Done()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	wg.Add(1)
	b.Publish(ctx, "t", Event{ID: "x"})
	cancel()
	waitGroup(t, &wg, time.Second)

	if v := ctxErr.Load(); v != nil {
		t.Errorf("handler context was cancelled: %v", v)
	}
}

func TestMemoryBus_Close(t *testing.T) {
	b := NewMemoryBus(logger.Discard())
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if err := b.Publish(context.Background(), "t", Event{}); err == nil {
		t.Error("Publish() after Close() should error")
	}
	if err := b.Subscribe(context.Background(), "t", func(ctx context.Context, event Event) error { return nil }); err == nil {
		t.Error("Subscribe() after Close() should error")
	}
}

func TestMemoryBus_Concurrent(t *testing.T) {
	b := NewMemoryBus(logger.Discard())
	defer b.Close()

	var received atomic.Int32
	var wg sync.WaitGroup
	b.Subscribe(context.Background(), "c", func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	publishers, perPublisher := 10, 100
	wg.Add(publishers * perPublisher)
	for p := 0; p < publishers; p++ {
		go func() {
			for i := 0; i < perPublisher; i++ {
				b.Publish(context.Background(), "c", Event{ID: "x"})
			}
		}()
	}
	waitGroup(t, &wg, 5*time.Second)

	if got, want := received.Load(), int32(publishers*perPublisher); got != want {
		t.Errorf("received %d events, want %d", got, want)
	}
}

type recorder struct {
	mu     sync.Mutex
	topics []string
	errs   int
}

func (r *recorder) RecordBusPublish(topic string, _ int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	if err != nil {
		r.errs++
	}
}

func TestInstrumentedBus(t *testing.T) {
	inner := NewMemoryBus(logger.Discard())
	rec := &recorder{}
	b := NewInstrumentedBus(inner, rec)

	b.Publish(context.Background(), TopicPredictionsFinalized, Event{ID: "1"})
	b.Close()
	b.Publish(context.Background(), TopicPredictionsFinalized, Event{ID: "2"})

	if len(rec.topics) != 2 || rec.topics[0] != TopicPredictionsFinalized {
		t.Errorf("recorded topics = %v", rec.topics)
	}
	if rec.errs != 1 {
		t.Errorf("expected 1 failed publish, got %d", rec.errs)
	}
}

func TestJournaledBus_RecordsAndReplays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events", "journal.jsonl")
	journal, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	since := time.Now().Add(-time.Second)

	b := NewJournaledBus(NewMemoryBus(logger.Discard()), journal, logger.Discard())
	n := NewNotifier(b, "test", logger.Discard())
	n.MeasureCompleted(context.Background(), MeasurePayload{TestID: 0, Measure: map[string]float64{"acc": 1}})
	n.PredictionsFinalized(context.Background(), FinalizedPayload{Predictions: 2})

	entries, err := journal.Read(since, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 journal entries, got %d", len(entries))
	}
	if entries[0].Topic != TopicMeasureCompleted || entries[1].Topic != TopicPredictionsFinalized {
		t.Errorf("unexpected topics %s, %s", entries[0].Topic, entries[1].Topic)
	}
	if limited, _ := journal.Read(since, 1); len(limited) != 1 {
		t.Errorf("limit should cap the result, got %d", len(limited))
	}

	target := NewMemoryBus(logger.Discard())
	defer target.Close()
	var wg sync.WaitGroup
	var replayed atomic.Int32
	for _, topic := range []string{TopicMeasureCompleted, TopicPredictionsFinalized} {
		target.Subscribe(context.Background(), topic, func(ctx context.Context, event Event) error {
			replayed.Add(1)
			wg.Done()
			return nil
		})
	}
	wg.Add(2)
	count, err := journal.Replay(context.Background(), target, since)
	if err != nil || count != 2 {
		t.Fatalf("Replay() = %d, %v", count, err)
	}
	waitGroup(t, &wg, time.Second)

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := journal.Append("t", Event{}); err == nil {
		t.Error("append after close should fail")
	}
	fromDisk, err := ReadJournal(path, since, 0)
	if err != nil || len(fromDisk) != 2 {
		t.Errorf("ReadJournal() = %d entries, %v", len(fromDisk), err)
	}
}

func TestReadJournal_Missing(t *testing.T) {
	entries, err := ReadJournal(filepath.Join(t.TempDir(), "missing.jsonl"), time.Time{}, 0)
	if err != nil || len(entries) != 0 {
		t.Errorf("ReadJournal() = %v, %v", entries, err)
	}
}

func TestNotifier_NilIsNoop(t *testing.T) {
	var n *Notifier
	n.MeasureCompleted(context.Background(), MeasurePayload{})
	NewNotifier(nil, "test", logger.Discard()).PredictionsFinalized(context.Background(), FinalizedPayload{})
}

func TestNewBus(t *testing.T) {
	b, err := NewBus(config.BusConfig{Type: "memory"}, logger.Discard())
	if err != nil {
		t.Fatalf("memory bus: %v", err)
	}
	if _, ok := b.(*MemoryBus); !ok {
		t.Errorf("expected *MemoryBus, got %T", b)
	}
	b.Close()

	b, err = NewBus(config.BusConfig{Type: "memory", JournalPath: filepath.Join(t.TempDir(), "j.jsonl")}, logger.Discard())
	if err != nil {
		t.Fatalf("journaled bus: %v", err)
	}
	if _, ok := b.(*JournaledBus); !ok {
		t.Errorf("expected *JournaledBus, got %T", b)
	}
	b.Close()

	if _, err := NewBus(config.BusConfig{Type: "kafka"}, logger.Discard()); err == nil {
		t.Error("kafka without brokers should fail")
	}
	if _, err := NewBus(config.BusConfig{Type: "nats"}, logger.Discard()); err == nil {
		t.Error("unknown bus type should fail")
	}
}
