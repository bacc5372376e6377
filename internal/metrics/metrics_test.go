package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/corner4world/deepdetect/internal/config"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordBusPublish("t", 1, nil)
	if got := testutil.ToFloat64(b.BusPublishes.WithLabelValues("t", "ok")); got != 0 {
		t.Errorf("collectors leaked between instances: %v", got)
	}
}

func TestRecordMeasure(t *testing.T) {
	m := New()
	m.RecordMeasure(time.Millisecond, 12, []string{"cmdiag"}, nil)
	m.RecordMeasure(time.Millisecond, 0, nil, errors.New("bad batch"))

	if got := testutil.ToFloat64(m.MeasureRuns.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok runs = %v", got)
	}
	if got := testutil.ToFloat64(m.MeasureRuns.WithLabelValues("error")); got != 1 {
		t.Errorf("error runs = %v", got)
	}
	if got := testutil.ToFloat64(m.SkippedMetrics.WithLabelValues("cmdiag")); got != 1 {
		t.Errorf("skipped cmdiag = %v", got)
	}
}

func TestRecordFinalize(t *testing.T) {
	m := New()
	m.RecordFinalize(time.Millisecond, 3, 3, true, nil)
	m.RecordFinalize(time.Millisecond, 5, 0, false, errors.New("index"))

	if got := testutil.ToFloat64(m.Predictions); got != 3 {
		t.Errorf("predictions = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.IndexedEntries); got != 3 {
		t.Errorf("indexed = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.IndexSearches); got != 1 {
		t.Errorf("searches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FinalizeRuns.WithLabelValues("error")); got != 1 {
		t.Errorf("failed finalize runs = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordMeasure(0, 0, nil, nil)
	m.RecordFinalize(0, 0, 0, false, nil)
	m.RecordBusPublish("t", 0, nil)
	m.RecordHTTP("GET", "/", 200, 0)
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordBusPublish("measure.completed", 2, nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `dd_output_bus_publish_total{status="ok",topic="measure.completed"} 1`) {
		t.Errorf("missing bus counter in exposition:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("runtime collector not registered")
	}
}

func TestMemoryHistory(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(2)
	base := time.Now()

	for i := 0; i < 3; i++ {
		h.Append(ctx, HistoryEntry{Service: "svc", TestID: i, Recorded: base.Add(time.Duration(i) * time.Second), Measure: json.RawMessage(`{}`)})
	}
	h.Append(ctx, HistoryEntry{Service: "other", Measure: json.RawMessage(`{}`)})

	entries, err := h.Range(ctx, "svc", time.Time{}, 0)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(entries) != 2 || entries[0].TestID != 1 || entries[1].TestID != 2 {
		t.Errorf("expected the 2 latest entries, got %+v", entries)
	}

	since, _ := h.Range(ctx, "svc", base.Add(2*time.Second), 0)
	if len(since) != 1 {
		t.Errorf("since filter: got %d entries", len(since))
	}
	limited, _ := h.Range(ctx, "svc", time.Time{}, 1)
	if len(limited) != 1 || limited[0].TestID != 2 {
		t.Errorf("limit filter: got %+v", limited)
	}
	empty, _ := h.Range(ctx, "unknown", time.Time{}, 0)
	if empty == nil || len(empty) != 0 {
		t.Errorf("unknown service should give an empty list, got %v", empty)
	}
}

func TestNewHistory_Memory(t *testing.T) {
	h, err := NewHistory(config.HistoryConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewHistory: %v", err)
	}
	if _, ok := h.(*MemoryHistory); !ok {
		t.Errorf("expected *MemoryHistory, got %T", h)
	}
}
