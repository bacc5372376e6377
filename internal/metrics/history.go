package metrics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/corner4world/deepdetect/internal/config"
)

// HistoryEntry is one stored measure record.
type HistoryEntry struct {
	Service  string          `json:"service"`
	TestID   int             `json:"test_id"`
	TestName string          `json:"test_name,omitempty"`
	Digest   string          `json:"digest,omitempty"` // fingerprint of the evaluated batch
	Recorded time.Time       `json:"recorded"`
	Measure  json.RawMessage `json:"measure"`
}

// History stores measure records per service, oldest first.
type History interface {
	Append(ctx context.Context, e HistoryEntry) error
	// Range returns the entries of service recorded at or after since.
	// limit > 0 keeps the most recent limit entries.
	Range(ctx context.Context, service string, since time.Time, limit int) ([]HistoryEntry, error)
	Close() error
}

// NewHistory returns the Redis history when enabled, otherwise an in-memory
// one keeping maxMemoryEntries per service.
func NewHistory(cfg config.HistoryConfig) (History, error) {
	if !cfg.Enabled {
		return NewMemoryHistory(maxMemoryEntries), nil
	}
	rs, err := NewRedisStorage(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if cfg.TTLHours > 0 {
		rs.SetTTL(time.Duration(cfg.TTLHours) * time.Hour)
	}
	return rs, nil
}

const maxMemoryEntries = 1000

// MemoryHistory keeps the latest entries of each service in memory.
type MemoryHistory struct {
	mu      sync.RWMutex
	max     int
	entries map[string][]HistoryEntry
}

// NewMemoryHistory creates a history keeping at most max entries per service.
func NewMemoryHistory(max int) *MemoryHistory {
	if max < 1 {
		max = maxMemoryEntries
	}
	return &MemoryHistory{max: max, entries: make(map[string][]HistoryEntry)}
}

// Append stores e, dropping the oldest entry of its service when full.
func (h *MemoryHistory) Append(_ context.Context, e HistoryEntry) error {
	if e.Recorded.IsZero() {
		e.Recorded = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	list := append(h.entries[e.Service], e)
	if len(list) > h.max {
		list = list[len(list)-h.max:]
	}
	h.entries[e.Service] = list
	return nil
}

// Range implements History.
func (h *MemoryHistory) Range(_ context.Context, service string, since time.Time, limit int) ([]HistoryEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := []HistoryEntry{}
	for _, e := range h.entries[service] {
		if !e.Recorded.Before(since) {
			out = append(out, e)
		}
	}
	return tail(out, limit), nil
}

// Close implements History.
func (h *MemoryHistory) Close() error { return nil }

func tail(entries []HistoryEntry, limit int) []HistoryEntry {
	if limit > 0 && len(entries) > limit {
		return entries[len(entries)-limit:]
	}
	return entries
}
