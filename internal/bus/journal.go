package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/corner4world/deepdetect/internal/pkg/errors"
	"github.com/corner4world/deepdetect/internal/pkg/logger"
)

// JournalEntry is one published event as stored on disk.
type JournalEntry struct {
	Topic    string    `json:"topic"`
	Event    Event     `json:"event"`
	Recorded time.Time `json:"recorded"`
}

// Journal appends published events to a JSON lines file so that test
// passes and finalized predictions can be inspected or replayed later.
type Journal struct {
	path string

	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// OpenJournal opens path for appending, creating it and its directory.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return &Journal{path: path, file: f, enc: json.NewEncoder(f)}, nil
}

// Append writes one entry.
func (j *Journal) Append(topic string, event Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return errors.New(errors.CodeUnavailable, "journal is closed")
	}
	if err := j.enc.Encode(JournalEntry{Topic: topic, Event: event, Recorded: time.Now()}); err != nil {
		return fmt.Errorf("encoding journal entry: %w", err)
	}
	return nil
}

// Read returns the entries recorded after since, oldest first. limit > 0
// caps the result. Malformed lines are skipped.
func (j *Journal) Read(since time.Time, limit int) ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ReadJournal(j.path, since, limit)
}

// ReadJournal reads a journal file without opening it for writing.
func ReadJournal(path string, since time.Time, limit int) ([]JournalEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []JournalEntry{}, nil
		}
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	entries := []JournalEntry{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var e JournalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if !e.Recorded.After(since) {
			continue
		}
		entries = append(entries, e)
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning journal: %w", err)
	}
	return entries, nil
}

// Replay republishes the entries recorded after since on b.
func (j *Journal) Replay(ctx context.Context, b Bus, since time.Time) (int, error) {
	entries, err := j.Read(since, 0)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := b.Publish(ctx, e.Topic, e.Event); err != nil {
			return i, fmt.Errorf("replaying event %s: %w", e.Event.ID, err)
		}
	}
	return len(entries), nil
}

// Close closes the file. Further appends fail.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	j.enc = nil
	return err
}

// JournaledBus records every published event before delegating.
type JournaledBus struct {
	Bus
	journal *Journal
	log     *logger.Logger
}

// NewJournaledBus wraps inner. The journal is closed with the bus.
func NewJournaledBus(inner Bus, journal *Journal, log *logger.Logger) *JournaledBus {
	if log == nil {
		log = logger.Default()
	}
	return &JournaledBus{Bus: inner, journal: journal, log: log.WithComponent("bus")}
}

// Journal returns the underlying journal.
func (b *JournaledBus) Journal() *Journal {
	return b.journal
}

// Publish journals event and publishes it. Journal failures are logged only.
func (b *JournaledBus) Publish(ctx context.Context, topic string, event Event) error {
	if err := b.journal.Append(topic, event); err != nil {
		b.log.Warn("Failed to journal event", "topic", topic, "event_id", event.ID, "error", err.Error())
	}
	return b.Bus.Publish(ctx, topic, event)
}

// Close closes the journal and the wrapped bus.
func (b *JournaledBus) Close() error {
	if err := b.journal.Close(); err != nil {
		b.log.Warn("Failed to close journal", "error", err.Error())
	}
	return b.Bus.Close()
}
