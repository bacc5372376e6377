package simsearch

import (
	"context"
	"math"
	"sync"

	"github.com/corner4world/deepdetect/internal/pkg/hash"
	"github.com/corner4world/deepdetect/internal/result"
)

// MemoryEngine keeps indexes in process and searches them exhaustively.
type MemoryEngine struct{}

// NewMemoryEngine creates an in-process engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{}
}

// Name implements Engine.
func (e *MemoryEngine) Name() string { return "memory" }

// Create implements Engine.
func (e *MemoryEngine) Create(_ context.Context, _ string, dim int) (Index, error) {
	return &memoryIndex{dim: dim, pos: make(map[string]int)}, nil
}

type memoryIndex struct {
	mu      sync.RWMutex
	dim     int
	entries []Entry
	pos     map[string]int
}

// Index upserts entries. Re-indexing the same uri and box replaces the vector.
func (m *memoryIndex) Index(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		id := entryID(e)
		if i, ok := m.pos[id]; ok {
			m.entries[i] = e
			continue
		}
		m.pos[id] = len(m.entries)
		m.entries = append(m.entries, e)
	}
	return nil
}

// Build is a no-op: exhaustive search needs no training.
func (m *memoryIndex) Build(context.Context) error {
	return nil
}

func (m *memoryIndex) Search(_ context.Context, vec []float64, k int) ([]result.Neighbour, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nns := make([]result.Neighbour, 0, len(m.entries))
	for _, e := range m.entries {
		nns = append(nns, neighbour(e, l2(vec, e.Vector)))
	}
	result.SortNeighbours(nns)
	if k >= 0 && k < len(nns) {
		nns = nns[:k]
	}
	return nns, nil
}

func (m *memoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.pos = make(map[string]int)
	return nil
}

func entryID(e Entry) string {
	if e.BBox == nil {
		return hash.PointID(e.URI)
	}
	return hash.PointID(e.URI, e.BBox.Slice()...)
}

func neighbour(e Entry, dist float64) result.Neighbour {
	n := result.Neighbour{URI: e.URI, Dist: dist}
	if e.BBox != nil {
		box := *e.BBox
		n.BBox = &box
		n.Prob = e.Prob
		n.Cat = e.Cat
	}
	return n
}

func l2(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}
