package simsearch

import (
	"context"
	"sync"

	apperrors "github.com/corner4world/deepdetect/internal/pkg/errors"
	"github.com/corner4world/deepdetect/internal/pkg/logger"
	"github.com/corner4world/deepdetect/internal/result"
)

// Manager owns the lifecycle of one index: it stays uncreated until the
// first index or search call supplies a dimension. Calls are serialized.
type Manager struct {
	mu     sync.Mutex
	engine Engine
	name   string
	idx    Index
	dim    int
	log    *logger.Logger
}

// NewManager creates a manager for the named index on engine.
func NewManager(engine Engine, name string, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		engine: engine,
		name:   name,
		log:    log.WithComponent("simsearch"),
	}
}

// Created reports whether the index exists.
func (m *Manager) Created() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idx != nil
}

// Dim returns the index dimension, 0 before creation.
func (m *Manager) Dim() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dim
}

// EnsureCreated creates the index with dimension dim unless it exists.
func (m *Manager) EnsureCreated(ctx context.Context, dim int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idx != nil {
		return nil
	}
	if dim < 1 {
		return apperrors.SimIndexError("index dimension must be positive", nil)
	}
	idx, err := m.engine.Create(ctx, m.name, dim)
	if err != nil {
		return apperrors.SimIndexError("failed to create index", err)
	}
	m.idx = idx
	m.dim = dim
	m.log.Info("Created similarity index", "engine", m.engine.Name(), "index", m.name, "dim", dim)
	return nil
}

// Index adds entries to the index.
func (m *Manager) Index(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idx == nil {
		return apperrors.SimIndexError("cannot index if not created", nil)
	}
	for _, e := range entries {
		if len(e.Vector) != m.dim {
			return apperrors.SimIndexError("vector dimension does not match the index", nil).
				WithDetail("uri", e.URI)
		}
	}
	if err := m.idx.Index(ctx, entries); err != nil {
		return apperrors.SimIndexError("indexing failed", err)
	}
	return nil
}

// Build finalizes the index. It fails when the index was never created.
func (m *Manager) Build(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idx == nil {
		return apperrors.SimIndexError("cannot build index if not created", nil)
	}
	if err := m.idx.Build(ctx); err != nil {
		return apperrors.SimIndexError("index build failed", err)
	}
	return nil
}

// Search returns the k nearest indexed entries to vec.
func (m *Manager) Search(ctx context.Context, vec []float64, k int) ([]result.Neighbour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idx == nil {
		return nil, apperrors.SimIndexError("cannot search index if not created", nil)
	}
	if len(vec) != m.dim {
		return nil, apperrors.SimIndexError("query dimension does not match the index", nil)
	}
	nns, err := m.idx.Search(ctx, vec, k)
	if err != nil {
		return nil, apperrors.SimIndexError("search failed", err)
	}
	return nns, nil
}

// Close releases the index. The manager can create a new one afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idx == nil {
		return nil
	}
	err := m.idx.Close()
	m.idx = nil
	m.dim = 0
	return err
}
