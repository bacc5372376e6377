// Package simsearch provides the optional similarity index used to attach
// nearest neighbours to predictions.
package simsearch

import (
	"context"

	"github.com/corner4world/deepdetect/internal/result"
)

// Entry is one vector to index: a whole sample's scores, or the features
// of one of its regions.
type Entry struct {
	URI    string
	Vector []float64

	// Region identity, set for roi entries only.
	BBox *result.BBox
	Prob float64
	Cat  string
}

// Index stores vectors and answers nearest neighbour queries by Euclidean
// distance, nearest first.
type Index interface {
	Index(ctx context.Context, entries []Entry) error
	Build(ctx context.Context) error
	Search(ctx context.Context, vec []float64, k int) ([]result.Neighbour, error)
	Close() error
}

// Engine creates indexes. name identifies the index within the engine.
type Engine interface {
	Create(ctx context.Context, name string, dim int) (Index, error)
	Name() string
}

// Pinger is implemented by engines backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}
