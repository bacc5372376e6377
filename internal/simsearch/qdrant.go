package simsearch

import (
	"context"
	"time"

	apperrors "github.com/corner4world/deepdetect/internal/pkg/errors"
	"github.com/corner4world/deepdetect/internal/qdrant"
	"github.com/corner4world/deepdetect/internal/result"
)

// QdrantEngine stores each index as a Qdrant collection.
type QdrantEngine struct {
	client    *qdrant.Client
	batchSize int
}

// NewQdrantEngine creates an engine on an open client. Points are upserted
// batchSize at a time.
func NewQdrantEngine(client *qdrant.Client, batchSize int) *QdrantEngine {
	return &QdrantEngine{client: client, batchSize: batchSize}
}

// Name implements Engine.
func (e *QdrantEngine) Name() string { return "qdrant" }

// Ping implements Pinger.
func (e *QdrantEngine) Ping(ctx context.Context) error {
	if err := e.client.Ping(ctx); err != nil {
		return apperrors.QdrantError("ping", err)
	}
	return nil
}

// Create implements Engine. An existing collection is reused.
func (e *QdrantEngine) Create(ctx context.Context, name string, dim int) (Index, error) {
	if err := e.client.EnsureCollection(ctx, name, dim); err != nil {
		return nil, apperrors.QdrantError("create collection", err)
	}
	return &qdrantIndex{client: e.client, collection: name, batchSize: e.batchSize}, nil
}

type qdrantIndex struct {
	client     *qdrant.Client
	collection string
	batchSize  int
}

func (q *qdrantIndex) Index(ctx context.Context, entries []Entry) error {
	now := time.Now()
	points := make([]qdrant.Point, 0, len(entries))
	for _, e := range entries {
		p := qdrant.Point{
			ID:     entryID(e),
			Vector: toFloat32(e.Vector),
			Meta:   qdrant.Meta{URI: e.URI, IndexedAt: now},
		}
		if e.BBox != nil {
			p.Meta.BBox = &[4]float64{e.BBox.XMin, e.BBox.YMin, e.BBox.XMax, e.BBox.YMax}
			p.Meta.Prob = e.Prob
			p.Meta.Cat = e.Cat
		}
		points = append(points, p)
	}
	if err := q.client.Upsert(ctx, q.collection, points, q.batchSize); err != nil {
		return apperrors.QdrantError("upsert points", err)
	}
	return nil
}

// Build checks the collection is reachable; Qdrant indexes points as they arrive.
func (q *qdrantIndex) Build(ctx context.Context) error {
	if _, err := q.client.Count(ctx, q.collection); err != nil {
		return apperrors.QdrantError("count points", err)
	}
	return nil
}

func (q *qdrantIndex) Search(ctx context.Context, vec []float64, k int) ([]result.Neighbour, error) {
	hits, err := q.client.Search(ctx, q.collection, toFloat32(vec), k)
	if err != nil {
		return nil, apperrors.QdrantError("search", err)
	}
	nns := make([]result.Neighbour, 0, len(hits))
	for _, h := range hits {
		n := result.Neighbour{URI: h.Meta.URI, Dist: float64(h.Dist)}
		if b := h.Meta.BBox; b != nil {
			n.BBox = &result.BBox{XMin: b[0], YMin: b[1], XMax: b[2], YMax: b[3]}
			n.Prob = h.Meta.Prob
			n.Cat = h.Meta.Cat
		}
		nns = append(nns, n)
	}
	result.SortNeighbours(nns)
	return nns, nil
}

// Close leaves the collection in place; the client is owned by the caller.
func (q *qdrantIndex) Close() error {
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
