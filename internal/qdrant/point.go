package qdrant

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// Upsert writes points batchSize at a time. Points with an existing id are
// replaced.
func (c *Client) Upsert(ctx context.Context, index string, points []Point, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	for start := 0; start < len(points); start += batchSize {
		end := min(start+batchSize, len(points))
		batch := make([]*qdrant.PointStruct, 0, end-start)
		for _, p := range points[start:end] {
			batch = append(batch, toPointStruct(p))
		}
		err := c.call(ctx, func(ctx context.Context) error {
			_, err := c.conn.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: c.collection(index),
				Points:         batch,
				Wait:           qdrant.PtrOf(true),
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("upserting points %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// Count returns the exact number of points of index.
func (c *Client) Count(ctx context.Context, index string) (uint64, error) {
	var n uint64
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		n, err = c.conn.Count(ctx, &qdrant.CountPoints{
			CollectionName: c.collection(index),
			Exact:          qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return n, nil
}

func toPointStruct(p Point) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(p.ID),
		Vectors: qdrant.NewVectors(p.Vector...),
		Payload: qdrant.NewValueMap(encodeMeta(p.Meta)),
	}
}

// encodeMeta flattens m. Whole-sample points carry the uri only.
func encodeMeta(m Meta) map[string]any {
	payload := map[string]any{
		"uri":        m.URI,
		"indexed_at": m.IndexedAt.UTC().Format(time.RFC3339),
	}
	if m.BBox != nil {
		payload["xmin"] = m.BBox[0]
		payload["ymin"] = m.BBox[1]
		payload["xmax"] = m.BBox[2]
		payload["ymax"] = m.BBox[3]
		payload["prob"] = m.Prob
		payload["cat"] = m.Cat
	}
	return payload
}

func decodeMeta(payload map[string]*qdrant.Value) Meta {
	m := Meta{
		URI:  str(payload["uri"]),
		Cat:  str(payload["cat"]),
		Prob: num(payload["prob"]),
	}
	if _, ok := payload["xmin"]; ok {
		m.BBox = &[4]float64{
			num(payload["xmin"]),
			num(payload["ymin"]),
			num(payload["xmax"]),
			num(payload["ymax"]),
		}
	}
	if t, err := time.Parse(time.RFC3339, str(payload["indexed_at"])); err == nil {
		m.IndexedAt = t
	}
	return m
}

func str(v *qdrant.Value) string {
	if v == nil {
		return ""
	}
	return v.GetStringValue()
}

// num also accepts integers, which Qdrant returns for whole numbers.
func num(v *qdrant.Value) float64 {
	if v == nil {
		return 0
	}
	switch k := v.Kind.(type) {
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_IntegerValue:
		return float64(k.IntegerValue)
	}
	return 0
}
