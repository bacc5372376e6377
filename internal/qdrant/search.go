package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

// Search returns the k points of index closest to vec, nearest first.
func (c *Client) Search(ctx context.Context, index string, vec []float32, k int) ([]Hit, error) {
	if len(vec) == 0 {
		return nil, errors.New("query vector is required")
	}
	if k <= 0 {
		return nil, nil
	}

	var points []*qdrant.ScoredPoint
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		points, err = c.conn.Query(ctx, &qdrant.QueryPoints{
			CollectionName: c.collection(index),
			Query:          qdrant.NewQueryDense(vec),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, toHit(p))
	}
	return hits, nil
}

func toHit(p *qdrant.ScoredPoint) Hit {
	var id string
	switch v := p.GetId().GetPointIdOptions().(type) {
	case *qdrant.PointId_Uuid:
		id = v.Uuid
	case *qdrant.PointId_Num:
		id = strconv.FormatUint(v.Num, 10)
	}
	return Hit{ID: id, Dist: p.Score, Meta: decodeMeta(p.Payload)}
}
