package qdrant

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// indexingThreshold is the point count before Qdrant builds its HNSW graph.
// Smaller indexes are searched exhaustively, which is exact.
const indexingThreshold = 20000

// EnsureCollection creates the Euclidean collection of index for vectors of
// dim values. An existing collection is reused as is.
func (c *Client) EnsureCollection(ctx context.Context, index string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("index %s: vector size must be positive, got %d", index, dim)
	}
	name := c.collection(index)
	return c.call(ctx, func(ctx context.Context) error {
		names, err := c.conn.ListCollections(ctx)
		if err != nil {
			return fmt.Errorf("listing collections: %w", err)
		}
		if slices.Contains(names, name) {
			return nil
		}

		err = c.conn.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Euclid,
			}),
			OptimizersConfig: &qdrant.OptimizersConfigDiff{
				IndexingThreshold: qdrant.PtrOf(uint64(indexingThreshold)),
			},
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", name, err)
		}

		_, err = c.conn.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      "uri",
			FieldType:      qdrant.PtrOf(qdrant.FieldType_FieldTypeKeyword),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("indexing uri of %s: %w", name, err)
		}
		return nil
	})
}
