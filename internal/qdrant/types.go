// Package qdrant stores similarity index entries in Qdrant: one collection
// per index, one unnamed dense vector per point, compared by Euclidean
// distance.
package qdrant

import "time"

// Point is one indexed output.
type Point struct {
	// ID is a UUID, see hash.PointID.
	ID     string
	Vector []float32
	Meta   Meta
}

// Meta identifies the sample, and the region for roi entries, a vector was
// taken from. It is stored as the point payload.
type Meta struct {
	URI       string
	BBox      *[4]float64 // xmin, ymin, xmax, ymax
	Prob      float64
	Cat       string
	IndexedAt time.Time
}

// Hit is one search result. Dist is the Euclidean distance to the query.
type Hit struct {
	ID   string
	Dist float32
	Meta Meta
}
