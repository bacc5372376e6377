// Package result holds per-sample score records and the result set built
// from prediction batches.
package result

import (
	"fmt"
	"sort"
)

// BBox is a detection box in image coordinates.
type BBox struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

// Slice returns the box as [xmin, ymin, xmax, ymax].
func (b BBox) Slice() []float64 {
	return []float64{b.XMin, b.YMin, b.XMax, b.YMax}
}

// ROI is the feature vector extracted for a region of interest.
type ROI struct {
	Vals []float64 `json:"vals"`
}

// Series is one time-series output.
type Series struct {
	Out []float64 `json:"out"`
}

// Mask is a segmentation mask attached to a detection. Its content is
// passed through untouched.
type Mask struct {
	Format string `json:"format,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   []int  `json:"data"`
}

// Neighbour is a similarity search hit.
type Neighbour struct {
	URI  string  `json:"uri"`
	Dist float64 `json:"dist"`
	Prob float64 `json:"prob,omitempty"`
	Cat  string  `json:"cat,omitempty"`
	BBox *BBox   `json:"bbox,omitempty"`
}

// SortNeighbours orders hits by ascending distance, keeping arrival order on ties.
func SortNeighbours(nns []Neighbour) {
	sort.SliceStable(nns, func(i, j int) bool {
		return nns[i].Dist < nns[j].Dist
	})
}

// Record is one sample's ranked outputs. Every populated collection has
// the same length and index i of each refers to the same detection.
type Record struct {
	URI      string
	IndexURI string
	Loss     float64

	Cats   ScoredList[string]
	BBoxes ScoredList[BBox]
	Vals   ScoredList[ROI]
	Masks  ScoredList[Mask]
	Series ScoredList[Series]

	Indexed bool
	NNs     []Neighbour
	BBoxNNs [][]Neighbour
}

// NewRecord creates an empty record for uri.
func NewRecord(uri string, loss float64) *Record {
	return &Record{URI: uri, Loss: loss}
}

// Shell returns an empty record carrying r's identity and loss.
func (r *Record) Shell() *Record {
	return &Record{URI: r.URI, IndexURI: r.IndexURI, Loss: r.Loss}
}

// mustAlign panics when populated collections disagree in length.
func (r *Record) mustAlign() {
	n := -1
	for _, l := range []int{r.Cats.Len(), r.BBoxes.Len(), r.Vals.Len(), r.Masks.Len()} {
		if l == 0 {
			continue
		}
		if n >= 0 && l != n {
			panic(fmt.Sprintf("result: record %q has collections of length %d and %d", r.URI, n, l))
		}
		n = l
	}
}

// Scores returns the category scores of r in rank order.
func (r *Record) Scores() []float64 {
	out := make([]float64, r.Cats.Len())
	for i, c := range r.Cats.Items() {
		out[i] = c.Score
	}
	return out
}
