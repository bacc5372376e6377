// Package topk reduces a result set to the best entries per sample.
package topk

import (
	"fmt"

	"github.com/corner4world/deepdetect/internal/result"
)

// Options controls the reduction.
type Options struct {
	// Best is the number of entries to keep; -1 means nclasses, or every
	// entry when nclasses is unknown.
	Best     int
	NClasses int
	HasBBox  bool
	HasROI   bool
	HasMask  bool
}

// BestCats builds a reduced copy of set. The input set is not modified.
//
// Without detections, each record keeps its Best top-ranked entries. With
// bbox, roi or mask outputs, entries are grouped by box coordinates and each
// distinct box keeps at most Best of its occurrences, unless Best equals
// NClasses in which case every detection is kept.
func BestCats(set *result.Set, opts Options) *result.Set {
	best := opts.Best
	if best == -1 && opts.NClasses > 0 {
		best = opts.NClasses
	}

	out := result.NewSet()
	detection := opts.HasBBox || opts.HasROI || opts.HasMask

	for _, rec := range set.Records() {
		var reduced *result.Record
		switch {
		case !detection:
			reduced = prefix(rec, best)
		case best < 0 || best == opts.NClasses:
			reduced = prefix(rec, -1)
		default:
			reduced = dedupBoxes(rec, best, opts.HasROI, opts.HasMask)
		}
		out.Insert(reduced)
	}
	return out
}

func prefix(rec *result.Record, n int) *result.Record {
	out := rec.Shell()
	out.Cats = rec.Cats.Prefix(n)
	out.BBoxes = rec.BBoxes.Prefix(n)
	out.Vals = rec.Vals.Prefix(n)
	out.Masks = rec.Masks.Prefix(n)
	out.Series = rec.Series.Prefix(n)
	return out
}

// BoxKey renders a box the way detection dedup keys it.
func BoxKey(b result.BBox) string {
	return fmt.Sprintf("%f-%f-%f-%f", b.XMin, b.YMin, b.XMax, b.YMax)
}

func dedupBoxes(rec *result.Record, best int, hasROI, hasMask bool) *result.Record {
	out := rec.Shell()
	// roi and mask entries only follow the boxes when every box has one
	withROI := hasROI && rec.Vals.Len() == rec.BBoxes.Len()
	withMask := hasMask && rec.Masks.Len() == rec.BBoxes.Len()

	seen := make(map[string]int)
	for i, box := range rec.BBoxes.Items() {
		key := BoxKey(box.Value)
		seen[key]++
		if seen[key] > 1 && seen[key] > best {
			continue
		}
		if i < rec.Cats.Len() {
			out.Cats.Append(rec.Cats.At(i))
		}
		out.BBoxes.Append(box)
		if withROI {
			out.Vals.Append(rec.Vals.At(i))
		}
		if withMask {
			out.Masks.Append(rec.Masks.At(i))
		}
	}
	return out
}
