package topk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corner4world/deepdetect/internal/pkg/logger"
	"github.com/corner4world/deepdetect/internal/result"
)

func buildSet(t *testing.T, preds ...result.Prediction) *result.Set {
	t.Helper()
	agg := result.NewAggregator(logger.Discard())
	require.NoError(t, agg.AddResults(preds))
	return agg.Set()
}

func cats(r *result.Record) []string {
	out := make([]string, 0, r.Cats.Len())
	for _, c := range r.Cats.Items() {
		out = append(out, c.Value)
	}
	return out
}

func TestBestCats_Plain(t *testing.T) {
	set := buildSet(t,
		result.Prediction{URI: "a", Loss: 0.4, IndexURI: "idx-a", Probs: []float64{0.1, 0.6, 0.3}, Cats: []string{"x", "y", "z"}},
		result.Prediction{URI: "b", Probs: []float64{0.9}, Cats: []string{"w"}},
	)

	out := BestCats(set, Options{Best: 2, NClasses: 3})

	require.Equal(t, 2, out.Len())
	a, ok := out.Get("a")
	require.True(t, ok)
	assert.Equal(t, []string{"y", "z"}, cats(a))
	assert.Equal(t, 0.4, a.Loss)
	assert.Equal(t, "idx-a", a.IndexURI)

	b, _ := out.Get("b")
	assert.Equal(t, []string{"w"}, cats(b))

	// input untouched
	orig, _ := set.Get("a")
	assert.Equal(t, 3, orig.Cats.Len())
}

func TestBestCats_AllIsNoOp(t *testing.T) {
	set := buildSet(t,
		result.Prediction{URI: "a", Probs: []float64{0.1, 0.6, 0.3}, Cats: []string{"x", "y", "z"}},
		result.Prediction{
			URI:    "d",
			Probs:  []float64{0.8, 0.7},
			Cats:   []string{"car", "car"},
			BBoxes: []result.BBox{{XMin: 1, XMax: 2}, {XMin: 1, XMax: 2}},
		},
	)

	tests := []struct {
		name string
		opts Options
	}{
		{"plain best -1", Options{Best: -1, NClasses: 3}},
		{"plain best above size", Options{Best: 10, NClasses: 3}},
		{"bbox best -1", Options{Best: -1, NClasses: 3, HasBBox: true}},
		{"plain best -1 without nclasses", Options{Best: -1}},
		{"bbox best -1 without nclasses", Options{Best: -1, HasBBox: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := BestCats(set, tt.opts)
			require.Equal(t, set.Len(), out.Len())
			for _, rec := range set.Records() {
				got, ok := out.Get(rec.URI)
				require.True(t, ok)
				assert.Equal(t, cats(rec), cats(got))
				assert.Equal(t, rec.BBoxes.Len(), got.BBoxes.Len())
			}
		})
	}
}

func TestBestCats_BoxDedupCapsRepeats(t *testing.T) {
	same := result.BBox{XMin: 10, YMin: 10, XMax: 20, YMax: 20}
	other := result.BBox{XMin: 30, YMin: 30, XMax: 40, YMax: 40}

	set := buildSet(t, result.Prediction{
		URI:    "img",
		Probs:  []float64{0.9, 0.8, 0.7, 0.6},
		Cats:   []string{"cat", "dog", "fox", "owl"},
		BBoxes: []result.BBox{same, same, other, same},
		Vals:   []result.ROI{{Vals: []float64{1}}, {Vals: []float64{2}}, {Vals: []float64{3}}, {Vals: []float64{4}}},
	})

	out := BestCats(set, Options{Best: 2, NClasses: 5, HasBBox: true, HasROI: true})
	rec, _ := out.Get("img")

	// the third occurrence of the same box is dropped, other box kept
	assert.Equal(t, []string{"cat", "dog", "fox"}, cats(rec))
	require.Equal(t, 3, rec.Vals.Len())
	assert.Equal(t, []float64{3}, rec.Vals.At(2).Value.Vals)
	assert.Equal(t, other, rec.BBoxes.At(2).Value)
}

func TestBestCats_BoxDedupBestOne(t *testing.T) {
	box := result.BBox{XMin: 0.5, YMin: 0.25, XMax: 1, YMax: 1}
	set := buildSet(t, result.Prediction{
		URI:    "img",
		Probs:  []float64{0.9, 0.8},
		Cats:   []string{"a", "b"},
		BBoxes: []result.BBox{box, box},
		Masks:  []result.Mask{{Width: 1}, {Width: 2}},
	})

	out := BestCats(set, Options{Best: 1, NClasses: 2, HasMask: true})
	rec, _ := out.Get("img")

	assert.Equal(t, []string{"a"}, cats(rec))
	require.Equal(t, 1, rec.Masks.Len())
	assert.Equal(t, 1, rec.Masks.At(0).Value.Width)
}

func TestBestCats_ROIFlagWithoutVals(t *testing.T) {
	set := buildSet(t, result.Prediction{
		URI:    "img",
		Probs:  []float64{0.9},
		Cats:   []string{"a"},
		BBoxes: []result.BBox{{XMax: 1}},
	})

	out := BestCats(set, Options{Best: 1, NClasses: 4, HasROI: true})
	rec, _ := out.Get("img")

	assert.Equal(t, []string{"a"}, cats(rec))
	assert.True(t, rec.Vals.Empty())
}

func TestBoxKey(t *testing.T) {
	assert.Equal(t, "1.000000-2.500000-3.000000-4.125000",
		BoxKey(result.BBox{XMin: 1, YMin: 2.5, XMax: 3, YMax: 4.125}))
}
