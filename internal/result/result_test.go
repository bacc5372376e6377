package result

import (
	"testing"

	apperrors "github.com/corner4world/deepdetect/internal/pkg/errors"
	"github.com/corner4world/deepdetect/internal/pkg/logger"
)

func TestScoredList_InsertOrder(t *testing.T) {
	var l ScoredList[string]
	l.Insert(0.2, "a")
	l.Insert(0.9, "b")
	l.Insert(0.2, "c")
	l.Insert(0.5, "d")
	l.Insert(0.9, "e")

	want := []string{"b", "e", "d", "a", "c"}
	if l.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", l.Len(), len(want))
	}
	for i, w := range want {
		if got := l.At(i).Value; got != w {
			t.Errorf("At(%d) = %s, want %s", i, got, w)
		}
	}
}

func TestScoredList_Prefix(t *testing.T) {
	var l ScoredList[int]
	for i := 0; i < 4; i++ {
		l.Insert(float64(i), i)
	}

	tests := []struct {
		n    int
		want int
	}{
		{0, 0},
		{2, 2},
		{4, 4},
		{10, 4},
		{-1, 4},
	}
	for _, tt := range tests {
		p := l.Prefix(tt.n)
		if p.Len() != tt.want {
			t.Errorf("Prefix(%d).Len() = %d, want %d", tt.n, p.Len(), tt.want)
		}
	}

	p := l.Prefix(1)
	p.Insert(100, 100)
	if l.At(0).Value != 3 {
		t.Error("Prefix must not share storage with the source list")
	}
}

func TestScoredList_AppendKeepsOrder(t *testing.T) {
	var l ScoredList[string]
	l.Append(Scored[string]{Score: 0.5, Value: "a"})
	l.Append(Scored[string]{Score: 0.5, Value: "b"})
	l.Append(Scored[string]{Score: 0.9, Value: "c"})

	if l.At(0).Value != "c" || l.At(1).Value != "a" || l.At(2).Value != "b" {
		t.Errorf("unexpected order: %+v", l.Items())
	}
}

func TestSet_FirstInsertWins(t *testing.T) {
	s := NewSet()
	if !s.Insert(NewRecord("img1", 0.1)) {
		t.Fatal("first insert should succeed")
	}
	if s.Insert(NewRecord("img1", 0.7)) {
		t.Fatal("duplicate insert should be refused")
	}
	s.Insert(NewRecord("img0", 0))

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	r, ok := s.Get("img1")
	if !ok || r.Loss != 0.1 {
		t.Errorf("Get(img1) = %+v, %v; want first record", r, ok)
	}
	if s.Records()[0].URI != "img1" || s.Records()[1].URI != "img0" {
		t.Error("Records() should keep insertion order")
	}
}

func TestSet_MisalignedRecordPanics(t *testing.T) {
	r := NewRecord("bad", 0)
	r.Cats.Insert(0.5, "cat")
	r.BBoxes.Insert(0.5, BBox{})
	r.BBoxes.Insert(0.4, BBox{})

	defer func() {
		if recover() == nil {
			t.Error("Insert should panic on misaligned collections")
		}
	}()
	NewSet().Insert(r)
}

func TestAggregator_AddResults(t *testing.T) {
	agg := NewAggregator(logger.Discard())

	err := agg.AddResults([]Prediction{
		{
			URI:   "img1",
			Loss:  0.3,
			Probs: []float64{0.1, 0.7, 0.2},
			Cats:  []string{"dog", "cat", "bird"},
			BBoxes: []BBox{
				{XMin: 1}, {XMin: 2}, {XMin: 3},
			},
		},
		{
			URI:   "img2",
			Probs: []float64{0.6},
			Cats:  []string{"cat"},
		},
	})
	if err != nil {
		t.Fatalf("AddResults() error = %v", err)
	}

	set := agg.Set()
	if set.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", set.Len())
	}

	r, _ := set.Get("img1")
	wantCats := []string{"cat", "bird", "dog"}
	wantBoxes := []float64{2, 3, 1}
	for i := range wantCats {
		if r.Cats.At(i).Value != wantCats[i] {
			t.Errorf("cat %d = %s, want %s", i, r.Cats.At(i).Value, wantCats[i])
		}
		if r.BBoxes.At(i).Value.XMin != wantBoxes[i] {
			t.Errorf("bbox %d xmin = %v, want %v", i, r.BBoxes.At(i).Value.XMin, wantBoxes[i])
		}
	}
	if !r.Vals.Empty() || !r.Masks.Empty() {
		t.Error("unpopulated collections should stay empty")
	}
}

func TestAggregator_DuplicateURI(t *testing.T) {
	agg := NewAggregator(logger.Discard())

	first := Prediction{URI: "same", Probs: []float64{0.9}, Cats: []string{"first"}}
	second := Prediction{URI: "same", Probs: []float64{0.8}, Cats: []string{"second"}}

	if err := agg.AddResults([]Prediction{first, second}); err != nil {
		t.Fatalf("AddResults() error = %v", err)
	}
	if err := agg.AddResults([]Prediction{second}); err != nil {
		t.Fatalf("AddResults() error = %v", err)
	}

	if agg.Set().Len() != 1 {
		t.Fatalf("Len() = %d, want 1", agg.Set().Len())
	}
	r, _ := agg.Set().Get("same")
	if r.Cats.At(0).Value != "first" {
		t.Errorf("kept %s, want first", r.Cats.At(0).Value)
	}
}

func TestAggregator_RejectsMismatchedLengths(t *testing.T) {
	tests := []struct {
		name string
		pred Prediction
	}{
		{"cats", Prediction{URI: "a", Probs: []float64{0.1, 0.2}, Cats: []string{"x"}}},
		{"bboxes", Prediction{URI: "a", Probs: []float64{0.1}, BBoxes: []BBox{{}, {}}}},
		{"vals", Prediction{URI: "a", Probs: []float64{0.1}, Vals: []ROI{{}, {}}}},
		{"series", Prediction{URI: "a", Probs: []float64{0.1}, Series: []Series{{}, {}}}},
		{"masks", Prediction{URI: "a", Probs: []float64{0.1}, Masks: []Mask{{}, {}}}},
		{"uri", Prediction{Probs: []float64{0.1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(logger.Discard())
			good := Prediction{URI: "ok", Probs: []float64{0.5}, Cats: []string{"c"}}

			err := agg.AddResults([]Prediction{good, tt.pred})
			if !apperrors.IsBadParam(err) {
				t.Fatalf("AddResults() error = %v, want bad param", err)
			}
			if agg.Set().Len() != 0 {
				t.Error("a rejected batch must not modify the set")
			}
		})
	}
}

func TestSortNeighbours(t *testing.T) {
	nns := []Neighbour{
		{URI: "c", Dist: 3},
		{URI: "a", Dist: 1},
		{URI: "b1", Dist: 2},
		{URI: "b2", Dist: 2},
	}
	SortNeighbours(nns)

	want := []string{"a", "b1", "b2", "c"}
	for i, w := range want {
		if nns[i].URI != w {
			t.Errorf("nns[%d] = %s, want %s", i, nns[i].URI, w)
		}
	}
}

func TestSet_CloneIsIndependent(t *testing.T) {
	r := NewRecord("img", 0.2)
	r.Cats.Insert(0.3, "b")
	r.Cats.Insert(0.7, "a")
	s := NewSet()
	s.Insert(r)

	c := s.Clone()
	cr, _ := c.Get("img")
	cr.Cats.Insert(0.9, "z")

	if r.Cats.Len() != 2 {
		t.Errorf("original record changed: %d cats", r.Cats.Len())
	}
	if got := cr.Scores(); len(got) != 3 || got[0] != 0.9 || got[2] != 0.3 {
		t.Errorf("clone scores = %v", got)
	}
	if cr.Loss != 0.2 {
		t.Errorf("clone loss = %v, want 0.2", cr.Loss)
	}
}
