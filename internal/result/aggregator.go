package result

import (
	apperrors "github.com/corner4world/deepdetect/internal/pkg/errors"
	"github.com/corner4world/deepdetect/internal/pkg/logger"
)

// Prediction is one backend output for a single input sample.
type Prediction struct {
	URI      string    `json:"uri" validate:"required"`
	IndexURI string    `json:"index_uri,omitempty"`
	Loss     float64   `json:"loss,omitempty"`
	Probs    []float64 `json:"probs"`
	Cats     []string  `json:"cats,omitempty"`
	BBoxes   []BBox    `json:"bboxes,omitempty"`
	Vals     []ROI     `json:"vals,omitempty"`
	Series   []Series  `json:"series,omitempty"`
	Masks    []Mask    `json:"masks,omitempty"`
}

// Aggregator collects prediction batches into a Set.
type Aggregator struct {
	set *Set
	log *logger.Logger
}

// NewAggregator creates an aggregator with an empty result set.
func NewAggregator(log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.Default()
	}
	return &Aggregator{
		set: NewSet(),
		log: log.WithComponent("aggregator"),
	}
}

// Set returns the aggregated result set.
func (a *Aggregator) Set() *Set {
	return a.set
}

// AddResults ingests a batch of predictions. Every prediction is checked
// before the set is touched, so a rejected batch leaves it unchanged.
// Predictions for a URI already present are dropped.
func (a *Aggregator) AddResults(preds []Prediction) error {
	for i := range preds {
		if err := checkPrediction(&preds[i]); err != nil {
			return err
		}
	}

	for i := range preds {
		p := &preds[i]
		if _, exists := a.set.Get(p.URI); exists {
			a.log.Debug("Dropping duplicate prediction", "uri", p.URI)
			continue
		}

		rec := NewRecord(p.URI, p.Loss)
		rec.IndexURI = p.IndexURI
		for j, prob := range p.Probs {
			if len(p.Cats) > 0 {
				rec.Cats.Insert(prob, p.Cats[j])
			}
			if len(p.BBoxes) > 0 {
				rec.BBoxes.Insert(prob, p.BBoxes[j])
			}
			if len(p.Vals) > 0 {
				rec.Vals.Insert(prob, p.Vals[j])
			}
			if len(p.Series) > 0 {
				rec.Series.Insert(prob, p.Series[j])
			}
			if len(p.Masks) > 0 {
				rec.Masks.Insert(prob, p.Masks[j])
			}
		}
		a.set.Insert(rec)
	}
	return nil
}

func checkPrediction(p *Prediction) error {
	if p.URI == "" {
		return apperrors.BadParamError("prediction without uri")
	}
	n := len(p.Probs)
	fields := []struct {
		name string
		len  int
	}{
		{"cats", len(p.Cats)},
		{"bboxes", len(p.BBoxes)},
		{"vals", len(p.Vals)},
		{"series", len(p.Series)},
		{"masks", len(p.Masks)},
	}
	for _, f := range fields {
		if f.len != 0 && f.len != n {
			return apperrors.BadParamError("prediction %s has %d %s for %d probs", p.URI, f.len, f.name, n).
				WithDetail("uri", p.URI)
		}
	}
	return nil
}
