// Package output renders result sets as prediction responses and runs the
// finalize pipeline that produces them.
package output

import (
	"bytes"
	"encoding/json"

	"github.com/corner4world/deepdetect/internal/measure"
	"github.com/corner4world/deepdetect/internal/result"
	"github.com/corner4world/deepdetect/internal/schema"
)

// Flags selects how records are rendered.
type Flags struct {
	Regression  bool
	Autoencoder bool
	BBox        bool
	ROI         bool
	Mask        bool
	Timeseries  bool
}

// ListKey is the key holding a prediction's entries.
func (f Flags) ListKey() string {
	switch {
	case f.Timeseries:
		return schema.Series
	case f.Regression:
		return schema.Vector
	case f.Autoencoder:
		return schema.Losses
	case f.ROI:
		return schema.ROIs
	default:
		return schema.Classes
	}
}

// Entry is one ranked output of a prediction.
type Entry struct {
	Cat  *string  `json:"cat,omitempty"`
	Val  *float64 `json:"val,omitempty"`
	Loss *float64 `json:"loss,omitempty"`
	Prob *float64 `json:"prob,omitempty"`

	BBox *result.BBox       `json:"bbox,omitempty"`
	Vals []float64          `json:"vals,omitempty"`
	Mask *result.Mask       `json:"mask,omitempty"`
	NNs  []result.Neighbour `json:"nns,omitempty"`
	Out  []float64          `json:"out,omitempty"`
	Last bool               `json:"last,omitempty"`
}

// Prediction is the rendered form of one record.
type Prediction struct {
	URI      string
	IndexURI string
	Loss     float64
	Indexed  bool
	NNs      []result.Neighbour

	ListKey string
	Entries []Entry
}

// MarshalJSON writes loss (when positive), uri, index_uri, indexed and nns
// when set, then the entries under ListKey.
func (p Prediction) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(data)
		return nil
	}

	fields := []struct {
		key string
		on  bool
		val any
	}{
		{schema.Loss, p.Loss > 0, p.Loss},
		{schema.URI, true, p.URI},
		{schema.IndexURI, p.IndexURI != "", p.IndexURI},
		{schema.Indexed, p.Indexed, true},
		{schema.NNs, len(p.NNs) > 0, p.NNs},
	}
	for _, f := range fields {
		if !f.on {
			continue
		}
		if err := write(f.key, f.val); err != nil {
			return nil, err
		}
	}

	entries := p.Entries
	if entries == nil {
		entries = []Entry{}
	}
	key := p.ListKey
	if key == "" {
		key = schema.Classes
	}
	if err := write(key, entries); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Response is the output object of a predict or test call.
type Response struct {
	Predictions []Prediction      `json:"predictions,omitempty"`
	Measure     *measure.Record   `json:"measure,omitempty"`
	Measures    []*measure.Record `json:"measures,omitempty"`
}

// ToAD renders every record of set in order.
func ToAD(set *result.Set, f Flags) Response {
	resp := Response{Predictions: make([]Prediction, 0, set.Len())}
	for _, rec := range set.Records() {
		resp.Predictions = append(resp.Predictions, render(rec, f))
	}
	return resp
}

func render(rec *result.Record, f Flags) Prediction {
	p := Prediction{
		URI:      rec.URI,
		IndexURI: rec.IndexURI,
		Loss:     rec.Loss,
		Indexed:  rec.Indexed,
		ListKey:  f.ListKey(),
	}
	if !f.ROI {
		p.NNs = rec.NNs
	}

	detection := f.BBox || f.ROI || f.Mask
	n := rec.Cats.Len()
	for i, c := range rec.Cats.Items() {
		var e Entry
		if !f.Autoencoder {
			cat := c.Value
			e.Cat = &cat
		}
		score := c.Score
		switch {
		case f.Regression:
			e.Val = &score
		case f.Autoencoder:
			e.Loss = &score
		default:
			e.Prob = &score
		}
		if detection && i < rec.BBoxes.Len() {
			box := rec.BBoxes.At(i).Value
			e.BBox = &box
		}
		if f.ROI && i < rec.Vals.Len() {
			e.Vals = rec.Vals.At(i).Value.Vals
		}
		if f.Mask && i < rec.Masks.Len() {
			m := rec.Masks.At(i).Value
			e.Mask = &m
		}
		if f.ROI && i < len(rec.BBoxNNs) {
			e.NNs = rec.BBoxNNs[i]
		}
		e.Last = i == n-1
		p.Entries = append(p.Entries, e)
	}

	m := rec.Series.Len()
	for i, s := range rec.Series.Items() {
		p.Entries = append(p.Entries, Entry{Out: s.Value.Out, Last: i == m-1})
	}
	return p
}

// AppendMeasure adds one test pass record to resp. The first test set
// (test id 0) is also reported as the response's measure.
func AppendMeasure(resp *Response, rec *measure.Record, testID int) {
	resp.Measures = append(resp.Measures, rec)
	if testID == 0 {
		resp.Measure = rec
	}
}

// AggregateMultipleTestsets replaces resp's measure with the mean of its
// per-test records.
func AggregateMultipleTestsets(resp *Response) {
	resp.Measure = measure.AggregateMultipleTestsets(resp.Measures)
}
