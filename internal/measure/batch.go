package measure

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/corner4world/deepdetect/internal/pkg/errors"
)

// Values is a numeric vector that also accepts a bare number in JSON,
// so a scalar class id target decodes as a one-element vector.
type Values []float64

// UnmarshalJSON implements json.Unmarshaler.
func (v *Values) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '[' {
		if bytes.Equal(data, []byte("null")) {
			*v = nil
			return nil
		}
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*v = Values{f}
		return nil
	}
	var fs []float64
	if err := json.Unmarshal(data, &fs); err != nil {
		return err
	}
	*v = fs
	return nil
}

// Sample is one evaluated input.
type Sample struct {
	Pred           []float64 `json:"pred"`
	Target         Values    `json:"target"`
	Logits         []float64 `json:"logits,omitempty"`
	PredUnscaled   []float64 `json:"pred_unscaled,omitempty"`
	TargetUnscaled []float64 `json:"target_unscaled,omitempty"`
}

// Label returns the first target value, the class id for classification tasks.
func (s Sample) Label() float64 {
	if len(s.Target) == 0 {
		return 0
	}
	return s.Target[0]
}

// ClassDetections holds the true and false positives collected for one
// class over a detection test set.
type ClassDetections struct {
	Label     int         `json:"label" validate:"gte=0"`
	TPD       []float64   `json:"tp_d"`
	TPI       []int       `json:"tp_i"`
	FPD       []float64   `json:"fp_d"`
	FPI       []int       `json:"fp_i"`
	NumPos    int         `json:"num_pos" validate:"gte=0"`
	AllLogits [][]float64 `json:"all_logits,omitempty"`
}

// Batch is the evaluation payload for one test pass.
type Batch struct {
	BatchSize    int      `json:"batch_size" validate:"gte=0"`
	NClasses     int      `json:"nclasses" validate:"gte=0"`
	Regression   bool     `json:"regression,omitempty"`
	Multilabel   bool     `json:"multilabel,omitempty"`
	Segmentation bool     `json:"segmentation,omitempty"`
	BBox         bool     `json:"bbox,omitempty"`
	Autoencoder  bool     `json:"autoencoder,omitempty"`
	NetMeas      bool     `json:"net_meas,omitempty"`
	Timeseries   int      `json:"timeseries,omitempty" validate:"gte=0"`
	IgnoreLabel  *int     `json:"ignore_label,omitempty"`
	CLNames      []string `json:"clnames,omitempty"`

	Samples    []Sample          `json:"samples"`
	Detections []ClassDetections `json:"detections,omitempty" validate:"dive"`

	Loss         *float64 `json:"loss,omitempty"`
	TrainLoss    *float64 `json:"train_loss,omitempty"`
	Iteration    *float64 `json:"iteration,omitempty"`
	LearningRate *float64 `json:"learning_rate,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the batch against what the requested metrics read.
// Metric functions assume a validated batch.
func (b *Batch) Validate(req Request) error {
	if err := validate.Struct(b); err != nil {
		return apperrors.Wrap(apperrors.CodeBadParam, "invalid batch", err)
	}
	if b.BBox {
		return b.validateDetections(req)
	}
	if len(b.Samples) != b.BatchSize {
		return apperrors.BadParamError("batch_size is %d but %d samples were given", b.BatchSize, len(b.Samples))
	}

	sel := selectMetrics(b, req)

	if sel.needsClassTarget(b.Regression) {
		if b.NClasses < 1 {
			return apperrors.BadParamError("nclasses must be positive for classification measures")
		}
		for i, s := range b.Samples {
			if len(s.Target) == 0 || len(s.Pred) == 0 {
				return apperrors.BadParamError("sample %d has an empty pred or target", i)
			}
			if err := checkClassTarget(s.Label(), b.NClasses); err != nil {
				return err
			}
			if sel.mcll && int(s.Label()) >= len(s.Pred) {
				return apperrors.BadParamError("sample %d has %d predictions for target class %d", i, len(s.Pred), int(s.Label()))
			}
			if sel.f1 || sel.mcc || sel.raw {
				if len(s.Pred) > b.NClasses {
					return apperrors.BadParamError("sample %d has %d predictions for %d classes", i, len(s.Pred), b.NClasses)
				}
			}
		}
	}
	if sel.mcc && b.NClasses < 2 {
		return apperrors.BadParamError("mcc requires at least 2 classes")
	}
	if sel.auc {
		for i, s := range b.Samples {
			if len(s.Pred) < 2 || len(s.Target) == 0 {
				return apperrors.BadParamError("auc needs two scores and a target for sample %d", i)
			}
		}
	}
	if sel.needsCLNames() && len(b.CLNames) < b.NClasses {
		return apperrors.BadParamError("%d class names given for %d classes", len(b.CLNames), b.NClasses)
	}
	if sel.accv || sel.mlacc || sel.soft.any() {
		for i, s := range b.Samples {
			if len(s.Pred) == 0 || len(s.Pred) != len(s.Target) {
				return apperrors.BadParamError("sample %d has %d predictions for %d targets", i, len(s.Pred), len(s.Target))
			}
		}
	}
	if sel.soft.dc && b.BatchSize > 0 {
		n := len(b.Samples[0].Target)
		for i, s := range b.Samples {
			if len(s.Target) != n {
				return apperrors.BadParamError("sample %d has %d targets, sample 0 has %d", i, len(s.Target), n)
			}
		}
	}
	if sel.distl() && b.BatchSize > 0 {
		psize := len(b.Samples[0].Pred)
		if psize == 0 {
			return apperrors.BadParamError("sample 0 has no predictions")
		}
		for i, s := range b.Samples {
			if len(s.Pred) != psize {
				return apperrors.BadParamError("sample %d has %d predictions, sample 0 has %d", i, len(s.Pred), psize)
			}
			if len(s.Target) == 0 || (psize > 1 && len(s.Target) != psize) {
				return apperrors.BadParamError("sample %d has %d targets for %d predictions", i, len(s.Target), psize)
			}
		}
	}
	if sel.gini {
		for i, s := range b.Samples {
			if len(s.Pred) == 0 || len(s.Target) == 0 {
				return apperrors.BadParamError("sample %d has an empty pred or target", i)
			}
		}
	}
	if sel.ts.any() {
		if err := b.validateSeries(sel.ts.scaled()); err != nil {
			return err
		}
	}
	return nil
}

func (b *Batch) validateSeries(unscaled bool) error {
	if b.Timeseries < 1 {
		return apperrors.BadParamError("timeseries must give the number of series")
	}
	for i, s := range b.Samples {
		n := len(s.Target)
		if n == 0 || n != len(s.Pred) {
			return apperrors.BadParamError("sample %d has %d predictions for %d targets", i, len(s.Pred), n)
		}
		if n%b.Timeseries != 0 {
			return apperrors.BadParamError("sample %d has %d values, not a multiple of %d series", i, n, b.Timeseries)
		}
		if unscaled && (len(s.PredUnscaled) != n || len(s.TargetUnscaled) != n) {
			return apperrors.BadParamError("sample %d needs pred_unscaled and target_unscaled of length %d", i, n)
		}
	}
	return nil
}

func (b *Batch) validateDetections(req Request) error {
	raw := req.Has("raw")
	for i, d := range b.Detections {
		if len(d.TPD) != len(d.TPI) {
			return apperrors.BadParamError("detections %d: %d tp scores for %d tp flags", i, len(d.TPD), len(d.TPI))
		}
		if len(d.FPD) != len(d.FPI) {
			return apperrors.BadParamError("detections %d: %d fp scores for %d fp flags", i, len(d.FPD), len(d.FPI))
		}
		if raw && d.Label >= len(b.CLNames) {
			return apperrors.BadParamError("detections %d: label %d has no class name", i, d.Label)
		}
	}
	return nil
}

// checkClassTarget is shared by every measure that indexes classes by target.
func checkClassTarget(target float64, nclasses int) error {
	if target < 0 {
		return apperrors.BadParamError("negative supervised discrete target (e.g. wrong use of label_offset ?")
	}
	if target >= float64(nclasses) {
		return apperrors.BadParamError(
			"target class has id %f is higher than the number of classes %d (e.g. wrong number of classes specified with nclasses",
			target, nclasses)
	}
	return nil
}

// DecodeBatch reads a JSON batch.
func DecodeBatch(data []byte) (*Batch, error) {
	var b Batch
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&b); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidRequest, "decoding batch", err)
	}
	return &b, nil
}

// argmax returns the index of the first largest value.
func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func formatThreshold(v float64) string {
	return fmt.Sprintf("%f", v)
}

func formatShort(v float64) string {
	return fmt.Sprintf("%g", v)
}
