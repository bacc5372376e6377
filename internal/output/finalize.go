package output

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/corner4world/deepdetect/internal/config"
	apperrors "github.com/corner4world/deepdetect/internal/pkg/errors"
	"github.com/corner4world/deepdetect/internal/pkg/logger"
	"github.com/corner4world/deepdetect/internal/result"
	"github.com/corner4world/deepdetect/internal/simsearch"
	"github.com/corner4world/deepdetect/internal/topk"
)

// Task describes what the backend produced.
type Task struct {
	NClasses     int  `json:"nclasses" validate:"gte=0"`
	Regression   bool `json:"regression,omitempty"`
	Autoencoder  bool `json:"autoencoder,omitempty"`
	BBox         bool `json:"bbox,omitempty"`
	ROI          bool `json:"roi,omitempty"`
	Mask         bool `json:"mask,omitempty"`
	MultiboxROIs bool `json:"multibox_rois,omitempty"`
	Timeseries   bool `json:"timeseries,omitempty"`
}

// OutputParams are the caller's output options for one finalize call.
type OutputParams struct {
	Task

	// Best is the number of entries kept per sample; nil uses the
	// connector default and -1 keeps nclasses entries.
	Best *int `json:"best,omitempty" validate:"omitempty,gte=-1"`

	Index      bool `json:"index,omitempty"`
	BuildIndex bool `json:"build_index,omitempty"`
	Search     bool `json:"search,omitempty"`
	SearchNN   int  `json:"search_nn,omitempty" validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the parameters.
func (p *OutputParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return apperrors.Wrap(apperrors.CodeBadParam, "invalid output parameters", err)
	}
	return nil
}

// Finalizer turns an aggregated result set into a prediction response.
type Finalizer struct {
	best        int
	searchNN    int
	roiSearchNN int
	index       *simsearch.Manager
	log         *logger.Logger
}

// NewFinalizer creates a finalizer with the configured defaults. index may
// be nil, in which case index and search options are ignored.
func NewFinalizer(cfg config.OutputConfig, index *simsearch.Manager, log *logger.Logger) *Finalizer {
	if log == nil {
		log = logger.Default()
	}
	best := cfg.Best
	if best == 0 {
		best = 1
	}
	roiNN := cfg.ROISearchNN
	if roiNN < 1 {
		roiNN = 10
	}
	return &Finalizer{
		best:        best,
		searchNN:    cfg.SearchNN,
		roiSearchNN: roiNN,
		index:       index,
		log:         log.WithComponent("output"),
	}
}

// Finalize reduces set to the best entries per sample, runs the requested
// similarity index operations and renders the response. set is not modified.
func (f *Finalizer) Finalize(ctx context.Context, set *result.Set, params OutputParams) (Response, error) {
	if err := params.Validate(); err != nil {
		return Response{}, err
	}
	log := f.log.WithContext(ctx)

	best := f.best
	if params.Regression {
		best = params.NClasses
	}
	if params.Autoencoder {
		best = 1
	}
	keep := best
	if params.Best != nil {
		keep = *params.Best
	}
	multibox := params.ROI && params.MultiboxROIs

	var out *result.Set
	if params.Timeseries {
		out = set.Clone()
	} else {
		out = topk.BestCats(set, topk.Options{
			Best:     keep,
			NClasses: params.NClasses,
			HasBBox:  params.BBox,
			HasROI:   params.ROI,
			HasMask:  params.Mask,
		})
	}

	if params.Index || params.BuildIndex || params.Search {
		if f.index == nil {
			log.WithError(apperrors.SoftSkip("similarity index not configured")).Warn("Skipping index operations")
		} else if err := f.runIndex(ctx, log, out, params, best, multibox); err != nil {
			return Response{}, err
		}
	}

	return ToAD(out, Flags{
		Regression:  params.Regression,
		Autoencoder: params.Autoencoder,
		BBox:        params.BBox,
		ROI:         params.ROI && !multibox,
		Mask:        params.Mask,
		Timeseries:  params.Timeseries,
	}), nil
}

func (f *Finalizer) runIndex(ctx context.Context, log *logger.Logger, set *result.Set, params OutputParams, best int, multibox bool) error {
	if params.Index {
		if dim, ok := indexDim(set, params.ROI, best); ok {
			if err := f.index.EnsureCreated(ctx, dim); err != nil {
				return err
			}
		}
		if err := f.indexSet(ctx, log, set, params.ROI); err != nil {
			return err
		}
	}

	if params.BuildIndex {
		if err := f.index.Build(ctx); err != nil {
			return err
		}
	}

	if params.Search {
		if params.ROI {
			if dim, ok := indexDim(set, true, best); ok {
				if err := f.index.EnsureCreated(ctx, dim); err != nil {
					return err
				}
			}
		}
		nn := best
		if f.searchNN > 0 {
			nn = f.searchNN
		}
		if params.ROI {
			nn = f.roiSearchNN
		}
		if params.SearchNN > 0 {
			nn = params.SearchNN
		}
		return f.searchSet(ctx, set, params.ROI, multibox, nn)
	}
	return nil
}

// indexDim is the dimension a new index gets: the length of the first
// region's features for roi outputs, otherwise the number of scores kept per
// sample. roi outputs without features cannot create an index.
func indexDim(set *result.Set, roi bool, best int) (int, bool) {
	recs := set.Records()
	if roi {
		if len(recs) == 0 || recs[0].Vals.Empty() {
			return 0, false
		}
		return len(recs[0].Vals.At(0).Value.Vals), true
	}
	if len(recs) > 0 && !recs[0].Cats.Empty() {
		return recs[0].Cats.Len(), true
	}
	return best, true
}

func (f *Finalizer) indexSet(ctx context.Context, log *logger.Logger, set *result.Set, roi bool) error {
	var entries []simsearch.Entry
	var indexed []*result.Record
	for _, rec := range set.Records() {
		if !roi {
			entries = append(entries, simsearch.Entry{URI: rec.URI, Vector: rec.Scores()})
			indexed = append(indexed, rec)
			continue
		}
		n := rec.Cats.Len()
		if rec.Vals.Len() != n || rec.BBoxes.Len() != n {
			log.WithError(apperrors.SoftSkip("no region features")).Debug("Skipping record", "uri", rec.URI)
			continue
		}
		for i := 0; i < n; i++ {
			c := rec.Cats.At(i)
			box := rec.BBoxes.At(i).Value
			entries = append(entries, simsearch.Entry{
				URI:    rec.URI,
				Vector: rec.Vals.At(i).Value.Vals,
				BBox:   &box,
				Prob:   c.Score,
				Cat:    c.Value,
			})
		}
		if n > 0 {
			indexed = append(indexed, rec)
		}
	}
	if len(entries) == 0 {
		return nil
	}
	if err := f.index.Index(ctx, entries); err != nil {
		return err
	}
	for _, rec := range indexed {
		rec.Indexed = true
	}
	log.Debug("Indexed outputs", "entries", len(entries), "samples", len(indexed))
	return nil
}

func (f *Finalizer) searchSet(ctx context.Context, set *result.Set, roi, multibox bool, nn int) error {
	for _, rec := range set.Records() {
		switch {
		case !roi:
			nns, err := f.index.Search(ctx, rec.Scores(), nn)
			if err != nil {
				return err
			}
			rec.NNs = nns

		case multibox:
			nns, err := f.searchMultibox(ctx, rec, nn)
			if err != nil {
				return err
			}
			rec.NNs = nns

		default:
			rec.BBoxNNs = make([][]result.Neighbour, rec.BBoxes.Len())
			for i, v := range rec.Vals.Items() {
				if i >= len(rec.BBoxNNs) {
					break
				}
				nns, err := f.index.Search(ctx, v.Value.Vals, nn)
				if err != nil {
					return err
				}
				rec.BBoxNNs[i] = nns
			}
		}
	}
	return nil
}

// searchMultibox ranks indexed samples by their mean distance to the
// regions of rec.
func (f *Finalizer) searchMultibox(ctx context.Context, rec *result.Record, nn int) ([]result.Neighbour, error) {
	type acc struct {
		sum   float64
		count int
	}
	byURI := make(map[string]*acc)
	var order []string
	for _, v := range rec.Vals.Items() {
		hits, err := f.index.Search(ctx, v.Value.Vals, nn)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			a, ok := byURI[h.URI]
			if !ok {
				a = &acc{}
				byURI[h.URI] = a
				order = append(order, h.URI)
			}
			a.sum += h.Dist
			a.count++
		}
	}

	nns := make([]result.Neighbour, 0, len(order))
	for _, uri := range order {
		a := byURI[uri]
		nns = append(nns, result.Neighbour{URI: uri, Dist: a.sum / float64(a.count)})
	}
	result.SortNeighbours(nns)
	return nns, nil
}
