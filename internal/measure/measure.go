// Package measure computes evaluation metrics over a batch of predictions
// and their targets.
package measure

import (
	"strconv"

	apperrors "github.com/corner4world/deepdetect/internal/pkg/errors"
	"github.com/corner4world/deepdetect/internal/pkg/logger"
	"github.com/corner4world/deepdetect/internal/schema"
)

type softSelection struct {
	kl, js, was, ks, dc, r2, deltas bool

	klThres, jsThres, wasThres, ksThres, dcThres, r2Thres, deltasThres float64
}

func (s softSelection) any() bool {
	return s.kl || s.js || s.was || s.ks || s.dc || s.r2 || s.deltas
}

type seriesSelection struct {
	on bool

	l1, l2, mape, smape, mase, owa, mae, mse bool

	l1All, l2All, mapeAll, smapeAll, maseAll, owaAll, maeAll, mseAll bool
}

func (s seriesSelection) any() bool {
	return s.on
}

// scaled reports whether the percentage error family is requested; those
// read the unscaled values as well.
func (s seriesSelection) scaled() bool {
	return s.mape || s.smape || s.mase || s.owa || s.mae || s.mse ||
		s.mapeAll || s.smapeAll || s.maseAll || s.owaAll || s.maeAll || s.mseAll
}

// selection is the set of metrics a request enables for a given batch.
type selection struct {
	mAP, rawDetection bool
	netMeas           bool
	auc               bool
	accKs             []int
	accv, mlacc       bool
	soft              softSelection

	f1, f1full, cmdiag, cmfull bool
	mcll, gini, mcc, raw       bool

	eucll      bool
	eucllThres float64
	l1         bool
	percent    bool
	allDistl   bool

	ts seriesSelection

	// skipped lists requested tokens that cannot apply to this batch.
	skipped []string
}

func (s selection) distl() bool {
	return s.eucll || s.l1 || s.percent
}

// needsClassTarget reports whether targets must be class ids. Regression
// accuracy compares raw targets and is left out.
func (s selection) needsClassTarget(regression bool) bool {
	return s.f1 || s.mcll || s.mcc || s.raw || (len(s.accKs) > 0 && !regression)
}

func (s selection) needsCLNames() bool {
	return s.raw || (s.f1 && (s.f1full || s.cmdiag || s.cmfull))
}

func selectMetrics(b *Batch, req Request) selection {
	var sel selection
	if req.Empty() {
		return sel
	}

	if b.BBox {
		sel.mAP = req.Has("map")
		sel.rawDetection = req.Has("raw")
		for _, t := range req.Tokens() {
			if t != "map" && t != "raw" {
				sel.skipped = append(sel.skipped, t)
			}
		}
		return sel
	}

	plain := !b.Multilabel && !b.Segmentation
	sel.netMeas = b.NetMeas
	sel.auc = req.Has("auc")
	if plain && !b.NetMeas && req.Contains("acc") {
		sel.accKs = req.AccuracyKs()
	}
	if b.Segmentation {
		sel.accv = req.Has("acc")
	}
	if b.Multilabel && !b.Regression {
		sel.mlacc = req.Has("acc")
	}
	if b.Multilabel && b.Regression {
		if req.Has("acc") {
			s := &sel.soft
			s.kl, s.js, s.was, s.ks, s.dc, s.r2, s.deltas = true, true, true, true, true, true, true
			s.klThres, s.jsThres, s.wasThres, s.ksThres = NoThreshold, NoThreshold, NoThreshold, NoThreshold
			s.dcThres, s.r2Thres, s.deltasThres = NoThreshold, NoThreshold, NoThreshold
		} else {
			s := &sel.soft
			s.kl, s.klThres = req.PresenceAndThreshold("kl")
			s.js, s.jsThres = req.PresenceAndThreshold("js")
			s.was, s.wasThres = req.PresenceAndThreshold("was")
			s.ks, s.ksThres = req.PresenceAndThreshold("ks")
			s.dc, s.dcThres = req.PresenceAndThreshold("dc")
			s.r2, s.r2Thres = req.PresenceAndThreshold("r2")
			s.deltas, s.deltasThres = req.PresenceAndThreshold("deltas")
		}
	}

	if plain {
		sel.f1 = req.Has("f1") || req.Has("f1full")
		sel.f1full = req.Has("f1full")
		sel.mcll = req.Has("mcll")
	}
	sel.cmdiag = sel.f1 && req.Has("cmdiag")
	sel.cmfull = sel.f1 && req.Has("cmfull")
	if !sel.f1 {
		for _, t := range []string{"cmdiag", "cmfull"} {
			if req.Has(t) {
				sel.skipped = append(sel.skipped, t)
			}
		}
	}

	sel.gini = req.Has("gini")
	sel.eucll, sel.eucllThres = req.PresenceAndThreshold("eucll")
	sel.l1 = req.Has("l1")
	sel.percent = req.Has("percent")
	sel.allDistl = sel.distl() && !b.Autoencoder
	sel.mcc = req.Has("mcc")
	sel.raw = req.Has("raw")

	if b.Timeseries > 0 {
		ts := &sel.ts
		ts.on = true
		ts.l1, ts.l2 = req.Has("L1"), req.Has("L2")
		ts.mape, ts.smape, ts.mase = req.Has("mape"), req.Has("smape"), req.Has("mase")
		ts.owa, ts.mae, ts.mse = req.Has("owa"), req.Has("mae"), req.Has("mse")
		ts.l1All, ts.l2All = req.Has("L1_all"), req.Has("L2_all")
		ts.mapeAll, ts.smapeAll, ts.maseAll = req.Has("mape_all"), req.Has("smape_all"), req.Has("mase_all")
		ts.owaAll, ts.maeAll, ts.mseAll = req.Has("owa_all"), req.Has("mae_all"), req.Has("mse_all")
		if !ts.l1 && !ts.l2 && !ts.l1All && !ts.l2All && !ts.scaled() {
			ts.l1 = true
		}
	}
	return sel
}

// Measure validates b and computes every metric req enables. The record
// ends with the pass trailer: loss, train_loss, iteration, learning_rate
// when known, then test_id and test_name.
func Measure(b *Batch, req Request, testID int, testName string) (*Record, error) {
	if err := b.Validate(req); err != nil {
		return nil, err
	}
	sel := selectMetrics(b, req)
	rec := NewRecord()

	if sel.mAP {
		m, aps := meanAveragePrecision(b)
		rec.Set(schema.MAP, m)
		for _, ap := range aps {
			rec.Set(schema.MAP+"_"+strconv.Itoa(ap.label), ap.ap)
		}
	}
	if sel.rawDetection {
		rec.Set(schema.Raw, rawDetections(b))
	}
	if sel.netMeas {
		rec.Set(schema.Acc, straightMeasure(b))
	}
	if sel.auc {
		rec.Set(schema.AUC, auc(b))
	}
	for _, f := range accuracies(b, sel.accKs) {
		rec.Set(f.Key, f.Value)
	}
	if sel.accv {
		seg := segmentation(b)
		rec.Set(schema.Acc, seg.acc)
		rec.Set(schema.MeanAcc, seg.meanAcc)
		rec.Set(schema.MeanIOU, seg.meanIOU)
		rec.Set(schema.ClAcc, seg.clAcc)
		rec.Set(schema.ClIOU, seg.clIOU)
	}
	if sel.mlacc {
		ml := multilabel(b)
		rec.Set(schema.F1, ml.f1)
		rec.Set(schema.Precision, ml.precision)
		rec.Set(schema.Sensitivity, ml.sensitivity)
		rec.Set(schema.Specificity, ml.specificity)
		rec.Set(schema.HarmMean, ml.harmMean)
	}
	setSoft(rec, b, sel.soft)

	if sel.f1 {
		setF1(rec, b, sel)
	}
	if sel.mcll {
		rec.Set(schema.MCLL, mcll(b))
	}
	if sel.gini {
		rec.Set(schema.Gini, gini(b))
	}
	if sel.eucll {
		v, all := distance(b, NoThreshold, sel.allDistl, false)
		rec.Set(schema.Eucll, v)
		if len(all) > 1 && sel.allDistl {
			for i, a := range all {
				rec.Set(schema.Eucll+"_"+strconv.Itoa(i), a)
			}
		}
		if sel.eucllThres > 0 {
			thr := formatThreshold(sel.eucllThres)
			v, all := distance(b, sel.eucllThres, sel.allDistl, false)
			rec.Set(schema.Eucll+schema.NoSuffix+thr, v)
			if len(all) > 1 {
				for i, a := range all {
					rec.Set(schema.Eucll+schema.NoSuffix+strconv.Itoa(i)+"_"+thr, a)
				}
			}
		}
	}
	if sel.l1 {
		v, all := distance(b, NoThreshold, sel.allDistl, true)
		rec.Set(schema.L1, v)
		for i, a := range all {
			rec.Set(schema.L1+"_"+strconv.Itoa(i), a)
		}
	}
	if sel.percent {
		v, all := percentError(b, sel.allDistl)
		rec.Set(schema.Percent, v)
		for i, a := range all {
			rec.Set(schema.Percent+"_"+strconv.Itoa(i), a)
		}
	}
	if sel.mcc {
		rec.Set(schema.MCC, mcc(b))
	}
	if sel.raw {
		rec.Set(schema.Raw, rawClassification(b))
	}
	if sel.ts.any() {
		setSeries(rec, b, sel.ts)
	}

	setTrailer(rec, b, testID, testName)
	return rec, nil
}

func setSoft(rec *Record, b *Batch, s softSelection) {
	type soft struct {
		on    bool
		key   string
		thres float64
		fn    func(*Batch, float64) float64
	}
	for _, m := range []soft{
		{s.kl, schema.KLDivergence, s.klThres, softKL},
		{s.js, schema.JSDivergence, s.jsThres, softJS},
		{s.was, schema.Wasserstein, s.wasThres, softWasserstein},
		{s.ks, schema.KolmogorovSmirnov, s.ksThres, softKS},
		{s.dc, schema.DistanceCorrelation, s.dcThres, softDistanceCorrelation},
		{s.r2, schema.R2, s.r2Thres, softR2},
	} {
		if !m.on {
			continue
		}
		rec.Set(m.key, m.fn(b, NoThreshold))
		rec.Set(m.key+schema.NoSuffix+formatThreshold(m.thres), m.fn(b, m.thres))
	}

	if s.deltas {
		all := softDeltas(b, Deltas, NoThreshold)
		kept := softDeltas(b, Deltas, s.deltasThres)
		for i, d := range Deltas {
			key := schema.DeltaScore + "_" + formatShort(d)
			rec.Set(key, all[i])
			rec.Set(key+schema.NoSuffix+formatShort(s.deltasThres), kept[i])
		}
	}
}

func setF1(rec *Record, b *Batch, sel selection) {
	f := f1Measure(b)
	rec.Set(schema.F1, f.f1)
	rec.Set(schema.Precision, f.precision)
	rec.Set(schema.Recall, f.recall)
	rec.Set(schema.AccP, f.acc)
	if !sel.f1full && !sel.cmdiag && !sel.cmfull {
		return
	}
	labels := b.CLNames[:b.NClasses]
	if sel.f1full {
		rec.Set(schema.Precisions, f.precisions)
		rec.Set(schema.Recalls, f.recalls)
		rec.Set(schema.F1s, f.f1s)
		if !sel.cmdiag {
			rec.Set(schema.Labels, labels)
		}
	}
	if sel.cmdiag {
		rec.Set(schema.CMDiag, f.cmDiag)
		rec.Set(schema.Labels, labels)
	}
	if sel.cmfull {
		rows := make([]map[string][]float64, b.NClasses)
		for i := range rows {
			col := make([]float64, b.NClasses)
			for j := range col {
				col[j] = f.cmFull.At(j, i)
			}
			rows[i] = map[string][]float64{labels[i]: col}
		}
		rec.Set(schema.CMFull, rows)
	}
}

func setSeries(rec *Record, b *Batch, ts seriesSelection) {
	errorsFor := func(prefix string, l1, all bool) float64 {
		e := seriesErrorStats(b, l1)
		if all {
			for i := 0; i < b.Timeseries; i++ {
				is := strconv.Itoa(i)
				rec.Set(prefix+schema.MaxErrorSuffix+"_"+is, e.maxErrors[i])
				rec.Set(prefix+schema.MaxErrorSuffix+"_"+is+schema.DateSuffix, float64(e.maxIndexes[i]))
				rec.Set(prefix+schema.MeanErrorSuffix+"_"+is, e.meanErrors[i])
			}
		}
		rec.Set(prefix+schema.MaxErrorSuffix, e.maxError)
		rec.Set(prefix+schema.MeanErrorSuffix, e.meanError)
		return e.meanError
	}

	if ts.l1 || ts.l1All {
		mean := errorsFor(schema.TSL1, true, ts.l1All)
		if !ts.l2 && !ts.l2All {
			rec.Set(schema.Eucll, mean)
		}
	}
	if ts.l2 || ts.l2All {
		rec.Set(schema.Eucll, errorsFor(schema.TSL2, false, ts.l2All))
	}
	if !ts.scaled() {
		return
	}

	sc := seriesForecastScores(b)
	families := []struct {
		key  string
		per  []float64
		on   bool
		all  bool
		mean float64
	}{
		{key: schema.TSMAPE, per: sc.mape, on: ts.mape, all: ts.mapeAll},
		{key: schema.TSSMAPE, per: sc.smape, on: ts.smape, all: ts.smapeAll},
		{key: schema.TSMASE, per: sc.mase, on: ts.mase, all: ts.maseAll},
		{key: schema.TSOWA, per: sc.owa, on: ts.owa, all: ts.owaAll},
		{key: schema.TSMAE, per: sc.mae, on: ts.mae, all: ts.maeAll},
		{key: schema.TSMSE, per: sc.mse, on: ts.mse, all: ts.mseAll},
	}
	for i := 0; i < b.Timeseries; i++ {
		for f := range families {
			fam := &families[f]
			fam.mean += fam.per[i]
			if fam.all {
				rec.Set(fam.key+"_"+strconv.Itoa(i), fam.per[i])
			}
		}
	}
	for _, fam := range families {
		if fam.on {
			rec.Set(fam.key, fam.mean/float64(b.Timeseries))
		}
	}
}

func setTrailer(rec *Record, b *Batch, testID int, testName string) {
	if b.Loss != nil {
		rec.Set(schema.Loss, *b.Loss)
	}
	if b.TrainLoss != nil {
		rec.Set(schema.TrainLoss, *b.TrainLoss)
	}
	if b.Iteration != nil {
		rec.Set(schema.Iteration, *b.Iteration)
	}
	if b.LearningRate != nil {
		rec.Set(schema.LearningRate, *b.LearningRate)
	}
	rec.Set(schema.TestID, testID)
	rec.Set(schema.TestName, testName)
}

// Skipped lists the requested metrics that do not apply to b.
func Skipped(b *Batch, req Request) []string {
	return selectMetrics(b, req).skipped
}

// Engine runs measure passes and logs what a request could not apply to.
type Engine struct {
	log *logger.Logger
}

// NewEngine creates a measure engine.
func NewEngine(log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Default()
	}
	return &Engine{log: log.WithComponent("measure")}
}

// Run computes one test pass.
func (e *Engine) Run(b *Batch, req Request, testID int, testName string) (*Record, error) {
	log := e.log.WithTest(testID, testName)
	if skipped := Skipped(b, req); len(skipped) > 0 {
		log.WithError(apperrors.SoftSkip("measures do not apply to this batch")).Debug("Skipping measures", "measures", skipped)
	}
	rec, err := Measure(b, req, testID, testName)
	if err != nil {
		log.WithError(err).Warn("Measure failed")
		return nil, err
	}
	log.Debug("Measure computed", "keys", rec.Len(), "batch_size", b.BatchSize)
	return rec, nil
}
