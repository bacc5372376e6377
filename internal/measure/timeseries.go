package measure

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const tsEpsilon = 1e-2

// seriesView lays a flattened buffer out as duration x nseries, one row per
// timestep.
func seriesView(v []float64, nseries int) *mat.Dense {
	return mat.NewDense(len(v)/nseries, nseries, v)
}

type seriesErrors struct {
	maxErrors  []float64
	maxIndexes []int
	meanErrors []float64
	maxError   float64
	meanError  float64
}

// seriesErrorStats tracks the maximum absolute (or squared) error of each
// series with the timestep it occurred at, and its mean error.
func seriesErrorStats(b *Batch, l1 bool) seriesErrors {
	nts := b.Timeseries
	res := seriesErrors{
		maxErrors:  make([]float64, nts),
		maxIndexes: make([]int, nts),
		meanErrors: make([]float64, nts),
	}
	count := 0.0
	for i, s := range b.Samples {
		count += float64(len(s.Target))
		pred := seriesView(s.Pred, nts)
		targ := seriesView(s.Target, nts)

		var errm mat.Dense
		errm.Sub(pred, targ)
		errm.Apply(func(_, _ int, v float64) float64 {
			v = math.Abs(v)
			if !l1 {
				v *= v
			}
			return v
		}, &errm)

		rows, _ := errm.Dims()
		for j := 0; j < nts; j++ {
			col := errm.ColView(j)
			colMax, colIdx := col.AtVec(0), 0
			for r := 1; r < rows; r++ {
				if v := col.AtVec(r); v > colMax {
					colMax, colIdx = v, r
				}
			}
			res.meanErrors[j] += mat.Sum(col)
			if !l1 {
				res.meanErrors[j] = math.Sqrt(res.meanErrors[j])
			}
			if i == 0 || colMax > res.maxErrors[j] {
				res.maxErrors[j] = colMax
				res.maxIndexes[j] = colIdx
			}
		}
	}

	for j := range res.meanErrors {
		res.meanErrors[j] = res.meanErrors[j] / count * float64(nts)
	}
	if nts > 0 {
		res.maxError = res.maxErrors[0]
		res.meanError = res.meanErrors[0]
		for j := 1; j < nts; j++ {
			res.maxError = max(res.maxError, res.maxErrors[j])
			res.meanError += res.meanErrors[j]
		}
		res.meanError /= float64(nts)
	}
	return res
}

type seriesScores struct {
	mape, smape, mase, owa, mae, mse []float64
}

// seriesForecastScores computes the percentage and scaled error families per
// series. The first timestep of the scaled error is ignored, and MASE and
// OWA compare against a naive forecast repeating the previous target.
func seriesForecastScores(b *Batch) seriesScores {
	nts := b.Timeseries
	res := seriesScores{
		mape:  make([]float64, nts),
		smape: make([]float64, nts),
		mase:  make([]float64, nts),
		owa:   make([]float64, nts),
		mae:   make([]float64, nts),
		mse:   make([]float64, nts),
	}
	smapeNaive := make([]float64, nts)

	for _, s := range b.Samples {
		n := float64(len(s.Target))
		pred := seriesView(s.Pred, nts)
		targ := seriesView(s.Target, nts)
		predU := seriesView(s.PredUnscaled, nts)
		targU := seriesView(s.TargetUnscaled, nts)
		dur, _ := targ.Dims()
		fdur := float64(dur)

		naive := mat.NewDense(dur, nts, nil)
		for r := 0; r < dur; r++ {
			src := r - 1
			if src < 0 {
				src = 0
			}
			naive.SetRow(r, mat.Row(nil, src, targ))
		}

		for j := 0; j < nts; j++ {
			var mape, smape, errSum, naiveSum, smapeN, absU, sqU float64
			for r := 0; r < dur; r++ {
				t := targ.At(r, j)
				e := math.Abs(pred.At(r, j) - t)
				if r == 0 {
					e = 0
				}
				ne := math.Abs(naive.At(r, j) - t)
				mape += e / (math.Abs(t) + tsEpsilon)
				smape += e / (math.Abs(pred.At(r, j)) + math.Abs(t) + tsEpsilon)
				errSum += e
				naiveSum += ne
				smapeN += ne / (math.Abs(t) + math.Abs(naive.At(r, j)) + tsEpsilon)

				du := math.Abs(predU.At(r, j) - targU.At(r, j))
				absU += du
				sqU += du * du
			}
			res.mape[j] += mape / fdur
			res.smape[j] += smape / fdur
			res.mae[j] += absU / n
			res.mse[j] += sqU / n
			res.mase[j] += (errSum / fdur) / (naiveSum/fdur + tsEpsilon) / fdur
			smapeNaive[j] += smapeN / fdur
		}
	}

	bs := float64(b.BatchSize)
	for j := 0; j < nts; j++ {
		res.mape[j] = res.mape[j] / bs * 100
		res.smape[j] = res.smape[j] / bs * 200
		res.mase[j] /= bs
		naive := smapeNaive[j] / bs * 200
		res.owa[j] = (res.smape[j]/(naive+tsEpsilon) + res.mase[j]) / 2
		res.mae[j] /= bs
		res.mse[j] /= bs
	}
	return res
}
