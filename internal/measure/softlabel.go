package measure

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const softEpsilon = 1e-5

// Deltas are the tolerances reported by the delta score.
var Deltas = []float64{0.05, 0.1, 0.2, 0.5}

// masked reports whether target t is left out at threshold thres.
// A negative threshold only drops negative targets.
func masked(t, thres float64) bool {
	if thres >= 0 {
		return t <= thres
	}
	return t < 0
}

func clampLow(v float64) float64 {
	if v < softEpsilon {
		return softEpsilon
	}
	return v
}

// softKL is the mean Kullback-Leibler contribution t*log(t/p) over kept targets.
func softKL(b *Batch, thres float64) float64 {
	sum, count := 0.0, 0
	for _, s := range b.Samples {
		for j, t := range s.Target {
			if masked(t, thres) {
				continue
			}
			count++
			te, pe := clampLow(t), clampLow(s.Pred[j])
			sum += math.Log(te/pe) * te
		}
	}
	return sum / float64(count)
}

// softJS is the mean Jensen-Shannon contribution over kept targets.
func softJS(b *Batch, thres float64) float64 {
	sum, count := 0.0, 0
	for _, s := range b.Samples {
		for j, t := range s.Target {
			if masked(t, thres) {
				continue
			}
			count++
			te, pe := clampLow(t), clampLow(s.Pred[j])
			m := 1 / (pe + te)
			sum += math.Log(m*te*2)*te*0.5 + math.Log(m*pe*2)*pe*0.5
		}
	}
	return sum / float64(count)
}

// softWasserstein is the root mean squared difference over kept targets.
func softWasserstein(b *Batch, thres float64) float64 {
	sum, count := 0.0, 0
	for _, s := range b.Samples {
		for j, t := range s.Target {
			if masked(t, thres) {
				continue
			}
			count++
			d := t - s.Pred[j]
			sum += d * d
		}
	}
	return math.Sqrt(sum) / math.Sqrt(float64(count))
}

// softKS is the largest absolute difference over kept targets of the batch.
func softKS(b *Batch, thres float64) float64 {
	ks := 0.0
	for _, s := range b.Samples {
		for j, t := range s.Target {
			if masked(t, thres) {
				continue
			}
			ks = max(ks, math.Abs(t-s.Pred[j]))
		}
	}
	return ks
}

// softDistanceCorrelation averages, over samples, the distance correlation
// between target and prediction across the sample's kept classes.
func softDistanceCorrelation(b *Batch, thres float64) float64 {
	if b.BatchSize == 0 {
		return 0
	}
	dc := 0.0
	for _, s := range b.Samples {
		var care []int
		for l, t := range s.Target {
			if !masked(t, thres) {
				care = append(care, l)
			}
		}
		if len(care) == 0 {
			continue
		}
		dc += distanceCorrelation(s.Target, s.Pred, care)
	}
	return dc / float64(b.BatchSize)
}

// distanceCorrelation works on the double centred distance matrices of the
// selected entries.
func distanceCorrelation(targets, preds []float64, care []int) float64 {
	t := centredDistances(targets, care)
	p := centredDistances(preds, care)
	nn := float64(len(care) * len(care))

	var pt, tt, pp mat.Dense
	pt.MulElem(p, t)
	tt.MulElem(t, t)
	pp.MulElem(p, p)
	dcov := math.Sqrt(mat.Sum(&pt) / nn)
	dvart := math.Sqrt(mat.Sum(&tt) / nn)
	dvarp := math.Sqrt(mat.Sum(&pp) / nn)
	if dvart == 0 || dvarp == 0 {
		return 0
	}
	return dcov / math.Sqrt(dvart*dvarp)
}

// centredDistances returns the pairwise |v[l]-v[m]| matrix over care with
// row and column means removed and the grand mean added back.
func centredDistances(v []float64, care []int) *mat.Dense {
	n := len(care)
	d := mat.NewDense(n, n, nil)
	for i, l := range care {
		for j, m := range care {
			d.Set(i, j, math.Abs(v[l]-v[m]))
		}
	}
	rows := make([]float64, n)
	grand := 0.0
	for i := range rows {
		rows[i] = mat.Sum(d.RowView(i)) / float64(n)
		grand += rows[i]
	}
	grand /= float64(n)
	d.Apply(func(i, j int, x float64) float64 {
		return x - rows[i] - rows[j] + grand
	}, d)
	return d
}

// softR2 is the coefficient of determination over kept targets.
func softR2(b *Batch, thres float64) float64 {
	var tSum, ssRes float64
	count := 0
	for _, s := range b.Samples {
		for j, t := range s.Target {
			if masked(t, thres) {
				continue
			}
			count++
			tSum += t
			d := t - s.Pred[j]
			ssRes += d * d
		}
	}
	tMean := tSum / float64(count)

	ssTot := 0.0
	for _, s := range b.Samples {
		for _, t := range s.Target {
			if masked(t, thres) {
				continue
			}
			d := t - tMean
			ssTot += d * d
		}
	}
	return 1 - ssRes/ssTot
}

// softDeltas returns, for every delta, the share of kept targets predicted
// within delta.
func softDeltas(b *Batch, deltas []float64, thres float64) []float64 {
	scores := make([]float64, len(deltas))
	count := 0
	for _, s := range b.Samples {
		for j, t := range s.Target {
			if masked(t, thres) {
				continue
			}
			count++
			d := math.Abs(t - s.Pred[j])
			for k, delta := range deltas {
				if d < delta {
					scores[k]++
				}
			}
		}
	}
	for k := range scores {
		scores[k] /= float64(count)
	}
	return scores
}
