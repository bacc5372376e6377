package measure

import "sort"

// auc is the Mann-Whitney estimate of the area under the ROC curve for the
// score of class 1. A batch with a single target class scores 1.
func auc(b *Batch) float64 {
	type scored struct {
		pred   float32
		answer int
	}
	ps := make([]scored, len(b.Samples))
	for i, s := range b.Samples {
		ps[i] = scored{pred: float32(s.Pred[1]), answer: int(s.Label())}
	}
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].pred < ps[j].pred
	})

	count := len(ps)
	ones := 0
	for _, p := range ps {
		ones += p.answer
	}
	if ones == 0 || ones == count {
		return 1
	}

	truePos, tp0 := ones, ones
	accum, tn := 0, 0
	threshold := ps[0].pred
	for _, p := range ps {
		if p.pred != threshold {
			threshold = p.pred
			accum += tn * (truePos + tp0)
			tp0 = truePos
			tn = 0
		}
		tn += 1 - p.answer
		truePos -= p.answer
	}
	accum += tn * (truePos + tp0)
	return float64(accum) / float64(2*ones*(count-ones))
}

// giniRaw accumulates the gap between the cumulative share of a, taken in
// decreasing p order, and the uniform population share.
func giniRaw(a, p []float64) float64 {
	n := len(a)
	idx := make([]int, n)
	sum := 0.0
	for i := range idx {
		idx[i] = i
		sum += a[i]
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return p[idx[i]] > p[idx[j]]
	})

	var lossShare, popShare, g float64
	for _, i := range idx {
		lossShare += a[i] / sum
		popShare += 1.0 / float64(n)
		g += lossShare - popShare
	}
	return g / float64(n)
}

// giniNormalized divides by the coefficient of the perfect ranking.
func giniNormalized(a, p []float64) float64 {
	return giniRaw(a, p) / giniRaw(a, a)
}

// gini ranks targets by the regression output, or by the predicted class
// for classification batches.
func gini(b *Batch) float64 {
	a := make([]float64, len(b.Samples))
	p := make([]float64, len(b.Samples))
	for i, s := range b.Samples {
		a[i] = s.Label()
		if b.Regression {
			p[i] = s.Pred[0]
		} else {
			p[i] = float64(argmax(s.Pred))
		}
	}
	return giniNormalized(a, p)
}
