package measure

import "math"

const percentEpsilon = 1e-9

// sampleTargets returns the regression targets compared with pred: the
// full vector for multi-dimensional outputs, the first value otherwise.
func sampleTargets(s Sample) []float64 {
	if len(s.Pred) > 1 {
		return s.Target
	}
	return s.Target[:1]
}

func (b *Batch) ignored(t float64) bool {
	return b.IgnoreLabel != nil && int(t) == *b.IgnoreLabel
}

// distance returns the mean L1 or L2 error per output dimension and, when
// perDim is set, the error of each dimension averaged over the batch.
// A non-negative thres keeps only differences of at least thres.
func distance(b *Batch, thres float64, perDim, l1 bool) (float64, []float64) {
	if b.BatchSize == 0 {
		return 0, nil
	}
	var all []float64
	if perDim {
		all = make([]float64, len(b.Samples[0].Pred))
	}

	total := 0.0
	for _, s := range b.Samples {
		regDim := float64(len(s.Pred))
		squared := 0.0
		for j, t := range sampleTargets(s) {
			if b.ignored(t) {
				continue
			}
			diff := math.Abs(s.Pred[j] - t)
			if thres >= 0 && diff < thres {
				continue
			}
			if l1 {
				total += diff / regDim
			} else {
				squared += diff * diff
			}
			if perDim {
				if l1 {
					all[j] += diff
				} else {
					all[j] += diff * diff
				}
			}
		}
		if !l1 {
			total += math.Sqrt(squared) / regDim
		}
	}

	for j := range all {
		if !l1 {
			all[j] = math.Sqrt(all[j])
		}
		all[j] /= float64(b.BatchSize)
	}
	return total / float64(b.BatchSize), all
}

// percentError is the mean relative error in percent.
func percentError(b *Batch, perDim bool) (float64, []float64) {
	if b.BatchSize == 0 {
		return 0, nil
	}
	var all []float64
	if perDim {
		all = make([]float64, len(b.Samples[0].Pred))
	}

	total := 0.0
	for _, s := range b.Samples {
		regDim := float64(len(s.Pred))
		for j, t := range sampleTargets(s) {
			if b.ignored(t) {
				continue
			}
			rel := math.Abs(s.Pred[j]-t) / (math.Abs(t) + percentEpsilon)
			total += rel / regDim
			if perDim {
				all[j] += rel
			}
		}
	}

	for j := range all {
		all[j] = all[j] / float64(b.BatchSize) * 100
	}
	return total * 100 / float64(b.BatchSize), all
}
