package measure

import (
	"sort"
	"strconv"

	"github.com/corner4world/deepdetect/internal/schema"
)

// accuracyAtK returns the share of samples whose target is among the k
// best scored classes. Samples with fewer than k scores count as misses.
func accuracyAtK(b *Batch, k int) float64 {
	if b.BatchSize == 0 {
		return 0
	}
	hits := 0.0
	for _, s := range b.Samples {
		if k < 1 || k-1 >= len(s.Pred) {
			continue
		}
		idx := rankDescending(s.Pred)
		target := s.Label()
		for _, j := range idx[:k] {
			if float64(j) == target {
				hits++
				break
			}
		}
	}
	return hits / float64(b.BatchSize)
}

// rankDescending returns indices of v ordered by decreasing score, lower
// index first on ties.
func rankDescending(v []float64) []int {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, c int) bool {
		return v[idx[a]] > v[idx[c]]
	})
	return idx
}

// accuracyKey is "acc" for k = 1 and "acc-<k>" otherwise.
func accuracyKey(k int) string {
	if k > 1 {
		return schema.Acc + "-" + strconv.Itoa(k)
	}
	return schema.Acc
}

// accuracies computes one accuracy per requested k. Keys come out sorted
// and each appears once.
func accuracies(b *Batch, ks []int) []Field {
	byKey := make(map[string]float64, len(ks))
	for _, k := range ks {
		key := accuracyKey(k)
		if _, done := byKey[key]; done {
			continue
		}
		byKey[key] = accuracyAtK(b, k)
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Field, len(keys))
	for i, k := range keys {
		out[i] = Field{Key: k, Value: byKey[k]}
	}
	return out
}

// straightMeasure reads an accuracy computed by the network itself.
func straightMeasure(b *Batch) float64 {
	if len(b.Samples) == 0 || len(b.Samples[0].Pred) == 0 {
		return 0
	}
	return b.Samples[0].Pred[0]
}

type segmentationAccuracy struct {
	acc     float64
	meanAcc float64
	meanIOU float64
	clAcc   []float64
	clIOU   []float64
}

// segmentation compares per-pixel class maps.
func segmentation(b *Batch) segmentationAccuracy {
	n := b.NClasses
	meanAcc := make([]float64, n)
	meanAccBS := make([]float64, n)
	meanIOU := make([]float64, n)
	meanIOUBS := make([]float64, n)
	accSum := 0.0

	for _, s := range b.Samples {
		pred, targ := s.Pred, s.Target
		same := 0
		for j := range pred {
			if pred[j] == targ[j] {
				same++
			}
		}
		accSum += float64(same) / float64(len(pred))

		for c := 0; c < n; c++ {
			cf := float64(c)
			var hit, total, falseNeg, falsePos float64
			for j := range pred {
				p, t := pred[j] == cf, targ[j] == cf
				switch {
				case p && t:
					hit++
				case t:
					falseNeg++
				case p:
					falsePos++
				}
				if t {
					total++
				}
			}
			if total != 0 {
				meanAcc[c] += hit / total
				meanAccBS[c]++
			}
			iou := 0.0
			if hit != 0 {
				iou = hit / (falsePos + hit + falseNeg)
			}
			meanIOU[c] += iou
			if total != 0 {
				meanIOUBS[c]++
			}
		}
	}

	res := segmentationAccuracy{clAcc: meanAcc, clIOU: meanIOU}
	present := 0
	for c := 0; c < n; c++ {
		if meanAccBS[c] > 0 {
			meanAcc[c] /= meanAccBS[c]
			meanIOU[c] /= meanIOUBS[c]
			present++
		}
		res.meanAcc += meanAcc[c]
		res.meanIOU += meanIOU[c]
	}
	if present > 0 {
		res.meanAcc /= float64(present)
		res.meanIOU /= float64(present)
	}
	if b.BatchSize > 0 {
		res.acc = accSum / float64(b.BatchSize)
	}
	return res
}

type multilabelAccuracy struct {
	f1          float64
	precision   float64
	sensitivity float64
	specificity float64
	harmMean    float64
}

// multilabel scores binary decisions per label. Targets >= 0.5 are
// positive, negative targets are ignored, and a prediction >= 0 means the
// label was predicted.
func multilabel(b *Batch) multilabelAccuracy {
	var tp, fp, tn, fn, pos, neg float64
	for _, s := range b.Samples {
		for j, p := range s.Pred {
			t := s.Target[j]
			if t < 0 {
				continue
			}
			if t >= 0.5 {
				if p >= 0 {
					tp++
				} else {
					fn++
				}
				pos++
			} else {
				if p < 0 {
					tn++
				} else {
					fp++
				}
				neg++
			}
		}
	}

	var res multilabelAccuracy
	if pos > 0 {
		res.sensitivity = tp / pos
	}
	if neg > 0 {
		res.specificity = tn / neg
	}
	if pos+neg > 0 {
		res.harmMean = 2 / (pos/tp + neg/tn)
	}
	if tp > 0 {
		res.precision = tp / (tp + fp)
		res.f1 = 2 * tp / (2*tp + fp + fn)
	}
	return res
}
