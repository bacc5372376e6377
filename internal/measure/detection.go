package measure

import (
	"math"
	"sort"

	"github.com/corner4world/deepdetect/internal/schema"
)

const apRecallEpsilon = 1e-6

type scorePair struct {
	score float64
	flag  int
}

func pairs(scores []float64, flags []int) []scorePair {
	out := make([]scorePair, len(scores))
	for i := range scores {
		out[i] = scorePair{score: scores[i], flag: flags[i]}
	}
	return out
}

// cumulativeFlags sorts by descending score, keeping input order on ties,
// and returns the running sum of flags.
func cumulativeFlags(ps []scorePair) []int {
	sorted := append([]scorePair(nil), ps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].score > sorted[j].score
	})
	sums := make([]int, len(sorted))
	for i, p := range sorted {
		sums[i] = p.flag
		if i > 0 {
			sums[i] += sums[i-1]
		}
	}
	return sums
}

// averagePrecision integrates the precision/recall curve of one class,
// walking recall downwards with a running maximum precision.
func averagePrecision(tp, fp []scorePair, numPos int) float64 {
	num := len(tp)
	if num == 0 || numPos == 0 {
		return 0
	}
	tpSum := cumulativeFlags(tp)
	fpSum := cumulativeFlags(fp)

	prec := make([]float64, num)
	rec := make([]float64, num)
	for i := 0; i < num; i++ {
		fpc := 0
		if i < len(fpSum) {
			fpc = fpSum[i]
		}
		prec[i] = float64(tpSum[i]) / float64(tpSum[i]+fpc)
		rec[i] = float64(tpSum[i]) / float64(numPos)
	}

	ap := 0.0
	curRec := float32(rec[num-1])
	curPrec := float32(prec[num-1])
	for i := num - 2; i >= 0; i-- {
		curPrec = max(float32(prec[i]), curPrec)
		if d := math.Abs(float64(curRec) - rec[i]); d > apRecallEpsilon {
			ap += float64(curPrec) * d
		}
		curRec = float32(rec[i])
	}
	ap += float64(curRec) * float64(curPrec)
	return ap
}

type labelAP struct {
	label int
	ap    float64
}

// meanAveragePrecision returns the mAP over every detection record with
// data, and the per-label AP ordered by label.
func meanAveragePrecision(b *Batch) (float64, []labelAP) {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	total := 0.0
	countAll := 0

	for _, d := range b.Detections {
		if len(d.TPD) > 0 || len(d.FPD) > 0 || d.NumPos > 0 {
			ap := averagePrecision(pairs(d.TPD, d.TPI), pairs(d.FPD, d.FPI), d.NumPos)
			sums[d.Label] += ap
			counts[d.Label]++
			total += ap
			countAll++
		} else if _, seen := sums[d.Label]; !seen {
			sums[d.Label] = 0
			counts[d.Label] = 0
		}
	}

	labels := make([]int, 0, len(sums))
	for l := range sums {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	aps := make([]labelAP, len(labels))
	for i, l := range labels {
		ap := 0.0
		if counts[l] > 0 {
			ap = float64(float32(sums[l]) / float32(counts[l]))
		}
		aps[i] = labelAP{label: l, ap: ap}
	}

	if countAll == 0 {
		return 0, aps
	}
	return total / float64(countAll), aps
}

// rawOutput lists truths, estimations and confidences by class name.
type rawOutput struct {
	Truths      []string      `json:"truths"`
	Estimations []string      `json:"estimations"`
	Confidences []float64     `json:"confidences"`
	AllLogits   []logitsEntry `json:"all_logits,omitempty"`
}

type logitsEntry struct {
	Logits []float64 `json:"logits"`
}

// rawDetections expands detection records into one line per detection:
// true positives, false positives against UNDEFINED_GT, and one
// NO_DETECTION line per missed ground truth.
func rawDetections(b *Batch) rawOutput {
	out := rawOutput{
		Truths:      []string{},
		Estimations: []string{},
		Confidences: []float64{},
	}
	withLogits := false
	ncl := float64(len(b.CLNames))

	for _, d := range b.Detections {
		name := b.CLNames[d.Label]
		n := max(len(d.TPD), len(d.FPD))
		for k := 0; k < n; k++ {
			if k < len(d.TPI) && d.TPI[k] == 1 {
				out.Truths = append(out.Truths, name)
				out.Estimations = append(out.Estimations, name)
				out.Confidences = append(out.Confidences, d.TPD[k])
			}
			if k < len(d.FPI) && d.FPI[k] == 1 {
				out.Estimations = append(out.Estimations, name)
				out.Truths = append(out.Truths, schema.UndefinedGT)
				out.Confidences = append(out.Confidences, d.FPD[k])
			}
		}

		found := 0
		for _, f := range d.TPI {
			if f == 1 {
				found++
			}
		}
		missed := d.NumPos - found
		for k := 0; k < missed; k++ {
			out.Truths = append(out.Truths, name)
			out.Confidences = append(out.Confidences, 1.0)
			out.Estimations = append(out.Estimations, schema.NoDetection)
		}

		if d.AllLogits != nil {
			withLogits = true
			for _, l := range d.AllLogits {
				out.AllLogits = append(out.AllLogits, logitsEntry{Logits: l})
			}
			for k := 0; k < missed; k++ {
				bg := make([]float64, len(b.CLNames))
				if len(bg) > 0 {
					bg[0] = 0.5 + 0.5/ncl
					for c := 1; c < len(bg); c++ {
						bg[c] = 1.0 / ncl / 2.0
					}
				}
				out.AllLogits = append(out.AllLogits, logitsEntry{Logits: bg})
			}
		}
	}
	if !withLogits {
		out.AllLogits = nil
	}
	return out
}
