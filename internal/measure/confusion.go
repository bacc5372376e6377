package measure

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const f1Epsilon = 1e-8

// confusionMatrix counts samples by (argmax prediction, target class).
// Rows are predictions, columns are targets.
func confusionMatrix(b *Batch) *mat.Dense {
	n := b.NClasses
	cm := mat.NewDense(n, n, nil)
	for _, s := range b.Samples {
		p, t := argmax(s.Pred), int(s.Label())
		cm.Set(p, t, cm.At(p, t)+1)
	}
	return cm
}

type f1Scores struct {
	f1, precision, recall, acc float64
	precisions, recalls, f1s   []float64
	// cmDiag is the per-class recall, cmFull the column normalized matrix.
	cmDiag []float64
	cmFull *mat.Dense
}

// f1Measure computes macro averaged F1, precision and recall.
func f1Measure(b *Batch) f1Scores {
	n := b.NClasses
	cm := confusionMatrix(b)

	colSum := make([]float64, n)
	rowSum := make([]float64, n)
	diag := make([]float64, n)
	for i := 0; i < n; i++ {
		colSum[i] = mat.Sum(cm.ColView(i))
		rowSum[i] = mat.Sum(cm.RowView(i))
		diag[i] = cm.At(i, i)
	}

	res := f1Scores{
		precisions: make([]float64, n),
		recalls:    make([]float64, n),
		f1s:        make([]float64, n),
		cmDiag:     make([]float64, n),
	}
	res.acc = mat.Trace(cm) / mat.Sum(cm)
	for i := 0; i < n; i++ {
		r := diag[i] / (colSum[i] + f1Epsilon)
		p := diag[i] / (rowSum[i] + f1Epsilon)
		res.recalls[i] = r
		res.precisions[i] = p
		res.f1s[i] = 2 * p * r / (p + r + f1Epsilon)
		res.cmDiag[i] = r

		res.recall += r
		res.precision += p
		res.f1 += res.f1s[i]
	}
	res.recall /= float64(n)
	res.precision /= float64(n)
	res.f1 /= float64(n)

	for i := 0; i < n; i++ {
		if colSum[i] > 0 {
			col := mat.Col(nil, i, cm)
			for j := range col {
				col[j] /= colSum[i]
			}
			cm.SetCol(i, col)
		}
	}
	res.cmFull = cm
	return res
}

// mcc is the Matthews correlation of the first two classes.
func mcc(b *Batch) float64 {
	cm := confusionMatrix(b)
	tp := cm.At(0, 0)
	tn := cm.At(1, 1)
	fn := cm.At(0, 1)
	fp := cm.At(1, 0)
	den := (tp + fp) * (tp + fn) * (tn + fp) * (tn + fn)
	if den == 0 {
		den = 1
	}
	return (tp*tn - fp*fn) / math.Sqrt(den)
}

// mcll is the multiclass log loss.
func mcll(b *Batch) float64 {
	if b.BatchSize == 0 {
		return 0
	}
	ll := 0.0
	for _, s := range b.Samples {
		ll -= math.Log(s.Pred[int(s.Label())])
	}
	return ll / float64(b.BatchSize)
}
