package measure

// rawClassification lists, per sample, the target class name, the argmax
// class name and its score.
func rawClassification(b *Batch) rawOutput {
	out := rawOutput{
		Truths:      make([]string, 0, len(b.Samples)),
		Estimations: make([]string, 0, len(b.Samples)),
		Confidences: make([]float64, 0, len(b.Samples)),
	}
	for _, s := range b.Samples {
		best := argmax(s.Pred)
		out.Truths = append(out.Truths, b.CLNames[int(s.Label())])
		out.Estimations = append(out.Estimations, b.CLNames[best])
		out.Confidences = append(out.Confidences, s.Pred[best])
		if s.Logits != nil {
			out.AllLogits = append(out.AllLogits, logitsEntry{Logits: s.Logits})
		}
	}
	return out
}
