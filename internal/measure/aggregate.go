package measure

// AggregateMultipleTestsets averages the scalar values of several per-test records.
// Keys keep the order of their first appearance; non-scalar values such as
// per-class vectors, raw outputs, test_id and test_name are left out. Each
// sum is divided by the number of records, including records that lack the
// key.
func AggregateMultipleTestsets(records []*Record) *Record {
	out := NewRecord()
	if len(records) == 0 {
		return out
	}
	sums := make(map[string]float64)
	var order []string
	for _, r := range records {
		for _, f := range r.Fields() {
			v, ok := f.Value.(float64)
			if !ok {
				continue
			}
			if _, seen := sums[f.Key]; !seen {
				order = append(order, f.Key)
			}
			sums[f.Key] += v
		}
	}
	n := float64(len(records))
	for _, k := range order {
		out.Set(k, sums[k]/n)
	}
	return out
}
