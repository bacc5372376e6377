package result

// Set maps sample URIs to records and remembers first-insertion order.
type Set struct {
	index   map[string]int
	records []*Record
}

// NewSet creates an empty result set.
func NewSet() *Set {
	return &Set{index: make(map[string]int)}
}

// Insert adds r unless a record with the same URI already exists.
// The first record for a URI wins; Insert reports whether r was stored.
func (s *Set) Insert(r *Record) bool {
	if _, ok := s.index[r.URI]; ok {
		return false
	}
	r.mustAlign()
	s.index[r.URI] = len(s.records)
	s.records = append(s.records, r)
	return true
}

// Get returns the record for uri.
func (s *Set) Get(uri string) (*Record, bool) {
	i, ok := s.index[uri]
	if !ok {
		return nil, false
	}
	return s.records[i], true
}

// Len returns the number of records.
func (s *Set) Len() int {
	return len(s.records)
}

// Records returns the records in insertion order.
func (s *Set) Records() []*Record {
	return s.records
}

// Clone returns a copy of s whose records can be annotated without
// touching the originals. Neighbour lists are not carried over.
func (s *Set) Clone() *Set {
	out := NewSet()
	for _, r := range s.records {
		c := r.Shell()
		c.Cats = r.Cats.Clone()
		c.BBoxes = r.BBoxes.Clone()
		c.Vals = r.Vals.Clone()
		c.Masks = r.Masks.Clone()
		c.Series = r.Series.Clone()
		out.Insert(c)
	}
	return out
}
