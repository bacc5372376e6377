package result

import "sort"

// Scored pairs a payload with the score it was ranked by.
type Scored[T any] struct {
	Score float64
	Value T
}

// ScoredList is a slice of scored payloads kept in descending score order.
// Entries with equal scores keep their insertion order.
type ScoredList[T any] struct {
	items []Scored[T]
}

// Insert places v after every entry whose score is >= score.
func (l *ScoredList[T]) Insert(score float64, v T) {
	i := sort.Search(len(l.items), func(i int) bool {
		return l.items[i].Score < score
	})
	l.items = append(l.items, Scored[T]{})
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = Scored[T]{Score: score, Value: v}
}

// Append adds an entry known to rank after every existing entry.
// Used when copying from an already ordered list.
func (l *ScoredList[T]) Append(s Scored[T]) {
	if n := len(l.items); n > 0 && l.items[n-1].Score < s.Score {
		l.Insert(s.Score, s.Value)
		return
	}
	l.items = append(l.items, s)
}

// Len returns the number of entries.
func (l *ScoredList[T]) Len() int {
	return len(l.items)
}

// Empty reports whether the list holds no entries.
func (l *ScoredList[T]) Empty() bool {
	return len(l.items) == 0
}

// At returns the i-th entry.
func (l *ScoredList[T]) At(i int) Scored[T] {
	return l.items[i]
}

// Items returns the entries in rank order. The slice must not be modified.
func (l *ScoredList[T]) Items() []Scored[T] {
	return l.items
}

// Prefix returns a copy of the first n entries (all of them when n exceeds Len).
func (l *ScoredList[T]) Prefix(n int) ScoredList[T] {
	if n < 0 || n > len(l.items) {
		n = len(l.items)
	}
	out := make([]Scored[T], n)
	copy(out, l.items[:n])
	return ScoredList[T]{items: out}
}

// Clone returns a copy of the whole list.
func (l *ScoredList[T]) Clone() ScoredList[T] {
	return l.Prefix(-1)
}
