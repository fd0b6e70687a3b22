package columnar

import (
	"math"

	"tradelab/internal/position"
)

var nan = math.NaN()

// Quote is a lightweight view of one row: the raw value plus every named
// indicator and position cell at that index. It is constructed on demand and
// holds no data of its own.
type Quote[T any] struct {
	s *Store[T]
	i int
}

// Valid reports whether the quote points at a stored row.
func (q Quote[T]) Valid() bool { return q.s != nil && q.i >= 0 && q.i < q.s.n }

// Index returns the absolute row index, or -1 for an invalid quote.
func (q Quote[T]) Index() int {
	if !q.Valid() {
		return -1
	}
	return q.i
}

// Raw returns the stored row.
func (q Quote[T]) Raw() T {
	if !q.Valid() {
		var zero T
		return zero
	}
	return q.s.rows[q.i]
}

// Indicator returns the named indicator value at this row, or NaN.
func (q Quote[T]) Indicator(name string) float64 {
	if !q.Valid() {
		return nan
	}
	return q.s.Column(q.i, name)
}

// Position returns the named position cell at this row.
func (q Quote[T]) Position(name string) position.TradePosition {
	if !q.Valid() {
		return position.Empty
	}
	return q.s.Position(q.i, name)
}

// Prev returns the quote k rows earlier. The result is invalid when it would
// fall before the first row.
func (q Quote[T]) Prev(k int) Quote[T] {
	if !q.Valid() || q.i-k < 0 {
		return Quote[T]{i: -1}
	}
	return Quote[T]{s: q.s, i: q.i - k}
}

// QuoteSnapshot is a materialized copy of a quote, safe to keep after the
// store changes.
type QuoteSnapshot[T any] struct {
	Index      int
	Raw        T
	Indicators map[string]float64
	Positions  map[string]position.TradePosition
}

// Snapshot copies every column value at this row.
func (q Quote[T]) Snapshot() QuoteSnapshot[T] {
	snap := QuoteSnapshot[T]{
		Index:      q.Index(),
		Raw:        q.Raw(),
		Indicators: make(map[string]float64),
		Positions:  make(map[string]position.TradePosition),
	}
	if !q.Valid() {
		return snap
	}
	for _, name := range q.s.colOrder {
		snap.Indicators[name] = q.s.cols[name][q.i]
	}
	for _, name := range q.s.posOrder {
		snap.Positions[name] = q.s.pos[name][q.i]
	}
	return snap
}
