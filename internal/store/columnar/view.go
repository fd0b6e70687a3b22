package columnar

import "tradelab/internal/position"

// View is a read-only window over the first Len rows of a store. It is a
// small value; taking one never copies data. Negative indexes count back from
// the view's own end, not the store's.
type View[T any] struct {
	s   *Store[T]
	end int
}

// Len returns the number of rows visible through the view.
func (v View[T]) Len() int { return v.end }

// Value returns row i of the view.
func (v View[T]) Value(i int) (T, bool) {
	j, ok := index(i, v.end)
	if !ok {
		var zero T
		return zero, false
	}
	return v.s.rows[j], true
}

// Last returns the final visible row.
func (v View[T]) Last() (T, bool) { return v.Value(-1) }

// Column returns row i of the named indicator column, or NaN.
func (v View[T]) Column(i int, name string) float64 {
	if v.s == nil {
		return nan
	}
	return v.s.column(i, v.end, name)
}

// Position returns row i of the named position column, or position.Empty.
func (v View[T]) Position(i int, name string) position.TradePosition {
	if v.s == nil {
		return position.Empty
	}
	return v.s.position(i, v.end, name)
}

// Quote returns the quote at row i of the view.
func (v View[T]) Quote(i int) Quote[T] {
	j, ok := index(i, v.end)
	if !ok {
		return Quote[T]{i: -1}
	}
	return Quote[T]{s: v.s, i: j}
}
