// Package columnar provides the append-only time-series store used by the
// backtest engine: raw rows plus named derived columns aligned 1:1 with them.
//
// Backing storage grows by doubling to the next power of two, so Append is
// O(1) amortized. Every accessor accepts negative indexes (-1 is the last
// row) and returns a sentinel instead of panicking when the index or column
// does not exist: the zero row with false, NaN for indicator cells, and
// position.Empty for position cells.
package columnar

import (
	"math"

	"tradelab/internal/position"
)

// minCapacity is the smallest backing allocation.
const minCapacity = 8

// Store holds rows of type T and their derived columns. Not safe for
// concurrent use.
type Store[T any] struct {
	rows []T // len(rows) is the capacity; n is the logical length
	n    int

	cols     map[string][]float64
	colOrder []string

	pos      map[string][]position.TradePosition
	posOrder []string
}

// New creates an empty store. capacity is rounded up to a power of two.
func New[T any](capacity int) *Store[T] {
	if capacity < minCapacity {
		capacity = minCapacity
	}
	return &Store[T]{
		rows: make([]T, nextPow2(capacity)),
		cols: make(map[string][]float64),
		pos:  make(map[string][]position.TradePosition),
	}
}

// Len returns the number of rows appended.
func (s *Store[T]) Len() int { return s.n }

// Cap returns the current backing capacity.
func (s *Store[T]) Cap() int { return len(s.rows) }

// Append adds v at the tail and returns its index. Every registered column
// gains an unset cell for the new row.
func (s *Store[T]) Append(v T) int {
	if s.n == len(s.rows) {
		s.grow(nextPow2(s.n + 1))
	}
	s.rows[s.n] = v
	s.n++
	return s.n - 1
}

func (s *Store[T]) grow(capacity int) {
	rows := make([]T, capacity)
	copy(rows, s.rows[:s.n])
	s.rows = rows

	for name, col := range s.cols {
		s.cols[name] = growFloats(col, capacity)
	}
	for name, col := range s.pos {
		next := make([]position.TradePosition, capacity)
		copy(next, col)
		s.pos[name] = next
	}
}

func growFloats(col []float64, capacity int) []float64 {
	next := make([]float64, capacity)
	copy(next, col)
	fillNaN(next[len(col):])
	return next
}

func fillNaN(cells []float64) {
	for i := range cells {
		cells[i] = math.NaN()
	}
}

// index resolves a possibly negative index against length n.
func index(i, n int) (int, bool) {
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

// Value returns the row at i.
func (s *Store[T]) Value(i int) (T, bool) {
	j, ok := index(i, s.n)
	if !ok {
		var zero T
		return zero, false
	}
	return s.rows[j], true
}

// ─── Indicator columns ───

// EnsureColumn registers an indicator column filled with NaN. It reports
// whether the column was created; an existing column is left untouched.
func (s *Store[T]) EnsureColumn(name string) bool {
	if _, ok := s.cols[name]; ok {
		return false
	}
	col := make([]float64, len(s.rows))
	fillNaN(col)
	s.cols[name] = col
	s.colOrder = append(s.colOrder, name)
	return true
}

// HasColumn reports whether an indicator column is registered.
func (s *Store[T]) HasColumn(name string) bool {
	_, ok := s.cols[name]
	return ok
}

// Columns returns indicator column names in registration order.
func (s *Store[T]) Columns() []string {
	out := make([]string, len(s.colOrder))
	copy(out, s.colOrder)
	return out
}

// SetColumn writes v into row i of the named column. It reports false for an
// unknown column or an out-of-range row.
func (s *Store[T]) SetColumn(i int, name string, v float64) bool {
	col, ok := s.cols[name]
	if !ok {
		return false
	}
	j, ok := index(i, s.n)
	if !ok {
		return false
	}
	col[j] = v
	return true
}

// Column returns row i of the named column, or NaN.
func (s *Store[T]) Column(i int, name string) float64 {
	return s.column(i, s.n, name)
}

func (s *Store[T]) column(i, n int, name string) float64 {
	col, ok := s.cols[name]
	if !ok {
		return math.NaN()
	}
	j, ok := index(i, n)
	if !ok {
		return math.NaN()
	}
	return col[j]
}

// ─── Position columns ───

// EnsurePositionColumn registers a position column filled with
// position.Empty. It reports whether the column was created.
func (s *Store[T]) EnsurePositionColumn(name string) bool {
	if _, ok := s.pos[name]; ok {
		return false
	}
	s.pos[name] = make([]position.TradePosition, len(s.rows))
	s.posOrder = append(s.posOrder, name)
	return true
}

// PositionColumns returns position column names in registration order.
func (s *Store[T]) PositionColumns() []string {
	out := make([]string, len(s.posOrder))
	copy(out, s.posOrder)
	return out
}

// SetPosition writes p into row i of the named position column.
func (s *Store[T]) SetPosition(i int, name string, p position.TradePosition) bool {
	col, ok := s.pos[name]
	if !ok {
		return false
	}
	j, ok := index(i, s.n)
	if !ok {
		return false
	}
	col[j] = p
	return true
}

// Position returns row i of the named position column, or position.Empty.
func (s *Store[T]) Position(i int, name string) position.TradePosition {
	return s.position(i, s.n, name)
}

func (s *Store[T]) position(i, n int, name string) position.TradePosition {
	col, ok := s.pos[name]
	if !ok {
		return position.Empty
	}
	j, ok := index(i, n)
	if !ok {
		return position.Empty
	}
	return col[j]
}

// ─── Views ───

// Upto returns a view of rows [0, i]. An out-of-range i yields an empty view.
func (s *Store[T]) Upto(i int) View[T] {
	j, ok := index(i, s.n)
	if !ok {
		return View[T]{s: s}
	}
	return View[T]{s: s, end: j + 1}
}

// All returns a view over every row currently stored.
func (s *Store[T]) All() View[T] { return View[T]{s: s, end: s.n} }

// Quote returns the quote at row i. Check Valid on the result when i may be
// out of range.
func (s *Store[T]) Quote(i int) Quote[T] { return s.All().Quote(i) }

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
