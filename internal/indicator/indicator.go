// Package indicator provides technical indicator calculations over a
// columnar store.
//
// Every indicator has a full Compute over the history visible through a
// View. Indicators that can do better also implement Incremental, an O(1)
// update from the previous cell that must agree with Compute. Composite
// indicators declare the sub-indicators they read through BeforeCompute; the
// dataset registers those first so their cells are always filled before the
// dependant reads them.
//
// Insufficient history yields NaN. A zero divisor yields the indicator's
// neutral value instead of Inf or NaN.
package indicator

import (
	"math"
	"strconv"

	"tradelab/internal/model"
	"tradelab/internal/store/columnar"
)

// Indicator is the interface for all technical indicators.
type Indicator[T any] interface {
	// Name returns the column name (e.g., "SMA_20", "EMA_9").
	Name() string

	// Compute returns the value for the last row of v from scratch.
	Compute(v columnar.View[T]) float64
}

// Incremental is implemented by indicators with an O(1) update. prev is the
// indicator's own value on the previous row and is never NaN; row is the
// last row of v.
type Incremental[T any] interface {
	Update(prev float64, row T, v columnar.View[T]) float64
}

// Composite is implemented by indicators that read other indicator columns.
type Composite[T any] interface {
	BeforeCompute(r Registrar[T])
}

// Registrar accepts sub-indicator registrations. Registering a name that is
// already known is a no-op and reports false.
type Registrar[T any] interface {
	Register(ind Indicator[T]) bool
}

var nan = math.NaN()

// source reads one number at absolute row i of a view.
type source[T any] func(v columnar.View[T], i int) float64

func fieldSource[T any](f model.Field[T]) source[T] {
	return func(v columnar.View[T], i int) float64 {
		row, ok := v.Value(i)
		if !ok {
			return nan
		}
		return f.Get(row)
	}
}

func columnSource[T any](name string) source[T] {
	return func(v columnar.View[T], i int) float64 { return v.Column(i, name) }
}

// fieldTag is the column-name suffix for field ("_high"). Fields in defaults,
// and the scalar "value", leave the name unchanged.
func fieldTag(field string, defaults ...string) string {
	if field == "" || field == "value" {
		return ""
	}
	for _, d := range defaults {
		if field == d {
			return ""
		}
	}
	return "_" + field
}

func columnName(kind string, periods ...int) string {
	s := kind
	for _, p := range periods {
		s += "_" + strconv.Itoa(p)
	}
	return s
}

// window returns the highest and lowest values of src over the last period
// rows of v.
func window[T any](v columnar.View[T], period int, high, low source[T]) (hh, ll float64) {
	n := v.Len()
	hh, ll = math.Inf(-1), math.Inf(1)
	for i := n - period; i < n; i++ {
		hh = math.Max(hh, high(v, i))
		ll = math.Min(ll, low(v, i))
	}
	return hh, ll
}

// mean returns the average of src over the last period rows of v.
func mean[T any](v columnar.View[T], period int, src source[T]) float64 {
	n := v.Len()
	sum := 0.0
	for i := n - period; i < n; i++ {
		sum += src(v, i)
	}
	return sum / float64(period)
}
