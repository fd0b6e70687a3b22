package indicator

import (
	"math"

	"tradelab/internal/model"
	"tradelab/internal/store/columnar"
)

// EMA calculates Exponential Moving Average, seeded with the SMA of the first
// period values. Update is O(1); no window storage needed.
type EMA[T any] struct {
	name       string
	period     int
	multiplier float64
	src        source[T]
}

// NewEMA creates a new EMA of field with the given period.
func NewEMA[T any](period int, field model.Field[T]) *EMA[T] {
	return newEMA(columnName("EMA", period)+fieldTag(field.Name, "close"), period, fieldSource(field))
}

func newEMA[T any](name string, period int, src source[T]) *EMA[T] {
	return &EMA[T]{
		name:       name,
		period:     period,
		multiplier: 2.0 / float64(period+1),
		src:        src,
	}
}

func (e *EMA[T]) Name() string { return e.name }

func (e *EMA[T]) Compute(v columnar.View[T]) float64 {
	return smoothed(v, e.period, e.src, func(prev, x float64) float64 {
		return (x * e.multiplier) + (prev * (1 - e.multiplier))
	})
}

func (e *EMA[T]) Update(prev float64, _ T, v columnar.View[T]) float64 {
	x := e.src(v, v.Len()-1)
	// EMA = (Price * multiplier) + (EMA_prev * (1 - multiplier))
	return (x * e.multiplier) + (prev * (1 - e.multiplier))
}

// smoothed runs a seeded recursive average over the whole view. Leading NaN
// cells of src (a sub-indicator still warming up) are skipped; the seed is
// the mean of the first period numbers after them.
func smoothed[T any](v columnar.View[T], period int, src source[T], step func(prev, x float64) float64) float64 {
	n := v.Len()
	if period <= 0 {
		return nan
	}
	start := 0
	for start < n && math.IsNaN(src(v, start)) {
		start++
	}
	if n-start < period {
		return nan
	}

	sum := 0.0
	for i := start; i < start+period; i++ {
		sum += src(v, i)
	}
	cur := sum / float64(period)
	for i := start + period; i < n; i++ {
		cur = step(cur, src(v, i))
	}
	return cur
}
