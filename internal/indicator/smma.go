package indicator

import (
	"tradelab/internal/model"
	"tradelab/internal/store/columnar"
)

// SMMA calculates Smoothed Moving Average (Wilder's smoothing).
// Formula: SMMA = (prevSMMA * (period - 1) + price) / period
// Seeded with the SMA of the first period values.
type SMMA[T any] struct {
	name   string
	period int
	src    source[T]
}

// NewSMMA creates a new SMMA of field with the given period.
func NewSMMA[T any](period int, field model.Field[T]) *SMMA[T] {
	return newSMMA(columnName("SMMA", period)+fieldTag(field.Name, "close"), period, fieldSource(field))
}

func newSMMA[T any](name string, period int, src source[T]) *SMMA[T] {
	return &SMMA[T]{name: name, period: period, src: src}
}

func (s *SMMA[T]) Name() string { return s.name }

func (s *SMMA[T]) Compute(v columnar.View[T]) float64 {
	return smoothed(v, s.period, s.src, s.step)
}

func (s *SMMA[T]) Update(prev float64, _ T, v columnar.View[T]) float64 {
	return s.step(prev, s.src(v, v.Len()-1))
}

func (s *SMMA[T]) step(prev, x float64) float64 {
	p := float64(s.period)
	return (prev*(p-1) + x) / p
}
