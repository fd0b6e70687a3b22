package indicator

import (
	"tradelab/internal/model"
	"tradelab/internal/store/columnar"
)

// SMA calculates Simple Moving Average over a rolling window.
// Update is O(1): the new value enters and the value leaving the window is
// read back from the store.
type SMA[T any] struct {
	name   string
	period int
	src    source[T]
}

// NewSMA creates a new SMA of field over period rows.
func NewSMA[T any](period int, field model.Field[T]) *SMA[T] {
	return newSMA(columnName("SMA", period)+fieldTag(field.Name, "close"), period, fieldSource(field))
}

func newSMA[T any](name string, period int, src source[T]) *SMA[T] {
	return &SMA[T]{name: name, period: period, src: src}
}

func (s *SMA[T]) Name() string { return s.name }

func (s *SMA[T]) Compute(v columnar.View[T]) float64 {
	if s.period <= 0 || v.Len() < s.period {
		return nan
	}
	return mean(v, s.period, s.src)
}

func (s *SMA[T]) Update(prev float64, _ T, v columnar.View[T]) float64 {
	n := v.Len()
	if n <= s.period {
		return s.Compute(v)
	}
	in := s.src(v, n-1)
	out := s.src(v, n-1-s.period)
	return prev + (in-out)/float64(s.period)
}
