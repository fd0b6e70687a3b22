package indicator

import (
	"math"

	"tradelab/internal/model"
	"tradelab/internal/store/columnar"
)

// Stochastic is the %K oscillator: where the latest close sits inside the
// period's high-low range, 0..100. A flat range reads 50.
type Stochastic[T any] struct {
	name            string
	period          int
	high, low, last source[T]
}

// NewStochastic creates %K over period rows. For scalar rows pass the same
// accessor three times.
func NewStochastic[T any](period int, high, low, close model.Field[T]) *Stochastic[T] {
	return &Stochastic[T]{
		name:   columnName("STOCH", period) + rangeTag(high, low, close),
		period: period,
		high:   fieldSource(high),
		low:    fieldSource(low),
		last:   fieldSource(close),
	}
}

func (s *Stochastic[T]) Name() string { return s.name }

func (s *Stochastic[T]) Compute(v columnar.View[T]) float64 {
	if s.period <= 0 || v.Len() < s.period {
		return nan
	}
	hh, ll := window(v, s.period, s.high, s.low)
	if hh == ll {
		return 50
	}
	return 100 * (s.last(v, v.Len()-1) - ll) / (hh - ll)
}

// rangeTag names a non-standard high/low/close triple.
func rangeTag[T any](high, low, close model.Field[T]) string {
	if high.Name == low.Name && low.Name == close.Name && close.Name == "value" {
		return ""
	}
	if high.Name == "high" && low.Name == "low" && close.Name == "close" {
		return ""
	}
	return "_" + high.Name + "_" + low.Name + "_" + close.Name
}

// WilliamsR is Williams %R, -100..0. A flat range reads -50.
type WilliamsR[T any] struct {
	name            string
	period          int
	high, low, last source[T]
}

// NewWilliamsR creates %R over period rows.
func NewWilliamsR[T any](period int, high, low, close model.Field[T]) *WilliamsR[T] {
	return &WilliamsR[T]{
		name:   columnName("WILLR", period) + rangeTag(high, low, close),
		period: period,
		high:   fieldSource(high),
		low:    fieldSource(low),
		last:   fieldSource(close),
	}
}

func (w *WilliamsR[T]) Name() string { return w.name }

func (w *WilliamsR[T]) Compute(v columnar.View[T]) float64 {
	if w.period <= 0 || v.Len() < w.period {
		return nan
	}
	hh, ll := window(v, w.period, w.high, w.low)
	if hh == ll {
		return -50
	}
	return -100 * (hh - w.last(v, v.Len()-1)) / (hh - ll)
}

// CCI is the Commodity Channel Index of field (normally the typical price).
// Zero mean deviation reads 0.
type CCI[T any] struct {
	name   string
	period int
	src    source[T]
}

// cciScale is Lambert's constant.
const cciScale = 0.015

// NewCCI creates a CCI over period rows.
func NewCCI[T any](period int, field model.Field[T]) *CCI[T] {
	return newCCI(columnName("CCI", period)+fieldTag(field.Name, "typical"), period, fieldSource(field))
}

func newCCI[T any](name string, period int, src source[T]) *CCI[T] {
	return &CCI[T]{name: name, period: period, src: src}
}

func (c *CCI[T]) Name() string { return c.name }

func (c *CCI[T]) Compute(v columnar.View[T]) float64 {
	if c.period <= 0 || v.Len() < c.period {
		return nan
	}
	n := v.Len()
	avg := mean(v, c.period, c.src)
	dev := 0.0
	for i := n - c.period; i < n; i++ {
		dev += math.Abs(c.src(v, i) - avg)
	}
	dev /= float64(c.period)
	if dev == 0 {
		return 0
	}
	return (c.src(v, n-1) - avg) / (cciScale * dev)
}
