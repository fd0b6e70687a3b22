package indicator

import (
	"math"

	"tradelab/internal/model"
	"tradelab/internal/store/columnar"
)

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
// The smoothed average gain and loss live in their own columns
// ("RSI_14.gain", "RSI_14.loss"), so every row costs O(1).
//
// Flat history (no gains and no losses) reads the neutral 50; no losses at
// all reads 100.
type RSI[T any] struct {
	name string
	gain *wilderChange[T]
	loss *wilderChange[T]
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI[T any](period int, field model.Field[T]) *RSI[T] {
	return newRSI(columnName("RSI", period)+fieldTag(field.Name, "close"), period, fieldSource(field))
}

func newRSI[T any](n string, period int, src source[T]) *RSI[T] {
	return &RSI[T]{
		name: n,
		gain: &wilderChange[T]{name: n + ".gain", period: period, src: src, up: true},
		loss: &wilderChange[T]{name: n + ".loss", period: period, src: src},
	}
}

func (r *RSI[T]) Name() string { return r.name }

func (r *RSI[T]) BeforeCompute(reg Registrar[T]) {
	reg.Register(r.gain)
	reg.Register(r.loss)
}

func (r *RSI[T]) Compute(v columnar.View[T]) float64 {
	avgGain := v.Column(-1, r.gain.name)
	avgLoss := v.Column(-1, r.loss.name)
	if math.IsNaN(avgGain) || math.IsNaN(avgLoss) {
		return nan
	}
	switch {
	case avgGain == 0 && avgLoss == 0:
		return 50
	case avgLoss == 0:
		return 100
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// wilderChange is the Wilder-smoothed average of one side of the row-to-row
// change of src: gains when up, otherwise losses as positive numbers. The
// first value needs period changes, i.e. period+1 rows.
type wilderChange[T any] struct {
	name   string
	period int
	src    source[T]
	up     bool
}

func (w *wilderChange[T]) Name() string { return w.name }

func (w *wilderChange[T]) change(v columnar.View[T], i int) float64 {
	delta := w.src(v, i) - w.src(v, i-1)
	if !w.up {
		delta = -delta
	}
	if delta > 0 {
		return delta
	}
	return 0
}

func (w *wilderChange[T]) Compute(v columnar.View[T]) float64 {
	n := v.Len()
	if w.period <= 0 || n < w.period+1 {
		return nan
	}
	sum := 0.0
	for i := 1; i <= w.period; i++ {
		sum += w.change(v, i)
	}
	avg := sum / float64(w.period)
	for i := w.period + 1; i < n; i++ {
		avg = w.step(avg, w.change(v, i))
	}
	return avg
}

func (w *wilderChange[T]) Update(prev float64, _ T, v columnar.View[T]) float64 {
	return w.step(prev, w.change(v, v.Len()-1))
}

// Wilder's smoothing: avg = (prevAvg * (period-1) + x) / period
func (w *wilderChange[T]) step(prev, x float64) float64 {
	p := float64(w.period)
	return (prev*(p-1) + x) / p
}
