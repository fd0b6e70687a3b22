package indicator

import (
	"math"

	"tradelab/internal/model"
	"tradelab/internal/store/columnar"
)

// ATR is Wilder's Average True Range. It needs high, low and the previous
// close, so it is defined for candles only.
type ATR struct {
	name   string
	period int
}

// NewATR creates an ATR with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{name: columnName("ATR", period), period: period}
}

func (a *ATR) Name() string { return a.name }

func (a *ATR) Compute(v columnar.View[model.Candle]) float64 {
	return smoothed(v, a.period, trueRange, a.step)
}

func (a *ATR) Update(prev float64, _ model.Candle, v columnar.View[model.Candle]) float64 {
	return a.step(prev, trueRange(v, v.Len()-1))
}

func (a *ATR) step(prev, x float64) float64 {
	p := float64(a.period)
	return (prev*(p-1) + x) / p
}

// trueRange is max(high-low, |high-prevClose|, |low-prevClose|); the first
// row has no previous close and uses high-low.
func trueRange(v columnar.View[model.Candle], i int) float64 {
	c, ok := v.Value(i)
	if !ok {
		return nan
	}
	tr := c.High - c.Low
	prev, ok := v.Value(i - 1)
	if i == 0 || !ok {
		return tr
	}
	tr = math.Max(tr, math.Abs(c.High-prev.Close))
	return math.Max(tr, math.Abs(c.Low-prev.Close))
}
