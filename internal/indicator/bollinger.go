package indicator

import (
	"math"
	"strconv"

	"tradelab/internal/model"
	"tradelab/internal/store/columnar"
)

// BollingerB is Bollinger %B: the position of the latest value between the
// lower (0) and upper (1) band of mean ± k population standard deviations.
// Zero variance reads 0.5.
type BollingerB[T any] struct {
	name   string
	period int
	k      float64
	src    source[T]
}

// NewBollingerB creates %B over period rows with band width k (typically 20, 2).
func NewBollingerB[T any](period int, k float64, field model.Field[T]) *BollingerB[T] {
	return newBollingerB(bollingerName(period, k)+fieldTag(field.Name, "close"), period, k, fieldSource(field))
}

func newBollingerB[T any](name string, period int, k float64, src source[T]) *BollingerB[T] {
	return &BollingerB[T]{name: name, period: period, k: k, src: src}
}

func bollingerName(period int, k float64) string {
	return columnName("BBP", period) + "_" + strconv.FormatFloat(k, 'g', -1, 64)
}

func (b *BollingerB[T]) Name() string { return b.name }

func (b *BollingerB[T]) Compute(v columnar.View[T]) float64 {
	if b.period <= 0 || v.Len() < b.period {
		return nan
	}
	n := v.Len()
	mid := mean(v, b.period, b.src)
	variance := 0.0
	for i := n - b.period; i < n; i++ {
		d := b.src(v, i) - mid
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(b.period))
	if sd == 0 || b.k == 0 {
		return 0.5
	}
	lower := mid - b.k*sd
	return (b.src(v, n-1) - lower) / (2 * b.k * sd)
}
