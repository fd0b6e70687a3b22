package strategy

import (
	"math"

	"tradelab/internal/model"
	"tradelab/internal/position"
	"tradelab/internal/store/columnar"
)

// StopLossPct fires when price has moved pct (0.05 = 5%) against the open
// position's entry price. Longs stop below the entry, shorts above it.
func StopLossPct[T any](pct float64, price model.Field[T]) Predicate[T] {
	return func(q columnar.Quote[T], prev position.TradePosition) bool {
		entry, ok := prev.Meta.EntryPrice()
		if !ok {
			return false
		}
		p := price.Get(q.Raw())
		if prev.Meta.Short() {
			return p >= entry*(1+pct)
		}
		return p <= entry*(1-pct)
	}
}

// TakeProfitPct fires when price has moved pct in the position's favour.
func TakeProfitPct[T any](pct float64, price model.Field[T]) Predicate[T] {
	return func(q columnar.Quote[T], prev position.TradePosition) bool {
		entry, ok := prev.Meta.EntryPrice()
		if !ok {
			return false
		}
		p := price.Get(q.Raw())
		if prev.Meta.Short() {
			return p <= entry*(1-pct)
		}
		return p >= entry*(1+pct)
	}
}

// CrossAbove fires on the row where column a moves from at-or-below b to
// above it.
func CrossAbove[T any](a, b string) Predicate[T] {
	return func(q columnar.Quote[T], _ position.TradePosition) bool {
		prev := q.Prev(1)
		return prev.Indicator(a) <= prev.Indicator(b) && q.Indicator(a) > q.Indicator(b)
	}
}

// CrossBelow fires on the row where column a moves from at-or-above b to
// below it.
func CrossBelow[T any](a, b string) Predicate[T] {
	return func(q columnar.Quote[T], _ position.TradePosition) bool {
		prev := q.Prev(1)
		return prev.Indicator(a) >= prev.Indicator(b) && q.Indicator(a) < q.Indicator(b)
	}
}

// Below fires while column name reads under level. NaN never fires.
func Below[T any](name string, level float64) Predicate[T] {
	return func(q columnar.Quote[T], _ position.TradePosition) bool {
		v := q.Indicator(name)
		return !math.IsNaN(v) && v < level
	}
}

// Above fires while column name reads over level. NaN never fires.
func Above[T any](name string, level float64) Predicate[T] {
	return func(q columnar.Quote[T], _ position.TradePosition) bool {
		v := q.Indicator(name)
		return !math.IsNaN(v) && v > level
	}
}
