package strategy

import (
	"log/slog"
	"strconv"

	"tradelab/internal/indicator"
	"tradelab/internal/model"
	"tradelab/internal/position"
	"tradelab/internal/store/columnar"
)

// RSI filter levels.
const (
	Overbought = 70.0
	Oversold   = 30.0
)

// SMACrossover builds a long SMA crossover strategy over field.
//
// Entry: fast SMA crosses above slow SMA (golden cross)
// Exit:  fast SMA crosses below slow SMA (death cross)
//
// With rsiPeriod > 0 an RSI filter prevents buying when overbought (>70)
// or selling when oversold (<30).
func SMACrossover[T any](fastPeriod, slowPeriod, rsiPeriod int, field model.Field[T]) *Strategy[T] {
	fast := indicator.NewSMA(fastPeriod, field)
	slow := indicator.NewSMA(slowPeriod, field)
	s := &Strategy[T]{
		Name:       "SMA_Crossover_" + strconv.Itoa(fastPeriod) + "_" + strconv.Itoa(slowPeriod),
		Indicators: []indicator.Indicator[T]{fast, slow},
		Entry:      CrossAbove[T](fast.Name(), slow.Name()),
		Exit:       CrossBelow[T](fast.Name(), slow.Name()),
		Price:      field,
	}
	if rsiPeriod > 0 {
		rsi := indicator.NewRSI(rsiPeriod, field)
		s.Indicators = append(s.Indicators, rsi)
		s.Entry = unless(s.Name, "golden cross", s.Entry, Above[T](rsi.Name(), Overbought))
		s.Exit = unless(s.Name, "death cross", s.Exit, Below[T](rsi.Name(), Oversold))
	}
	return s
}

// ShortSMACrossover is the mirror image of SMACrossover: it sells short on the
// death cross and covers on the golden cross.
func ShortSMACrossover[T any](fastPeriod, slowPeriod int, field model.Field[T]) *Strategy[T] {
	fast := indicator.NewSMA(fastPeriod, field)
	slow := indicator.NewSMA(slowPeriod, field)
	return &Strategy[T]{
		Name:       "SMA_Crossover_Short_" + strconv.Itoa(fastPeriod) + "_" + strconv.Itoa(slowPeriod),
		Indicators: []indicator.Indicator[T]{fast, slow},
		EntryShort: CrossBelow[T](fast.Name(), slow.Name()),
		ExitShort:  CrossAbove[T](fast.Name(), slow.Name()),
		Price:      field,
	}
}

// RSIReversion buys when RSI drops under oversold and sells once it climbs
// over overbought.
func RSIReversion[T any](period int, oversold, overbought float64, field model.Field[T]) *Strategy[T] {
	rsi := indicator.NewRSI(period, field)
	return &Strategy[T]{
		Name:       "RSI_Reversion_" + strconv.Itoa(period),
		Indicators: []indicator.Indicator[T]{rsi},
		Entry:      Below[T](rsi.Name(), oversold),
		Exit:       Above[T](rsi.Name(), overbought),
		Price:      field,
	}
}

// unless wraps signal so that it is suppressed while filter holds.
func unless[T any](name, what string, signal, filter Predicate[T]) Predicate[T] {
	return func(q columnar.Quote[T], prev position.TradePosition) bool {
		if !signal(q, prev) {
			return false
		}
		if filter(q, prev) {
			slog.Debug("signal filtered by RSI",
				"strategy", name, "signal", what, "row", q.Index())
			return false
		}
		return true
	}
}
