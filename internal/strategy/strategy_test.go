package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelab/internal/model"
	"tradelab/internal/position"
	"tradelab/internal/store/columnar"
)

func always[T any](v bool) Predicate[T] {
	return func(columnar.Quote[T], position.TradePosition) bool { return v }
}

func quoteOf(price float64) columnar.Quote[model.Candle] {
	s := columnar.New[model.Candle](0)
	s.Append(model.Candle{
		Symbol: "TEST",
		TS:     time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Open:   price, High: price, Low: price, Close: price,
	})
	return s.Quote(-1)
}

func open(entry float64, short bool) position.TradePosition {
	return position.TradePosition{
		Kind: position.Hold,
		Meta: position.Metadata{}.WithEntryPrice(entry).WithShort(short),
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		s    Strategy[model.Candle]
		err  error
	}{
		{"long", Strategy[model.Candle]{Name: "l", Entry: always[model.Candle](true)}, nil},
		{"short", Strategy[model.Candle]{Name: "s", EntryShort: always[model.Candle](true)}, nil},
		{"none", Strategy[model.Candle]{Name: "n"}, ErrNoPredicates},
		{"exit only", Strategy[model.Candle]{Name: "x", Exit: always[model.Candle](true)}, ErrNoPredicates},
		{"both", Strategy[model.Candle]{Name: "b", Entry: always[model.Candle](true), ExitShort: always[model.Candle](true)}, ErrBothSides},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.s.Validate()
			if tc.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestEvaluate_PriorityOrder(t *testing.T) {
	yes, no := always[model.Candle](true), always[model.Candle](false)
	held := open(100, false)

	cases := []struct {
		name       string
		s          Strategy[model.Candle]
		prev       position.TradePosition
		wantKind   position.Kind
		wantReason position.ExitReason
	}{
		{"stop-loss beats everything", Strategy[model.Candle]{Entry: yes, Exit: yes, StopLoss: yes, TakeProfit: yes}, held, position.Exit, position.ReasonStopLoss},
		{"take-profit beats exit", Strategy[model.Candle]{Entry: yes, Exit: yes, StopLoss: no, TakeProfit: yes}, held, position.Exit, position.ReasonTakeProfit},
		{"exit predicate", Strategy[model.Candle]{Entry: yes, Exit: yes}, held, position.Exit, position.ReasonStrategy},
		{"entry while open holds", Strategy[model.Candle]{Entry: yes, Exit: no}, held, position.Hold, ""},
		{"stop-loss ignored when flat", Strategy[model.Candle]{Entry: no, StopLoss: yes}, position.Empty, position.Idle, ""},
		{"entry from idle", Strategy[model.Candle]{Entry: yes, Exit: yes, StopLoss: yes}, position.TradePosition{Kind: position.Idle}, position.Entry, ""},
		{"re-entry after exit", Strategy[model.Candle]{Entry: yes}, position.TradePosition{Kind: position.Exit}, position.Entry, ""},
		{"idle after exit", Strategy[model.Candle]{Entry: no}, position.TradePosition{Kind: position.Exit}, position.Idle, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next := tc.s.Evaluate(quoteOf(100), tc.prev)
			assert.Equal(t, tc.wantKind, next.Kind)
			reason, ok := next.Meta.ExitReason()
			if tc.wantReason == "" {
				assert.False(t, ok, "unexpected exit reason %q", reason)
				return
			}
			assert.Equal(t, tc.wantReason, reason)
		})
	}
}

func TestEvaluate_EntryMetadata(t *testing.T) {
	s := Strategy[model.Candle]{Name: "short", EntryShort: always[model.Candle](true)}
	next := s.Evaluate(quoteOf(55), position.Empty)

	require.Equal(t, position.Entry, next.Kind)
	price, ok := next.Meta.EntryPrice()
	require.True(t, ok)
	assert.Equal(t, 55.0, price)
	assert.True(t, next.Meta.Short())
	ts, ok := next.Meta.EntryTime()
	require.True(t, ok)
	assert.Equal(t, 2024, ts.Year())

	custom := Strategy[model.Candle]{Name: "open", Entry: always[model.Candle](true), Price: model.Open}
	price, _ = custom.Evaluate(quoteOf(70), position.Empty).Meta.EntryPrice()
	assert.Equal(t, 70.0, price)
}

func TestEvaluate_EntryWhileOpenRefreshesMetadata(t *testing.T) {
	calls := 0
	s := Strategy[model.Candle]{Name: "level", Entry: func(columnar.Quote[model.Candle], position.TradePosition) bool {
		calls++
		return true
	}}

	next := s.Evaluate(quoteOf(120), open(100, false))
	assert.Equal(t, 1, calls, "entry runs while a position is open")
	require.Equal(t, position.Hold, next.Kind)
	price, ok := next.Meta.EntryPrice()
	require.True(t, ok)
	assert.Equal(t, 120.0, price)
	_, ok = next.Meta.EntryTime()
	assert.True(t, ok)
}

func TestEvaluate_ScalarRows(t *testing.T) {
	st := columnar.New[float64](0)
	st.Append(12.5)
	s := Strategy[float64]{Name: "scalar", Entry: always[float64](true)}
	next := s.Evaluate(st.Quote(0), position.Empty)
	price, ok := next.Meta.EntryPrice()
	require.True(t, ok)
	assert.Equal(t, 12.5, price)
	_, ok = next.Meta.EntryTime()
	assert.False(t, ok, "float64 rows carry no time")
}

func TestEvaluate_ObserverSeesEveryTransition(t *testing.T) {
	var seen []position.Kind
	s := Strategy[model.Candle]{
		Entry:    always[model.Candle](true),
		Exit:     always[model.Candle](true),
		Observer: func(k position.Kind, _ columnar.Quote[model.Candle]) { seen = append(seen, k) },
	}
	p := position.Empty
	for i := 0; i < 3; i++ {
		p = s.Evaluate(quoteOf(1), p)
	}
	assert.Equal(t, []position.Kind{position.Entry, position.Exit, position.Entry}, seen)
}

func TestEvaluate_PredicatePanicPropagates(t *testing.T) {
	s := Strategy[model.Candle]{Entry: func(columnar.Quote[model.Candle], position.TradePosition) bool {
		panic("bad predicate")
	}}
	assert.Panics(t, func() { s.Evaluate(quoteOf(1), position.Empty) })
}

func TestStopLossAndTakeProfitPct(t *testing.T) {
	sl := StopLossPct(0.10, model.Close)
	tp := TakeProfitPct(0.20, model.Close)

	// long from 100: stop at 90, target at 120
	assert.True(t, sl(quoteOf(89), open(100, false)))
	assert.False(t, sl(quoteOf(91), open(100, false)))
	assert.True(t, tp(quoteOf(121), open(100, false)))
	assert.False(t, tp(quoteOf(119), open(100, false)))

	// short from 100: stop at 110, target at 80
	assert.True(t, sl(quoteOf(111), open(100, true)))
	assert.False(t, sl(quoteOf(90), open(100, true)))
	assert.True(t, tp(quoteOf(79), open(100, true)))

	// no entry price recorded
	assert.False(t, sl(quoteOf(1), position.TradePosition{Kind: position.Hold}))
}

func TestCrossPredicates(t *testing.T) {
	st := columnar.New[float64](0)
	st.EnsureColumn("fast")
	st.EnsureColumn("slow")
	fast := []float64{1, 2, 3, 2}
	slow := []float64{2, 2, 2, 2.5}
	for i := range fast {
		st.Append(0)
		st.SetColumn(i, "fast", fast[i])
		st.SetColumn(i, "slow", slow[i])
	}
	above, below := CrossAbove[float64]("fast", "slow"), CrossBelow[float64]("fast", "slow")

	assert.False(t, above(st.Quote(0), position.Empty), "no previous row")
	assert.False(t, above(st.Quote(1), position.Empty), "touching is not crossing")
	assert.True(t, above(st.Quote(2), position.Empty))
	assert.True(t, below(st.Quote(3), position.Empty))
	assert.False(t, below(st.Quote(2), position.Empty))
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"rsi_reversion", "sma_crossover", "sma_crossover_short"}, r.List())

	s, err := r.Build("sma_crossover", Params{Fast: 5, Slow: 20, RSIPeriod: 14, StopLoss: 0.05})
	require.NoError(t, err)
	assert.Equal(t, "SMA_Crossover_5_20", s.Name)
	assert.Len(t, s.Indicators, 3)
	assert.NotNil(t, s.StopLoss)
	assert.Nil(t, s.TakeProfit)

	short, err := r.Build("sma_crossover_short", Params{})
	require.NoError(t, err)
	assert.True(t, short.Short())
	assert.Equal(t, "SMA_Crossover_Short_9_21", short.Name)

	_, err = r.Build("martingale", Params{})
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}
