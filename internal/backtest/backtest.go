// Package backtest walks a prepared position column and keeps the capital
// ledger.
//
// Sizing is all-in: an entry converts the whole capital into shares and the
// matching exit converts them back. A position still open on the last row is
// closed there with reason "end-of-data".
package backtest

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"tradelab/internal/dataset"
	"tradelab/internal/model"
	"tradelab/internal/position"
	"tradelab/internal/store/columnar"
	"tradelab/internal/strategy"
)

var (
	// ErrInvalidPrice is returned when a price callback yields a non-positive
	// or non-finite price.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrInvalidCapital is returned for non-positive or non-finite capital.
	ErrInvalidCapital = errors.New("invalid initial capital")
)

// Config holds the run parameters.
type Config struct {
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
}

// PriceFunc picks the fill price for a quote.
type PriceFunc[T any] func(q columnar.Quote[T]) float64

// ClosePrice fills candles at their close.
func ClosePrice(q columnar.Quote[model.Candle]) float64 { return q.Raw().Close }

// OpenPrice fills candles at their open.
func OpenPrice(q columnar.Quote[model.Candle]) float64 { return q.Raw().Open }

// Backtest runs one strategy over one dataset.
type Backtest[T any] struct {
	ds    *dataset.Dataset[T]
	strat *strategy.Strategy[T]
	log   *slog.Logger
}

// New registers strat with ds (unless already registered) and prepares the
// dataset so Run only reads.
func New[T any](ds *dataset.Dataset[T], strat *strategy.Strategy[T], log *slog.Logger) (*Backtest[T], error) {
	if log == nil {
		log = slog.Default()
	}
	registered := false
	for _, s := range ds.Strategies() {
		if s == strat {
			registered = true
			break
		}
	}
	if !registered {
		if err := ds.AddStrategy(strat); err != nil {
			return nil, fmt.Errorf("backtest: %w", err)
		}
	}
	ds.Prepare()
	return &Backtest[T]{ds: ds, strat: strat, log: log}, nil
}

// Run walks every row and returns the ledger. Nil price functions fill at the
// strategy's price field (close for candles).
func (b *Backtest[T]) Run(cfg Config, onEntryPrice, onExitPrice PriceFunc[T]) (*Report, error) {
	if !finitePositive(cfg.InitialCapital) {
		return nil, fmt.Errorf("%v: %w", cfg.InitialCapital, ErrInvalidCapital)
	}
	if onEntryPrice == nil {
		onEntryPrice = b.defaultPrice
	}
	if onExitPrice == nil {
		onExitPrice = b.defaultPrice
	}

	start := time.Now()
	name := b.strat.Name
	r := newReport(name, cfg.InitialCapital)
	n := b.ds.Len()

	for i := 0; i < n; i++ {
		q := b.ds.Quote(i)
		p := q.Position(name)
		last := i == n-1

		switch p.Kind {
		case position.Entry:
			price := onEntryPrice(q)
			if !finitePositive(price) {
				return nil, fmt.Errorf("row %d entry price %v: %w", i, price, ErrInvalidPrice)
			}
			r.enter(i, rowTime(q), price, p.Meta.Short())
		case position.Exit:
			if err := b.close(r, q, onExitPrice, exitReason(p), false); err != nil {
				return nil, err
			}
			continue
		}

		if last && p.Kind.Open() {
			if err := b.close(r, q, onExitPrice, position.ReasonEndOfData, true); err != nil {
				return nil, err
			}
		}
	}

	b.log.Info("backtest complete",
		"strategy", name,
		"rows", n,
		"trades", r.NumberOfTrades(),
		"final_capital", r.FinalCapital(),
		"returns_pct", r.ReturnsPercentage(),
		"duration", time.Since(start),
	)
	return r, nil
}

func (b *Backtest[T]) close(r *Report, q columnar.Quote[T], price PriceFunc[T], reason position.ExitReason, forced bool) error {
	px := price(q)
	if !finitePositive(px) {
		return fmt.Errorf("row %d exit price %v: %w", q.Index(), px, ErrInvalidPrice)
	}
	r.exit(q.Index(), rowTime(q), px, reason, forced)
	return nil
}

func (b *Backtest[T]) defaultPrice(q columnar.Quote[T]) float64 {
	if !b.strat.Price.IsZero() {
		return b.strat.Price.Get(q.Raw())
	}
	switch row := any(q.Raw()).(type) {
	case model.Candle:
		return row.Close
	case float64:
		return row
	}
	return math.NaN()
}

func exitReason(p position.TradePosition) position.ExitReason {
	if reason, ok := p.Meta.ExitReason(); ok {
		return reason
	}
	return position.ReasonStrategy
}

func rowTime[T any](q columnar.Quote[T]) time.Time {
	if timed, ok := any(q.Raw()).(model.Timed); ok {
		return timed.Time()
	}
	return time.Time{}
}

func finitePositive(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}
