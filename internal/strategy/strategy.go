// Package strategy turns indicator values into position decisions.
//
// A Strategy bundles the indicators it reads with entry, exit, stop-loss and
// take-profit predicates for one side (long or short). Evaluate applies them
// in a fixed priority order against the previous position and returns the
// next TradePosition.
package strategy

import (
	"errors"
	"fmt"

	"tradelab/internal/indicator"
	"tradelab/internal/model"
	"tradelab/internal/position"
	"tradelab/internal/store/columnar"
)

var (
	// ErrNoPredicates is returned when a strategy has no entry predicate.
	ErrNoPredicates = errors.New("strategy has no entry predicate")
	// ErrBothSides is returned when long and short predicates are both set.
	ErrBothSides = errors.New("strategy configures both long and short predicates")
)

// Predicate inspects the current quote. prev is the position at the end of
// the previous row, which carries the entry metadata of an open trade.
type Predicate[T any] func(q columnar.Quote[T], prev position.TradePosition) bool

// Observer is notified with every evaluated transition. It must not affect
// the outcome.
type Observer[T any] func(next position.Kind, q columnar.Quote[T])

// Strategy is a named, single-side trading rule set.
type Strategy[T any] struct {
	// Name is also the position column name.
	Name string

	// Indicators are registered with the dataset before the strategy runs.
	Indicators []indicator.Indicator[T]

	Entry, Exit           Predicate[T]
	EntryShort, ExitShort Predicate[T]
	StopLoss, TakeProfit  Predicate[T]

	// Price is recorded as EntryPrice. The zero Field uses the close for candles and the
	// value itself for float64 rows.
	Price model.Field[T]

	Observer Observer[T]
}

// Validate checks that exactly one side is configured and has an entry.
func (s *Strategy[T]) Validate() error {
	long := s.Entry != nil || s.Exit != nil
	short := s.EntryShort != nil || s.ExitShort != nil
	switch {
	case long && short:
		return fmt.Errorf("strategy %q: %w", s.Name, ErrBothSides)
	case long && s.Entry == nil, short && s.EntryShort == nil, !long && !short:
		return fmt.Errorf("strategy %q: %w", s.Name, ErrNoPredicates)
	case s.Name == "":
		return errors.New("strategy name is empty")
	}
	return nil
}

// Short reports whether the strategy trades the short side.
func (s *Strategy[T]) Short() bool { return s.EntryShort != nil }

func (s *Strategy[T]) side() (entry, exit Predicate[T]) {
	if s.Short() {
		return s.EntryShort, s.ExitShort
	}
	return s.Entry, s.Exit
}

// Evaluate decides the position for q given the previous row's position.
//
// Priority: stop-loss, take-profit, the side's exit predicate (all only
// while a position is open), then the entry predicate, else idle. The
// decision is applied through the transition table, so an entry signal while
// already open reads as hold and merges the fresh entry metadata into it.
func (s *Strategy[T]) Evaluate(q columnar.Quote[T], prev position.TradePosition) position.TradePosition {
	entry, exit := s.side()
	decision := position.Idle
	var meta position.Metadata

	open := prev.Kind.Open()
	switch {
	case open && s.StopLoss != nil && s.StopLoss(q, prev):
		decision = position.Exit
		meta = meta.WithExitReason(position.ReasonStopLoss)
	case open && s.TakeProfit != nil && s.TakeProfit(q, prev):
		decision = position.Exit
		meta = meta.WithExitReason(position.ReasonTakeProfit)
	case open && exit != nil && exit(q, prev):
		decision = position.Exit
		meta = meta.WithExitReason(position.ReasonStrategy)
	case entry != nil && entry(q, prev):
		decision = position.Entry
		meta = s.entryMeta(q.Raw())
	}

	next := prev.Next(decision, meta)
	if s.Observer != nil {
		s.Observer(next.Kind, q)
	}
	return next
}

func (s *Strategy[T]) entryMeta(row T) position.Metadata {
	meta := position.Metadata{}.WithShort(s.Short())
	if price, ok := s.price(row); ok {
		meta = meta.WithEntryPrice(price)
	}
	if timed, ok := any(row).(model.Timed); ok {
		meta = meta.WithEntryTime(timed.Time())
	}
	return meta
}

func (s *Strategy[T]) price(row T) (float64, bool) {
	if !s.Price.IsZero() {
		return s.Price.Get(row), true
	}
	switch r := any(row).(type) {
	case model.Candle:
		return r.Close, true
	case float64:
		return r, true
	}
	return 0, false
}
