package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownField is returned when a configured field name does not exist on
// the row type.
var ErrUnknownField = errors.New("unknown field")

// Field reads one numeric field from a row. Name identifies the field in
// derived column names, so two accessors over different data must not share
// a name.
type Field[T any] struct {
	Name string
	get  func(T) float64
}

// NewField creates a named accessor.
func NewField[T any](name string, get func(T) float64) Field[T] {
	return Field[T]{Name: name, get: get}
}

// Get reads the field from row.
func (f Field[T]) Get(row T) float64 { return f.get(row) }

// IsZero reports whether f is the unset Field.
func (f Field[T]) IsZero() bool { return f.get == nil }

// Candle accessors.
var (
	Open    = NewField("open", func(c Candle) float64 { return c.Open })
	High    = NewField("high", func(c Candle) float64 { return c.High })
	Low     = NewField("low", func(c Candle) float64 { return c.Low })
	Close   = NewField("close", func(c Candle) float64 { return c.Close })
	Volume  = NewField("volume", func(c Candle) float64 { return c.Volume })
	Typical = NewField("typical", Candle.Typical)
)

// Scalar is the identity accessor for float64 rows.
var Scalar = NewField("value", func(v float64) float64 { return v })

// CandleField resolves a textual field name (case-insensitive) to its accessor.
func CandleField(name string) (Field[Candle], error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "open":
		return Open, nil
	case "high":
		return High, nil
	case "low":
		return Low, nil
	case "close", "":
		return Close, nil
	case "volume":
		return Volume, nil
	case "typical", "hlc3":
		return Typical, nil
	}
	return Field[Candle]{}, fmt.Errorf("candle field %q: %w", name, ErrUnknownField)
}
