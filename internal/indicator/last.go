package indicator

import (
	"tradelab/internal/model"
	"tradelab/internal/store/columnar"
)

// Last mirrors one raw field into a column. It never waits for history, so a
// strategy can always read the current price by name.
type Last[T any] struct {
	name string
	src  source[T]
}

// NewLast creates a Last column named name.
func NewLast[T any](name string, field model.Field[T]) *Last[T] {
	return &Last[T]{name: name, src: fieldSource(field)}
}

func (l *Last[T]) Name() string { return l.name }

func (l *Last[T]) Compute(v columnar.View[T]) float64 {
	return l.src(v, v.Len()-1)
}
