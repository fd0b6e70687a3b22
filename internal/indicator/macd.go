package indicator

import (
	"math"

	"tradelab/internal/model"
	"tradelab/internal/store/columnar"
)

// MACD is the Moving Average Convergence Divergence histogram. It is built
// from four columns it registers itself:
//
//	MACD_12_26_9.fast    EMA(12)
//	MACD_12_26_9.slow    EMA(26)
//	MACD_12_26_9.line    fast - slow
//	MACD_12_26_9.signal  EMA(9) of line
//
// and its own column holds line - signal.
type MACD[T any] struct {
	name   string
	fast   *EMA[T]
	slow   *EMA[T]
	line   *macdLine[T]
	signal *EMA[T]
}

// NewMACD creates a MACD over field. The usual periods are 12, 26, 9.
func NewMACD[T any](fast, slow, signal int, field model.Field[T]) *MACD[T] {
	return newMACD(columnName("MACD", fast, slow, signal)+fieldTag(field.Name, "close"), fast, slow, signal, fieldSource(field))
}

func newMACD[T any](n string, fast, slow, signal int, src source[T]) *MACD[T] {
	m := &MACD[T]{
		name: n,
		fast: newEMA(n+".fast", fast, src),
		slow: newEMA(n+".slow", slow, src),
	}
	m.line = &macdLine[T]{name: n + ".line", fast: m.fast.name, slow: m.slow.name}
	m.signal = newEMA(n+".signal", signal, columnSource[T](m.line.name))
	return m
}

func (m *MACD[T]) Name() string { return m.name }

// LineName and SignalName return the sub-column names for strategies that
// trade the crossover rather than the histogram.
func (m *MACD[T]) LineName() string   { return m.line.name }
func (m *MACD[T]) SignalName() string { return m.signal.name }

func (m *MACD[T]) BeforeCompute(reg Registrar[T]) {
	reg.Register(m.fast)
	reg.Register(m.slow)
	reg.Register(m.line)
	reg.Register(m.signal)
}

func (m *MACD[T]) Compute(v columnar.View[T]) float64 {
	line := v.Column(-1, m.line.name)
	signal := v.Column(-1, m.signal.name)
	if math.IsNaN(line) || math.IsNaN(signal) {
		return nan
	}
	return line - signal
}

type macdLine[T any] struct {
	name       string
	fast, slow string
}

func (l *macdLine[T]) Name() string { return l.name }

func (l *macdLine[T]) Compute(v columnar.View[T]) float64 {
	return v.Column(-1, l.fast) - v.Column(-1, l.slow)
}
