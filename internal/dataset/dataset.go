// Package dataset drives a columnar store, its indicators and strategies.
//
// Rows reach the derived columns through two paths: Prepare processes every
// pending row in one batch, Append adds and processes a single row. Both
// call the same per-row step, so N appends leave exactly the columns one
// Prepare over the same N rows would.
package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"tradelab/internal/indicator"
	"tradelab/internal/position"
	"tradelab/internal/store/columnar"
	"tradelab/internal/strategy"
)

// ErrDuplicateStrategy is returned when two strategies share a name and
// would therefore share a position column.
var ErrDuplicateStrategy = errors.New("duplicate strategy name")

// Processing paths, used as the metrics label.
const (
	PathBatch  = "batch"
	PathStream = "stream"
)

// Recorder receives per-row instrumentation. *metrics.Metrics implements it.
type Recorder interface {
	RowProcessed(path string, d time.Duration)
	Transition(strategy, kind string)
}

type nopRecorder struct{}

func (nopRecorder) RowProcessed(string, time.Duration) {}
func (nopRecorder) Transition(string, string)          {}

type options struct {
	log      *slog.Logger
	rec      Recorder
	capacity int
}

// Option configures a Dataset.
type Option func(*options)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

// WithRecorder sets the instrumentation sink.
func WithRecorder(r Recorder) Option { return func(o *options) { o.rec = r } }

// WithCapacity pre-sizes the store for n rows.
func WithCapacity(n int) Option { return func(o *options) { o.capacity = n } }

// Dataset owns one store plus the indicators and strategies computed on it.
// Not safe for concurrent use; independent datasets share nothing.
type Dataset[T any] struct {
	store      *columnar.Store[T]
	order      []indicator.Indicator[T] // dependencies before dependants
	names      map[string]bool
	strategies []*strategy.Strategy[T]

	processed int  // rows [0, processed) have every column filled
	dirty     bool // a registration happened after rows were processed

	log *slog.Logger
	rec Recorder
}

// New creates a dataset holding rows. Nothing is computed until Prepare or
// Append.
func New[T any](rows []T, opts ...Option) *Dataset[T] {
	o := options{log: slog.Default(), rec: nopRecorder{}, capacity: len(rows)}
	for _, opt := range opts {
		opt(&o)
	}
	d := &Dataset[T]{
		store: columnar.New[T](o.capacity),
		names: make(map[string]bool),
		log:   o.log,
		rec:   o.rec,
	}
	for _, r := range rows {
		d.store.Append(r)
	}
	return d
}

// Store exposes the underlying columns for reading.
func (d *Dataset[T]) Store() *columnar.Store[T] { return d.store }

// Len returns the number of rows held.
func (d *Dataset[T]) Len() int { return d.store.Len() }

// Quote returns the quote at row i.
func (d *Dataset[T]) Quote(i int) columnar.Quote[T] { return d.store.Quote(i) }

// Strategies returns the registered strategies in order.
func (d *Dataset[T]) Strategies() []*strategy.Strategy[T] { return d.strategies }

// Register adds an indicator and, first, everything it depends on. A name
// that is already registered is a no-op and reports false.
func (d *Dataset[T]) Register(ind indicator.Indicator[T]) bool {
	name := ind.Name()
	if d.names[name] {
		return false
	}
	d.names[name] = true
	if c, ok := ind.(indicator.Composite[T]); ok {
		c.BeforeCompute(d)
	}
	d.store.EnsureColumn(name)
	d.order = append(d.order, ind)
	d.markDirty()
	return true
}

// AddIndicator registers each indicator.
func (d *Dataset[T]) AddIndicator(inds ...indicator.Indicator[T]) {
	for _, ind := range inds {
		d.Register(ind)
	}
}

// AddStrategy validates s, registers its indicators and creates its position
// column.
func (d *Dataset[T]) AddStrategy(s *strategy.Strategy[T]) error {
	if err := s.Validate(); err != nil {
		return err
	}
	for _, existing := range d.strategies {
		if existing.Name == s.Name {
			return fmt.Errorf("%q: %w", s.Name, ErrDuplicateStrategy)
		}
	}
	d.AddIndicator(s.Indicators...)
	d.store.EnsurePositionColumn(s.Name)
	d.strategies = append(d.strategies, s)
	d.markDirty()
	return nil
}

func (d *Dataset[T]) markDirty() {
	if d.processed > 0 {
		d.dirty = true
	}
}

// Prepare computes every column for all rows not yet processed. After a late
// registration every row is recomputed so the new columns are filled too.
func (d *Dataset[T]) Prepare() {
	if d.dirty {
		d.processed = 0
		d.dirty = false
	}
	from, start := d.processed, time.Now()
	for i := d.processed; i < d.store.Len(); i++ {
		d.step(i, PathBatch)
	}
	d.processed = d.store.Len()

	if n := d.processed - from; n > 0 {
		d.log.Info("dataset prepared",
			"rows", n,
			"indicators", len(d.order),
			"strategies", len(d.strategies),
			"duration", time.Since(start),
		)
	}
}

// Append adds row at the tail and computes its columns. Rows still pending
// from New are processed first.
func (d *Dataset[T]) Append(row T) columnar.Quote[T] {
	if d.dirty || d.processed < d.store.Len() {
		d.Prepare()
	}
	i := d.store.Append(row)
	d.step(i, PathStream)
	d.processed = d.store.Len()
	return d.store.Quote(i)
}

// step fills row i: indicators in dependency order, then every strategy
// against its own previous position.
func (d *Dataset[T]) step(i int, path string) {
	start := time.Now()
	v := d.store.Upto(i)
	row, _ := v.Last()

	for _, ind := range d.order {
		name := ind.Name()
		prev := math.NaN()
		if i > 0 {
			prev = d.store.Column(i-1, name)
		}
		var val float64
		if inc, ok := ind.(indicator.Incremental[T]); ok && !math.IsNaN(prev) {
			val = inc.Update(prev, row, v)
		} else {
			val = ind.Compute(v)
		}
		d.store.SetColumn(i, name, val)
	}

	q := d.store.Quote(i)
	for _, s := range d.strategies {
		// Row 0 always starts flat. Position(-1) would resolve to the last
		// row, which holds a stale value during a recompute.
		prev := position.Empty
		if i > 0 {
			prev = d.store.Position(i-1, s.Name)
		}
		next := s.Evaluate(q, prev)
		d.store.SetPosition(i, s.Name, next)
		d.rec.Transition(s.Name, next.Kind.String())
	}
	d.rec.RowProcessed(path, time.Since(start))
}

// Positions returns the named strategy's position column.
func (d *Dataset[T]) Positions(name string) []position.TradePosition {
	out := make([]position.TradePosition, d.store.Len())
	for i := range out {
		out[i] = d.store.Position(i, name)
	}
	return out
}

// Column returns a copy of the named indicator column.
func (d *Dataset[T]) Column(name string) []float64 {
	out := make([]float64, d.store.Len())
	for i := range out {
		out[i] = d.store.Column(i, name)
	}
	return out
}
