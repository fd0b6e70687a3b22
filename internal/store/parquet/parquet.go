// Package parquet reads historical bars from Parquet files and exports
// prepared datasets in long format.
package parquet

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"tradelab/internal/model"
	"tradelab/internal/store/columnar"
)

// BarRecord is the on-disk schema for OHLCV bars.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// ReadBars returns the bars in path for symbol with from <= ts < to, sorted by
// time. An empty symbol matches every row; a zero bound is open.
func ReadBars(_ context.Context, path, symbol string, from, to time.Time) ([]model.Candle, error) {
	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, fmt.Errorf("read bars %s: %w", path, err)
	}

	bars := make([]model.Candle, 0, len(records))
	for _, r := range records {
		if symbol != "" && r.Symbol != symbol {
			continue
		}
		ts := time.UnixMilli(r.Timestamp).UTC()
		if (!from.IsZero() && ts.Before(from)) || (!to.IsZero() && !ts.Before(to)) {
			continue
		}
		bars = append(bars, model.Candle{
			Symbol: r.Symbol,
			TS:     ts,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].TS.Before(bars[j].TS) })
	return bars, nil
}

// WriteBars writes bars to path, replacing any existing file.
func WriteBars(path string, bars []model.Candle) error {
	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = BarRecord{
			Symbol:    b.Symbol,
			Timestamp: b.TS.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return writeFile(path, records)
}

// SeriesRecord is one cell of an exported dataset. Indicator cells carry
// Value (nil while warming up); position cells carry Position and, on exits,
// Reason.
type SeriesRecord struct {
	Index     int64    `parquet:"index"`
	Timestamp int64    `parquet:"timestamp,timestamp(millisecond)"`
	Series    string   `parquet:"series"`
	Value     *float64 `parquet:"value,optional"`
	Position  string   `parquet:"position,optional"`
	Reason    string   `parquet:"reason,optional"`
}

// ExportCandles writes every indicator and position column of s to path, one
// record per (row, column).
func ExportCandles(path string, s *columnar.Store[model.Candle]) (int, error) {
	cols, pos := s.Columns(), s.PositionColumns()
	records := make([]SeriesRecord, 0, s.Len()*(len(cols)+len(pos)))

	for i := 0; i < s.Len(); i++ {
		row, _ := s.Value(i)
		ts := row.TS.UnixMilli()
		for _, name := range cols {
			rec := SeriesRecord{Index: int64(i), Timestamp: ts, Series: name}
			if v := s.Column(i, name); !math.IsNaN(v) {
				rec.Value = &v
			}
			records = append(records, rec)
		}
		for _, name := range pos {
			p := s.Position(i, name)
			rec := SeriesRecord{Index: int64(i), Timestamp: ts, Series: name, Position: p.Kind.String()}
			if reason, ok := p.Meta.ExitReason(); ok {
				rec.Reason = string(reason)
			}
			records = append(records, rec)
		}
	}
	return len(records), writeFile(path, records)
}

// ReadSeries loads an export written by ExportCandles.
func ReadSeries(path string) ([]SeriesRecord, error) {
	return parquet.ReadFile[SeriesRecord](path)
}

func writeFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}
