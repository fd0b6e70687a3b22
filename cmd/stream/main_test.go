package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"tradelab/config"
	"tradelab/internal/dataset"
	"tradelab/internal/metrics"
	"tradelab/internal/model"
)

func flatCandles(symbol string, n int, start time.Time) []model.Candle {
	rows := make([]model.Candle, n)
	for i := range rows {
		rows[i] = model.Candle{Symbol: symbol, TS: start.Add(time.Duration(i) * time.Minute),
			Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}
	}
	return rows
}

func testEngine(t *testing.T, history []model.Candle) (*engine, *metrics.Metrics) {
	t.Helper()
	prom := metrics.NewMetrics()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	// pub stays nil: flat prices never leave Idle, so nothing is published.
	eng, err := newEngine(config.Default(), history, prom, nil, log)
	if err != nil {
		t.Fatal(err)
	}
	return eng, prom
}

func TestLastTime(t *testing.T) {
	if got := lastTime(nil); !got.IsZero() {
		t.Errorf("lastTime(nil) = %v", got)
	}
	start := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	rows := flatCandles("NIFTY", 3, start)
	if got := lastTime(rows); !got.Equal(start.Add(2 * time.Minute)) {
		t.Errorf("lastTime = %v", got)
	}
}

func TestEngineWarmsHistory(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	eng, prom := testEngine(t, flatCandles("NIFTY", 30, start))

	if eng.ds.Len() != 30 {
		t.Fatalf("rows = %d, want 30", eng.ds.Len())
	}
	if got := testutil.ToFloat64(prom.RowsTotal.WithLabelValues(dataset.PathBatch)); got != 30 {
		t.Errorf("batch rows = %v, want 30", got)
	}
}

func TestEngineAppend(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	eng, prom := testEngine(t, flatCandles("NIFTY", 30, start))
	ctx := context.Background()

	next := start.Add(30 * time.Minute)
	eng.append(ctx, flatCandles("BANKNIFTY", 1, next)[0])
	if eng.ds.Len() != 30 {
		t.Errorf("candle for another symbol was appended")
	}

	eng.append(ctx, flatCandles("NIFTY", 1, next)[0])
	if eng.ds.Len() != 31 {
		t.Fatalf("rows = %d, want 31", eng.ds.Len())
	}
	if got := testutil.ToFloat64(prom.RowsTotal.WithLabelValues(dataset.PathStream)); got != 1 {
		t.Errorf("stream rows = %v, want 1", got)
	}
}
