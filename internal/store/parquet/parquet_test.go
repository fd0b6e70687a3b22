package parquet

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelab/internal/dataset"
	"tradelab/internal/indicator"
	"tradelab/internal/model"
	"tradelab/internal/strategy"
)

var t0 = time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

func bars(symbol string, n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		c := 100 + float64(i%7) - float64(i%3)
		out[i] = model.Candle{Symbol: symbol, TS: t0.Add(time.Duration(i) * 24 * time.Hour),
			Open: c, High: c + 2, Low: c - 2, Close: c + 0.5, Volume: float64(1000 + i)}
	}
	return out
}

func TestBarsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars", "mixed.parquet")
	in := append(bars("AAA", 10), bars("BBB", 3)...)
	// out of order on disk
	in[0], in[5] = in[5], in[0]
	require.NoError(t, WriteBars(path, in))

	got, err := ReadBars(context.Background(), path, "AAA", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 10)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].TS.Before(got[i].TS), "sorted by time")
	}
	assert.Equal(t, bars("AAA", 10)[0], got[0])

	window, err := ReadBars(context.Background(), path, "AAA", t0.Add(48*time.Hour), t0.Add(96*time.Hour))
	require.NoError(t, err)
	assert.Len(t, window, 2)

	every, err := ReadBars(context.Background(), path, "", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, every, 13)
}

func TestReadBars_MissingFile(t *testing.T) {
	_, err := ReadBars(context.Background(), filepath.Join(t.TempDir(), "none.parquet"), "", time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestExportCandles(t *testing.T) {
	ds := dataset.New(bars("AAA", 30))
	ds.AddIndicator(indicator.NewSMA(5, model.Close))
	require.NoError(t, ds.AddStrategy(strategy.RSIReversion(3, 30, 70, model.Close)))
	ds.Prepare()

	path := filepath.Join(t.TempDir(), "export.parquet")
	n, err := ExportCandles(path, ds.Store())
	require.NoError(t, err)

	cols := len(ds.Store().Columns()) + len(ds.Store().PositionColumns())
	assert.Equal(t, 30*cols, n)

	recs, err := ReadSeries(path)
	require.NoError(t, err)
	require.Len(t, recs, n)

	var warm, filled, positions int
	for _, r := range recs {
		switch {
		case r.Series == "SMA_5" && r.Value == nil:
			warm++
		case r.Series == "SMA_5":
			filled++
			assert.InDelta(t, ds.Store().Column(int(r.Index), "SMA_5"), *r.Value, 1e-12)
		case r.Position != "":
			positions++
			assert.Equal(t, ds.Store().Position(int(r.Index), r.Series).Kind.String(), r.Position)
		}
	}
	assert.Equal(t, 4, warm)
	assert.Equal(t, 26, filled)
	assert.Equal(t, 30, positions)
}
