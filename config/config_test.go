package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tradelab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sma_crossover", cfg.Strategy)
	assert.Equal(t, SourceSQLite, cfg.Source.Kind)
	assert.Equal(t, 100_000.0, cfg.Backtest.InitialCapital)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, `
symbol: BANKNIFTY
source:
  kind: parquet
  parquet_path: bars/BANKNIFTY.parquet
  from: "2024-01-01"
  to: "2024-06-30"
indicators: "SMA:5,SMA:20,MACD:12:26:9"
strategy: rsi_reversion
params:
  rsi_period: 7
  oversold: 25
  stop_loss: 0.02
backtest:
  initial_capital: 5000
sweep:
  fast: [5, 9]
  slow: [20, 50]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "BANKNIFTY", cfg.Symbol)
	assert.Equal(t, SourceParquet, cfg.Source.Kind)
	assert.Equal(t, 7, cfg.Params.RSIPeriod)
	assert.Equal(t, 25.0, cfg.Params.Oversold)
	assert.Equal(t, 0.02, cfg.Params.StopLoss)
	assert.Equal(t, 5000.0, cfg.Backtest.InitialCapital)
	assert.Equal(t, []int{5, 9}, cfg.Sweep.Fast)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr, "unset keys keep defaults")

	from, to, err := cfg.Source.Range()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.June, to.Month())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "symbol: FILE\nbacktest:\n  initial_capital: 10\n")
	t.Setenv("TRADELAB_SYMBOL", "ENV")
	t.Setenv("TRADELAB_CAPITAL", "2500")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("TRADELAB_TRACING", "true")
	t.Setenv("NOTIFY_WEBHOOK_URL", "http://hooks.local/trades")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ENV", cfg.Symbol)
	assert.Equal(t, 2500.0, cfg.Backtest.InitialCapital)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.True(t, cfg.Tracing)
	assert.Equal(t, "http://hooks.local/trades", cfg.Notify.WebhookURL)
}

func TestLoad_BadCapitalEnv(t *testing.T) {
	t.Setenv("TRADELAB_CAPITAL", "lots")
	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"no symbol":        func(c *Config) { c.Symbol = "" },
		"unknown source":   func(c *Config) { c.Source.Kind = "csv" },
		"no parquet path":  func(c *Config) { c.Source.Kind = SourceParquet },
		"bad date":         func(c *Config) { c.Source.From = "01/02/2024" },
		"bad indicator":    func(c *Config) { c.Indicators = "FOO:3" },
		"bad period":       func(c *Config) { c.Indicators = "SMA:0" },
		"no strategy":      func(c *Config) { c.Strategy = "" },
		"zero capital":     func(c *Config) { c.Backtest.InitialCapital = 0 },
		"bad fill":         func(c *Config) { c.Fill = "vwap" },
		"half-empty sweep": func(c *Config) { c.Sweep.Fast = []int{5} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	assert.NoError(t, Default().Validate())
}
