// Package config loads run configuration from a YAML file, a .env file and
// environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tradelab/internal/backtest"
	"tradelab/internal/indicator"
	"tradelab/internal/notification"
	"tradelab/internal/strategy"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Source kinds.
const (
	SourceSQLite  = "sqlite"
	SourceParquet = "parquet"
)

// DateLayout is the layout of Source.From and Source.To.
const DateLayout = "2006-01-02"

// Config holds all application configuration.
type Config struct {
	Service   string `yaml:"service"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json or text
	Tracing   bool   `yaml:"tracing"`

	Symbol     string          `yaml:"symbol"`
	Source     Source          `yaml:"source"`
	Indicators string          `yaml:"indicators"` // "SMA:20,RSI:14,MACD:12:26:9"
	Strategy   string          `yaml:"strategy"`
	Params     strategy.Params `yaml:"params"`
	Backtest   backtest.Config `yaml:"backtest"`
	Fill       string          `yaml:"fill"` // close or open
	Sweep      Sweep           `yaml:"sweep"`

	// Outputs; empty disables each.
	JournalPath     string `yaml:"journal_path"`
	ExportPath      string `yaml:"export_path"`
	MetricsTextfile string `yaml:"metrics_textfile"`
	MetricsAddr     string `yaml:"metrics_addr"`

	Redis  Redis               `yaml:"redis"`
	Notify notification.Config `yaml:"notify"`
}

// Source selects where historical candles come from.
type Source struct {
	Kind        string `yaml:"kind"`
	SQLitePath  string `yaml:"sqlite_path"`
	ParquetPath string `yaml:"parquet_path"`
	From        string `yaml:"from"`
	To          string `yaml:"to"`
}

// Range parses From/To. A missing bound is the zero time.
func (s Source) Range() (from, to time.Time, err error) {
	if s.From != "" {
		if from, err = time.Parse(DateLayout, s.From); err != nil {
			return from, to, fmt.Errorf("source.from: %w", err)
		}
	}
	if s.To != "" {
		if to, err = time.Parse(DateLayout, s.To); err != nil {
			return from, to, fmt.Errorf("source.to: %w", err)
		}
	}
	return from, to, nil
}

// Sweep lists fast/slow pairs to run in parallel. Empty runs Params once.
type Sweep struct {
	Fast []int `yaml:"fast"`
	Slow []int `yaml:"slow"`
}

// Redis configures the streaming runner.
type Redis struct {
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password"`
	Stream      string `yaml:"stream"`       // candle input
	ReportKey   string `yaml:"report_key"`   // latest summary JSON
	TradeStream string `yaml:"trade_stream"` // closed trades
	Channel     string `yaml:"channel"`      // position transitions
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Service:    "tradelab",
		LogLevel:   "info",
		LogFormat:  "json",
		Symbol:     "NIFTY",
		Source:     Source{Kind: SourceSQLite, SQLitePath: "data/candles.db"},
		Indicators: "SMA:20,SMA:50,EMA:9,EMA:21,RSI:14",
		Strategy:   "sma_crossover",
		Backtest:   backtest.Config{InitialCapital: 100_000},
		Fill:       "close",
		Redis: Redis{
			Addr:        "localhost:6379",
			Stream:      "candle:1m:NIFTY",
			ReportKey:   "tradelab:report",
			TradeStream: "tradelab:trades",
			Channel:     "tradelab:transitions",
		},
	}
}

// Load reads .env (if present), then the YAML file at path (if non-empty),
// then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.Symbol = getEnv("TRADELAB_SYMBOL", c.Symbol)
	c.Strategy = getEnv("TRADELAB_STRATEGY", c.Strategy)
	c.Indicators = getEnv("TRADELAB_INDICATORS", c.Indicators)
	c.Source.SQLitePath = getEnv("SQLITE_PATH", c.Source.SQLitePath)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", c.Notify.WebhookURL)
	c.Notify.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.Notify.TelegramToken)
	c.Notify.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.Notify.TelegramChatID)

	if v := os.Getenv("TRADELAB_CAPITAL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TRADELAB_CAPITAL=%q: %w", v, ErrInvalid)
		}
		c.Backtest.InitialCapital = f
	}
	if v := os.Getenv("TRADELAB_TRACING"); v != "" {
		c.Tracing = v == "true" || v == "1"
	}
	return nil
}

// Validate checks every field that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error
	if c.Symbol == "" {
		errs = append(errs, errors.New("symbol is required"))
	}
	switch c.Source.Kind {
	case SourceSQLite:
		if c.Source.SQLitePath == "" {
			errs = append(errs, errors.New("source.sqlite_path is required"))
		}
	case SourceParquet:
		if c.Source.ParquetPath == "" {
			errs = append(errs, errors.New("source.parquet_path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("source.kind %q: want sqlite or parquet", c.Source.Kind))
	}
	if _, _, err := c.Source.Range(); err != nil {
		errs = append(errs, err)
	}
	if c.Indicators != "" {
		cfgs, err := indicator.ParseSpecs(c.Indicators)
		if err == nil {
			err = indicator.ValidateConfigs(cfgs)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if c.Strategy == "" {
		errs = append(errs, errors.New("strategy is required"))
	}
	if ic := c.Backtest.InitialCapital; !(ic > 0) {
		errs = append(errs, fmt.Errorf("backtest.initial_capital %v must be positive", ic))
	}
	switch strings.ToLower(c.Fill) {
	case "", "close", "open":
	default:
		errs = append(errs, fmt.Errorf("fill %q: want close or open", c.Fill))
	}
	if len(c.Sweep.Fast) > 0 != (len(c.Sweep.Slow) > 0) {
		errs = append(errs, errors.New("sweep needs both fast and slow"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
