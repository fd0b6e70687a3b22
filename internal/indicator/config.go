package indicator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tradelab/internal/model"
)

// ErrUnknownIndicator is returned for an indicator type the builder does not know.
var ErrUnknownIndicator = errors.New("unknown indicator type")

// Config specifies a single candle indicator to compute.
type Config struct {
	Type    string // "SMA", "EMA", "SMMA", "RSI", "MACD", "STOCH", "WILLR", "CCI", "ATR", "BB", "LAST"
	Periods []int
	Field   string // candle field, "" for the type's default
}

// arity is the accepted number of periods per type.
var arity = map[string][2]int{
	"SMA":   {1, 1},
	"EMA":   {1, 1},
	"SMMA":  {1, 1},
	"RSI":   {1, 1},
	"MACD":  {3, 3},
	"STOCH": {1, 1},
	"WILLR": {1, 1},
	"CCI":   {1, 1},
	"ATR":   {1, 1},
	"BB":    {1, 2},
	"LAST":  {0, 0},
}

// DefaultConfigs is the indicator set used when none is configured.
func DefaultConfigs() []Config {
	return []Config{
		{Type: "SMA", Periods: []int{20}},
		{Type: "SMA", Periods: []int{50}},
		{Type: "EMA", Periods: []int{9}},
		{Type: "EMA", Periods: []int{21}},
		{Type: "RSI", Periods: []int{14}},
	}
}

// ParseSpecs parses "TYPE:PERIOD[:PERIOD...][@field],..." such as
// "SMA:20,EMA:9@high,MACD:12:26:9,BB:20:2". An empty string yields
// DefaultConfigs. The result is validated.
func ParseSpecs(s string) ([]Config, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultConfigs(), nil
	}
	var configs []Config
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var cfg Config
		if at := strings.IndexByte(part, '@'); at >= 0 {
			cfg.Field = strings.TrimSpace(part[at+1:])
			part = part[:at]
		}
		tokens := strings.Split(part, ":")
		cfg.Type = strings.ToUpper(strings.TrimSpace(tokens[0]))
		for _, tok := range tokens[1:] {
			p, err := strconv.Atoi(strings.TrimSpace(tok))
			if err != nil {
				return nil, fmt.Errorf("indicator spec %q: bad period %q", part, tok)
			}
			cfg.Periods = append(cfg.Periods, p)
		}
		configs = append(configs, cfg)
	}
	if err := ValidateConfigs(configs); err != nil {
		return nil, err
	}
	return configs, nil
}

// ValidateConfigs checks a set of Configs for errors.
func ValidateConfigs(configs []Config) error {
	for _, cfg := range configs {
		ar, ok := arity[cfg.Type]
		if !ok {
			return fmt.Errorf("%q: %w", cfg.Type, ErrUnknownIndicator)
		}
		if len(cfg.Periods) < ar[0] || len(cfg.Periods) > ar[1] {
			return fmt.Errorf("%s takes %d-%d periods, got %d", cfg.Type, ar[0], ar[1], len(cfg.Periods))
		}
		for _, p := range cfg.Periods {
			if p <= 0 {
				return fmt.Errorf("invalid period=%d for %s", p, cfg.Type)
			}
		}
		if cfg.Type == "MACD" && cfg.Periods[0] >= cfg.Periods[1] {
			return fmt.Errorf("MACD fast period %d must be below slow %d", cfg.Periods[0], cfg.Periods[1])
		}
		if cfg.Field != "" {
			if cfg.Type == "ATR" || cfg.Type == "STOCH" || cfg.Type == "WILLR" {
				return fmt.Errorf("%s reads high/low/close and takes no field", cfg.Type)
			}
			if _, err := model.CandleField(cfg.Field); err != nil {
				return err
			}
		}
	}
	return nil
}

// Build creates the candle indicator described by cfg. A non-default field
// is appended to the column name ("SMA_20_high").
func Build(cfg Config) (Indicator[model.Candle], error) {
	if err := ValidateConfigs([]Config{cfg}); err != nil {
		return nil, err
	}
	field := model.Close
	if cfg.Type == "CCI" {
		field = model.Typical
	}
	if cfg.Field != "" {
		field, _ = model.CandleField(cfg.Field)
	}

	p := cfg.Periods
	switch cfg.Type {
	case "SMA":
		return NewSMA(p[0], field), nil
	case "EMA":
		return NewEMA(p[0], field), nil
	case "SMMA":
		return NewSMMA(p[0], field), nil
	case "RSI":
		return NewRSI(p[0], field), nil
	case "MACD":
		return NewMACD(p[0], p[1], p[2], field), nil
	case "STOCH":
		return NewStochastic(p[0], model.High, model.Low, model.Close), nil
	case "WILLR":
		return NewWilliamsR(p[0], model.High, model.Low, model.Close), nil
	case "CCI":
		return NewCCI(p[0], field), nil
	case "ATR":
		return NewATR(p[0]), nil
	case "BB":
		k := 2.0
		if len(p) == 2 {
			k = float64(p[1])
		}
		return NewBollingerB(p[0], k, field), nil
	}
	return NewLast("LAST"+fieldTag(field.Name, "close"), field), nil
}

// BuildAll builds every config in order.
func BuildAll(configs []Config) ([]Indicator[model.Candle], error) {
	out := make([]Indicator[model.Candle], 0, len(configs))
	for _, cfg := range configs {
		ind, err := Build(cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, ind)
	}
	return out, nil
}
