package strategy

import (
	"errors"
	"fmt"
	"sort"

	"tradelab/internal/model"
)

// ErrUnknownStrategy is returned by Registry.Build for an unregistered name.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Params are the tunables shared by the builtin candle strategies. Zero
// values select the documented defaults.
type Params struct {
	Fast       int     `yaml:"fast"`
	Slow       int     `yaml:"slow"`
	RSIPeriod  int     `yaml:"rsi_period"`
	Oversold   float64 `yaml:"oversold"`
	Overbought float64 `yaml:"overbought"`
	StopLoss   float64 `yaml:"stop_loss"`   // fraction, 0 disables
	TakeProfit float64 `yaml:"take_profit"` // fraction, 0 disables
}

func (p Params) withDefaults() Params {
	if p.Fast <= 0 {
		p.Fast = 9
	}
	if p.Slow <= 0 {
		p.Slow = 21
	}
	if p.Oversold == 0 {
		p.Oversold = Oversold
	}
	if p.Overbought == 0 {
		p.Overbought = Overbought
	}
	return p
}

// Builder creates a candle strategy from params.
type Builder func(p Params) *Strategy[model.Candle]

// Registry holds named strategy builders for lookup from configuration.
type Registry struct {
	builders map[string]Builder
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// DefaultRegistry returns a Registry with the builtin strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("sma_crossover", func(p Params) *Strategy[model.Candle] {
		return SMACrossover(p.Fast, p.Slow, p.RSIPeriod, model.Close)
	})
	r.Register("sma_crossover_short", func(p Params) *Strategy[model.Candle] {
		return ShortSMACrossover(p.Fast, p.Slow, model.Close)
	})
	r.Register("rsi_reversion", func(p Params) *Strategy[model.Candle] {
		period := p.RSIPeriod
		if period <= 0 {
			period = 14
		}
		return RSIReversion(period, p.Oversold, p.Overbought, model.Close)
	})
	return r
}

// Register adds a builder under name, replacing any previous one.
func (r *Registry) Register(name string, b Builder) {
	r.builders[name] = b
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates the named strategy, attaches stop-loss and take-profit when
// configured, and validates it.
func (r *Registry) Build(name string, p Params) (*Strategy[model.Candle], error) {
	b, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownStrategy)
	}
	p = p.withDefaults()
	s := b(p)
	if p.StopLoss > 0 {
		s.StopLoss = StopLossPct(p.StopLoss, model.Close)
	}
	if p.TakeProfit > 0 {
		s.TakeProfit = TakeProfitPct(p.TakeProfit, model.Close)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
