package backtest

import (
	"math"
	"time"

	"tradelab/internal/position"
)

// Trade is one completed round trip.
type Trade struct {
	EntryIndex    int                 `json:"entry_index"`
	ExitIndex     int                 `json:"exit_index"`
	EntryTime     time.Time           `json:"entry_time,omitempty"`
	ExitTime      time.Time           `json:"exit_time,omitempty"`
	EntryPrice    float64             `json:"entry_price"`
	ExitPrice     float64             `json:"exit_price"`
	Shares        float64             `json:"shares"`
	Short         bool                `json:"short"`
	CapitalBefore float64             `json:"capital_before"`
	CapitalAfter  float64             `json:"capital_after"`
	PnL           float64             `json:"pnl"`
	Reason        position.ExitReason `json:"reason"`
	Forced        bool                `json:"forced"`
}

// Win reports whether the trade ended with more capital than it started.
func (t Trade) Win() bool { return t.CapitalAfter > t.CapitalBefore }

// Report is the capital ledger of one run. It is mutated only by the run
// that created it; callers get read-only accessors.
type Report struct {
	strategy       string
	initialCapital float64
	currentCapital float64
	sharesOwned    float64

	trades  []Trade
	pending *Trade

	profit, loss float64
	wins, losses int
	reasons      map[position.ExitReason]int

	peak, maxDrawdown float64
}

func newReport(strategy string, capital float64) *Report {
	return &Report{
		strategy:       strategy,
		initialCapital: capital,
		currentCapital: capital,
		reasons:        make(map[position.ExitReason]int),
		peak:           capital,
	}
}

// enter converts all capital into shares at price.
func (r *Report) enter(i int, ts time.Time, price float64, short bool) {
	r.sharesOwned = r.currentCapital / price
	r.pending = &Trade{
		EntryIndex:    i,
		EntryTime:     ts,
		EntryPrice:    price,
		Shares:        r.sharesOwned,
		Short:         short,
		CapitalBefore: r.currentCapital,
	}
}

// exit closes the pending trade at price. A long is worth shares × price; a
// short keeps its capital plus shares × (entry − exit).
func (r *Report) exit(i int, ts time.Time, price float64, reason position.ExitReason, forced bool) {
	t := r.pending
	if t == nil {
		return
	}
	proceeds := r.sharesOwned * price
	if t.Short {
		proceeds = t.CapitalBefore + r.sharesOwned*(t.EntryPrice-price)
	}

	t.ExitIndex = i
	t.ExitTime = ts
	t.ExitPrice = price
	t.CapitalAfter = proceeds
	t.PnL = proceeds - t.CapitalBefore
	t.Reason = reason
	t.Forced = forced

	if t.Win() {
		r.wins++
		r.profit += t.PnL
	} else {
		r.losses++
		r.loss -= t.PnL
	}
	r.reasons[reason]++

	r.currentCapital = proceeds
	r.sharesOwned = 0
	r.trades = append(r.trades, *t)
	r.pending = nil

	if proceeds > r.peak {
		r.peak = proceeds
	} else if r.peak > 0 {
		r.maxDrawdown = math.Max(r.maxDrawdown, (r.peak-proceeds)/r.peak*100)
	}
}

// Strategy returns the name of the strategy that produced the report.
func (r *Report) Strategy() string { return r.strategy }

func (r *Report) InitialCapital() float64 { return r.initialCapital }
func (r *Report) FinalCapital() float64   { return r.currentCapital }
func (r *Report) SharesOwned() float64    { return r.sharesOwned }

// Trades returns a copy of the trade log.
func (r *Report) Trades() []Trade {
	out := make([]Trade, len(r.trades))
	copy(out, r.trades)
	return out
}

func (r *Report) NumberOfTrades() int        { return len(r.trades) }
func (r *Report) NumberOfWinningTrades() int { return r.wins }
func (r *Report) NumberOfLosingTrades() int  { return r.losses }

// Profit is the summed gain of winning trades.
func (r *Report) Profit() float64 { return r.profit }

// Loss is the summed magnitude of losing trades.
func (r *Report) Loss() float64 { return r.loss }

// WinRate is wins/(wins+losses), 0 before the first trade.
func (r *Report) WinRate() float64 {
	if n := r.wins + r.losses; n > 0 {
		return float64(r.wins) / float64(n)
	}
	return 0
}

func (r *Report) Returns() float64 { return r.currentCapital - r.initialCapital }

func (r *Report) ReturnsPercentage() float64 {
	return r.Returns() / r.initialCapital * 100
}

// ExitReasonCount returns how many trades closed for reason.
func (r *Report) ExitReasonCount(reason position.ExitReason) int { return r.reasons[reason] }

// ExitReasons returns a copy of the per-reason counters.
func (r *Report) ExitReasons() map[position.ExitReason]int {
	out := make(map[position.ExitReason]int, len(r.reasons))
	for k, v := range r.reasons {
		out[k] = v
	}
	return out
}

// ProfitFactor is profit/loss; 999 when there are gains and no losses.
func (r *Report) ProfitFactor() float64 {
	if r.loss == 0 {
		if r.profit > 0 {
			return 999
		}
		return 0
	}
	return r.profit / r.loss
}

// AverageTrade is the mean PnL per closed trade.
func (r *Report) AverageTrade() float64 {
	if len(r.trades) == 0 {
		return 0
	}
	return r.Returns() / float64(len(r.trades))
}

// MaxDrawdown is the largest peak-to-trough drop of capital after exits,
// in percent.
func (r *Report) MaxDrawdown() float64 { return r.maxDrawdown }

// Summary is a flat, serializable view of the report.
type Summary struct {
	Strategy          string         `json:"strategy"`
	InitialCapital    float64        `json:"initial_capital"`
	FinalCapital      float64        `json:"final_capital"`
	Returns           float64        `json:"returns"`
	ReturnsPercentage float64        `json:"returns_percentage"`
	Trades            int            `json:"trades"`
	Wins              int            `json:"wins"`
	Losses            int            `json:"losses"`
	WinRate           float64        `json:"win_rate"`
	Profit            float64        `json:"profit"`
	Loss              float64        `json:"loss"`
	ProfitFactor      float64        `json:"profit_factor"`
	AverageTrade      float64        `json:"average_trade"`
	MaxDrawdown       float64        `json:"max_drawdown_pct"`
	ExitReasons       map[string]int `json:"exit_reasons"`
}

// Summary flattens the report.
func (r *Report) Summary() Summary {
	reasons := make(map[string]int, len(r.reasons))
	for k, v := range r.reasons {
		reasons[string(k)] = v
	}
	return Summary{
		Strategy:          r.strategy,
		InitialCapital:    r.initialCapital,
		FinalCapital:      r.currentCapital,
		Returns:           r.Returns(),
		ReturnsPercentage: r.ReturnsPercentage(),
		Trades:            len(r.trades),
		Wins:              r.wins,
		Losses:            r.losses,
		WinRate:           r.WinRate(),
		Profit:            r.profit,
		Loss:              r.loss,
		ProfitFactor:      r.ProfitFactor(),
		AverageTrade:      r.AverageTrade(),
		MaxDrawdown:       r.maxDrawdown,
		ExitReasons:       reasons,
	}
}
