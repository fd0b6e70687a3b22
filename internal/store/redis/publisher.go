package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"tradelab/internal/backtest"
	"tradelab/internal/position"
)

const tradeStreamMaxLen = 10000

// Keys names the Redis destinations of a Publisher.
type Keys struct {
	ReportKey   string // prefix; the summary is SET under ReportKey:strategy
	TradeStream string
	Channel     string
}

// Transition is the pub/sub payload for one non-idle position state.
type Transition struct {
	Symbol   string    `json:"symbol"`
	Strategy string    `json:"strategy"`
	Index    int       `json:"index"`
	Time     time.Time `json:"time"`
	Kind     string    `json:"kind"`
	Price    float64   `json:"price,omitempty"`
	Short    bool      `json:"short,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

// NewTransition builds the payload for p observed at row index.
func NewTransition(symbol, strategy string, index int, ts time.Time, p position.TradePosition) Transition {
	ev := Transition{
		Symbol:   symbol,
		Strategy: strategy,
		Index:    index,
		Time:     ts,
		Kind:     p.Kind.String(),
		Short:    p.Meta.Short(),
	}
	if price, ok := p.Meta.EntryPrice(); ok {
		ev.Price = price
	}
	if reason, ok := p.Meta.ExitReason(); ok {
		ev.Reason = string(reason)
	}
	return ev
}

// TradeEvent is the trade-stream payload.
type TradeEvent struct {
	Strategy string `json:"strategy"`
	backtest.Trade
}

type writeKind int

const (
	writePublish writeKind = iota
	writeXAdd
	writeSet
)

// pendingWrite is one encoded Redis write.
type pendingWrite struct {
	kind writeKind
	key  string
	data []byte
}

// writer executes encoded writes. *Publisher is the Redis implementation.
type writer interface {
	write(ctx context.Context, w pendingWrite) error
}

// Publisher writes runner output to Redis.
type Publisher struct {
	client *goredis.Client
	keys   Keys
}

// NewPublisher creates a Publisher on client.
func NewPublisher(client *goredis.Client, keys Keys) *Publisher {
	return &Publisher{client: client, keys: keys}
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

func (p *Publisher) write(ctx context.Context, w pendingWrite) error {
	data := string(w.data)
	switch w.kind {
	case writePublish:
		return p.client.Publish(ctx, w.key, data).Err()
	case writeXAdd:
		return p.client.XAdd(ctx, &goredis.XAddArgs{
			Stream: w.key,
			MaxLen: tradeStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		}).Err()
	case writeSet:
		return p.client.Set(ctx, w.key, data, 0).Err()
	}
	return fmt.Errorf("unknown write kind %d", w.kind)
}

func (k Keys) transition(ev Transition) (pendingWrite, error) {
	data, err := json.Marshal(ev)
	return pendingWrite{kind: writePublish, key: k.Channel, data: data}, err
}

func (k Keys) trade(strategy string, t backtest.Trade) (pendingWrite, error) {
	data, err := json.Marshal(TradeEvent{Strategy: strategy, Trade: t})
	return pendingWrite{kind: writeXAdd, key: k.TradeStream, data: data}, err
}

func (k Keys) report(s backtest.Summary) (pendingWrite, error) {
	data, err := json.Marshal(s)
	return pendingWrite{kind: writeSet, key: k.ReportKey + ":" + s.Strategy, data: data}, err
}

// PublishTransition publishes ev on the transitions channel.
func (p *Publisher) PublishTransition(ctx context.Context, ev Transition) error {
	w, err := p.keys.transition(ev)
	if err != nil {
		return err
	}
	return p.write(ctx, w)
}

// PublishTrade appends a closed trade to the trade stream.
func (p *Publisher) PublishTrade(ctx context.Context, strategy string, t backtest.Trade) error {
	w, err := p.keys.trade(strategy, t)
	if err != nil {
		return err
	}
	return p.write(ctx, w)
}

// PublishReport stores the latest summary of a strategy.
func (p *Publisher) PublishReport(ctx context.Context, s backtest.Summary) error {
	w, err := p.keys.report(s)
	if err != nil {
		return err
	}
	return p.write(ctx, w)
}
