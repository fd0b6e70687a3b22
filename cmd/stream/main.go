// cmd/stream appends candles from a Redis stream to a live dataset and
// publishes every position change, closed trade and updated report back to
// Redis. Stored history is loaded from SQLite first so indicators start warm.
//
// Usage:
//
//	go run ./cmd/stream --config=configs/stream.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tradelab/config"
	"tradelab/internal/backtest"
	"tradelab/internal/dataset"
	"tradelab/internal/indicator"
	"tradelab/internal/logger"
	"tradelab/internal/metrics"
	"tradelab/internal/model"
	"tradelab/internal/notification"
	"tradelab/internal/position"
	"tradelab/internal/ringbuf"
	redisstore "tradelab/internal/store/redis"
	sqlitestore "tradelab/internal/store/sqlite"
	"tradelab/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	startID := flag.String("from-id", "$", `Stream ID to start after ("$" = new entries only, "0" = replay)`)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stream: %v\n", err)
		os.Exit(2)
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stream: %v\n", err)
		os.Exit(2)
	}
	log := logger.Init(cfg.Service+"-stream", level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithRunID(ctx, logger.NewRunID())

	if err := run(ctx, cfg, *startID, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("stream runner failed", append(logger.Attrs(ctx), "error", err)...)
		os.Exit(1)
	}
	log.Info("stream runner stopped", logger.Attrs(ctx)...)
}

func run(ctx context.Context, cfg *config.Config, startID string, log *slog.Logger) error {
	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	addr := cfg.MetricsAddr
	if addr == "" {
		addr = ":9090"
	}
	srv := metrics.NewServer(addr, prom, health)
	srv.Start()
	defer func() {
		stopCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Stop(stopCtx)
	}()

	// ---- Storage ----
	if err := os.MkdirAll(filepath.Dir(cfg.Source.SQLitePath), 0o755); err != nil {
		return err
	}
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.Source.SQLitePath})
	if err != nil {
		return fmt.Errorf("sqlite init: %w", err)
	}
	defer sqlWriter.Close()

	history, err := loadHistory(ctx, cfg)
	if err != nil {
		return err
	}

	client, err := redisstore.Connect(ctx, redisstore.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	if err != nil {
		return err
	}
	defer client.Close()
	health.StartLivenessChecker(ctx, client, sqlWriter.DB(), 10*time.Second)

	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to redisstore.State) {
		log.Warn("redis circuit state changed", "from", from.String(), "to", to.String())
	}
	pub := redisstore.NewBufferedPublisher(ctx, redisstore.NewPublisher(client, redisstore.Keys{
		ReportKey:   cfg.Redis.ReportKey,
		TradeStream: cfg.Redis.TradeStream,
		Channel:     cfg.Redis.Channel,
	}), cb, 0)
	defer func() {
		closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := pub.Close(closeCtx); err != nil {
			log.Warn("buffered redis writes not delivered", "error", err)
		}
	}()

	// ---- Dataset ----
	eng, err := newEngine(cfg, history, prom, pub, log)
	if err != nil {
		return err
	}
	eng.notify = notification.New(cfg.Notify, log)
	health.SetLastRow(lastTime(history), len(history))

	// ---- Pipeline: redis → chan → ring → dataset ----
	src := redisstore.NewSource(client, cfg.Redis.Stream, startID)
	src.OnDecodeError = func(string, error) { prom.StreamDecodeErr.Inc() }

	candleCh := make(chan model.Candle, 1024)
	persistCh := make(chan model.Candle, 1024)
	ring := ringbuf.New[model.Candle](4096)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(candleCh)
		return src.Stream(gctx, candleCh)
	})
	g.Go(func() error {
		for c := range candleCh {
			prom.StreamMessages.Inc()
			before := ring.Overflow()
			if err := ring.PushWait(gctx, c); err != nil {
				return err
			}
			if d := ring.Overflow() - before; d > 0 {
				prom.RingBufOverflow.Add(float64(d))
			}
		}
		return nil
	})
	g.Go(func() error {
		sqlWriter.Run(gctx, persistCh)
		return nil
	})
	g.Go(func() error {
		defer close(persistCh)
		for {
			c, err := ring.PopWait(gctx)
			if err != nil {
				return err
			}
			eng.append(gctx, c)
			health.SetLastRow(c.TS, eng.ds.Len())
			select {
			case persistCh <- c:
			default:
				log.Warn("sqlite persist queue full, candle not stored", "ts", c.TS)
			}
		}
	})

	log.Info("stream runner started", append(logger.Attrs(ctx),
		"stream", cfg.Redis.Stream,
		"warm_rows", len(history),
		"strategy", eng.strat.Name,
	)...)
	return g.Wait()
}

func loadHistory(ctx context.Context, cfg *config.Config) ([]model.Candle, error) {
	from, to, err := cfg.Source.Range()
	if err != nil {
		return nil, err
	}
	reader, err := sqlitestore.NewReader(cfg.Source.SQLitePath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return reader.ReadCandles(ctx, cfg.Symbol, from, to)
}

func lastTime(rows []model.Candle) time.Time {
	if len(rows) == 0 {
		return time.Time{}
	}
	return rows[len(rows)-1].TS
}

// engine owns the live dataset. Only the consumer goroutine touches it.
type engine struct {
	cfg   *config.Config
	ds    *dataset.Dataset[model.Candle]
	strat *strategy.Strategy[model.Candle]
	bt    *backtest.Backtest[model.Candle]
	pub   *redisstore.BufferedPublisher
	prom  *metrics.Metrics
	log   *slog.Logger

	notify notification.Notifier // optional
}

func newEngine(cfg *config.Config, history []model.Candle, prom *metrics.Metrics, pub *redisstore.BufferedPublisher, log *slog.Logger) (*engine, error) {
	specs, err := indicator.ParseSpecs(cfg.Indicators)
	if err != nil {
		return nil, err
	}
	inds, err := indicator.BuildAll(specs)
	if err != nil {
		return nil, err
	}
	s, err := strategy.DefaultRegistry().Build(cfg.Strategy, cfg.Params)
	if err != nil {
		return nil, err
	}

	ds := dataset.New(history,
		dataset.WithLogger(log),
		dataset.WithRecorder(prom),
		dataset.WithCapacity(len(history)+4096),
	)
	ds.AddIndicator(inds...)
	// New prepares the warm-up rows
	bt, err := backtest.New(ds, s, log)
	if err != nil {
		return nil, err
	}
	return &engine{cfg: cfg, ds: ds, strat: s, bt: bt, pub: pub, prom: prom, log: log}, nil
}

// append processes one live candle and publishes what changed.
func (e *engine) append(ctx context.Context, c model.Candle) {
	if c.Symbol != "" && c.Symbol != e.cfg.Symbol {
		return
	}
	q := e.ds.Append(c)
	p := q.Position(e.strat.Name)
	if p.Kind == position.Idle || p.Kind == position.Hold {
		return
	}

	start := time.Now()
	ev := redisstore.NewTransition(e.cfg.Symbol, e.strat.Name, q.Index(), c.TS, p)
	if err := e.pub.PublishTransition(ev); err != nil {
		e.log.Warn("publish transition failed", append(logger.Attrs(ctx), "error", err)...)
	}

	if p.Kind == position.Exit {
		rep, err := e.bt.Run(e.cfg.Backtest, nil, nil)
		if err != nil {
			e.log.Error("ledger replay failed", append(logger.Attrs(ctx), "error", err)...)
			return
		}
		if trades := rep.Trades(); len(trades) > 0 {
			last := trades[len(trades)-1]
			e.prom.TradesTotal.WithLabelValues(e.strat.Name, string(last.Reason)).Inc()
			if err := e.pub.PublishTrade(e.strat.Name, last); err != nil {
				e.log.Warn("publish trade failed", "error", err)
			}
			e.alert(ctx, notification.TradeAlert(e.cfg.Symbol, e.strat.Name, last))
		}
		sum := rep.Summary()
		if err := e.pub.PublishReport(sum); err != nil {
			e.log.Warn("publish report failed", "error", err)
		}
		e.prom.FinalCapital.WithLabelValues(sum.Strategy).Set(sum.FinalCapital)
		e.prom.ReturnsPct.WithLabelValues(sum.Strategy).Set(sum.ReturnsPercentage)
		e.prom.MaxDrawdown.WithLabelValues(sum.Strategy).Set(sum.MaxDrawdown)
		e.log.Info("trade closed", append(logger.Attrs(ctx),
			"index", q.Index(),
			"final_capital", sum.FinalCapital,
			"trades", sum.Trades,
		)...)
	}
	e.prom.PublishDur.Observe(time.Since(start).Seconds())
}

// alert sends off the consumer goroutine so a slow channel never delays rows.
func (e *engine) alert(ctx context.Context, a notification.Alert) {
	if e.notify == nil {
		return
	}
	go func() {
		sendCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer done()
		if err := e.notify.Send(sendCtx, a); err != nil {
			e.log.Warn("trade alert failed", append(logger.Attrs(ctx), "error", err)...)
		}
	}()
}
