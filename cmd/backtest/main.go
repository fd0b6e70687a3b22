// cmd/backtest loads historical candles from SQLite or Parquet, computes the
// configured indicators and strategy over them and prints the ledger.
//
// Usage:
//
//	go run ./cmd/backtest --config=configs/backtest.yaml
//	go run ./cmd/backtest --symbol=NIFTY --strategy=rsi_reversion --indicators=RSI:7,ATR:14
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"tradelab/config"
	"tradelab/internal/backtest"
	"tradelab/internal/dataset"
	"tradelab/internal/indicator"
	"tradelab/internal/logger"
	"tradelab/internal/metrics"
	"tradelab/internal/model"
	parquetstore "tradelab/internal/store/parquet"
	sqlitestore "tradelab/internal/store/sqlite"
	"tradelab/internal/strategy"
	"tradelab/internal/trace"
)

const version = "0.3.0"

// run is one strategy parameterisation over the shared candles.
type run struct {
	id     string
	params strategy.Params
	ds     *dataset.Dataset[model.Candle]
	report *backtest.Report
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	symbol := flag.String("symbol", "", "Symbol override")
	strat := flag.String("strategy", "", "Strategy override ("+strings.Join(strategy.DefaultRegistry().List(), ", ")+")")
	indicatorCfg := flag.String("indicators", "", "Indicator specs: TYPE:P[:P...][@field],... override")
	capital := flag.Float64("capital", 0, "Initial capital override")
	exportPath := flag.String("export", "", "Parquet export path override")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(2)
	}
	applyFlags(cfg, *symbol, *strat, *indicatorCfg, *capital, *exportPath)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(2)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(2)
	}
	log := logger.InitWith(os.Stderr, cfg.Service+"-backtest", level, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithRunID(ctx, logger.NewRunID())

	tp := trace.Disabled()
	if cfg.Tracing {
		if tp, err = trace.Init(cfg.Service, version); err != nil {
			log.Error("tracing init failed", "error", err)
			os.Exit(1)
		}
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		tp.Shutdown(shutdownCtx)
	}()

	if err := execute(ctx, cfg, log, tp); err != nil {
		log.Error("backtest failed", append(logger.Attrs(ctx), "error", err)...)
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config, symbol, strat, indicators string, capital float64, export string) {
	if symbol != "" {
		cfg.Symbol = symbol
	}
	if strat != "" {
		cfg.Strategy = strat
	}
	if indicators != "" {
		cfg.Indicators = indicators
	}
	if capital > 0 {
		cfg.Backtest.InitialCapital = capital
	}
	if export != "" {
		cfg.ExportPath = export
	}
}

func execute(ctx context.Context, cfg *config.Config, log *slog.Logger, tp *trace.Provider) error {
	ctx, span := tp.Start(ctx, "backtest")
	defer span.End()
	attrs := append(logger.Attrs(ctx), trace.Fields(ctx)...)

	candles, err := loadCandles(ctx, cfg, tp)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return fmt.Errorf("no candles for %s in %s", cfg.Symbol, cfg.Source.Kind)
	}
	log.Info("candles loaded", append(attrs,
		"symbol", cfg.Symbol,
		"rows", len(candles),
		"from", candles[0].TS,
		"to", candles[len(candles)-1].TS,
	)...)

	specs, err := indicator.ParseSpecs(cfg.Indicators)
	if err != nil {
		return err
	}

	m := metrics.NewMetrics()
	registry := strategy.DefaultRegistry()
	fill := backtest.ClosePrice
	if strings.EqualFold(cfg.Fill, "open") {
		fill = backtest.OpenPrice
	}

	runs := make([]*run, 0)
	for _, p := range sweepParams(cfg.Params, cfg.Sweep) {
		runs = append(runs, &run{id: logger.NewRunID(), params: p})
	}

	runCtx, runSpan := tp.Start(ctx, "run", oteltrace.WithAttributes(attribute.Int("runs", len(runs))))
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(runtime.NumCPU())
	for _, r := range runs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			inds, err := indicator.BuildAll(specs)
			if err != nil {
				return err
			}
			s, err := registry.Build(cfg.Strategy, r.params)
			if err != nil {
				return err
			}

			runLog := log.With("run_id", r.id, "strategy", s.Name)
			r.ds = dataset.New(candles,
				dataset.WithLogger(runLog),
				dataset.WithRecorder(m),
			)
			r.ds.AddIndicator(inds...)

			bt, err := backtest.New(r.ds, s, runLog)
			if err != nil {
				return err
			}
			r.report, err = bt.Run(cfg.Backtest, fill, fill)
			return err
		})
	}
	err = g.Wait()
	runSpan.End()
	if err != nil {
		return err
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].report.ReturnsPercentage() > runs[j].report.ReturnsPercentage()
	})
	for _, r := range runs {
		printSummary(cfg.Symbol, len(candles), r.report)
		m.ObserveReport(r.report.Summary())
	}

	return writeOutputs(ctx, cfg, log, tp, m, runs)
}

func writeOutputs(ctx context.Context, cfg *config.Config, log *slog.Logger, tp *trace.Provider, m *metrics.Metrics, runs []*run) error {
	ctx, span := tp.Start(ctx, "outputs")
	defer span.End()

	if cfg.JournalPath != "" {
		j, err := sqlitestore.NewJournal(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		for _, r := range runs {
			if err := j.RecordReport(ctx, r.id, cfg.Symbol, r.report); err != nil {
				return fmt.Errorf("journal run %s: %w", r.id, err)
			}
		}
		log.Info("journal written", "path", cfg.JournalPath, "runs", len(runs))
	}

	if cfg.ExportPath != "" {
		for _, r := range runs {
			path := exportPath(cfg.ExportPath, r.report.Strategy(), len(runs) > 1)
			n, err := parquetstore.ExportCandles(path, r.ds.Store())
			if err != nil {
				return fmt.Errorf("export %s: %w", path, err)
			}
			log.Info("dataset exported", "path", path, "records", n)
		}
	}

	if cfg.MetricsTextfile != "" {
		if err := m.WriteTextfile(cfg.MetricsTextfile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func loadCandles(ctx context.Context, cfg *config.Config, tp *trace.Provider) ([]model.Candle, error) {
	ctx, span := tp.Start(ctx, "load", oteltrace.WithAttributes(
		attribute.String("source", cfg.Source.Kind),
		attribute.String("symbol", cfg.Symbol),
	))
	defer span.End()

	from, to, err := cfg.Source.Range()
	if err != nil {
		return nil, err
	}

	switch cfg.Source.Kind {
	case config.SourceParquet:
		return parquetstore.ReadBars(ctx, cfg.Source.ParquetPath, cfg.Symbol, from, to)
	default:
		reader, err := sqlitestore.NewReader(cfg.Source.SQLitePath)
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		return reader.ReadCandles(ctx, cfg.Symbol, from, to)
	}
}

// sweepParams expands the fast × slow grid over base. Pairs with fast >= slow
// are skipped. Without a sweep, base is the only run.
func sweepParams(base strategy.Params, sw config.Sweep) []strategy.Params {
	if len(sw.Fast) == 0 || len(sw.Slow) == 0 {
		return []strategy.Params{base}
	}
	var out []strategy.Params
	for _, f := range sw.Fast {
		for _, s := range sw.Slow {
			if f >= s {
				continue
			}
			p := base
			p.Fast, p.Slow = f, s
			out = append(out, p)
		}
	}
	return out
}

// exportPath inserts the strategy name before the extension when several runs
// share one configured path.
func exportPath(base, strategyName string, many bool) string {
	if !many {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "_" + strategyName + ext
}

func printSummary(symbol string, rows int, r *backtest.Report) {
	s := r.Summary()
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Printf("║  %-44s║\n", s.Strategy)
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Printf("║  Symbol:            %-25s║\n", symbol)
	fmt.Printf("║  Rows:              %-25d║\n", rows)
	fmt.Printf("║  Initial capital:   %-25.2f║\n", s.InitialCapital)
	fmt.Printf("║  Final capital:     %-25.2f║\n", s.FinalCapital)
	fmt.Printf("║  Returns:           %-25s║\n", fmt.Sprintf("%.2f (%.2f%%)", s.Returns, s.ReturnsPercentage))
	fmt.Printf("║  Trades:            %-25s║\n", fmt.Sprintf("%d (%d won, %d lost)", s.Trades, s.Wins, s.Losses))
	fmt.Printf("║  Win rate:          %-25s║\n", fmt.Sprintf("%.1f%%", s.WinRate*100))
	fmt.Printf("║  Profit factor:     %-25.2f║\n", s.ProfitFactor)
	fmt.Printf("║  Max drawdown:      %-25s║\n", fmt.Sprintf("%.2f%%", s.MaxDrawdown))
	for _, reason := range sortedKeys(s.ExitReasons) {
		fmt.Printf("║    %-16s %-25d║\n", reason+":", s.ExitReasons[reason])
	}
	fmt.Println("╚══════════════════════════════════════════════╝")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
