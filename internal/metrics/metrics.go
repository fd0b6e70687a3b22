package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradelab/internal/backtest"
)

// Metrics holds all Prometheus metrics for the backtest engine.
type Metrics struct {
	Registry *prometheus.Registry

	// Dataset metrics
	RowsTotal     *prometheus.CounterVec // labels: path=batch|stream
	RowComputeDur *prometheus.HistogramVec
	Transitions   *prometheus.CounterVec // labels: strategy, kind

	// Backtest ledger
	TradesTotal  *prometheus.CounterVec // labels: strategy, reason
	FinalCapital *prometheus.GaugeVec   // labels: strategy
	ReturnsPct   *prometheus.GaugeVec   // labels: strategy
	MaxDrawdown  *prometheus.GaugeVec   // labels: strategy

	// Streaming runner
	StreamMessages  prometheus.Counter
	StreamDecodeErr prometheus.Counter
	RingBufOverflow prometheus.Counter
	PublishDur      prometheus.Histogram
}

// NewMetrics creates all metrics on a fresh registry so separate runs in one
// process never collide.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		RowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradelab_rows_total",
			Help: "Rows processed by the dataset (by path)",
		}, []string{"path"}),
		RowComputeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradelab_row_compute_duration_seconds",
			Help:    "Indicator and strategy compute latency per row",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}, []string{"path"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradelab_position_transitions_total",
			Help: "Position states produced per strategy",
		}, []string{"strategy", "kind"}),

		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradelab_trades_total",
			Help: "Closed trades by exit reason",
		}, []string{"strategy", "reason"}),
		FinalCapital: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradelab_final_capital",
			Help: "Ledger capital at the end of the last run",
		}, []string{"strategy"}),
		ReturnsPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradelab_returns_percent",
			Help: "Return on initial capital of the last run",
		}, []string{"strategy"}),
		MaxDrawdown: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradelab_max_drawdown_percent",
			Help: "Largest peak-to-trough drop of realized capital",
		}, []string{"strategy"}),

		StreamMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradelab_stream_messages_total",
			Help: "Candle messages read from the Redis stream",
		}),
		StreamDecodeErr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradelab_stream_decode_errors_total",
			Help: "Stream messages skipped because they did not decode",
		}),
		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradelab_ringbuf_overflow_total",
			Help: "Ring buffer push overflows (reader waited for the engine)",
		}),
		PublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradelab_publish_duration_seconds",
			Help:    "Redis publish latency per transition",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.Registry.MustRegister(
		m.RowsTotal,
		m.RowComputeDur,
		m.Transitions,
		m.TradesTotal,
		m.FinalCapital,
		m.ReturnsPct,
		m.MaxDrawdown,
		m.StreamMessages,
		m.StreamDecodeErr,
		m.RingBufOverflow,
		m.PublishDur,
	)

	return m
}

// RowProcessed records one dataset row.
func (m *Metrics) RowProcessed(path string, d time.Duration) {
	m.RowsTotal.WithLabelValues(path).Inc()
	m.RowComputeDur.WithLabelValues(path).Observe(d.Seconds())
}

// Transition records one evaluated position state.
func (m *Metrics) Transition(strategy, kind string) {
	m.Transitions.WithLabelValues(strategy, kind).Inc()
}

// ObserveReport publishes a finished run's ledger under its strategy label.
func (m *Metrics) ObserveReport(s backtest.Summary) {
	m.FinalCapital.WithLabelValues(s.Strategy).Set(s.FinalCapital)
	m.ReturnsPct.WithLabelValues(s.Strategy).Set(s.ReturnsPercentage)
	m.MaxDrawdown.WithLabelValues(s.Strategy).Set(s.MaxDrawdown)
	for reason, n := range s.ExitReasons {
		m.TradesTotal.WithLabelValues(s.Strategy, reason).Add(float64(n))
	}
}

// WriteTextfile writes every metric in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}

// HealthStatus represents the streaming runner's health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	LastRowTime    time.Time `json:"last_row_time"`
	Rows           int       `json:"rows"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

// SetLastRow records the most recent row appended to the dataset.
func (h *HealthStatus) SetLastRow(t time.Time, rows int) {
	h.mu.Lock()
	h.LastRowTime = t
	h.Rows = rows
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the journal database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.RedisConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	rowAge := ""
	if !h.LastRowTime.IsZero() {
		rowAge = time.Since(h.LastRowTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		Rows            int     `json:"rows"`
		RowAge          string  `json:"row_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Rows:            h.Rows,
		RowAge:          rowAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
