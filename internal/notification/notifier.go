// Package notification delivers trade alerts to external channels
// (webhooks, Telegram) for the streaming runner.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tradelab/internal/backtest"
	"tradelab/internal/position"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// TradeAlert describes a closed trade. Stop-loss exits are warnings.
func TradeAlert(symbol, strategy string, t backtest.Trade) Alert {
	level := AlertInfo
	if t.Reason == position.ReasonStopLoss {
		level = AlertWarning
	}
	side := "long"
	if t.Short {
		side = "short"
	}
	return Alert{
		Level: level,
		Title: fmt.Sprintf("%s %s trade closed (%s)", symbol, strategy, t.Reason),
		Message: fmt.Sprintf("%s %.4f shares: %.2f -> %.2f, pnl %.2f, capital %.2f",
			side, t.Shares, t.EntryPrice, t.ExitPrice, t.PnL, t.CapitalAfter),
	}
}

// LogNotifier logs alerts. It is the fallback when no channel is configured.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier. A nil logger uses slog.Default().
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.log.InfoContext(ctx, "alert", "level", alert.Level, "title", alert.Title, "message", alert.Message)
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config selects the delivery channels. Empty fields disable a channel.
type Config struct {
	WebhookURL     string `yaml:"webhook_url"`
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
}

// New builds the notifiers enabled in cfg, or a LogNotifier when none is.
func New(cfg Config, log *slog.Logger) Notifier {
	var m Multi
	if cfg.WebhookURL != "" {
		m = append(m, NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		m = append(m, NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if len(m) == 0 {
		return NewLogNotifier(log)
	}
	return m
}

const sendTimeout = 10 * time.Second
