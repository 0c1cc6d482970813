// Package notifier sends rebalance notifications via the Telegram Bot API.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/elys-network/curate/internal/logger"
	"github.com/elys-network/curate/internal/types"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var notifierLogger = logger.GetForComponent("notifier")

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
	maxListedAlerts   = 10
)

// sender is the part of *tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts analysis digests to a single chat.
type Telegram struct {
	bot        sender
	chatID     int64
	maxRetries int
	retryDelay time.Duration
}

// NewTelegram creates a notifier for the given bot token and chat.
func NewTelegram(botToken string, chatID int64, maxRetries int, retryDelay time.Duration) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	notifierLogger.Info().Str("bot", bot.Self.UserName).Int64("chatID", chatID).Msg("Telegram notifier ready")
	return newTelegram(bot, chatID, maxRetries, retryDelay), nil
}

func newTelegram(bot sender, chatID int64, maxRetries int, retryDelay time.Duration) *Telegram {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return &Telegram{bot: bot, chatID: chatID, maxRetries: maxRetries, retryDelay: retryDelay}
}

// NotifyAnalysis sends a digest of the analysis of a stored portfolio.
func (t *Telegram) NotifyAnalysis(ctx context.Context, snapshot types.PortfolioSnapshot, analysis types.RebalanceAnalysis) error {
	return t.sendMarkdownV2(ctx, formatAnalysis(snapshot, analysis))
}

// NotifyCycleError reports a monitoring cycle that failed before any portfolio was analyzed.
func (t *Telegram) NotifyCycleError(ctx context.Context, cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Monitoring cycle failed*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return t.sendMarkdownV2(ctx, text)
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (t *Telegram) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		_, err := t.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		notifierLogger.Warn().Err(err).Int("attempt", i+1).Msg("Telegram send failed")

		if i == t.maxRetries-1 {
			break
		}
		select {
		case <-time.After(t.retryDelay * time.Duration(i+1)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed after %d retries: %w", t.maxRetries, lastErr)
}

// formatAnalysis renders an analysis as a Telegram MarkdownV2 message.
func formatAnalysis(snapshot types.PortfolioSnapshot, analysis types.RebalanceAnalysis) string {
	var b strings.Builder

	switch analysis.OverallHealth {
	case types.HealthActionNeeded:
		b.WriteString("🚨 *Action needed*")
	case types.HealthAttention:
		b.WriteString("⚠️ *Attention*")
	default:
		b.WriteString("✅ *Healthy*")
	}

	name := snapshot.Label
	if name == "" {
		name = fmt.Sprintf("#%d", snapshot.SnapshotID)
	}
	fmt.Fprintf(&b, " portfolio %s\n", escapeMarkdownV2(name))
	fmt.Fprintf(&b, "%s\n", escapeMarkdownV2(analysis.Summary))
	if !analysis.LastChecked.IsZero() {
		fmt.Fprintf(&b, "📅 %s\n", escapeMarkdownV2(analysis.LastChecked.UTC().Format("2006-01-02 15:04 MST")))
	}
	b.WriteString("\n")

	listed := 0
	for _, alert := range analysis.Alerts {
		if alert.Severity == types.SeverityInfo {
			continue
		}
		if listed == maxListedAlerts {
			break
		}
		listed++

		icon := "🟠"
		if alert.Severity == types.SeverityCritical {
			icon = "🔴"
		}
		fmt.Fprintf(&b, "%s *%s*\n", icon, escapeMarkdownV2(alert.Title))
		fmt.Fprintf(&b, "   %s\n", escapeMarkdownV2(alert.Message))
		fmt.Fprintf(&b, "   ➡️ %s\n", escapeMarkdownV2(alert.Action))
	}

	if rest := analysis.Counts.Critical + analysis.Counts.Warning - listed; rest > 0 {
		fmt.Fprintf(&b, "%s\n", escapeMarkdownV2(fmt.Sprintf("... and %d more", rest)))
	}
	if analysis.Counts.Info > 0 {
		fmt.Fprintf(&b, "💡 %s\n", escapeMarkdownV2(fmt.Sprintf("%d optimization suggestion(s) available", analysis.Counts.Info)))
	}

	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
