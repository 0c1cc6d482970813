package notifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/elys-network/curate/internal/types"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	failures int
	sent     []tgbotapi.MessageConfig
	calls    int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.calls++
	if f.calls <= f.failures {
		return tgbotapi.Message{}, errors.New("telegram unavailable")
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestEscapeMarkdownV2(t *testing.T) {
	assert.Equal(t, `APY dropped 40\.0% on USDC\-WETH \(uniswap\-v3\)`, escapeMarkdownV2("APY dropped 40.0% on USDC-WETH (uniswap-v3)"))
	assert.Equal(t, `a\_b\*c\!`, escapeMarkdownV2("a_b*c!"))
	assert.Equal(t, "plain", escapeMarkdownV2("plain"))
}

func sampleAnalysis() types.RebalanceAnalysis {
	return types.RebalanceAnalysis{
		OverallHealth: types.HealthActionNeeded,
		Summary:       "1 critical alert requires immediate action, 1 warning to review; 1 optimization suggestion available",
		LastChecked:   time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Counts:        types.AlertCounts{Critical: 1, Warning: 1, Info: 1},
		Alerts: []types.RebalanceAlert{
			{Severity: types.SeverityCritical, Title: "USDC is deprecated", Message: "m1", Action: "Withdraw and reallocate"},
			{Severity: types.SeverityWarning, Title: "TVL outflow on WETH", Message: "m2", Action: "Investigate outflow"},
			{Severity: types.SeverityInfo, Title: "Better alternative to DAI", Message: "m3", Action: "a3"},
		},
	}
}

func TestFormatAnalysis(t *testing.T) {
	text := formatAnalysis(types.PortfolioSnapshot{SnapshotID: 7, Label: "treasury"}, sampleAnalysis())

	assert.True(t, strings.HasPrefix(text, "🚨 *Action needed* portfolio treasury\n"))
	assert.Contains(t, text, "🔴 *USDC is deprecated*")
	assert.Contains(t, text, "🟠 *TVL outflow on WETH*")
	assert.Contains(t, text, "➡️ Withdraw and reallocate")
	assert.NotContains(t, text, "Better alternative", "informational alerts are only counted")
	assert.Contains(t, text, "💡 1 optimization suggestion\\(s\\) available")
	assert.Contains(t, text, "2026\\-03\\-14 09:30 UTC")
}

func TestFormatAnalysis_UnlabeledAndTruncated(t *testing.T) {
	analysis := types.RebalanceAnalysis{OverallHealth: types.HealthAttention, Summary: "12 warnings to review"}
	for i := 0; i < 12; i++ {
		analysis.Alerts = append(analysis.Alerts, types.RebalanceAlert{Severity: types.SeverityWarning, Title: "w"})
	}
	analysis.Counts = types.AlertCounts{Warning: 12}

	text := formatAnalysis(types.PortfolioSnapshot{SnapshotID: 3}, analysis)
	assert.True(t, strings.HasPrefix(text, "⚠️ *Attention* portfolio \\#3\n"))
	assert.Equal(t, maxListedAlerts, strings.Count(text, "🟠"))
	assert.Contains(t, text, "\\.\\.\\. and 2 more")
}

func TestNotifyAnalysis_RetriesThenSucceeds(t *testing.T) {
	bot := &fakeSender{failures: 2}
	notifier := newTelegram(bot, 42, 3, time.Millisecond)

	err := notifier.NotifyAnalysis(context.Background(), types.PortfolioSnapshot{SnapshotID: 1}, sampleAnalysis())
	require.NoError(t, err)
	assert.Equal(t, 3, bot.calls)
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(42), bot.sent[0].ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, bot.sent[0].ParseMode)
}

func TestNotifyCycleError_GivesUpAfterMaxRetries(t *testing.T) {
	bot := &fakeSender{failures: 10}
	notifier := newTelegram(bot, 42, 3, time.Millisecond)

	err := notifier.NotifyCycleError(context.Background(), errors.New("catalog unavailable"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 retries")
	assert.Equal(t, 3, bot.calls)
}
