package planner

import (
	"fmt"
	"time"

	"github.com/elys-network/curate/internal/types"
	"github.com/elys-network/curate/internal/utils"
	"github.com/google/uuid"
)

// alertBuilder collects alerts in emission order and assigns deterministic IDs.
type alertBuilder struct {
	now      time.Time
	ordinals map[string]int
	alerts   []types.RebalanceAlert
}

func (b *alertBuilder) add(alert types.RebalanceAlert) {
	key := alert.PoolID + "|" + string(alert.Type)
	ordinal := b.ordinals[key]
	b.ordinals[key] = ordinal + 1

	alert.ID = uuid.NewSHA1(alertNamespace, []byte(fmt.Sprintf("%s|%d", key, ordinal))).String()
	alert.CreatedAt = b.now
	b.alerts = append(b.alerts, alert)
}

func floatPtr(v float64) *float64 {
	return &v
}

// ApyDropPercent is the relative APY decline since the allocation, rounded to 1e-6 so that
// boundary values such as 10 -> 6 land exactly on 40.
func ApyDropPercent(storedApy, currentApy float64) float64 {
	return utils.Round((storedApy-currentApy)/storedApy*100, 6)
}

// checkApyDrop alerts when the current APY fell by at least the warning threshold.
// Allocations recorded with a non-positive APY have nothing to decay from and are skipped.
func checkApyDrop(b *alertBuilder, stored types.Allocation, pool types.PoolSnapshot, params types.EngineParameters) {
	if stored.Apy <= 0 {
		return
	}

	drop := ApyDropPercent(stored.Apy, pool.Apy)

	var severity types.AlertSeverity
	var action string
	switch {
	case drop >= params.Alerts.ApyDropCriticalPercent:
		severity = types.SeverityCritical
		action = "Exit the position and reallocate to a higher-yielding pool"
	case drop >= params.Alerts.ApyDropWarningPercent:
		severity = types.SeverityWarning
		action = "Monitor the yield and review alternatives"
	default:
		return
	}

	b.add(types.RebalanceAlert{
		Type:     types.AlertTypeApyDrop,
		Severity: severity,
		PoolID:   pool.ID,
		Title:    fmt.Sprintf("APY dropped %.1f%% on %s", drop, displayName(pool)),
		Message: fmt.Sprintf("%s APY fell from %.2f%% to %.2f%% since the allocation was made",
			displayName(pool), stored.Apy, pool.Apy),
		Action: action,
		Impact: types.AlertImpact{
			CurrentValue:   pool.Apy,
			SuggestedValue: floatPtr(stored.Apy),
			PotentialGain:  floatPtr(stored.Apy - pool.Apy),
		},
	})
}

// checkRiskIncrease alerts when the risk score drifted up by at least the warning threshold.
func checkRiskIncrease(b *alertBuilder, stored types.Allocation, pool types.PoolSnapshot, params types.EngineParameters) {
	delta := pool.RiskScore - stored.RiskScore

	var severity types.AlertSeverity
	var action string
	switch {
	case delta >= params.Alerts.RiskIncreaseCritical:
		severity = types.SeverityCritical
		action = "Reduce exposure or exit the position"
	case delta >= params.Alerts.RiskIncreaseWarning:
		severity = types.SeverityWarning
		action = "Review the risk breakdown before adding capital"
	default:
		return
	}

	b.add(types.RebalanceAlert{
		Type:     types.AlertTypeRiskIncrease,
		Severity: severity,
		PoolID:   pool.ID,
		Title:    fmt.Sprintf("Risk score up %d points on %s", delta, displayName(pool)),
		Message: fmt.Sprintf("%s risk score rose from %d to %d (%s)",
			displayName(pool), stored.RiskScore, pool.RiskScore, pool.RiskLevel),
		Action: action,
		Impact: types.AlertImpact{
			CurrentValue:   float64(pool.RiskScore),
			SuggestedValue: floatPtr(float64(stored.RiskScore)),
		},
	})
}

// checkBetterAlternative suggests the best-APY active pool that stays within the stored risk
// plus margin and the tolerance ceiling, and beats the current APY by the margin.
func checkBetterAlternative(b *alertBuilder, stored types.Allocation, pool types.PoolSnapshot, catalog []types.PoolSnapshot, ceiling int, params types.EngineParameters) {
	var best *types.PoolSnapshot
	for i := range catalog {
		c := &catalog[i]
		if c.ID == pool.ID || c.Status != types.PoolStatusActive {
			continue
		}
		if c.RiskScore > stored.RiskScore+params.Alerts.AlternativeRiskMargin || c.RiskScore > ceiling {
			continue
		}
		if !(c.Apy > pool.Apy+params.Alerts.AlternativeApyMargin) {
			continue
		}
		if best == nil || c.Apy > best.Apy ||
			(c.Apy == best.Apy && (c.RiskScore < best.RiskScore || (c.RiskScore == best.RiskScore && c.ID < best.ID))) {
			best = c
		}
	}
	if best == nil {
		return
	}

	gain := best.Apy - pool.Apy
	b.add(types.RebalanceAlert{
		Type:     types.AlertTypeBetterAlternative,
		Severity: types.SeverityInfo,
		PoolID:   pool.ID,
		Title:    fmt.Sprintf("Better alternative to %s", displayName(pool)),
		Message: fmt.Sprintf("%s offers %.2f%% APY at risk score %d versus %.2f%% for %s",
			displayName(*best), best.Apy, best.RiskScore, pool.Apy, displayName(pool)),
		Action: fmt.Sprintf("Consider moving capital to %s (%s)", displayName(*best), best.ID),
		Impact: types.AlertImpact{
			CurrentValue:   pool.Apy,
			SuggestedValue: floatPtr(best.Apy),
			PotentialGain:  floatPtr(gain),
		},
		AlternativePoolID: best.ID,
	})
}

// checkProtocolIssues alerts on warning or deprecated status and on heavy 24h TVL outflows.
// More than one alert may fire for the same pool.
func checkProtocolIssues(b *alertBuilder, pool types.PoolSnapshot, params types.EngineParameters) {
	switch pool.Status {
	case types.PoolStatusWarning:
		message := pool.ProtocolAlert
		if message == "" {
			message = fmt.Sprintf("Protocol %s reported a warning status", pool.Protocol)
		}
		b.add(types.RebalanceAlert{
			Type:     types.AlertTypeProtocolIssue,
			Severity: types.SeverityWarning,
			PoolID:   pool.ID,
			Title:    fmt.Sprintf("Protocol warning on %s", displayName(pool)),
			Message:  message,
			Action:   "Review the protocol announcement before adding capital",
			Impact:   types.AlertImpact{CurrentValue: pool.Apy},
		})
	case types.PoolStatusDeprecated:
		b.add(types.RebalanceAlert{
			Type:     types.AlertTypeProtocolIssue,
			Severity: types.SeverityCritical,
			PoolID:   pool.ID,
			Title:    fmt.Sprintf("%s is deprecated", displayName(pool)),
			Message:  fmt.Sprintf("%s on %s has been deprecated and may stop earning yield", displayName(pool), pool.Protocol),
			Action:   "Withdraw and reallocate",
			Impact:   types.AlertImpact{CurrentValue: pool.Apy},
		})
	}

	if pool.TvlChange24hPercent <= params.Alerts.TvlOutflowWarningPercent {
		b.add(types.RebalanceAlert{
			Type:     types.AlertTypeProtocolIssue,
			Severity: types.SeverityWarning,
			PoolID:   pool.ID,
			Title:    fmt.Sprintf("TVL outflow on %s", displayName(pool)),
			Message:  fmt.Sprintf("TVL changed %.1f%% in the last 24h to $%.0f", pool.TvlChange24hPercent, pool.TvlUsd),
			Action:   "Investigate outflow",
			Impact:   types.AlertImpact{CurrentValue: pool.TvlChange24hPercent},
		})
	}
}

func displayName(pool types.PoolSnapshot) string {
	if pool.Symbol == "" {
		return pool.ID
	}
	if pool.Protocol == "" {
		return pool.Symbol
	}
	return pool.Symbol + " (" + pool.Protocol + ")"
}
