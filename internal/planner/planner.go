/*

This file contains the rebalance detector. It compares a stored allocation against the refreshed
catalog and emits severity-classified alerts plus an overall health verdict.

*/

package planner

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/elys-network/curate/internal/analyzer"
	"github.com/elys-network/curate/internal/logger"
	"github.com/elys-network/curate/internal/types"
	"github.com/elys-network/curate/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrUnknownPoolReference marks a stored allocation whose pool is missing from the catalog.
// It is logged and the pool is skipped, it never aborts an analysis.
var ErrUnknownPoolReference = errors.New("stored allocation references a pool absent from the catalog")

// alertNamespace scopes the name-based alert IDs.
var alertNamespace = uuid.MustParse("5b0c7c3e-6f0e-4b4e-9a53-2f6a1d8e4c21")

// Options tunes a single analysis run.
type Options struct {
	// Now stamps CreatedAt and LastChecked. Zero means time.Now().UTC().
	Now time.Time
}

// DetectRebalance runs the APY-drop, risk-increase, better-alternative and protocol-issue checks
// over every stored allocation, in stored order, and aggregates the alerts.
// Catalog pools that are not scored yet are scored on a copy. Neither input is modified.
func DetectRebalance(
	stored []types.Allocation,
	catalog []types.PoolSnapshot,
	tolerance types.RiskTolerance,
	params types.EngineParameters,
	opts Options,
) (types.RebalanceAnalysis, error) {
	detectorLogger := logger.GetForComponent("rebalance_detector")

	// ===== INPUT VALIDATION =====
	if err := validateInputs(stored, tolerance); err != nil {
		detectorLogger.Error().Err(err).Msg("Input validation failed")
		return types.RebalanceAnalysis{}, err
	}
	if err := params.Validate(); err != nil {
		return types.RebalanceAnalysis{}, errors.Join(analyzer.ErrInvalidEngineParameters, err)
	}
	ceiling, err := params.ToleranceCeilings.Ceiling(tolerance)
	if err != nil {
		return types.RebalanceAnalysis{}, errors.Join(analyzer.ErrInvalidInput, err)
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// ===== SCORE CATALOG COPIES =====
	current := scoredCatalog(catalog, params, detectorLogger)
	byID := make(map[string]types.PoolSnapshot, len(current))
	for _, p := range current {
		if _, exists := byID[p.ID]; !exists {
			byID[p.ID] = p
		}
	}

	// ===== RUN CHECKS =====
	b := &alertBuilder{now: now, ordinals: map[string]int{}}
	var skipped, noHistory []string
	seenSkipped := map[string]bool{}
	seenNoHistory := map[string]bool{}

	for _, allocation := range stored {
		pool, ok := byID[allocation.PoolID]
		if !ok {
			detectorLogger.Warn().
				Err(ErrUnknownPoolReference).
				Str("poolID", allocation.PoolID).
				Msg("Skipping checks for pool missing from catalog")
			if !seenSkipped[allocation.PoolID] {
				seenSkipped[allocation.PoolID] = true
				skipped = append(skipped, allocation.PoolID)
			}
			continue
		}

		if pool.TvlChangeUnknown && !seenNoHistory[pool.ID] {
			seenNoHistory[pool.ID] = true
			noHistory = append(noHistory, pool.ID)
			detectorLogger.Warn().
				Str("poolID", pool.ID).
				Msg("No TVL history for pool, outflow check cannot fire")
		}

		checkApyDrop(b, allocation, pool, params)
		checkRiskIncrease(b, allocation, pool, params)
		checkBetterAlternative(b, allocation, pool, current, ceiling, params)
		checkProtocolIssues(b, pool, params)
	}

	// ===== AGGREGATE =====
	alerts := b.alerts
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Severity.Rank() < alerts[j].Severity.Rank()
	})

	counts := CountAlerts(alerts)
	health := OverallHealth(counts)

	analysis := types.RebalanceAnalysis{
		Alerts:        alerts,
		OverallHealth: health,
		Summary:       Summarize(health, counts, len(skipped)),
		LastChecked:   now,
		Counts:        counts,
		SkippedPools:  skipped,

		NoTvlHistoryPools: noHistory,
	}
	if analysis.Alerts == nil {
		analysis.Alerts = []types.RebalanceAlert{}
	}

	detectorLogger.Info().
		Int("allocations", len(stored)).
		Int("catalogSize", len(current)).
		Int("critical", counts.Critical).
		Int("warning", counts.Warning).
		Int("info", counts.Info).
		Int("skippedPools", len(skipped)).
		Int("noTvlHistoryPools", len(noHistory)).
		Str("overallHealth", string(health)).
		Msg("Rebalance analysis completed")

	return analysis, nil
}

// validateInputs rejects malformed stored allocations and unknown tolerance tiers
func validateInputs(stored []types.Allocation, tolerance types.RiskTolerance) error {
	if !tolerance.Valid() {
		return fmt.Errorf("%w: unknown riskTolerance %q", analyzer.ErrInvalidInput, tolerance)
	}
	for i, a := range stored {
		if a.PoolID == "" {
			return fmt.Errorf("%w: allocation %d has an empty poolId", analyzer.ErrInvalidInput, i)
		}
		if !utils.IsFinite(a.Apy) {
			return fmt.Errorf("%w: allocation %d (%s) apy is not finite", analyzer.ErrInvalidInput, i, a.PoolID)
		}
		if a.RiskScore < 0 || a.RiskScore > 100 {
			return fmt.Errorf("%w: allocation %d (%s) riskScore must be between 0 and 100", analyzer.ErrInvalidInput, i, a.PoolID)
		}
	}
	return nil
}

// scoredCatalog returns the catalog in order with every pool scored. Pools that cannot be scored are dropped.
func scoredCatalog(catalog []types.PoolSnapshot, params types.EngineParameters, log zerolog.Logger) []types.PoolSnapshot {
	current := make([]types.PoolSnapshot, 0, len(catalog))
	for _, p := range catalog {
		if p.IsScored() {
			current = append(current, p)
			continue
		}
		result, err := analyzer.ScorePool(p, params)
		if err != nil {
			log.Warn().Err(err).Str("poolID", p.ID).Msg("Dropping catalog pool that could not be scored")
			continue
		}
		current = append(current, p.WithRisk(result))
	}
	return current
}

// CountAlerts tallies alerts per severity.
func CountAlerts(alerts []types.RebalanceAlert) types.AlertCounts {
	var c types.AlertCounts
	for _, a := range alerts {
		switch a.Severity {
		case types.SeverityCritical:
			c.Critical++
		case types.SeverityWarning:
			c.Warning++
		case types.SeverityInfo:
			c.Info++
		}
	}
	return c
}

// OverallHealth classifies an alert set. Informational alerts never degrade health.
func OverallHealth(c types.AlertCounts) types.OverallHealth {
	switch {
	case c.Critical > 0:
		return types.HealthActionNeeded
	case c.Warning > 0:
		return types.HealthAttention
	default:
		return types.HealthHealthy
	}
}

// Summarize renders the counts driving the verdict.
func Summarize(health types.OverallHealth, c types.AlertCounts, skipped int) string {
	var summary string
	switch health {
	case types.HealthActionNeeded:
		verb := "require"
		if c.Critical == 1 {
			verb = "requires"
		}
		summary = fmt.Sprintf("%s %s immediate action", plural(c.Critical, "critical alert"), verb)
		if c.Warning > 0 {
			summary += fmt.Sprintf(", %s to review", plural(c.Warning, "warning"))
		}
	case types.HealthAttention:
		summary = fmt.Sprintf("%s to review", plural(c.Warning, "warning"))
	default:
		if c.Info == 0 {
			summary = "All positions healthy, no action needed"
		} else {
			summary = fmt.Sprintf("All positions healthy, %s available", plural(c.Info, "optimization suggestion"))
		}
	}
	if health != types.HealthHealthy && c.Info > 0 {
		summary += fmt.Sprintf("; %s available", plural(c.Info, "optimization suggestion"))
	}
	if skipped > 0 {
		summary += fmt.Sprintf(" (%s no longer in the catalog)", plural(skipped, "pool"))
	}
	return summary
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
