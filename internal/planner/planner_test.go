package planner

import (
	"strings"
	"testing"
	"time"

	"github.com/elys-network/curate/internal/analyzer"
	"github.com/elys-network/curate/internal/config"
	"github.com/elys-network/curate/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func pool(id string, apy float64, risk int) types.PoolSnapshot {
	p := types.PoolSnapshot{
		ID:       id,
		Protocol: "proto",
		Symbol:   strings.ToUpper(id),
		TvlUsd:   25_000_000,
		Apy:      apy,
		ILRisk:   types.ILRiskLow,
		Status:   types.PoolStatusActive,
	}
	return p.WithRisk(types.RiskResult{
		RiskScore: risk,
		RiskLevel: config.DefaultEngineParameters.LevelThresholds.Level(risk),
	})
}

func allocation(id string, apy float64, risk int) types.Allocation {
	return types.Allocation{PoolID: id, AllocationPercent: 100, Apy: apy, RiskScore: risk}
}

func detect(t *testing.T, stored []types.Allocation, catalog []types.PoolSnapshot) types.RebalanceAnalysis {
	t.Helper()
	analysis, err := DetectRebalance(stored, catalog, types.RiskToleranceModerate, config.DefaultEngineParameters, Options{Now: testNow})
	require.NoError(t, err)
	return analysis
}

func TestDetectRebalance_ApyDropBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		currentApy float64
		want       []types.AlertSeverity
	}{
		{"40% drop is critical", 6, []types.AlertSeverity{types.SeverityCritical}},
		{"21% drop is a warning", 7.9, []types.AlertSeverity{types.SeverityWarning}},
		{"20% drop is a warning", 8, []types.AlertSeverity{types.SeverityWarning}},
		{"19% drop is ignored", 8.1, nil},
		{"apy increase is ignored", 12, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := detect(t,
				[]types.Allocation{allocation("p", 10, 20)},
				[]types.PoolSnapshot{pool("p", tt.currentApy, 20)})

			var got []types.AlertSeverity
			for _, a := range analysis.Alerts {
				assert.Equal(t, types.AlertTypeApyDrop, a.Type)
				got = append(got, a.Severity)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectRebalance_ApyDropImpact(t *testing.T) {
	analysis := detect(t,
		[]types.Allocation{allocation("p", 10, 20)},
		[]types.PoolSnapshot{pool("p", 6, 20)})
	require.Len(t, analysis.Alerts, 1)

	alert := analysis.Alerts[0]
	assert.Equal(t, 6.0, alert.Impact.CurrentValue)
	require.NotNil(t, alert.Impact.PotentialGain)
	assert.InDelta(t, 4.0, *alert.Impact.PotentialGain, 1e-9)
	assert.Equal(t, testNow, alert.CreatedAt)
	assert.Equal(t, testNow, analysis.LastChecked)
	assert.NotEmpty(t, alert.ID)
}

func TestDetectRebalance_StoredZeroApySkipsDropCheck(t *testing.T) {
	analysis := detect(t,
		[]types.Allocation{allocation("p", 0, 20)},
		[]types.PoolSnapshot{pool("p", 0, 20)})
	assert.Empty(t, analysis.Alerts)
}

func TestDetectRebalance_RiskIncrease(t *testing.T) {
	tests := []struct {
		name        string
		currentRisk int
		want        []types.AlertSeverity
	}{
		{"+10 is critical", 30, []types.AlertSeverity{types.SeverityCritical}},
		{"+5 is a warning", 25, []types.AlertSeverity{types.SeverityWarning}},
		{"+4 is ignored", 24, nil},
		{"decrease is ignored", 10, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := detect(t,
				[]types.Allocation{allocation("p", 10, 20)},
				[]types.PoolSnapshot{pool("p", 10, tt.currentRisk)})

			var got []types.AlertSeverity
			for _, a := range analysis.Alerts {
				assert.Equal(t, types.AlertTypeRiskIncrease, a.Type)
				got = append(got, a.Severity)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectRebalance_BetterAlternative(t *testing.T) {
	inactive := pool("inactive", 30, 15)
	inactive.Status = types.PoolStatusWarning

	catalog := []types.PoolSnapshot{
		pool("held", 6, 20),
		pool("too-risky", 25, 26),  // above stored risk + 5
		pool("thin-margin", 8, 20), // not more than 2 points better
		inactive,
		pool("good", 11, 24),
		pool("also-good", 11, 22), // same APY, lower risk wins
		pool("ok", 9, 18),
	}
	analysis := detect(t, []types.Allocation{allocation("held", 6, 20)}, catalog)

	var alternatives []types.RebalanceAlert
	for _, a := range analysis.Alerts {
		if a.Type == types.AlertTypeBetterAlternative {
			alternatives = append(alternatives, a)
		}
	}
	require.Len(t, alternatives, 1)
	alert := alternatives[0]
	assert.Equal(t, types.SeverityInfo, alert.Severity)
	assert.Equal(t, "also-good", alert.AlternativePoolID)
	require.NotNil(t, alert.Impact.PotentialGain)
	assert.InDelta(t, 5.0, *alert.Impact.PotentialGain, 1e-9)
	assert.Equal(t, types.HealthHealthy, analysis.OverallHealth)
	assert.Equal(t, "All positions healthy, 1 optimization suggestion available", analysis.Summary)
}

func TestDetectRebalance_AlternativeRespectsToleranceCeiling(t *testing.T) {
	catalog := []types.PoolSnapshot{
		pool("held", 6, 24),
		pool("higher", 20, 28), // within stored+5 but above the conservative ceiling of 25
	}
	analysis, err := DetectRebalance([]types.Allocation{allocation("held", 6, 24)}, catalog,
		types.RiskToleranceConservative, config.DefaultEngineParameters, Options{Now: testNow})
	require.NoError(t, err)
	assert.Empty(t, analysis.Alerts)
}

func TestDetectRebalance_ProtocolIssues(t *testing.T) {
	warned := pool("warned", 10, 20)
	warned.Status = types.PoolStatusWarning
	warned.ProtocolAlert = "Oracle incident under investigation"
	warned.TvlChange24hPercent = -15

	silent := pool("silent", 10, 20)
	silent.Status = types.PoolStatusWarning

	deprecated := pool("deprecated", 10, 20)
	deprecated.Status = types.PoolStatusDeprecated

	analysis := detect(t,
		[]types.Allocation{allocation("warned", 10, 20), allocation("silent", 10, 20), allocation("deprecated", 10, 20)},
		[]types.PoolSnapshot{warned, silent, deprecated})

	require.Len(t, analysis.Alerts, 4)
	for _, a := range analysis.Alerts {
		assert.Equal(t, types.AlertTypeProtocolIssue, a.Type)
	}

	// Critical first, then warnings in emission order
	assert.Equal(t, "deprecated", analysis.Alerts[0].PoolID)
	assert.Equal(t, types.SeverityCritical, analysis.Alerts[0].Severity)
	assert.Equal(t, "Withdraw and reallocate", analysis.Alerts[0].Action)

	assert.Equal(t, "warned", analysis.Alerts[1].PoolID)
	assert.Equal(t, "Oracle incident under investigation", analysis.Alerts[1].Message)
	assert.Equal(t, "warned", analysis.Alerts[2].PoolID)
	assert.Equal(t, "Investigate outflow", analysis.Alerts[2].Action)
	assert.NotEqual(t, analysis.Alerts[1].ID, analysis.Alerts[2].ID)

	assert.Equal(t, "silent", analysis.Alerts[3].PoolID)
	assert.Equal(t, "Protocol proto reported a warning status", analysis.Alerts[3].Message)

	assert.Equal(t, types.HealthActionNeeded, analysis.OverallHealth)
	assert.Equal(t, types.AlertCounts{Critical: 1, Warning: 3}, analysis.Counts)
}

func TestDetectRebalance_SeverityOrdering(t *testing.T) {
	deprecated := pool("b", 5, 20)
	deprecated.Status = types.PoolStatusDeprecated

	stored := []types.Allocation{
		allocation("a", 10, 20),
		allocation("b", 5, 20),
		allocation("c", 4, 20),
	}
	catalog := []types.PoolSnapshot{
		pool("a", 7.9, 20),
		deprecated,
		pool("c", 4, 20),
		pool("d", 9, 22),
	}
	analysis := detect(t, stored, catalog)

	require.Len(t, analysis.Alerts, 4)
	got := make([]string, 0, len(analysis.Alerts))
	for _, a := range analysis.Alerts {
		got = append(got, string(a.Severity)+":"+a.PoolID+":"+string(a.Type))
	}
	assert.Equal(t, []string{
		"critical:b:protocol_issue",
		"warning:a:apy_drop",
		"info:b:better_alternative",
		"info:c:better_alternative",
	}, got)

	assert.Equal(t, types.HealthActionNeeded, analysis.OverallHealth)
	assert.Equal(t, "1 critical alert requires immediate action, 1 warning to review; 2 optimization suggestions available", analysis.Summary)
}

func TestDetectRebalance_MissingPoolIsSkipped(t *testing.T) {
	stored := []types.Allocation{allocation("retired", 10, 20), allocation("live", 10, 20)}
	catalog := []types.PoolSnapshot{pool("live", 10, 20)}

	analysis, err := DetectRebalance(stored, catalog, types.RiskToleranceModerate, config.DefaultEngineParameters, Options{Now: testNow})
	require.NoError(t, err)
	assert.Empty(t, analysis.Alerts)
	assert.Equal(t, []string{"retired"}, analysis.SkippedPools)
	assert.Equal(t, types.HealthHealthy, analysis.OverallHealth)
	assert.Equal(t, "All positions healthy, no action needed (1 pool no longer in the catalog)", analysis.Summary)
}

func TestDetectRebalance_ReportsPoolsWithoutTvlHistory(t *testing.T) {
	unknown := pool("fresh", 10, 20)
	unknown.TvlChangeUnknown = true

	stored := []types.Allocation{allocation("fresh", 10, 20), allocation("charted", 10, 20), allocation("fresh", 10, 20)}
	catalog := []types.PoolSnapshot{unknown, pool("charted", 10, 20)}

	analysis := detect(t, stored, catalog)
	assert.Equal(t, []string{"fresh"}, analysis.NoTvlHistoryPools)
	assert.Empty(t, analysis.Alerts)
	assert.Equal(t, types.HealthHealthy, analysis.OverallHealth)
}

func TestDetectRebalance_DeterministicAndPure(t *testing.T) {
	unscored := types.PoolSnapshot{
		ID:                 "fresh",
		Symbol:             "WETH",
		TvlUsd:             2_000_000,
		Apy:                3,
		ILRisk:             types.ILRiskNone,
		ProtocolTrustScore: 60,
		Status:             types.PoolStatusActive,
	}
	catalog := []types.PoolSnapshot{pool("p", 5, 35), unscored}
	stored := []types.Allocation{allocation("p", 10, 20), allocation("fresh", 9, 5)}

	first := detect(t, stored, catalog)
	second := detect(t, stored, catalog)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.Alerts)
	assert.False(t, catalog[1].IsScored(), "catalog must not be annotated in place")
}

func TestDetectRebalance_InvalidInput(t *testing.T) {
	_, err := DetectRebalance(nil, nil, "reckless", config.DefaultEngineParameters, Options{})
	assert.ErrorIs(t, err, analyzer.ErrInvalidInput)

	_, err = DetectRebalance([]types.Allocation{{PoolID: ""}}, nil, types.RiskToleranceModerate, config.DefaultEngineParameters, Options{})
	assert.ErrorIs(t, err, analyzer.ErrInvalidInput)
}

func TestDetectRebalance_EmptyInputsAreHealthy(t *testing.T) {
	analysis := detect(t, nil, nil)
	assert.NotNil(t, analysis.Alerts)
	assert.Empty(t, analysis.Alerts)
	assert.Equal(t, types.HealthHealthy, analysis.OverallHealth)
	assert.Equal(t, "All positions healthy, no action needed", analysis.Summary)
}

func TestOverallHealth(t *testing.T) {
	assert.Equal(t, types.HealthActionNeeded, OverallHealth(types.AlertCounts{Critical: 1, Warning: 3, Info: 2}))
	assert.Equal(t, types.HealthAttention, OverallHealth(types.AlertCounts{Warning: 1, Info: 5}))
	assert.Equal(t, types.HealthHealthy, OverallHealth(types.AlertCounts{Info: 4}))
	assert.Equal(t, types.HealthHealthy, OverallHealth(types.AlertCounts{}))
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "2 critical alerts require immediate action", Summarize(types.HealthActionNeeded, types.AlertCounts{Critical: 2}, 0))
	assert.Equal(t, "1 warning to review", Summarize(types.HealthAttention, types.AlertCounts{Warning: 1}, 0))
	assert.Equal(t, "3 warnings to review; 1 optimization suggestion available", Summarize(types.HealthAttention, types.AlertCounts{Warning: 3, Info: 1}, 0))
}

func TestApyDropPercent(t *testing.T) {
	assert.Equal(t, 40.0, ApyDropPercent(10, 6))
	assert.Equal(t, 21.0, ApyDropPercent(10, 7.9))
	assert.Equal(t, 19.0, ApyDropPercent(10, 8.1))
}
