package state

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/elys-network/curate/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRow feeds driver-shaped values to Scan the way database/sql does.
type fakeRow struct {
	values []any
}

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r.values) {
		return fmt.Errorf("expected %d destinations, got %d", len(r.values), len(dest))
	}
	for i, d := range dest {
		if s, ok := d.(sql.Scanner); ok {
			if err := s.Scan(r.values[i]); err != nil {
				return err
			}
			continue
		}
		switch p := d.(type) {
		case *int64:
			*p = r.values[i].(int64)
		case *int:
			*p = int(r.values[i].(int64))
		case *string:
			*p = string(r.values[i].([]byte))
		case *[]byte:
			*p = r.values[i].([]byte)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return fmt.Errorf("unsupported destination %T", d)
		}
	}
	return nil
}

func TestScanSnapshot(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	row := fakeRow{values: []any{
		int64(7), []byte("treasury"), created, int64(3),
		[]byte("10000.00"), []byte("moderate"), []byte("balanced"),
		[]byte(`[{"poolId":"a","allocationPercent":60,"allocationUsd":6000,"apy":5,"riskScore":20,"rationale":"r"},
		         {"poolId":"b","allocationPercent":40,"allocationUsd":4000,"apy":8,"riskScore":30,"rationale":"r"}]`),
		[]byte(`{"totalAllocation":10000,"weightedApy":6.2,"poolCount":2}`),
		[]byte(`{"Only 2 pools qualify"}`),
		created,
	}}

	snapshot, err := scanSnapshot(row)
	require.NoError(t, err)
	assert.Equal(t, int64(7), snapshot.SnapshotID)
	assert.Equal(t, "treasury", snapshot.Label)
	assert.Equal(t, int64(3), snapshot.ParamsID)
	assert.Equal(t, 10000.0, snapshot.TotalAllocation)
	assert.Equal(t, types.RiskToleranceModerate, snapshot.RiskTolerance)
	assert.Equal(t, types.RiskToleranceModerate, snapshot.Result.RiskTolerance)
	assert.Equal(t, types.DiversificationBalanced, snapshot.Result.Diversification)
	assert.Equal(t, []string{"a", "b"}, snapshot.Result.PoolIDs())
	assert.Equal(t, 6.2, snapshot.Result.Summary.WeightedApy)
	assert.Equal(t, []string{"Only 2 pools qualify"}, snapshot.Result.RiskWarnings)
	assert.Equal(t, created, snapshot.Result.GeneratedAt)
}

func TestScanSnapshot_NullParamsAndWarnings(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	row := fakeRow{values: []any{
		int64(8), []byte(""), created, nil,
		[]byte("0.00"), []byte("conservative"), []byte("focused"),
		[]byte(`[]`), []byte(`{}`), nil, created,
	}}

	snapshot, err := scanSnapshot(row)
	require.NoError(t, err)
	assert.Zero(t, snapshot.ParamsID)
	assert.Zero(t, snapshot.TotalAllocation)
	assert.NotNil(t, snapshot.Result.RiskWarnings)
	assert.Empty(t, snapshot.Result.RiskWarnings)
}

func TestScanAnalysis(t *testing.T) {
	checked := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	row := fakeRow{values: []any{
		int64(11), int64(7), int64(42), checked,
		[]byte("attention"), []byte("1 warning to review"), int64(0), int64(1), int64(0),
		[]byte(`[{"id":"x","type":"apy_drop","severity":"warning","poolId":"a"}]`),
		[]byte(`{retired}`),
	}}

	record, err := scanAnalysis(row)
	require.NoError(t, err)
	assert.Equal(t, int64(11), record.AnalysisID)
	assert.Equal(t, int64(42), record.RunNumber)
	assert.Equal(t, types.HealthAttention, record.Analysis.OverallHealth)
	assert.Equal(t, types.AlertCounts{Warning: 1}, record.Analysis.Counts)
	require.Len(t, record.Analysis.Alerts, 1)
	assert.Equal(t, types.AlertTypeApyDrop, record.Analysis.Alerts[0].Type)
	assert.Equal(t, []string{"retired"}, record.Analysis.SkippedPools)
	assert.Equal(t, checked, record.Analysis.LastChecked)
}

func TestFunctionsRequireInitializedDB(t *testing.T) {
	ctx := context.Background()
	_, err := SavePortfolioSnapshot(ctx, types.PortfolioSnapshot{})
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	_, err = GetPortfolioByID(ctx, 1)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	_, err = SaveAnalysis(ctx, 1, 1, types.RebalanceAnalysis{})
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	_, err = IncrementRunNumber(ctx)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	_, err = GetCurrentRunNumber(ctx)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	_, err = Store{}.CurrentRunNumber(ctx)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	assert.ErrorIs(t, ResetRunNumber(ctx, 0), ErrDBNotInitialized)
	_, _, err = LoadActiveEngineParameters(ctx, "default")
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	assert.ErrorIs(t, EnsureSchema(), ErrDBNotInitialized)
}
