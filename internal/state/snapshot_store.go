// ./internal/state/snapshot_store.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/curate/internal/types"
	"github.com/elys-network/curate/internal/utils"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

const selectSnapshotColumns = `
	SELECT
		snapshot_id, label, created_at, params_id,
		total_allocation_usd, risk_tolerance, diversification,
		allocations, summary, risk_warnings, generated_at
	FROM portfolio_snapshots`

// SavePortfolioSnapshot stores an optimizer result as a baseline for later rebalance checks.
func SavePortfolioSnapshot(ctx context.Context, snapshot types.PortfolioSnapshot) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	// Marshal all JSONB fields
	allocationsJSON, err := json.Marshal(snapshot.Result.Allocations)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal allocations: %w", err)
	}
	summaryJSON, err := json.Marshal(snapshot.Result.Summary)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal summary: %w", err)
	}

	total, err := utils.Float64ToDec(snapshot.TotalAllocation)
	if err != nil {
		return 0, fmt.Errorf("invalid total allocation: %w", err)
	}

	var paramsID sql.NullInt64
	if snapshot.ParamsID > 0 {
		paramsID = sql.NullInt64{Int64: snapshot.ParamsID, Valid: true}
	}

	createdAt := snapshot.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	generatedAt := snapshot.Result.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = createdAt
	}

	query := `
		INSERT INTO portfolio_snapshots (
			label, created_at, params_id,
			total_allocation_usd, risk_tolerance, diversification,
			pool_ids, allocations, summary, risk_warnings, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = DB.QueryRowContext(ctx,
		query,
		snapshot.Label, createdAt, paramsID,
		total.String(), string(snapshot.RiskTolerance), string(snapshot.Diversification),
		pq.Array(snapshot.Result.PoolIDs()), allocationsJSON, summaryJSON, pq.Array(snapshot.Result.RiskWarnings), generatedAt,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to save portfolio snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Str("label", snapshot.Label).
		Int("pool_count", len(snapshot.Result.Allocations)).
		Float64("total_allocation", snapshot.TotalAllocation).
		Msg("Portfolio snapshot saved to database")

	return snapshotID, nil
}

// GetPortfolioByID loads one stored portfolio. It returns ErrNotFound when the ID is unknown.
func GetPortfolioByID(ctx context.Context, snapshotID int64) (*types.PortfolioSnapshot, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	row := DB.QueryRowContext(ctx, selectSnapshotColumns+` WHERE snapshot_id = $1;`, snapshotID)
	snapshot, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("portfolio %d: %w", snapshotID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load portfolio %d: %w", snapshotID, err)
	}
	return snapshot, nil
}

// GetRecentPortfolios retrieves the most recently stored portfolios, newest first.
func GetRecentPortfolios(ctx context.Context, limit int) ([]types.PortfolioSnapshot, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	rows, err := DB.QueryContext(ctx, selectSnapshotColumns+` ORDER BY created_at DESC LIMIT $1;`, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent portfolios")
		return nil, fmt.Errorf("failed to query recent portfolios: %w", err)
	}
	defer rows.Close()

	var snapshots []types.PortfolioSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan portfolio row")
			continue // Skip this row and continue with others
		}
		snapshots = append(snapshots, *snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio rows: %w", err)
	}

	log.Debug().Int("count", len(snapshots)).Msg("Retrieved recent portfolios")
	return snapshots, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*types.PortfolioSnapshot, error) {
	var s types.PortfolioSnapshot
	var paramsID sql.NullInt64
	var total string
	var tolerance, diversification string
	var allocationsJSON, summaryJSON []byte
	var warnings []string

	err := row.Scan(
		&s.SnapshotID, &s.Label, &s.CreatedAt, &paramsID,
		&total, &tolerance, &diversification,
		&allocationsJSON, &summaryJSON, pq.Array(&warnings), &s.Result.GeneratedAt,
	)
	if err != nil {
		return nil, err
	}

	dec, err := sdkmath.LegacyNewDecFromStr(total)
	if err != nil {
		return nil, fmt.Errorf("invalid stored total allocation %q: %w", total, err)
	}
	if s.TotalAllocation, err = utils.DecToFloat64(dec, utils.UsdPrecision); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(allocationsJSON, &s.Result.Allocations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal allocations of portfolio %d: %w", s.SnapshotID, err)
	}
	if err := json.Unmarshal(summaryJSON, &s.Result.Summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary of portfolio %d: %w", s.SnapshotID, err)
	}

	s.ParamsID = paramsID.Int64
	s.RiskTolerance = types.RiskTolerance(tolerance)
	s.Diversification = types.Diversification(diversification)
	s.Result.RiskTolerance = s.RiskTolerance
	s.Result.Diversification = s.Diversification
	s.Result.RiskWarnings = warnings
	if s.Result.RiskWarnings == nil {
		s.Result.RiskWarnings = []string{}
	}
	return &s, nil
}
