package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elys-network/curate/internal/types"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const selectAnalysisColumns = `
	SELECT
		analysis_id, snapshot_id, run_number, checked_at,
		overall_health, summary, critical_count, warning_count, info_count,
		alerts, skipped_pools
	FROM rebalance_analyses`

// SaveAnalysis stores a rebalance analysis of a stored portfolio.
func SaveAnalysis(ctx context.Context, snapshotID, runNumber int64, analysis types.RebalanceAnalysis) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	alertsJSON, err := json.Marshal(analysis.Alerts)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal alerts: %w", err)
	}

	query := `
		INSERT INTO rebalance_analyses (
			snapshot_id, run_number, checked_at,
			overall_health, summary, critical_count, warning_count, info_count,
			alerts, skipped_pools
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING analysis_id;
	`

	var analysisID int64
	err = DB.QueryRowContext(ctx,
		query,
		snapshotID, runNumber, analysis.LastChecked,
		string(analysis.OverallHealth), analysis.Summary,
		analysis.Counts.Critical, analysis.Counts.Warning, analysis.Counts.Info,
		alertsJSON, pq.Array(analysis.SkippedPools),
	).Scan(&analysisID)
	if err != nil {
		return 0, fmt.Errorf("failed to save analysis for portfolio %d: %w", snapshotID, err)
	}

	log.Info().
		Int64("analysis_id", analysisID).
		Int64("snapshot_id", snapshotID).
		Int64("run_number", runNumber).
		Str("overall_health", string(analysis.OverallHealth)).
		Int("alerts", len(analysis.Alerts)).
		Msg("Rebalance analysis saved to database")

	return analysisID, nil
}

// GetAnalysesForSnapshot retrieves the analyses of a portfolio, newest first.
func GetAnalysesForSnapshot(ctx context.Context, snapshotID int64, limit int) ([]types.AnalysisRecord, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	rows, err := DB.QueryContext(ctx, selectAnalysisColumns+` WHERE snapshot_id = $1 ORDER BY checked_at DESC, analysis_id DESC LIMIT $2;`, snapshotID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses for portfolio %d: %w", snapshotID, err)
	}
	defer rows.Close()

	var records []types.AnalysisRecord
	for rows.Next() {
		record, err := scanAnalysis(rows)
		if err != nil {
			log.Error().Err(err).Int64("snapshot_id", snapshotID).Msg("Failed to scan analysis row")
			continue
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analysis rows: %w", err)
	}
	return records, nil
}

// GetLatestAnalysis returns the newest analysis of a portfolio, or ErrNotFound when it was never analyzed.
func GetLatestAnalysis(ctx context.Context, snapshotID int64) (*types.AnalysisRecord, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	row := DB.QueryRowContext(ctx, selectAnalysisColumns+` WHERE snapshot_id = $1 ORDER BY checked_at DESC, analysis_id DESC LIMIT 1;`, snapshotID)
	record, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no analysis for portfolio %d: %w", snapshotID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load latest analysis for portfolio %d: %w", snapshotID, err)
	}
	return record, nil
}

func scanAnalysis(row rowScanner) (*types.AnalysisRecord, error) {
	var r types.AnalysisRecord
	var health string
	var alertsJSON []byte
	var skipped []string

	err := row.Scan(
		&r.AnalysisID, &r.SnapshotID, &r.RunNumber, &r.Analysis.LastChecked,
		&health, &r.Analysis.Summary, &r.Analysis.Counts.Critical, &r.Analysis.Counts.Warning, &r.Analysis.Counts.Info,
		&alertsJSON, pq.Array(&skipped),
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(alertsJSON, &r.Analysis.Alerts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alerts of analysis %d: %w", r.AnalysisID, err)
	}
	if r.Analysis.Alerts == nil {
		r.Analysis.Alerts = []types.RebalanceAlert{}
	}
	r.Analysis.OverallHealth = types.OverallHealth(health)
	if len(skipped) > 0 {
		r.Analysis.SkippedPools = skipped
	}
	return &r, nil
}
