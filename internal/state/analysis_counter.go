/*

This file manages the persistent monitoring run counter.
The counter is stored in the database to ensure continuity across restarts.

*/

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// GetCurrentRunNumber retrieves the current run number from the database
func GetCurrentRunNumber(ctx context.Context) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	var currentRun int64
	err := DB.QueryRowContext(ctx, `SELECT current_run FROM analysis_counter WHERE id = 1;`).Scan(&currentRun)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// This should not happen due to the INSERT in EnsureSchema
			log.Warn().Msg("No run counter row found, treating as 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current run number: %w", err)
	}

	log.Debug().Int64("currentRun", currentRun).Msg("Retrieved current run number")
	return currentRun, nil
}

// IncrementRunNumber increments the run counter and returns the new value
func IncrementRunNumber(ctx context.Context) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	updateQuery := `
		UPDATE analysis_counter
		SET current_run = current_run + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_run;`

	var newRun int64
	if err := DB.QueryRowContext(ctx, updateQuery).Scan(&newRun); err != nil {
		return 0, fmt.Errorf("failed to increment run number: %w", err)
	}

	log.Info().Int64("newRun", newRun).Msg("Incremented run counter")
	return newRun, nil
}

// ResetRunNumber resets the run counter to a specific value (for testing/maintenance)
func ResetRunNumber(ctx context.Context, runNumber int64) error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if runNumber < 0 {
		return fmt.Errorf("run number cannot be negative: %d", runNumber)
	}

	updateQuery := `
		UPDATE analysis_counter
		SET current_run = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1;`

	result, err := DB.ExecContext(ctx, updateQuery, runNumber)
	if err != nil {
		return fmt.Errorf("failed to reset run number to %d: %w", runNumber, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errors.New("no rows updated when resetting run number")
	}

	log.Warn().Int64("runNumber", runNumber).Msg("Reset run counter")
	return nil
}
