// ./internal/state/parameters_store.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elys-network/curate/internal/types"
	"github.com/rs/zerolog/log"
)

// SaveEngineParameters stores params as the next version of configName and returns its params_id.
// With makeActive the new row replaces the currently active one.
func SaveEngineParameters(ctx context.Context, params types.EngineParameters, configName string, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}
	if err := params.Validate(); err != nil {
		return 0, fmt.Errorf("refusing to save invalid engine parameters: %w", err)
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal engine parameters: %w", err)
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE engine_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		_, err = tx.ExecContext(ctx, stmtDeactivate, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	var version int
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM engine_parameters WHERE config_name = $1;`, configName).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to determine next parameters version for %s: %w", configName, err)
	}

	stmt := `
		INSERT INTO engine_parameters (version, config_name, is_active, activated_at, created_at, parameters)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING params_id;`

	var paramsID int64
	currentTime := time.Now()
	err = tx.QueryRowContext(ctx, stmt, version, configName, makeActive, currentTime, currentTime, paramsJSON).Scan(&paramsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert engine parameters: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved engine parameters")
	return paramsID, nil
}

// LoadActiveEngineParameters loads the currently active parameters of configName and their params_id.
// It returns ErrNotFound when none are active.
func LoadActiveEngineParameters(ctx context.Context, configName string) (*types.EngineParameters, int64, error) {
	if DB == nil {
		return nil, 0, ErrDBNotInitialized
	}

	query := `
		SELECT params_id, parameters
		FROM engine_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var paramsID int64
	var paramsJSON []byte
	err := DB.QueryRowContext(ctx, query, configName).Scan(&paramsID, &paramsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, fmt.Errorf("no active engine parameters found for config '%s': %w", configName, ErrNotFound)
		}
		return nil, 0, fmt.Errorf("failed to scan active engine parameters for config '%s': %w", configName, err)
	}

	p := &types.EngineParameters{}
	if err := json.Unmarshal(paramsJSON, p); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal engine parameters %d: %w", paramsID, err)
	}
	if err := p.Validate(); err != nil {
		return nil, 0, fmt.Errorf("stored engine parameters %d are invalid: %w", paramsID, err)
	}

	log.Info().Str("config", configName).Int64("params_id", paramsID).Msg("Loaded active engine parameters")
	return p, paramsID, nil
}
