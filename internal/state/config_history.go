// ./internal/state/config_history.go
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/dpool/internal/types"
)

var ErrNoConfigSnapshot = errors.New("no config snapshot found")

// SaveConfigSnapshot stores a new config snapshot for a pool. With makeActive set, the previous
// active snapshot of the same pool is deactivated in the same transaction.
func SaveConfigSnapshot(cfg types.ConfigResponse, version uint32, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}
	if cfg.This == "" {
		return 0, fmt.Errorf("config snapshot has no pool address")
	}

	tx, err := DB.Begin()
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
		stmtDeactivate := `UPDATE pool_configs SET is_active = FALSE WHERE pool_address = $1 AND is_active = TRUE;`
		_, err = tx.Exec(stmtDeactivate, cfg.This)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing config snapshot for %s: %w", cfg.This, err)
		}
	}

	stmt := `
        INSERT INTO pool_configs (
            pool_address, version, is_active, recorded_at,
            owner, beneficiary, fee_collector,
            moneymarket, exchange_rate_feeder,
            stable_denom, atoken, dp_token
        ) VALUES (
            $1, $2, $3, $4,
            $5, $6, $7,
            $8, $9,
            $10, $11, $12
        ) RETURNING snapshot_id;`

	var snapshotID int64
	err = tx.QueryRow(
		stmt,
		cfg.This, version, makeActive, time.Now(),
		cfg.Owner, cfg.Beneficiary, cfg.FeeCollector,
		cfg.Moneymarket, cfg.ExchangeRateFeeder,
		cfg.StableDenom, cfg.AToken, cfg.DPToken,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert config snapshot: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("pool", cfg.This).
		Uint32("version", version).
		Int64("snapshot_id", snapshotID).
		Bool("active", makeActive).
		Msg("Saved config snapshot")
	return snapshotID, nil
}

// LoadActiveConfigSnapshot loads the active config snapshot of a pool.
func LoadActiveConfigSnapshot(poolAddress string) (*types.ConfigSnapshot, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `
        SELECT
            snapshot_id, pool_address, version, is_active, recorded_at,
            owner, beneficiary, fee_collector,
            moneymarket, exchange_rate_feeder,
            stable_denom, atoken, dp_token
        FROM pool_configs
        WHERE pool_address = $1 AND is_active = TRUE
        ORDER BY recorded_at DESC
        LIMIT 1;`

	s := &types.ConfigSnapshot{}
	err := DB.QueryRow(query, poolAddress).Scan(
		&s.SnapshotID, &s.PoolAddress, &s.Version, &s.IsActive, &s.RecordedAt,
		&s.Config.Owner, &s.Config.Beneficiary, &s.Config.FeeCollector,
		&s.Config.Moneymarket, &s.Config.ExchangeRateFeeder,
		&s.Config.StableDenom, &s.Config.AToken, &s.Config.DPToken,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w for pool '%s'", ErrNoConfigSnapshot, poolAddress)
		}
		return nil, fmt.Errorf("failed to scan config snapshot for pool '%s': %w", poolAddress, err)
	}
	s.Config.This = s.PoolAddress
	log.Debug().Str("pool", poolAddress).Int64("snapshot_id", s.SnapshotID).Msg("Loaded active config snapshot")
	return s, nil
}

// RecordConfigIfChanged stores cfg as the active snapshot unless it equals the active one.
// It reports whether a new snapshot was written.
func RecordConfigIfChanged(cfg types.ConfigResponse, version uint32) (bool, error) {
	current, err := LoadActiveConfigSnapshot(cfg.This)
	if err != nil && !errors.Is(err, ErrNoConfigSnapshot) {
		return false, err
	}
	if current != nil && current.Version == version && current.Config == cfg {
		return false, nil
	}
	if _, err := SaveConfigSnapshot(cfg, version, true); err != nil {
		return false, err
	}
	return true, nil
}
