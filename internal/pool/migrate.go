package pool

import (
	"context"
	"fmt"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	storetypes "cosmossdk.io/store/types"

	"github.com/elys-network/dpool/internal/state"
	"github.com/elys-network/dpool/internal/types"
)

// migration upgrades a config record by exactly one version.
type migration func(types.Config) (types.Config, error)

// migrations is keyed by the version a step upgrades from.
var migrations = map[uint32]migration{
	1: migrateV1ToV2,
}

// migrateV1ToV2 stamps records written before the config carried a version field.
func migrateV1ToV2(cfg types.Config) (types.Config, error) {
	cfg.Version = 2
	return cfg, nil
}

// Migrate upgrades the stored config record to types.ConfigVersion, one step at a time.
func (c *Contract) Migrate(_ context.Context, store storetypes.KVStore, _ types.Env, _ types.MigrateMsg) (types.MigrateResponse, error) {
	cfg, err := state.ReadConfig(store)
	if err != nil {
		return types.MigrateResponse{}, fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}
	from := cfg.Version
	if from == 0 {
		from = 1
	}
	if from > types.ConfigVersion {
		return types.MigrateResponse{}, errorsmod.Wrapf(types.ErrInvalidConfig,
			"stored config version %d is newer than %d", from, types.ConfigVersion)
	}

	for v := from; v < types.ConfigVersion; v++ {
		step, ok := migrations[v]
		if !ok {
			return types.MigrateResponse{}, errorsmod.Wrapf(types.ErrInvalidConfig, "no migration from version %d", v)
		}
		if cfg, err = step(cfg); err != nil {
			return types.MigrateResponse{}, fmt.Errorf("migration from version %d failed: %w", v, err)
		}
	}
	if from < types.ConfigVersion {
		if err := state.StoreConfig(store, cfg); err != nil {
			return types.MigrateResponse{}, err
		}
	}

	c.logger.Info().Uint32("from", from).Uint32("to", cfg.Version).Msg("Config migrated")
	return types.MigrateResponse{
		Log: []types.Attribute{
			types.NewAttribute("action", "migrate"),
			types.NewAttribute("from_version", strconv.FormatUint(uint64(from), 10)),
			types.NewAttribute("to_version", strconv.FormatUint(uint64(cfg.Version), 10)),
		},
	}, nil
}
