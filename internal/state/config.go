/*

This file manages the pool's config singleton inside the contract KV store.

*/

package state

import (
	"encoding/json"
	"errors"
	"fmt"

	storetypes "cosmossdk.io/store/types"

	"github.com/elys-network/dpool/internal/types"
)

// KeyConfig is the storage key of the config singleton.
var KeyConfig = []byte("config")

var ErrConfigNotFound = errors.New("config not found")

// ReadConfig loads the config singleton. Records written before versioning carry no version
// field and are returned with Version 0; Migrate upgrades them.
func ReadConfig(store storetypes.KVStore) (types.Config, error) {
	bz := store.Get(KeyConfig)
	if bz == nil {
		return types.Config{}, ErrConfigNotFound
	}
	var cfg types.Config
	if err := json.Unmarshal(bz, &cfg); err != nil {
		return types.Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// StoreConfig validates and persists the config singleton.
func StoreConfig(store storetypes.KVStore, cfg types.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	bz, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	store.Set(KeyConfig, bz)
	return nil
}
