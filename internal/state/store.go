package state

import (
	"cosmossdk.io/store/cachekv"
	"cosmossdk.io/store/dbadapter"
	storetypes "cosmossdk.io/store/types"
	dbm "github.com/cosmos/cosmos-db"
)

// NewMemStore returns an empty in-memory KV store for contract state.
func NewMemStore() storetypes.KVStore {
	return dbadapter.Store{DB: dbm.NewMemDB()}
}

// Branch returns a write-buffering view over parent. Writes reach parent only when the
// returned store's Write method is called; dropping it discards them.
func Branch(parent storetypes.KVStore) *cachekv.Store {
	return cachekv.NewStore(parent)
}
