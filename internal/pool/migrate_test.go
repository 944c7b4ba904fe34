package pool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elys-network/dpool/internal/state"
	"github.com/elys-network/dpool/internal/types"
)

// writeLegacy stores cfg the way records were written before they carried a version.
func writeLegacy(t *testing.T, f *fixture, cfg types.Config) {
	t.Helper()
	bz, err := json.Marshal(cfg)
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(bz, &fields))
	delete(fields, "version")
	bz, err = json.Marshal(fields)
	require.NoError(t, err)
	f.store.Set(state.KeyConfig, bz)
}

func TestMigrateLegacyRecord(t *testing.T) {
	f := newFixture(t, noTax())
	f.setup(t)
	current := f.config(t)
	writeLegacy(t, f, current)

	_, err := f.handle(userAddr, types.HandleMsg{Deposit: &types.DepositMsg{}})
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	res, err := f.contract.Migrate(context.Background(), f.store, envFor(ownerAddr), types.MigrateMsg{})
	require.NoError(t, err)
	require.Equal(t, []types.Attribute{
		types.NewAttribute("action", "migrate"),
		types.NewAttribute("from_version", "1"),
		types.NewAttribute("to_version", "2"),
	}, res.Log)
	require.Empty(t, res.Messages)

	migrated := f.config(t)
	require.Equal(t, uint32(2), migrated.Version)
	require.Equal(t, current, migrated)

	// a second run is a no-op
	before := f.store.Get(state.KeyConfig)
	res, err = f.contract.Migrate(context.Background(), f.store, envFor(ownerAddr), types.MigrateMsg{})
	require.NoError(t, err)
	from, _ := types.HandleResponse{Log: res.Log}.Attr("from_version")
	require.Equal(t, "2", from)
	require.Equal(t, before, f.store.Get(state.KeyConfig))
}

func TestMigrateRejects(t *testing.T) {
	f := newFixture(t, noTax())
	_, err := f.contract.Migrate(context.Background(), f.store, envFor(ownerAddr), types.MigrateMsg{})
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	f.setup(t)
	cfg := f.config(t)
	cfg.Version = types.ConfigVersion + 1
	bz, err := json.Marshal(cfg)
	require.NoError(t, err)
	f.store.Set(state.KeyConfig, bz)

	_, err = f.contract.Migrate(context.Background(), f.store, envFor(ownerAddr), types.MigrateMsg{})
	require.ErrorIs(t, err, types.ErrInvalidConfig)
}
