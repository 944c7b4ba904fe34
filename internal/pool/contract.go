// Package pool implements the deposit pool: depositors exchange stable coins for deposit (DP)
// tokens backed by a yield-bearing money market position, and the spread between the market's real
// exchange rate and an externally fed virtual rate is periodically harvested for the beneficiary.
//
// Entry points never move funds themselves. They read the config record from the KV store they
// are given, query collaborators, and return the ordered messages a host must execute atomically.
package pool

import (
	"context"
	"encoding/json"
	"fmt"

	"cosmossdk.io/core/address"
	errorsmod "cosmossdk.io/errors"
	storetypes "cosmossdk.io/store/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/dpool/internal/logger"
	"github.com/elys-network/dpool/internal/querier"
	"github.com/elys-network/dpool/internal/state"
	"github.com/elys-network/dpool/internal/tax"
	"github.com/elys-network/dpool/internal/types"
)

const (
	DPTokenSymbol   = "PylonDP"
	DPTokenDecimals = 6
)

// Contract holds the collaborators shared by every entry point. It keeps no state of its own.
type Contract struct {
	logger  zerolog.Logger
	codec   address.Codec
	querier querier.Querier
	tax     tax.Querier
}

// Config holds the dependencies for creating a new Contract
type Config struct {
	AddressCodec address.Codec
	Querier      querier.Querier
	TaxQuerier   tax.Querier
}

// NewContract creates a new Contract with dependency injection
func NewContract(cfg Config) (*Contract, error) {
	if cfg.AddressCodec == nil {
		return nil, fmt.Errorf("address codec cannot be nil")
	}
	if cfg.Querier == nil {
		return nil, fmt.Errorf("querier cannot be nil")
	}
	if cfg.TaxQuerier == nil {
		return nil, fmt.Errorf("tax querier cannot be nil")
	}
	return &Contract{
		logger:  logger.GetForComponent("pool_contract"),
		codec:   cfg.AddressCodec,
		querier: cfg.Querier,
		tax:     cfg.TaxQuerier,
	}, nil
}

// Instantiate stores the initial config and asks the host to create the DP token. The token's
// init hook calls back into RegisterDPToken, which completes the setup.
func (c *Contract) Instantiate(ctx context.Context, store storetypes.KVStore, env types.Env, msg types.InitMsg) (types.InitResponse, error) {
	if store.Has(state.KeyConfig) {
		return types.InitResponse{}, errorsmod.Wrap(types.ErrUnauthorized, "pool already instantiated")
	}
	if msg.PoolName == "" {
		return types.InitResponse{}, errorsmod.Wrap(types.ErrMalformedRequest, "pool name is empty")
	}
	if msg.DPCodeID == 0 {
		return types.InitResponse{}, errorsmod.Wrap(types.ErrMalformedRequest, "dp code id is zero")
	}

	cfg := types.Config{Version: types.ConfigVersion}
	fields := []struct {
		human string
		dst   *types.CanonicalAddr
	}{
		{env.Contract.Address, &cfg.This},
		{env.Message.Sender, &cfg.Owner},
		{msg.Beneficiary, &cfg.Beneficiary},
		{msg.FeeCollector, &cfg.FeeCollector},
		{msg.ExchangeRateFeeder, &cfg.ExchangeRateFeeder},
		{msg.Moneymarket, &cfg.Moneymarket},
	}
	for _, f := range fields {
		addr, err := c.canonical(f.human)
		if err != nil {
			return types.InitResponse{}, err
		}
		*f.dst = addr
	}

	// settlement asset and yield token come from the market, never from the caller
	marketCfg, err := querier.MarketConfig(ctx, c.querier, msg.Moneymarket)
	if err != nil {
		return types.InitResponse{}, err
	}
	cfg.StableDenom = marketCfg.StableDenom
	if cfg.AToken, err = c.canonical(marketCfg.ATerraContract); err != nil {
		return types.InitResponse{}, err
	}
	if err := state.StoreConfig(store, cfg); err != nil {
		return types.InitResponse{}, err
	}

	hook, err := json.Marshal(types.HandleMsg{RegisterDPToken: &types.RegisterDPTokenMsg{}})
	if err != nil {
		return types.InitResponse{}, err
	}
	instantiate, err := types.NewWasmInstantiate(msg.DPCodeID, types.Cw20InitMsg{
		Name:            fmt.Sprintf("Deposit Token - %s", msg.PoolName),
		Symbol:          DPTokenSymbol,
		Decimals:        DPTokenDecimals,
		InitialBalances: []types.Cw20InitialBalance{},
		Mint:            &types.MinterResponse{Minter: env.Contract.Address},
		InitHook:        &types.InitHook{ContractAddr: env.Contract.Address, Msg: hook},
	})
	if err != nil {
		return types.InitResponse{}, err
	}

	c.logger.Info().
		Str("pool", msg.PoolName).
		Str("stable_denom", cfg.StableDenom).
		Str("atoken", marketCfg.ATerraContract).
		Msg("Pool instantiated")

	return types.InitResponse{
		Messages: []types.CosmosMsg{instantiate},
		Log: []types.Attribute{
			types.NewAttribute("action", "instantiate"),
			types.NewAttribute("pool_name", msg.PoolName),
		},
	}, nil
}

// Execute decodes a JSON handle message and dispatches it.
func (c *Contract) Execute(ctx context.Context, store storetypes.KVStore, env types.Env, raw []byte) (types.HandleResponse, error) {
	var msg types.HandleMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return types.HandleResponse{}, fmt.Errorf("%w: %w", types.ErrMalformedRequest, err)
	}
	return c.Handle(ctx, store, env, msg)
}

// Handle dispatches a decoded handle message to its handler.
func (c *Contract) Handle(ctx context.Context, store storetypes.KVStore, env types.Env, msg types.HandleMsg) (types.HandleResponse, error) {
	switch {
	case msg.RegisterDPToken != nil:
		return c.registerDPToken(store, env)
	case msg.Receive != nil:
		return c.receive(ctx, store, env, *msg.Receive)
	case msg.Deposit != nil:
		return c.deposit(ctx, store, env)
	case msg.Earn != nil:
		return c.earn(ctx, store, env)
	case msg.Configure != nil:
		return c.configure(store, env, *msg.Configure)
	}
	return types.HandleResponse{}, errorsmod.Wrap(types.ErrMalformedRequest, "empty handle message")
}

// loadConfig reads the config and refuses records that still need a migration.
func (c *Contract) loadConfig(store storetypes.KVStore) (types.Config, error) {
	cfg, err := state.ReadConfig(store)
	if err != nil {
		return types.Config{}, fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}
	if cfg.Version != types.ConfigVersion {
		return types.Config{}, errorsmod.Wrapf(types.ErrInvalidConfig,
			"config version %d must be migrated to %d", cfg.Version, types.ConfigVersion)
	}
	return cfg, nil
}

func (c *Contract) canonical(human string) (types.CanonicalAddr, error) {
	if human == "" {
		return nil, errorsmod.Wrap(types.ErrInvalidAddress, "address is empty")
	}
	bz, err := c.codec.StringToBytes(human)
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrInvalidAddress, "%s: %v", human, err)
	}
	return bz, nil
}

func (c *Contract) human(addr types.CanonicalAddr) (string, error) {
	if addr.Empty() {
		return "", nil
	}
	s, err := c.codec.BytesToString(addr)
	if err != nil {
		return "", errorsmod.Wrapf(types.ErrInvalidAddress, "%X: %v", []byte(addr), err)
	}
	return s, nil
}

// addresses renders every config address in human readable form.
func (c *Contract) addresses(cfg types.Config) (types.ConfigResponse, error) {
	out := types.ConfigResponse{StableDenom: cfg.StableDenom}
	fields := []struct {
		addr types.CanonicalAddr
		dst  *string
	}{
		{cfg.This, &out.This},
		{cfg.Owner, &out.Owner},
		{cfg.Beneficiary, &out.Beneficiary},
		{cfg.FeeCollector, &out.FeeCollector},
		{cfg.ExchangeRateFeeder, &out.ExchangeRateFeeder},
		{cfg.Moneymarket, &out.Moneymarket},
		{cfg.AToken, &out.AToken},
		{cfg.DPToken, &out.DPToken},
	}
	for _, f := range fields {
		s, err := c.human(f.addr)
		if err != nil {
			return types.ConfigResponse{}, err
		}
		*f.dst = s
	}
	return out, nil
}
