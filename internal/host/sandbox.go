/*

Sandbox is an in-process host for the pool. It keeps a bank ledger with Terra style send tax,
cw20 ledgers, an Anchor style money market and an exchange rate feeder in a single KV store, and
runs every execution inside a cache branch that is only written back once every dispatched message
succeeded.

Sandbox is not safe for concurrent use; callers serialise access.

*/

package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/core/address"
	sdkmath "cosmossdk.io/math"
	"cosmossdk.io/store/prefix"
	storetypes "cosmossdk.io/store/types"
	"github.com/cometbft/cometbft/crypto"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/dpool/internal/logger"
	"github.com/elys-network/dpool/internal/pool"
	"github.com/elys-network/dpool/internal/state"
	"github.com/elys-network/dpool/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrUnknownContract    = errors.New("contract not found")
	ErrUnknownCode        = errors.New("code id not found")
	ErrUnauthorizedSender = errors.New("sender may not move these funds")
	ErrInvalidMessage     = errors.New("message is invalid")
	ErrDepthExceeded      = errors.New("message nesting too deep")
	ErrPoolNotDeployed    = errors.New("pool is not deployed")
	ErrInvalidSandbox     = errors.New("sandbox configuration is invalid")
)

const (
	maxDispatchDepth = 10
	blockInterval    = 6 * time.Second
)

type contractKind string

const (
	kindPool   contractKind = "pool"
	kindCw20   contractKind = "cw20"
	kindMarket contractKind = "market"
	kindFeeder contractKind = "feeder"
)

var (
	prefixContracts = []byte("contracts/")
	prefixStorage   = []byte("storage/")
	keySequence     = []byte("sequence")
)

// Config holds the parameters of a new Sandbox
type Config struct {
	AddressCodec address.Codec
	ChainID      string
	StartTime    time.Time
	StableDenom  string
	// Cw20CodeID is the code id the sandbox instantiates as a cw20 token.
	Cw20CodeID  uint64
	MarketRate  sdkmath.LegacyDec
	VirtualRate sdkmath.LegacyDec
	TaxRate     sdkmath.LegacyDec
	TaxCap      sdkmath.Int
}

// Sandbox implements Host, querier.Querier and tax.Querier.
type Sandbox struct {
	logger zerolog.Logger
	codec  address.Codec

	root   storetypes.KVStore
	active storetypes.KVStore
	block  types.BlockInfo

	stableDenom string
	cw20CodeID  uint64
	taxRate     sdkmath.LegacyDec
	taxCap      sdkmath.Int
	marketRate  sdkmath.LegacyDec
	virtualRate sdkmath.LegacyDec

	market   string
	atoken   string
	feeder   string
	treasury string

	pool     *pool.Contract
	poolAddr string

	// poolAdmin deployed the pool and is the only account allowed to migrate it.
	poolAdmin string
}

// NewSandbox creates a sandbox with a deployed money market, its yield token and a feeder.
func NewSandbox(cfg Config) (*Sandbox, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, errors.Join(ErrInvalidSandbox, err)
	}

	s := &Sandbox{
		logger:      logger.GetForComponent("host_sandbox"),
		codec:       cfg.AddressCodec,
		root:        state.NewMemStore(),
		stableDenom: cfg.StableDenom,
		cw20CodeID:  cfg.Cw20CodeID,
		taxRate:     cfg.TaxRate,
		taxCap:      cfg.TaxCap,
		marketRate:  cfg.MarketRate,
		virtualRate: cfg.VirtualRate,
		block: types.BlockInfo{
			Height:  1,
			Time:    uint64(cfg.StartTime.Unix()),
			ChainID: cfg.ChainID,
		},
	}

	var err error
	if s.treasury, err = s.deriveAddress("treasury"); err != nil {
		return nil, err
	}
	if s.market, err = s.newContract(s.root, kindMarket); err != nil {
		return nil, err
	}
	if s.feeder, err = s.newContract(s.root, kindFeeder); err != nil {
		return nil, err
	}
	if s.atoken, err = s.newContract(s.root, kindCw20); err != nil {
		return nil, err
	}
	if err := s.storeToken(s.root, s.atoken, tokenInfo{
		Name:        "Anchor Terra USD",
		Symbol:      "aUST",
		Decimals:    6,
		Minter:      s.market,
		TotalSupply: sdkmath.ZeroInt(),
	}); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("market", s.market).
		Str("atoken", s.atoken).
		Str("feeder", s.feeder).
		Str("stableDenom", s.stableDenom).
		Msg("Sandbox created")
	return s, nil
}

func validateConfig(cfg Config) error {
	if cfg.AddressCodec == nil {
		return errors.New("address codec cannot be nil")
	}
	if err := sdk.ValidateDenom(cfg.StableDenom); err != nil {
		return fmt.Errorf("stable denom: %w", err)
	}
	if cfg.Cw20CodeID == 0 {
		return errors.New("cw20 code id cannot be zero")
	}
	if cfg.MarketRate.IsNil() || !cfg.MarketRate.IsPositive() {
		return errors.New("market rate must be positive")
	}
	if cfg.VirtualRate.IsNil() || cfg.VirtualRate.IsNegative() {
		return errors.New("virtual rate cannot be negative")
	}
	if cfg.TaxRate.IsNil() || cfg.TaxRate.IsNegative() || cfg.TaxRate.GT(sdkmath.LegacyOneDec()) {
		return errors.New("tax rate must be within [0, 1]")
	}
	if cfg.TaxCap.IsNil() || cfg.TaxCap.IsNegative() {
		return errors.New("tax cap cannot be negative")
	}
	return nil
}

// DeployPool instantiates contract as the sandbox's pool. Moneymarket and ExchangeRateFeeder in
// msg are replaced with the sandbox's own collaborators.
func (s *Sandbox) DeployPool(ctx context.Context, creator string, contract *pool.Contract, msg types.InitMsg) (string, error) {
	if contract == nil {
		return "", errors.Join(ErrInvalidSandbox, errors.New("pool contract cannot be nil"))
	}
	if s.pool != nil {
		return "", errors.Join(ErrInvalidSandbox, fmt.Errorf("pool already deployed at %s", s.poolAddr))
	}
	msg.Moneymarket = s.market
	msg.ExchangeRateFeeder = s.feeder

	var poolAddr string
	_, err := s.transact(func(store storetypes.KVStore, d *dispatcher) error {
		addr, err := s.newContract(store, kindPool)
		if err != nil {
			return err
		}
		poolAddr = addr
		s.pool, s.poolAddr, s.poolAdmin = contract, addr, creator

		res, err := contract.Instantiate(ctx, s.contractStore(store, addr), s.env(creator, addr, nil), msg)
		if err != nil {
			return err
		}
		return d.dispatchAll(ctx, store, addr, res.Messages, 0)
	})
	if err != nil {
		s.pool, s.poolAddr, s.poolAdmin = nil, "", ""
		return "", err
	}

	s.logger.Info().Str("pool", poolAddr).Str("dpToken", s.DPToken()).Msg("Pool deployed")
	return poolAddr, nil
}

// Execute implements Host.
func (s *Sandbox) Execute(ctx context.Context, sender, contract string, msg []byte, funds sdk.Coins) (*ExecutionResult, error) {
	if s.pool == nil {
		return nil, ErrPoolNotDeployed
	}
	block := s.block
	var log []types.Attribute
	dispatched, err := s.transact(func(store storetypes.KVStore, d *dispatcher) error {
		var err error
		log, err = d.execute(ctx, store, sender, contract, msg, funds, 0)
		return err
	})
	if err != nil {
		s.logger.Debug().Err(err).Str("sender", sender).Str("contract", contract).Msg("Execution rolled back")
		return nil, err
	}
	return &ExecutionResult{Block: block, Log: log, Dispatched: dispatched}, nil
}

// Migrate runs the pool's migrate entry point as sender, who must be the pool's admin.
func (s *Sandbox) Migrate(ctx context.Context, sender string) (*ExecutionResult, error) {
	if s.pool == nil {
		return nil, ErrPoolNotDeployed
	}
	if sender != s.poolAdmin {
		return nil, errors.Join(ErrUnauthorizedSender, fmt.Errorf("%s is not the admin of %s", sender, s.poolAddr))
	}
	block := s.block
	var log []types.Attribute
	dispatched, err := s.transact(func(store storetypes.KVStore, d *dispatcher) error {
		res, err := s.pool.Migrate(ctx, s.contractStore(store, s.poolAddr), s.env(sender, s.poolAddr, nil), types.MigrateMsg{})
		if err != nil {
			return err
		}
		log = res.Log
		return d.dispatchAll(ctx, store, s.poolAddr, res.Messages, 0)
	})
	if err != nil {
		s.logger.Debug().Err(err).Str("sender", sender).Msg("Migration rolled back")
		return nil, err
	}
	return &ExecutionResult{Block: block, Log: log, Dispatched: dispatched}, nil
}

// Query implements Host.
func (s *Sandbox) Query(ctx context.Context, msg []byte) ([]byte, error) {
	if s.pool == nil {
		return nil, ErrPoolNotDeployed
	}
	return s.pool.Query(ctx, s.contractStore(s.current(), s.poolAddr), s.env("", s.poolAddr, nil), msg)
}

// Block implements Host.
func (s *Sandbox) Block(context.Context) (types.BlockInfo, error) {
	return s.block, nil
}

// PoolAddress implements Host.
func (s *Sandbox) PoolAddress() string { return s.poolAddr }

// transact runs fn against a branch of the root store and writes the branch back only when fn
// succeeds. Each committed transaction advances the block.
func (s *Sandbox) transact(fn func(storetypes.KVStore, *dispatcher) error) ([]types.CosmosMsg, error) {
	branch := state.Branch(s.root)
	s.active = branch
	defer func() { s.active = nil }()

	d := &dispatcher{sandbox: s}
	if err := fn(branch, d); err != nil {
		return nil, err
	}
	branch.Write()
	s.block.Height++
	s.block.Time += uint64(blockInterval / time.Second)
	return d.dispatched, nil
}

// current is the store queries read: the open branch during an execution, the root otherwise.
func (s *Sandbox) current() storetypes.KVStore {
	if s.active != nil {
		return s.active
	}
	return s.root
}

func (s *Sandbox) env(sender, contract string, funds sdk.Coins) types.Env {
	return types.Env{
		Block:    s.block,
		Message:  types.MessageInfo{Sender: sender, SentFunds: funds},
		Contract: types.ContractInfo{Address: contract},
	}
}

func (s *Sandbox) contractStore(store storetypes.KVStore, addr string) storetypes.KVStore {
	return prefix.NewStore(store, append(append([]byte{}, prefixStorage...), []byte(addr+"/")...))
}

func (s *Sandbox) deriveAddress(seed string) (string, error) {
	return s.codec.BytesToString(crypto.AddressHash([]byte(seed)))
}

// newContract allocates the next contract address and records its kind.
func (s *Sandbox) newContract(store storetypes.KVStore, kind contractKind) (string, error) {
	seq := uint64(0)
	if bz := store.Get(keySequence); bz != nil {
		if err := json.Unmarshal(bz, &seq); err != nil {
			return "", fmt.Errorf("failed to decode contract sequence: %w", err)
		}
	}
	seq++
	bz, err := json.Marshal(seq)
	if err != nil {
		return "", err
	}
	store.Set(keySequence, bz)

	addr, err := s.deriveAddress(fmt.Sprintf("contract/%d", seq))
	if err != nil {
		return "", err
	}
	prefix.NewStore(store, prefixContracts).Set([]byte(addr), []byte(kind))
	return addr, nil
}

func (s *Sandbox) kindOf(store storetypes.KVStore, addr string) (contractKind, error) {
	bz := prefix.NewStore(store, prefixContracts).Get([]byte(addr))
	if bz == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownContract, addr)
	}
	return contractKind(bz), nil
}

// TaxRate implements tax.Querier.
func (s *Sandbox) TaxRate(context.Context) (sdkmath.LegacyDec, error) { return s.taxRate, nil }

// TaxCap implements tax.Querier. Only the stable denom is capped; other denoms are untaxed.
func (s *Sandbox) TaxCap(_ context.Context, denom string) (sdkmath.Int, error) {
	if denom == s.stableDenom {
		return s.taxCap, nil
	}
	return sdkmath.ZeroInt(), nil
}

func (s *Sandbox) SetTax(rate sdkmath.LegacyDec, taxCap sdkmath.Int) {
	s.taxRate, s.taxCap = rate, taxCap
}

// SetMarketRate sets the money market's aToken exchange rate.
func (s *Sandbox) SetMarketRate(rate sdkmath.LegacyDec) { s.marketRate = rate }

// SetVirtualRate sets the rate the feeder reports for every token.
func (s *Sandbox) SetVirtualRate(rate sdkmath.LegacyDec) { s.virtualRate = rate }

// SetBlockTime moves the clock of the next block.
func (s *Sandbox) SetBlockTime(t time.Time) { s.block.Time = uint64(t.Unix()) }

func (s *Sandbox) MarketAddress() string   { return s.market }
func (s *Sandbox) ATokenAddress() string   { return s.atoken }
func (s *Sandbox) FeederAddress() string   { return s.feeder }
func (s *Sandbox) TreasuryAddress() string { return s.treasury }
func (s *Sandbox) StableDenom() string     { return s.stableDenom }

// DPToken returns the DP token registered by the deployed pool, or "" before deployment.
func (s *Sandbox) DPToken() string {
	if s.pool == nil {
		return ""
	}
	bz, err := s.pool.Query(context.Background(), s.contractStore(s.current(), s.poolAddr), s.env("", s.poolAddr, nil), []byte(`{"config":{}}`))
	if err != nil {
		return ""
	}
	var cfg types.ConfigResponse
	if err := json.Unmarshal(bz, &cfg); err != nil {
		return ""
	}
	return cfg.DPToken
}
