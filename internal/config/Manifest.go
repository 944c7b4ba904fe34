/*

This file loads the sandbox init manifest: the YAML document describing the local chain the
sandbox simulates and the pool it deploys on start.

Example:

	chain_id: dpool-sandbox
	start_time: "2024-01-01T00:00:00Z"
	stable_denom: uusd
	cw20_code_id: 1
	market_rate: "1.0"
	virtual_rate: "1.0"
	market_liquidity: 1000000000uusd
	creator: terra1...
	pool:
	  pool_name: ust-pool
	  beneficiary: terra1...
	  fee_collector: terra1...
	  dp_code_id: 1
	genesis:
	  - address: terra1...
	    coins: 100000000uusd

*/

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"gopkg.in/yaml.v3"

	"github.com/elys-network/dpool/internal/types"
)

var ErrInvalidManifest = errors.New("invalid init manifest")

const (
	defaultSandboxChainID = "dpool-sandbox"
	defaultCw20CodeID     = 1
)

// manifestFile mirrors the YAML document. Decimal and coin fields stay strings until parsed.
type manifestFile struct {
	ChainID         string           `yaml:"chain_id"`
	StartTime       string           `yaml:"start_time"`
	StableDenom     string           `yaml:"stable_denom"`
	Cw20CodeID      uint64           `yaml:"cw20_code_id"`
	MarketRate      string           `yaml:"market_rate"`
	VirtualRate     string           `yaml:"virtual_rate"`
	MarketLiquidity string           `yaml:"market_liquidity"`
	Creator         string           `yaml:"creator"`
	Pool            types.InitMsg    `yaml:"pool"`
	Genesis         []manifestFunded `yaml:"genesis"`
}

type manifestFunded struct {
	Address string `yaml:"address"`
	Coins   string `yaml:"coins"`
}

// GenesisAccount is a balance credited before the pool is deployed.
type GenesisAccount struct {
	Address string
	Coins   sdk.Coins
}

// InitManifest is the parsed sandbox manifest.
type InitManifest struct {
	ChainID     string
	StartTime   time.Time
	StableDenom string
	Cw20CodeID  uint64
	MarketRate  sdkmath.LegacyDec
	VirtualRate sdkmath.LegacyDec
	Creator     string
	// MarketLiquidity is credited to the sandbox money market on start.
	MarketLiquidity sdk.Coins
	// Pool is the instantiate message. Moneymarket and ExchangeRateFeeder are filled in by the
	// sandbox with its own collaborators.
	Pool    types.InitMsg
	Genesis []GenesisAccount
}

// LoadInitManifest reads and parses the manifest at path.
func LoadInitManifest(path string) (*InitManifest, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read init manifest %s: %w", path, err)
	}
	return ParseInitManifest(bz)
}

// ParseInitManifest parses a YAML manifest document.
func ParseInitManifest(bz []byte) (*InitManifest, error) {
	var raw manifestFile
	if err := yaml.Unmarshal(bz, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	m := &InitManifest{
		ChainID:     raw.ChainID,
		StableDenom: raw.StableDenom,
		Cw20CodeID:  raw.Cw20CodeID,
		Creator:     raw.Creator,
		Pool:        raw.Pool,
	}
	if m.ChainID == "" {
		m.ChainID = defaultSandboxChainID
	}
	if m.Cw20CodeID == 0 {
		m.Cw20CodeID = defaultCw20CodeID
	}
	if m.Pool.DPCodeID == 0 {
		m.Pool.DPCodeID = m.Cw20CodeID
	}
	if m.StableDenom == "" {
		return nil, fmt.Errorf("%w: stable_denom is required", ErrInvalidManifest)
	}
	if m.Creator == "" {
		return nil, fmt.Errorf("%w: creator is required", ErrInvalidManifest)
	}

	m.StartTime = time.Now().UTC().Truncate(time.Second)
	if raw.StartTime != "" {
		t, err := time.Parse(time.RFC3339, raw.StartTime)
		if err != nil {
			return nil, fmt.Errorf("%w: start_time: %w", ErrInvalidManifest, err)
		}
		m.StartTime = t.UTC()
	}

	var err error
	if m.MarketRate, err = parseRate("market_rate", raw.MarketRate); err != nil {
		return nil, err
	}
	if m.VirtualRate, err = parseRate("virtual_rate", raw.VirtualRate); err != nil {
		return nil, err
	}

	if raw.MarketLiquidity != "" {
		if m.MarketLiquidity, err = sdk.ParseCoinsNormalized(raw.MarketLiquidity); err != nil {
			return nil, fmt.Errorf("%w: market_liquidity: %w", ErrInvalidManifest, err)
		}
	}

	for i, funded := range raw.Genesis {
		if funded.Address == "" {
			return nil, fmt.Errorf("%w: genesis[%d] has no address", ErrInvalidManifest, i)
		}
		coins, err := sdk.ParseCoinsNormalized(funded.Coins)
		if err != nil {
			return nil, fmt.Errorf("%w: genesis[%d] coins: %w", ErrInvalidManifest, i, err)
		}
		m.Genesis = append(m.Genesis, GenesisAccount{Address: funded.Address, Coins: coins})
	}
	return m, nil
}

// parseRate parses an exchange rate, defaulting to 1 when unset.
func parseRate(field, value string) (sdkmath.LegacyDec, error) {
	if value == "" {
		return sdkmath.LegacyOneDec(), nil
	}
	rate, err := sdkmath.LegacyNewDecFromStr(value)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s: %w", ErrInvalidManifest, field, err)
	}
	if !rate.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s must be positive", ErrInvalidManifest, field)
	}
	return rate, nil
}
