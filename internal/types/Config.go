/*

This file contains the pool's singleton configuration record.

Addresses are stored in canonical (raw byte) form and converted to human readable bech32 strings
only at the edges. DPToken starts empty and is set exactly once by registration.

*/

package types

import (
	"bytes"

	errorsmod "cosmossdk.io/errors"
)

// ConfigVersion is the current layout version of the stored config record.
const ConfigVersion = 2

// CanonicalAddr is the raw byte form of an account or contract address.
type CanonicalAddr []byte

// Empty reports whether the address is the unset sentinel.
func (a CanonicalAddr) Empty() bool { return len(a) == 0 }

func (a CanonicalAddr) Equals(other CanonicalAddr) bool { return bytes.Equal(a, other) }

// Config is the pool's persisted configuration.
type Config struct {
	Version            uint32        `json:"version"`
	This               CanonicalAddr `json:"this"`
	Owner              CanonicalAddr `json:"owner"`
	Beneficiary        CanonicalAddr `json:"beneficiary"`
	FeeCollector       CanonicalAddr `json:"fee_collector"`
	ExchangeRateFeeder CanonicalAddr `json:"exchange_rate_feeder"`
	Moneymarket        CanonicalAddr `json:"moneymarket"`
	StableDenom        string        `json:"stable_denom"`
	AToken             CanonicalAddr `json:"atoken"`
	DPToken            CanonicalAddr `json:"dp_token"`
}

// Validate checks the fields every stored config must carry. DPToken may be empty.
func (c Config) Validate() error {
	required := []struct {
		name string
		addr CanonicalAddr
	}{
		{"this", c.This},
		{"owner", c.Owner},
		{"beneficiary", c.Beneficiary},
		{"fee_collector", c.FeeCollector},
		{"exchange_rate_feeder", c.ExchangeRateFeeder},
		{"moneymarket", c.Moneymarket},
		{"atoken", c.AToken},
	}
	for _, r := range required {
		if r.addr.Empty() {
			return errorsmod.Wrapf(ErrInvalidConfig, "%s address is not set", r.name)
		}
	}
	if c.StableDenom == "" {
		return errorsmod.Wrap(ErrInvalidConfig, "stable denom is not set")
	}
	if c.Version == 0 || c.Version > ConfigVersion {
		return errorsmod.Wrapf(ErrInvalidConfig, "unsupported config version %d", c.Version)
	}
	return nil
}

// Registered reports whether the DP token has bound itself to the pool.
func (c Config) Registered() bool { return !c.DPToken.Empty() }

// ConfigResponse is the human readable config snapshot returned by the config query.
type ConfigResponse struct {
	This               string `json:"this"`
	Owner              string `json:"owner"`
	Beneficiary        string `json:"beneficiary"`
	FeeCollector       string `json:"fee_collector"`
	ExchangeRateFeeder string `json:"exchange_rate_feeder"`
	Moneymarket        string `json:"moneymarket"`
	StableDenom        string `json:"stable_denom"`
	AToken             string `json:"atoken"`
	DPToken            string `json:"dp_token"`
}
