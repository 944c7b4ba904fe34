/*

Wire shapes of the external money market (an Anchor-style market) and the exchange rate feeder.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

type MarketConfigQuery struct{}

type EpochStateQuery struct {
	BlockHeight *uint64 `json:"block_height,omitempty"`
}

type MarketQueryMsg struct {
	Config     *MarketConfigQuery `json:"config,omitempty"`
	EpochState *EpochStateQuery   `json:"epoch_state,omitempty"`
}

type MarketConfigResponse struct {
	OwnerAddr           string            `json:"owner_addr"`
	ATerraContract      string            `json:"aterra_contract"`
	InterestModel       string            `json:"interest_model"`
	DistributionModel   string            `json:"distribution_model"`
	OverseerContract    string            `json:"overseer_contract"`
	CollectorContract   string            `json:"collector_contract"`
	DistributorContract string            `json:"distributor_contract"`
	StableDenom         string            `json:"stable_denom"`
	MaxBorrowFactor     sdkmath.LegacyDec `json:"max_borrow_factor"`
}

type EpochStateResponse struct {
	ExchangeRate sdkmath.LegacyDec `json:"exchange_rate"`
	ATerraSupply sdkmath.Int       `json:"aterra_supply"`
}

type DepositStableMsg struct{}

type MarketHandleMsg struct {
	DepositStable *DepositStableMsg `json:"deposit_stable,omitempty"`
}

type RedeemStableMsg struct{}

// MarketHookMsg is carried by a cw20 send of the yield token back to the market.
type MarketHookMsg struct {
	RedeemStable *RedeemStableMsg `json:"redeem_stable,omitempty"`
}

type ExchangeRateOfQuery struct {
	Token     string  `json:"token"`
	Blocktime *uint64 `json:"blocktime,omitempty"`
}

type FeederQueryMsg struct {
	ExchangeRateOf *ExchangeRateOfQuery `json:"exchange_rate_of,omitempty"`
}

type ExchangeRateResponse struct {
	ExchangeRate sdkmath.LegacyDec `json:"exchange_rate"`
	YieldRate    sdkmath.LegacyDec `json:"yield_rate"`
}

type FeederUpdateMsg struct {
	Token string `json:"token"`
}

type FeederHandleMsg struct {
	Update *FeederUpdateMsg `json:"update,omitempty"`
}
