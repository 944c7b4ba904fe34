/*

Wire messages accepted by the pool. Enum-style messages are externally tagged JSON objects with
exactly one key, e.g. {"deposit":{}}. Decoding is strict: zero keys, several keys or an unknown
key all fail with ErrUnknownVariant.

*/

package types

import (
	"bytes"
	"encoding/json"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
)

// Handle message tags. The registration tag keeps the snake_case spelling the DP token's
// init hook already encodes.
const (
	TagRegisterDPToken = "register_d_p_token"
	TagReceive         = "receive"
	TagDeposit         = "deposit"
	TagEarn            = "earn"
	TagConfigure       = "configure"

	TagRedeem  = "redeem"
	TagMigrate = "migrate"

	TagDepositAmountOf    = "deposit_amount_of"
	TagTotalDepositAmount = "total_deposit_amount"
	TagConfig             = "config"
	TagClaimableReward    = "claimable_reward"
)

// InitMsg instantiates a pool.
type InitMsg struct {
	PoolName           string `json:"pool_name" yaml:"pool_name"`
	Beneficiary        string `json:"beneficiary" yaml:"beneficiary"`
	FeeCollector       string `json:"fee_collector" yaml:"fee_collector"`
	ExchangeRateFeeder string `json:"exchange_rate_feeder" yaml:"exchange_rate_feeder"`
	Moneymarket        string `json:"moneymarket" yaml:"moneymarket"`
	DPCodeID           uint64 `json:"dp_code_id" yaml:"dp_code_id"`
}

type RegisterDPTokenMsg struct{}
type DepositMsg struct{}
type EarnMsg struct{}

// ConfigureMsg replaces the beneficiary and/or fee collector. Nil fields are left untouched.
type ConfigureMsg struct {
	Beneficiary  *string `json:"beneficiary,omitempty"`
	FeeCollector *string `json:"fee_collector,omitempty"`
}

// Cw20ReceiveMsg is delivered by a cw20 contract when tokens are sent to the pool with a payload.
type Cw20ReceiveMsg struct {
	Sender string      `json:"sender"`
	Amount sdkmath.Int `json:"amount"`
	Msg    []byte      `json:"msg,omitempty"`
}

// HandleMsg is the closed set of state-changing pool messages.
type HandleMsg struct {
	RegisterDPToken *RegisterDPTokenMsg `json:"register_d_p_token,omitempty"`
	Receive         *Cw20ReceiveMsg     `json:"receive,omitempty"`
	Deposit         *DepositMsg         `json:"deposit,omitempty"`
	Earn            *EarnMsg            `json:"earn,omitempty"`
	Configure       *ConfigureMsg       `json:"configure,omitempty"`
}

// Variant returns the tag of the populated field, or "" when none is set.
func (m HandleMsg) Variant() string {
	switch {
	case m.RegisterDPToken != nil:
		return TagRegisterDPToken
	case m.Receive != nil:
		return TagReceive
	case m.Deposit != nil:
		return TagDeposit
	case m.Earn != nil:
		return TagEarn
	case m.Configure != nil:
		return TagConfigure
	}
	return ""
}

func (m *HandleMsg) UnmarshalJSON(bz []byte) error {
	tag, body, err := splitVariant(bz)
	if err != nil {
		return err
	}
	*m = HandleMsg{}
	var target any
	switch tag {
	case TagRegisterDPToken:
		m.RegisterDPToken = &RegisterDPTokenMsg{}
		target = m.RegisterDPToken
	case TagReceive:
		m.Receive = &Cw20ReceiveMsg{}
		target = m.Receive
	case TagDeposit:
		m.Deposit = &DepositMsg{}
		target = m.Deposit
	case TagEarn:
		m.Earn = &EarnMsg{}
		target = m.Earn
	case TagConfigure:
		m.Configure = &ConfigureMsg{}
		target = m.Configure
	default:
		return errorsmod.Wrapf(ErrUnknownVariant, "handle msg %q", tag)
	}
	return json.Unmarshal(body, target)
}

type RedeemHookMsg struct{}

// Cw20HookMsg is the payload carried inside a Cw20ReceiveMsg.
type Cw20HookMsg struct {
	Redeem *RedeemHookMsg `json:"redeem,omitempty"`
}

func (m *Cw20HookMsg) UnmarshalJSON(bz []byte) error {
	tag, body, err := splitVariant(bz)
	if err != nil {
		return err
	}
	*m = Cw20HookMsg{}
	switch tag {
	case TagRedeem:
		m.Redeem = &RedeemHookMsg{}
		return json.Unmarshal(body, m.Redeem)
	default:
		return errorsmod.Wrapf(ErrUnknownVariant, "hook msg %q", tag)
	}
}

type DepositAmountOfQuery struct {
	Owner string `json:"owner"`
}

type TotalDepositAmountQuery struct{}
type ConfigQuery struct{}
type ClaimableRewardQuery struct{}

// QueryMsg is the closed set of read-only pool queries.
type QueryMsg struct {
	DepositAmountOf    *DepositAmountOfQuery    `json:"deposit_amount_of,omitempty"`
	TotalDepositAmount *TotalDepositAmountQuery `json:"total_deposit_amount,omitempty"`
	Config             *ConfigQuery             `json:"config,omitempty"`
	ClaimableReward    *ClaimableRewardQuery    `json:"claimable_reward,omitempty"`
}

func (m QueryMsg) Variant() string {
	switch {
	case m.DepositAmountOf != nil:
		return TagDepositAmountOf
	case m.TotalDepositAmount != nil:
		return TagTotalDepositAmount
	case m.Config != nil:
		return TagConfig
	case m.ClaimableReward != nil:
		return TagClaimableReward
	}
	return ""
}

func (m *QueryMsg) UnmarshalJSON(bz []byte) error {
	tag, body, err := splitVariant(bz)
	if err != nil {
		return err
	}
	*m = QueryMsg{}
	var target any
	switch tag {
	case TagDepositAmountOf:
		m.DepositAmountOf = &DepositAmountOfQuery{}
		target = m.DepositAmountOf
	case TagTotalDepositAmount:
		m.TotalDepositAmount = &TotalDepositAmountQuery{}
		target = m.TotalDepositAmount
	case TagConfig:
		m.Config = &ConfigQuery{}
		target = m.Config
	case TagClaimableReward:
		m.ClaimableReward = &ClaimableRewardQuery{}
		target = m.ClaimableReward
	default:
		return errorsmod.Wrapf(ErrUnknownVariant, "query msg %q", tag)
	}
	return json.Unmarshal(body, target)
}

// MigrateMsg takes no arguments.
type MigrateMsg struct{}

// AmountResponse answers the amount-valued queries.
type AmountResponse struct {
	Amount sdkmath.Int `json:"amount"`
}

// splitVariant checks bz is a JSON object with exactly one key and returns that key and its value.
func splitVariant(bz []byte) (string, json.RawMessage, error) {
	bz = bytes.TrimSpace(bz)
	if len(bz) == 0 || bytes.Equal(bz, []byte("null")) {
		return "", nil, errorsmod.Wrap(ErrUnknownVariant, "empty message")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(bz, &fields); err != nil {
		return "", nil, errorsmod.Wrap(ErrUnknownVariant, err.Error())
	}
	if len(fields) != 1 {
		return "", nil, errorsmod.Wrapf(ErrUnknownVariant, "expected exactly one variant, got %d", len(fields))
	}
	for tag, body := range fields {
		if len(body) == 0 || bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
			body = json.RawMessage("{}")
		}
		return tag, body, nil
	}
	return "", nil, nil
}
