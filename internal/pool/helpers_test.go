package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"cosmossdk.io/core/address"
	sdkmath "cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	addresscodec "github.com/cosmos/cosmos-sdk/codec/address"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/dpool/internal/state"
	"github.com/elys-network/dpool/internal/tax"
	"github.com/elys-network/dpool/internal/types"
)

const stableDenom = "uusd"

var codec address.Codec = addresscodec.NewBech32Codec("terra")

// addr derives a stable bech32 address from a short name.
func addr(name string) string {
	bz := make([]byte, 20)
	copy(bz, name)
	s, err := codec.BytesToString(bz)
	if err != nil {
		panic(err)
	}
	return s
}

var (
	poolAddr     = addr("pool")
	ownerAddr    = addr("owner")
	beneficiary  = addr("beneficiary")
	feeCollector = addr("collector")
	feederAddr   = addr("feeder")
	marketAddr   = addr("market")
	atokenAddr   = addr("atoken")
	dpTokenAddr  = addr("dptoken")
	userAddr     = addr("user")
)

// fakeChain answers the collaborator queries a pool makes.
type fakeChain struct {
	realRate    sdkmath.LegacyDec
	virtualRate sdkmath.LegacyDec
	balances    map[string]map[string]sdkmath.Int
	supply      map[string]sdkmath.Int
	feederCalls []types.ExchangeRateOfQuery
	// replies overrides the answer of a contract with a raw JSON body.
	replies map[string]string
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		realRate:    sdkmath.LegacyOneDec(),
		virtualRate: sdkmath.LegacyOneDec(),
		balances:    map[string]map[string]sdkmath.Int{},
		supply:      map[string]sdkmath.Int{},
		replies:     map[string]string{},
	}
}

func (f *fakeChain) setBalance(token, account string, amount int64) {
	if f.balances[token] == nil {
		f.balances[token] = map[string]sdkmath.Int{}
	}
	f.balances[token][account] = sdkmath.NewInt(amount)
}

func (f *fakeChain) QuerySmart(_ context.Context, contract string, msg []byte) ([]byte, error) {
	if reply, ok := f.replies[contract]; ok {
		return []byte(reply), nil
	}
	switch contract {
	case marketAddr:
		var q types.MarketQueryMsg
		if err := json.Unmarshal(msg, &q); err != nil {
			return nil, err
		}
		if q.Config != nil {
			return json.Marshal(types.MarketConfigResponse{StableDenom: stableDenom, ATerraContract: atokenAddr})
		}
		return json.Marshal(types.EpochStateResponse{ExchangeRate: f.realRate, ATerraSupply: sdkmath.ZeroInt()})
	case feederAddr:
		var q types.FeederQueryMsg
		if err := json.Unmarshal(msg, &q); err != nil {
			return nil, err
		}
		f.feederCalls = append(f.feederCalls, *q.ExchangeRateOf)
		return json.Marshal(types.ExchangeRateResponse{ExchangeRate: f.virtualRate, YieldRate: sdkmath.LegacyZeroDec()})
	case atokenAddr, dpTokenAddr:
		var q types.Cw20QueryMsg
		if err := json.Unmarshal(msg, &q); err != nil {
			return nil, err
		}
		if q.Balance != nil {
			bal, ok := f.balances[contract][q.Balance.Address]
			if !ok {
				bal = sdkmath.ZeroInt()
			}
			return json.Marshal(types.Cw20BalanceResponse{Balance: bal})
		}
		supply, ok := f.supply[contract]
		if !ok {
			supply = sdkmath.ZeroInt()
		}
		return json.Marshal(types.Cw20TokenInfoResponse{Decimals: 6, TotalSupply: supply})
	}
	return nil, fmt.Errorf("unknown contract %s", contract)
}

func noTax() tax.StaticQuerier {
	return tax.StaticQuerier{Rate: sdkmath.LegacyZeroDec()}
}

func onePercentTax() tax.StaticQuerier {
	return tax.StaticQuerier{
		Rate: sdkmath.LegacyNewDecWithPrec(1, 2),
		Caps: map[string]sdkmath.Int{stableDenom: sdkmath.NewInt(1_000_000)},
	}
}

type fixture struct {
	contract *Contract
	chain    *fakeChain
	store    storetypes.KVStore
}

func newFixture(t *testing.T, taxes tax.Querier) *fixture {
	t.Helper()
	chain := newFakeChain()
	contract, err := NewContract(Config{AddressCodec: codec, Querier: chain, TaxQuerier: taxes})
	require.NoError(t, err)
	return &fixture{contract: contract, chain: chain, store: state.NewMemStore()}
}

func envFor(sender string, funds ...sdk.Coin) types.Env {
	return types.Env{
		Block:    types.BlockInfo{Height: 100, Time: 1_600_000_000, ChainID: "columbus-4"},
		Message:  types.MessageInfo{Sender: sender, SentFunds: sdk.Coins(funds)},
		Contract: types.ContractInfo{Address: poolAddr},
	}
}

func defaultInitMsg() types.InitMsg {
	return types.InitMsg{
		PoolName:           "test",
		Beneficiary:        beneficiary,
		FeeCollector:       feeCollector,
		ExchangeRateFeeder: feederAddr,
		Moneymarket:        marketAddr,
		DPCodeID:           7,
	}
}

// instantiate sets the pool up without registering the DP token.
func (f *fixture) instantiate(t *testing.T) {
	t.Helper()
	_, err := f.contract.Instantiate(context.Background(), f.store, envFor(ownerAddr), defaultInitMsg())
	require.NoError(t, err)
}

// setup instantiates the pool and registers the DP token.
func (f *fixture) setup(t *testing.T) {
	t.Helper()
	f.instantiate(t)
	_, err := f.handle(dpTokenAddr, types.HandleMsg{RegisterDPToken: &types.RegisterDPTokenMsg{}})
	require.NoError(t, err)
}

func (f *fixture) handle(sender string, msg types.HandleMsg, funds ...sdk.Coin) (types.HandleResponse, error) {
	return f.contract.Handle(context.Background(), f.store, envFor(sender, funds...), msg)
}

func (f *fixture) config(t *testing.T) types.Config {
	t.Helper()
	cfg, err := state.ReadConfig(f.store)
	require.NoError(t, err)
	return cfg
}

func decodeExecute[T any](t *testing.T, msg types.CosmosMsg) (string, T, sdk.Coins) {
	t.Helper()
	require.Equal(t, types.MsgTypeWasmExecute, msg.Type())
	var out T
	require.NoError(t, json.Unmarshal(msg.Wasm.Execute.Msg, &out))
	return msg.Wasm.Execute.ContractAddr, out, msg.Wasm.Execute.Send
}

func redeemPayload(t *testing.T) []byte {
	t.Helper()
	bz, err := json.Marshal(types.Cw20HookMsg{Redeem: &types.RedeemHookMsg{}})
	require.NoError(t, err)
	return bz
}
