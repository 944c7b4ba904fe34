package querier

import (
	"context"
	"encoding/json"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/dpool/internal/types"
)

// MarketConfig returns the money market's own configuration, the source of the pool's
// stable denom and yield token.
func MarketConfig(ctx context.Context, q Querier, market string) (types.MarketConfigResponse, error) {
	return querySmart[types.MarketConfigResponse](ctx, q, market, types.MarketQueryMsg{
		Config: &types.MarketConfigQuery{},
	})
}

// EpochState returns the market's current exchange rate. A nil height means latest.
func EpochState(ctx context.Context, q Querier, market string, height *uint64) (types.EpochStateResponse, error) {
	res, err := querySmart[types.EpochStateResponse](ctx, q, market, types.MarketQueryMsg{
		EpochState: &types.EpochStateQuery{BlockHeight: height},
	})
	if err != nil {
		return res, err
	}
	if res.ExchangeRate.IsNil() || res.ExchangeRate.IsNegative() {
		return res, errorsmod.Wrapf(types.ErrQueryFailed, "market %s returned no exchange rate", market)
	}
	return res, nil
}

// DepositStableMsg deposits amount of denom into the market.
func DepositStableMsg(market, denom string, amount sdkmath.Int) ([]types.CosmosMsg, error) {
	msg, err := types.NewWasmExecute(market, types.MarketHandleMsg{
		DepositStable: &types.DepositStableMsg{},
	}, sdk.Coin{Denom: denom, Amount: amount})
	if err != nil {
		return nil, err
	}
	return []types.CosmosMsg{msg}, nil
}

// RedeemStableMsg returns amount of the yield token to the market in exchange for stable coins.
func RedeemStableMsg(market, atoken string, amount sdkmath.Int) ([]types.CosmosMsg, error) {
	hook, err := json.Marshal(types.MarketHookMsg{RedeemStable: &types.RedeemStableMsg{}})
	if err != nil {
		return nil, err
	}
	msg, err := types.NewWasmExecute(atoken, types.Cw20HandleMsg{
		Send: &types.Cw20SendMsg{Contract: market, Amount: amount, Msg: hook},
	})
	if err != nil {
		return nil, err
	}
	return []types.CosmosMsg{msg}, nil
}
