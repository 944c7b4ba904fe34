package querier

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/dpool/internal/types"
)

// FetchExchangeRate returns the virtual exchange rate the feeder reports for token at
// blocktime (unix seconds). A nil blocktime asks for the feeder's latest value. A reply without a
// usable rate is a query failure, never a zero rate.
func FetchExchangeRate(ctx context.Context, q Querier, feeder, token string, blocktime *uint64) (sdkmath.LegacyDec, error) {
	res, err := querySmart[types.ExchangeRateResponse](ctx, q, feeder, types.FeederQueryMsg{
		ExchangeRateOf: &types.ExchangeRateOfQuery{Token: token, Blocktime: blocktime},
	})
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	if res.ExchangeRate.IsNil() || res.ExchangeRate.IsNegative() {
		return sdkmath.LegacyZeroDec(), errorsmod.Wrapf(types.ErrQueryFailed, "feeder %s returned no exchange rate for %s", feeder, token)
	}
	return res.ExchangeRate, nil
}

// UpdateMsg asks the feeder to checkpoint token's rate. It must accompany every response
// that changes the token's supply.
func UpdateMsg(feeder, token string) ([]types.CosmosMsg, error) {
	msg, err := types.NewWasmExecute(feeder, types.FeederHandleMsg{
		Update: &types.FeederUpdateMsg{Token: token},
	})
	if err != nil {
		return nil, err
	}
	return []types.CosmosMsg{msg}, nil
}
