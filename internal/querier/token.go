package querier

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/dpool/internal/types"
)

// BalanceOf returns the cw20 balance of account.
func BalanceOf(ctx context.Context, q Querier, token, account string) (sdkmath.Int, error) {
	res, err := querySmart[types.Cw20BalanceResponse](ctx, q, token, types.Cw20QueryMsg{
		Balance: &types.Cw20BalanceQuery{Address: account},
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if res.Balance.IsNil() || res.Balance.IsNegative() {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrQueryFailed, "token %s returned no balance for %s", token, account)
	}
	return res.Balance, nil
}

// TotalSupply returns the cw20 total supply.
func TotalSupply(ctx context.Context, q Querier, token string) (sdkmath.Int, error) {
	res, err := querySmart[types.Cw20TokenInfoResponse](ctx, q, token, types.Cw20QueryMsg{
		TokenInfo: &types.Cw20TokenInfoQuery{},
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if res.TotalSupply.IsNil() || res.TotalSupply.IsNegative() {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrQueryFailed, "token %s returned no total supply", token)
	}
	return res.TotalSupply, nil
}
