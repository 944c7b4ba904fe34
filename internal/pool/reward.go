package pool

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/dpool/internal/querier"
	"github.com/elys-network/dpool/internal/tax"
	"github.com/elys-network/dpool/internal/types"
	"github.com/elys-network/dpool/internal/utils"
)

// Reward is the breakdown of what an earn would pay out right now.
//
// Fee is the real value minus the virtual value, floored at zero when the virtual rate overtakes
// the real one and capped at Earnable, so Payout + Fee == Earnable always holds.
type Reward struct {
	RealRate     sdkmath.LegacyDec
	VirtualRate  sdkmath.LegacyDec
	Balance      sdkmath.Int
	Supply       sdkmath.Int
	PoolValue    sdkmath.Int
	VirtualValue sdkmath.Int
	Earnable     sdkmath.Int
	Fee          sdkmath.Int
	Payout       sdkmath.Int
	// Underwater is set when PoolValue < Supply; Earnable, Fee and Payout are then zero.
	Underwater bool
}

func (c *Contract) computeReward(ctx context.Context, cfg types.Config, addrs types.ConfigResponse, block types.BlockInfo) (Reward, error) {
	epoch, err := querier.EpochState(ctx, c.querier, addrs.Moneymarket, nil)
	if err != nil {
		return Reward{}, err
	}
	blocktime := block.Time
	virtualRate, err := querier.FetchExchangeRate(ctx, c.querier, addrs.ExchangeRateFeeder, addrs.DPToken, &blocktime)
	if err != nil {
		return Reward{}, err
	}
	balance, err := querier.BalanceOf(ctx, c.querier, addrs.AToken, addrs.This)
	if err != nil {
		return Reward{}, err
	}
	supply, err := querier.TotalSupply(ctx, c.querier, addrs.DPToken)
	if err != nil {
		return Reward{}, err
	}

	r := Reward{
		RealRate:    epoch.ExchangeRate,
		VirtualRate: virtualRate,
		Balance:     balance,
		Supply:      supply,
		Earnable:    sdkmath.ZeroInt(),
		Fee:         sdkmath.ZeroInt(),
		Payout:      sdkmath.ZeroInt(),
	}
	if r.PoolValue, err = c.valueAfterTax(ctx, cfg.StableDenom, balance, r.RealRate); err != nil {
		return Reward{}, err
	}
	if r.VirtualValue, err = c.valueAfterTax(ctx, cfg.StableDenom, balance, r.VirtualRate); err != nil {
		return Reward{}, err
	}

	if r.PoolValue.LT(supply) {
		r.Underwater = true
		return r, nil
	}
	if r.Earnable, err = utils.SubUnsigned(r.PoolValue, supply); err != nil {
		return Reward{}, fmt.Errorf("%w: earnable: %w", types.ErrArithmetic, err)
	}
	if r.PoolValue.GT(r.VirtualValue) {
		r.Fee = sdkmath.MinInt(r.PoolValue.Sub(r.VirtualValue), r.Earnable)
	}
	if r.Payout, err = utils.SubUnsigned(r.Earnable, r.Fee); err != nil {
		return Reward{}, fmt.Errorf("%w: payout: %w", types.ErrArithmetic, err)
	}
	return r, nil
}

// valueAfterTax converts a yield token balance to stable value at rate, minus one tax hop.
func (c *Contract) valueAfterTax(ctx context.Context, denom string, balance sdkmath.Int, rate sdkmath.LegacyDec) (sdkmath.Int, error) {
	value, err := utils.MulRate(balance, rate)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: value of %s at %s: %w", types.ErrArithmetic, balance, rate, err)
	}
	net, err := tax.DeductTax(ctx, c.tax, sdk.Coin{Denom: denom, Amount: value})
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", types.ErrQueryFailed, err)
	}
	return net.Amount, nil
}
