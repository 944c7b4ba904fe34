// Package tax computes the per-transfer protocol tax on stable coin movements.
//
// For a transfer of amount a at rate r, tax(a) = min(floor(a * r), cap) and the recipient
// receives a - tax(a). Each transfer hop is taxed separately, so two hops are two calls to DeductTax.
package tax

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

var (
	ErrNilQuerier  = errors.New("tax querier not configured")
	ErrInvalidRate = errors.New("tax rate must be within [0, 1]")
	ErrInvalidCap  = errors.New("tax cap must not be negative")
	ErrInvalidCoin = errors.New("coin amount must not be negative")
)

// Querier exposes the current tax parameters. Implementations are consulted on every
// computation; rate and cap may change from block to block.
type Querier interface {
	TaxRate(ctx context.Context) (sdkmath.LegacyDec, error)
	TaxCap(ctx context.Context, denom string) (sdkmath.Int, error)
}

// ComputeTax returns the tax due on coin: min(floor(amount*rate), cap).
func ComputeTax(ctx context.Context, q Querier, coin sdk.Coin) (sdkmath.Int, error) {
	if q == nil {
		return sdkmath.ZeroInt(), ErrNilQuerier
	}
	if coin.Amount.IsNil() || coin.Amount.IsNegative() {
		return sdkmath.ZeroInt(), ErrInvalidCoin
	}
	rate, err := q.TaxRate(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to query tax rate: %w", err)
	}
	if rate.IsNil() || rate.IsNegative() || rate.GT(sdkmath.LegacyOneDec()) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrInvalidRate, rate)
	}
	taxCap, err := q.TaxCap(ctx, coin.Denom)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to query tax cap for %s: %w", coin.Denom, err)
	}
	if taxCap.IsNil() || taxCap.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrInvalidCap, taxCap)
	}

	due := sdkmath.LegacyNewDecFromInt(coin.Amount).Mul(rate).TruncateInt()
	return sdkmath.MinInt(due, taxCap), nil
}

// DeductTax returns coin with one hop of tax removed.
func DeductTax(ctx context.Context, q Querier, coin sdk.Coin) (sdk.Coin, error) {
	due, err := ComputeTax(ctx, q, coin)
	if err != nil {
		return sdk.Coin{}, err
	}
	return sdk.Coin{Denom: coin.Denom, Amount: coin.Amount.Sub(due)}, nil
}

// SenderTax returns the tax a sender pays on top of transferring coin. It is the same charge
// as ComputeTax, and since the charge grows with the amount,
// DeductTax(a) + SenderTax(DeductTax(a)) never exceeds a.
func SenderTax(ctx context.Context, q Querier, coin sdk.Coin) (sdkmath.Int, error) {
	return ComputeTax(ctx, q, coin)
}

// StaticQuerier serves fixed parameters. Caps for denoms not listed are zero.
type StaticQuerier struct {
	Rate sdkmath.LegacyDec
	Caps map[string]sdkmath.Int
}

func (s StaticQuerier) TaxRate(context.Context) (sdkmath.LegacyDec, error) {
	if s.Rate.IsNil() {
		return sdkmath.LegacyZeroDec(), nil
	}
	return s.Rate, nil
}

func (s StaticQuerier) TaxCap(_ context.Context, denom string) (sdkmath.Int, error) {
	if c, ok := s.Caps[denom]; ok {
		return c, nil
	}
	return sdkmath.ZeroInt(), nil
}
