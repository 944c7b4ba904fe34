package host

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"cosmossdk.io/store/prefix"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/dpool/internal/tax"
)

var prefixBank = []byte("bank/")

func bankKey(addr, denom string) []byte {
	return []byte(addr + "/" + denom)
}

func (s *Sandbox) bankBalance(store storetypes.KVStore, addr, denom string) sdkmath.Int {
	bz := prefix.NewStore(store, prefixBank).Get(bankKey(addr, denom))
	if bz == nil {
		return sdkmath.ZeroInt()
	}
	amount, ok := sdkmath.NewIntFromString(string(bz))
	if !ok {
		panic(fmt.Sprintf("corrupt bank balance for %s/%s: %q", addr, denom, bz))
	}
	return amount
}

func (s *Sandbox) setBankBalance(store storetypes.KVStore, addr, denom string, amount sdkmath.Int) {
	bank := prefix.NewStore(store, prefixBank)
	if amount.IsZero() {
		bank.Delete(bankKey(addr, denom))
		return
	}
	bank.Set(bankKey(addr, denom), []byte(amount.String()))
}

// bankSend moves coins and charges the sender the send tax on top, paid to the treasury.
// Zero coins are rejected the way the bank module rejects them.
func (s *Sandbox) bankSend(ctx context.Context, store storetypes.KVStore, from, to string, coins sdk.Coins) error {
	for _, coin := range coins {
		if coin.Amount.IsNil() || !coin.Amount.IsPositive() {
			return errors.Join(ErrInvalidMessage, fmt.Errorf("invalid coin %s", coin))
		}
		if _, err := s.codec.StringToBytes(from); err != nil {
			return errors.Join(ErrInvalidMessage, fmt.Errorf("invalid sender %q: %w", from, err))
		}
		if _, err := s.codec.StringToBytes(to); err != nil {
			return errors.Join(ErrInvalidMessage, fmt.Errorf("invalid recipient %q: %w", to, err))
		}

		charge, err := tax.SenderTax(ctx, s, coin)
		if err != nil {
			return err
		}
		debit := coin.Amount.Add(charge)
		have := s.bankBalance(store, from, coin.Denom)
		if have.LT(debit) {
			return errors.Join(ErrInsufficientFunds,
				fmt.Errorf("%s has %s%s, needs %s%s including %s tax", from, have, coin.Denom, debit, coin.Denom, charge))
		}
		s.setBankBalance(store, from, coin.Denom, have.Sub(debit))
		s.setBankBalance(store, to, coin.Denom, s.bankBalance(store, to, coin.Denom).Add(coin.Amount))
		if charge.IsPositive() {
			s.setBankBalance(store, s.treasury, coin.Denom, s.bankBalance(store, s.treasury, coin.Denom).Add(charge))
		}
	}
	return nil
}

// Fund credits coins to addr out of thin air, committed immediately.
func (s *Sandbox) Fund(addr string, coins sdk.Coins) error {
	if _, err := s.codec.StringToBytes(addr); err != nil {
		return errors.Join(ErrInvalidMessage, fmt.Errorf("invalid address %q: %w", addr, err))
	}
	for _, coin := range coins {
		if coin.Amount.IsNil() || coin.Amount.IsNegative() {
			return errors.Join(ErrInvalidMessage, fmt.Errorf("invalid coin %s", coin))
		}
		s.setBankBalance(s.root, addr, coin.Denom, s.bankBalance(s.root, addr, coin.Denom).Add(coin.Amount))
	}
	return nil
}

// Balance returns addr's committed bank balance of denom.
func (s *Sandbox) Balance(addr, denom string) sdkmath.Int {
	return s.bankBalance(s.current(), addr, denom)
}

// TotalBalance sums every committed bank balance of denom.
func (s *Sandbox) TotalBalance(denom string) sdkmath.Int {
	total := sdkmath.ZeroInt()
	bank := prefix.NewStore(s.current(), prefixBank)
	it := bank.Iterator(nil, nil)
	defer it.Close()
	suffix := "/" + denom
	for ; it.Valid(); it.Next() {
		key := string(it.Key())
		if len(key) <= len(suffix) || key[len(key)-len(suffix):] != suffix {
			continue
		}
		amount, ok := sdkmath.NewIntFromString(string(it.Value()))
		if !ok {
			continue
		}
		total = total.Add(amount)
	}
	return total
}
