package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	sdkmath "cosmossdk.io/math"
	"cosmossdk.io/store/prefix"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/dpool/internal/tax"
	"github.com/elys-network/dpool/internal/types"
	"github.com/elys-network/dpool/internal/utils"
)

var prefixFeeder = []byte("feeder/")

type marketExecuteMsg struct {
	DepositStable *types.DepositStableMsg `json:"deposit_stable,omitempty"`
	Receive       *types.Cw20ReceiveMsg   `json:"receive,omitempty"`
}

// executeMarket mints aTokens for stable deposits and pays stable coins out for returned aTokens.
func (d *dispatcher) executeMarket(ctx context.Context, store storetypes.KVStore, sender string, raw []byte, funds sdk.Coins, depth int) ([]types.Attribute, error) {
	s := d.sandbox
	var msg marketExecuteMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errors.Join(ErrInvalidMessage, err)
	}

	switch {
	case msg.DepositStable != nil:
		if len(funds) != 1 || funds[0].Denom != s.stableDenom || !funds[0].Amount.IsPositive() {
			return nil, errors.Join(ErrInvalidMessage, fmt.Errorf("deposit must carry one positive %s coin, got %s", s.stableDenom, funds))
		}
		minted, err := utils.DivRate(funds[0].Amount, s.marketRate)
		if err != nil {
			return nil, err
		}
		if err := s.mintToken(store, s.atoken, s.market, sender, minted); err != nil {
			return nil, err
		}
		return []types.Attribute{
			types.NewAttribute("action", "deposit_stable"),
			types.NewAttribute("depositor", sender),
			types.NewAttribute("mint_amount", minted.String()),
			types.NewAttribute("deposit_amount", funds[0].Amount.String()),
		}, nil

	case msg.Receive != nil:
		if sender != s.atoken {
			return nil, errors.Join(ErrUnauthorizedSender, fmt.Errorf("market only receives %s, not %s", s.atoken, sender))
		}
		var hook types.MarketHookMsg
		if err := json.Unmarshal(msg.Receive.Msg, &hook); err != nil || hook.RedeemStable == nil {
			return nil, errors.Join(ErrInvalidMessage, errors.New("receive payload must be redeem_stable"))
		}
		burned := msg.Receive.Amount
		if err := s.burnToken(store, s.atoken, s.market, burned); err != nil {
			return nil, err
		}
		redeemed, err := utils.MulRate(burned, s.marketRate)
		if err != nil {
			return nil, err
		}
		payout, err := tax.DeductTax(ctx, s, sdk.Coin{Denom: s.stableDenom, Amount: redeemed})
		if err != nil {
			return nil, err
		}
		if err := s.bankSend(ctx, store, s.market, msg.Receive.Sender, sdk.Coins{payout}); err != nil {
			return nil, fmt.Errorf("market payout failed: %w", err)
		}
		return []types.Attribute{
			types.NewAttribute("action", "redeem_stable"),
			types.NewAttribute("burn_amount", burned.String()),
			types.NewAttribute("redeem_amount", redeemed.String()),
		}, nil
	}
	return nil, errors.Join(ErrInvalidMessage, errors.New("unsupported market message"))
}

func (s *Sandbox) queryMarket(store storetypes.KVStore, raw []byte) (any, error) {
	var msg types.MarketQueryMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errors.Join(ErrInvalidMessage, err)
	}
	switch {
	case msg.Config != nil:
		return types.MarketConfigResponse{
			OwnerAddr:      s.market,
			ATerraContract: s.atoken,
			StableDenom:    s.stableDenom,
		}, nil
	case msg.EpochState != nil:
		info, err := s.loadToken(store, s.atoken)
		if err != nil {
			return nil, err
		}
		return types.EpochStateResponse{ExchangeRate: s.marketRate, ATerraSupply: info.TotalSupply}, nil
	}
	return nil, errors.Join(ErrInvalidMessage, errors.New("unsupported market query"))
}

// executeFeeder records the height of the latest update per token.
func (s *Sandbox) executeFeeder(store storetypes.KVStore, raw []byte) ([]types.Attribute, error) {
	var msg types.FeederHandleMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errors.Join(ErrInvalidMessage, err)
	}
	if msg.Update == nil {
		return nil, errors.Join(ErrInvalidMessage, errors.New("unsupported feeder message"))
	}
	prefix.NewStore(store, prefixFeeder).Set([]byte(msg.Update.Token), []byte(strconv.FormatUint(s.block.Height, 10)))
	return []types.Attribute{
		types.NewAttribute("action", "update"),
		types.NewAttribute("token", msg.Update.Token),
	}, nil
}

// LastFeederUpdate returns the height of the latest committed feeder update for token.
func (s *Sandbox) LastFeederUpdate(token string) (uint64, bool) {
	bz := prefix.NewStore(s.current(), prefixFeeder).Get([]byte(token))
	if bz == nil {
		return 0, false
	}
	height, err := strconv.ParseUint(string(bz), 10, 64)
	if err != nil {
		return 0, false
	}
	return height, true
}

func (s *Sandbox) queryFeeder(raw []byte) (any, error) {
	var msg types.FeederQueryMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errors.Join(ErrInvalidMessage, err)
	}
	if msg.ExchangeRateOf == nil {
		return nil, errors.Join(ErrInvalidMessage, errors.New("unsupported feeder query"))
	}
	return types.ExchangeRateResponse{ExchangeRate: s.virtualRate, YieldRate: sdkmath.LegacyZeroDec()}, nil
}
