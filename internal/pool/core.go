package pool

import (
	"context"
	"encoding/json"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/dpool/internal/querier"
	"github.com/elys-network/dpool/internal/state"
	"github.com/elys-network/dpool/internal/tax"
	"github.com/elys-network/dpool/internal/types"
	"github.com/elys-network/dpool/internal/utils"
)

// registerDPToken binds the caller as the pool's DP token. It succeeds only once.
func (c *Contract) registerDPToken(store storetypes.KVStore, env types.Env) (types.HandleResponse, error) {
	cfg, err := c.loadConfig(store)
	if err != nil {
		return types.HandleResponse{}, err
	}
	if cfg.Registered() {
		c.logger.Warn().Str("sender", env.Message.Sender).Msg("Rejected second DP token registration")
		return types.HandleResponse{}, errorsmod.Wrap(types.ErrUnauthorized, "dp token already registered")
	}
	sender, err := c.canonical(env.Message.Sender)
	if err != nil {
		return types.HandleResponse{}, err
	}

	cfg.DPToken = sender
	if err := state.StoreConfig(store, cfg); err != nil {
		return types.HandleResponse{}, err
	}

	c.logger.Info().Str("dp_token", env.Message.Sender).Msg("DP token registered")
	return types.HandleResponse{
		Log: []types.Attribute{types.NewAttribute("dp_token", env.Message.Sender)},
	}, nil
}

// receive handles a cw20 send of DP tokens to the pool. Only the registered DP token may call it.
func (c *Contract) receive(ctx context.Context, store storetypes.KVStore, env types.Env, msg types.Cw20ReceiveMsg) (types.HandleResponse, error) {
	cfg, err := c.loadConfig(store)
	if err != nil {
		return types.HandleResponse{}, err
	}
	sender, err := c.canonical(env.Message.Sender)
	if err != nil {
		return types.HandleResponse{}, err
	}
	if !cfg.Registered() || !sender.Equals(cfg.DPToken) {
		c.logger.Warn().Str("sender", env.Message.Sender).Msg("Rejected receive from a contract other than the DP token")
		return types.HandleResponse{}, errorsmod.Wrapf(types.ErrUnauthorized, "%s is not the dp token", env.Message.Sender)
	}

	if len(msg.Msg) == 0 {
		return types.HandleResponse{}, errorsmod.Wrap(types.ErrMalformedRequest, "redeem message not included in request")
	}
	var hook types.Cw20HookMsg
	if err := json.Unmarshal(msg.Msg, &hook); err != nil {
		return types.HandleResponse{}, fmt.Errorf("%w: %w", types.ErrMalformedRequest, err)
	}
	if hook.Redeem != nil {
		return c.redeem(ctx, cfg, env, msg.Sender, msg.Amount)
	}
	return types.HandleResponse{}, errorsmod.Wrap(types.ErrMalformedRequest, "empty hook message")
}

// deposit forwards the attached stable coins, net of one tax hop, to the market and mints the
// same amount of DP token to the depositor.
func (c *Contract) deposit(ctx context.Context, store storetypes.KVStore, env types.Env) (types.HandleResponse, error) {
	cfg, err := c.loadConfig(store)
	if err != nil {
		return types.HandleResponse{}, err
	}
	if !cfg.Registered() {
		return types.HandleResponse{}, types.ErrTokenNotRegistered
	}

	received := sdkmath.ZeroInt()
	for _, coin := range env.Message.SentFunds {
		if coin.Denom == cfg.StableDenom {
			received = coin.Amount
			break
		}
	}
	if received.IsNil() || !received.IsPositive() {
		return types.HandleResponse{}, errorsmod.Wrapf(types.ErrInvalidDeposit, "insufficient token amount %s", cfg.StableDenom)
	}
	if len(env.Message.SentFunds) > 1 {
		return types.HandleResponse{}, errorsmod.Wrapf(types.ErrUnsupportedAsset, "this pool only accepts %s", cfg.StableDenom)
	}

	net, err := tax.DeductTax(ctx, c.tax, sdk.Coin{Denom: cfg.StableDenom, Amount: received})
	if err != nil {
		return types.HandleResponse{}, fmt.Errorf("%w: %w", types.ErrQueryFailed, err)
	}
	if !net.Amount.IsPositive() {
		return types.HandleResponse{}, errorsmod.Wrapf(types.ErrInvalidDeposit, "nothing left of %s after tax", received)
	}

	addrs, err := c.addresses(cfg)
	if err != nil {
		return types.HandleResponse{}, err
	}
	msgs, err := querier.UpdateMsg(addrs.ExchangeRateFeeder, addrs.DPToken)
	if err != nil {
		return types.HandleResponse{}, err
	}
	depositMsgs, err := querier.DepositStableMsg(addrs.Moneymarket, cfg.StableDenom, net.Amount)
	if err != nil {
		return types.HandleResponse{}, err
	}
	mint, err := types.NewWasmExecute(addrs.DPToken, types.Cw20HandleMsg{
		Mint: &types.Cw20MintMsg{Recipient: env.Message.Sender, Amount: net.Amount},
	})
	if err != nil {
		return types.HandleResponse{}, err
	}
	msgs = append(msgs, depositMsgs...)
	msgs = append(msgs, mint)

	c.logger.Debug().Str("sender", env.Message.Sender).Str("amount", net.Amount.String()).Msg("Deposit accepted")
	return types.HandleResponse{
		Messages: msgs,
		Log: []types.Attribute{
			types.NewAttribute("action", "deposit"),
			types.NewAttribute("sender", env.Message.Sender),
			types.NewAttribute("amount", net.Amount.String()),
		},
	}, nil
}

// redeem burns amount DP tokens and pays owner the market-side value after the market's
// withdrawal tax and the pool-to-owner transfer tax. Each hop is capped on its own.
func (c *Contract) redeem(ctx context.Context, cfg types.Config, env types.Env, owner string, amount sdkmath.Int) (types.HandleResponse, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return types.HandleResponse{}, errorsmod.Wrap(types.ErrMalformedRequest, "redeem amount must be positive")
	}
	if _, err := c.canonical(owner); err != nil {
		return types.HandleResponse{}, err
	}
	addrs, err := c.addresses(cfg)
	if err != nil {
		return types.HandleResponse{}, err
	}

	epoch, err := querier.EpochState(ctx, c.querier, addrs.Moneymarket, nil)
	if err != nil {
		return types.HandleResponse{}, err
	}
	marketAmount, err := utils.DivRate(amount, epoch.ExchangeRate)
	if err != nil {
		return types.HandleResponse{}, fmt.Errorf("%w: market redeem amount: %w", types.ErrArithmetic, err)
	}
	withdrawn, err := tax.DeductTax(ctx, c.tax, sdk.Coin{Denom: cfg.StableDenom, Amount: marketAmount})
	if err != nil {
		return types.HandleResponse{}, fmt.Errorf("%w: %w", types.ErrQueryFailed, err)
	}
	payout, err := tax.DeductTax(ctx, c.tax, withdrawn)
	if err != nil {
		return types.HandleResponse{}, fmt.Errorf("%w: %w", types.ErrQueryFailed, err)
	}

	msgs, err := querier.UpdateMsg(addrs.ExchangeRateFeeder, addrs.DPToken)
	if err != nil {
		return types.HandleResponse{}, err
	}
	burn, err := types.NewWasmExecute(addrs.DPToken, types.Cw20HandleMsg{
		Burn: &types.Cw20BurnMsg{Amount: amount},
	})
	if err != nil {
		return types.HandleResponse{}, err
	}
	redeemMsgs, err := querier.RedeemStableMsg(addrs.Moneymarket, addrs.AToken, marketAmount)
	if err != nil {
		return types.HandleResponse{}, err
	}
	msgs = append(msgs, burn)
	msgs = append(msgs, redeemMsgs...)
	msgs = append(msgs, types.NewBankSend(env.Contract.Address, owner, payout))

	c.logger.Debug().
		Str("owner", owner).
		Str("burned", amount.String()).
		Str("market_amount", marketAmount.String()).
		Str("payout", payout.Amount.String()).
		Msg("Redeem accepted")
	return types.HandleResponse{
		Messages: msgs,
		Log: []types.Attribute{
			types.NewAttribute("action", "redeem"),
			types.NewAttribute("sender", env.Message.Sender),
			types.NewAttribute("amount", payout.Amount.String()),
		},
	}, nil
}

// earn harvests the yield accrued above the DP supply and splits it between the beneficiary and
// the fee collector.
func (c *Contract) earn(ctx context.Context, store storetypes.KVStore, env types.Env) (types.HandleResponse, error) {
	cfg, err := c.loadConfig(store)
	if err != nil {
		return types.HandleResponse{}, err
	}
	sender, err := c.canonical(env.Message.Sender)
	if err != nil {
		return types.HandleResponse{}, err
	}
	if !sender.Equals(cfg.Beneficiary) {
		c.logger.Warn().Str("sender", env.Message.Sender).Msg("Rejected earn from non-beneficiary")
		return types.HandleResponse{}, errorsmod.Wrapf(types.ErrUnauthorized, "%s is not the beneficiary", env.Message.Sender)
	}
	if !cfg.Registered() {
		return types.HandleResponse{}, types.ErrTokenNotRegistered
	}
	addrs, err := c.addresses(cfg)
	if err != nil {
		return types.HandleResponse{}, err
	}

	r, err := c.computeReward(ctx, cfg, addrs, env.Block)
	if err != nil {
		return types.HandleResponse{}, err
	}
	if r.Underwater {
		return types.HandleResponse{}, errorsmod.Wrapf(types.ErrArithmetic,
			"pool value %s is below deposit supply %s", r.PoolValue, r.Supply)
	}
	withdraw, err := utils.MulRate(r.Earnable, r.RealRate)
	if err != nil {
		return types.HandleResponse{}, fmt.Errorf("%w: withdraw amount: %w", types.ErrArithmetic, err)
	}

	msgs, err := querier.UpdateMsg(addrs.ExchangeRateFeeder, addrs.DPToken)
	if err != nil {
		return types.HandleResponse{}, err
	}
	// the bank module and cw20 both reject zero amounts, so empty legs are left out
	if withdraw.IsPositive() {
		redeemMsgs, err := querier.RedeemStableMsg(addrs.Moneymarket, addrs.AToken, withdraw)
		if err != nil {
			return types.HandleResponse{}, err
		}
		msgs = append(msgs, redeemMsgs...)
	}
	if r.Payout.IsPositive() {
		msgs = append(msgs, types.NewBankSend(env.Contract.Address, addrs.Beneficiary, sdk.Coin{Denom: cfg.StableDenom, Amount: r.Payout}))
	}
	if r.Fee.IsPositive() {
		msgs = append(msgs, types.NewBankSend(env.Contract.Address, addrs.FeeCollector, sdk.Coin{Denom: cfg.StableDenom, Amount: r.Fee}))
	}

	c.logger.Info().
		Str("earnable", r.Earnable.String()).
		Str("payout", r.Payout.String()).
		Str("fee", r.Fee.String()).
		Str("real_rate", r.RealRate.String()).
		Str("virtual_rate", r.VirtualRate.String()).
		Msg("Reward claimed")
	return types.HandleResponse{
		Messages: msgs,
		Log: []types.Attribute{
			types.NewAttribute("action", "claim_reward"),
			types.NewAttribute("sender", env.Message.Sender),
			types.NewAttribute("amount", r.Payout.String()),
			types.NewAttribute("fee", r.Fee.String()),
		},
	}, nil
}

// configure lets the owner replace the beneficiary and/or fee collector.
func (c *Contract) configure(store storetypes.KVStore, env types.Env, msg types.ConfigureMsg) (types.HandleResponse, error) {
	cfg, err := c.loadConfig(store)
	if err != nil {
		return types.HandleResponse{}, err
	}
	sender, err := c.canonical(env.Message.Sender)
	if err != nil {
		return types.HandleResponse{}, err
	}
	if !sender.Equals(cfg.Owner) {
		c.logger.Warn().Str("sender", env.Message.Sender).Msg("Rejected configure from non-owner")
		return types.HandleResponse{}, errorsmod.Wrapf(types.ErrUnauthorized, "%s is not the owner", env.Message.Sender)
	}

	attrs := []types.Attribute{types.NewAttribute("action", "configure")}
	if msg.Beneficiary != nil {
		if cfg.Beneficiary, err = c.canonical(*msg.Beneficiary); err != nil {
			return types.HandleResponse{}, err
		}
		attrs = append(attrs, types.NewAttribute("beneficiary", *msg.Beneficiary))
	}
	if msg.FeeCollector != nil {
		if cfg.FeeCollector, err = c.canonical(*msg.FeeCollector); err != nil {
			return types.HandleResponse{}, err
		}
		attrs = append(attrs, types.NewAttribute("fee_collector", *msg.FeeCollector))
	}
	if err := state.StoreConfig(store, cfg); err != nil {
		return types.HandleResponse{}, err
	}

	c.logger.Info().Int("changed", len(attrs)-1).Msg("Pool configured")
	return types.HandleResponse{Log: attrs}, nil
}
