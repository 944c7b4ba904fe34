package pool

import (
	"context"
	"encoding/json"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	storetypes "cosmossdk.io/store/types"

	"github.com/elys-network/dpool/internal/querier"
	"github.com/elys-network/dpool/internal/types"
)

// Query decodes a JSON query message and returns the JSON encoded answer.
func (c *Contract) Query(ctx context.Context, store storetypes.KVStore, env types.Env, raw []byte) ([]byte, error) {
	var msg types.QueryMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrMalformedRequest, err)
	}
	res, err := c.HandleQuery(ctx, store, env, msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

// HandleQuery answers a decoded query. Queries never write to store.
func (c *Contract) HandleQuery(ctx context.Context, store storetypes.KVStore, env types.Env, msg types.QueryMsg) (any, error) {
	cfg, err := c.loadConfig(store)
	if err != nil {
		return nil, err
	}
	addrs, err := c.addresses(cfg)
	if err != nil {
		return nil, err
	}

	switch {
	case msg.Config != nil:
		return addrs, nil
	case msg.DepositAmountOf != nil:
		if !cfg.Registered() {
			return nil, types.ErrTokenNotRegistered
		}
		if _, err := c.canonical(msg.DepositAmountOf.Owner); err != nil {
			return nil, err
		}
		amount, err := querier.BalanceOf(ctx, c.querier, addrs.DPToken, msg.DepositAmountOf.Owner)
		if err != nil {
			return nil, err
		}
		return types.AmountResponse{Amount: amount}, nil
	case msg.TotalDepositAmount != nil:
		if !cfg.Registered() {
			return nil, types.ErrTokenNotRegistered
		}
		amount, err := querier.TotalSupply(ctx, c.querier, addrs.DPToken)
		if err != nil {
			return nil, err
		}
		return types.AmountResponse{Amount: amount}, nil
	case msg.ClaimableReward != nil:
		r, err := c.ClaimableReward(ctx, store, env)
		if err != nil {
			return nil, err
		}
		return types.AmountResponse{Amount: r.Payout}, nil
	}
	return nil, errorsmod.Wrap(types.ErrMalformedRequest, "empty query message")
}

// ClaimableReward returns the breakdown an earn at env's block would produce. An underwater
// pool reports a zero payout instead of failing.
func (c *Contract) ClaimableReward(ctx context.Context, store storetypes.KVStore, env types.Env) (Reward, error) {
	cfg, err := c.loadConfig(store)
	if err != nil {
		return Reward{}, err
	}
	if !cfg.Registered() {
		return Reward{}, types.ErrTokenNotRegistered
	}
	addrs, err := c.addresses(cfg)
	if err != nil {
		return Reward{}, err
	}
	return c.computeReward(ctx, cfg, addrs, env.Block)
}
