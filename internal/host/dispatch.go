package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/dpool/internal/types"
)

// dispatcher runs messages inside one sandbox transaction and records what ran.
type dispatcher struct {
	sandbox    *Sandbox
	dispatched []types.CosmosMsg
}

// dispatchAll runs msgs in order on behalf of sender, stopping at the first failure.
func (d *dispatcher) dispatchAll(ctx context.Context, store storetypes.KVStore, sender string, msgs []types.CosmosMsg, depth int) error {
	for i, msg := range msgs {
		if err := d.dispatch(ctx, store, sender, msg, depth); err != nil {
			return fmt.Errorf("message %d (%s) from %s failed: %w", i, msg.Type(), sender, err)
		}
	}
	return nil
}

func (d *dispatcher) dispatch(ctx context.Context, store storetypes.KVStore, sender string, msg types.CosmosMsg, depth int) error {
	if depth > maxDispatchDepth {
		return ErrDepthExceeded
	}
	d.dispatched = append(d.dispatched, msg)

	switch msg.Type() {
	case types.MsgTypeBankSend:
		send := msg.Bank.Send
		if send.FromAddress != sender {
			return errors.Join(ErrUnauthorizedSender, fmt.Errorf("%s cannot send from %s", sender, send.FromAddress))
		}
		if send.Amount.Empty() {
			return errors.Join(ErrInvalidMessage, errors.New("bank send carries no coins"))
		}
		return d.sandbox.bankSend(ctx, store, send.FromAddress, send.ToAddress, send.Amount)
	case types.MsgTypeWasmExecute:
		exec := msg.Wasm.Execute
		_, err := d.execute(ctx, store, sender, exec.ContractAddr, exec.Msg, exec.Send, depth+1)
		return err
	case types.MsgTypeWasmInstantiate:
		return d.instantiate(ctx, store, sender, *msg.Wasm.Instantiate, depth+1)
	}
	return errors.Join(ErrInvalidMessage, errors.New("message has no populated variant"))
}

// execute moves funds to contract and runs msg there, then everything it returns.
func (d *dispatcher) execute(ctx context.Context, store storetypes.KVStore, sender, contract string, msg []byte, funds sdk.Coins, depth int) ([]types.Attribute, error) {
	s := d.sandbox
	kind, err := s.kindOf(store, contract)
	if err != nil {
		return nil, err
	}
	if err := s.bankSend(ctx, store, sender, contract, funds); err != nil {
		return nil, err
	}

	switch kind {
	case kindPool:
		res, err := s.pool.Execute(ctx, s.contractStore(store, contract), s.env(sender, contract, funds), msg)
		if err != nil {
			return nil, err
		}
		if err := d.dispatchAll(ctx, store, contract, res.Messages, depth); err != nil {
			return nil, err
		}
		return res.Log, nil
	case kindCw20:
		return d.executeCw20(ctx, store, contract, sender, msg, depth)
	case kindMarket:
		return d.executeMarket(ctx, store, sender, msg, funds, depth)
	case kindFeeder:
		return s.executeFeeder(store, msg)
	}
	return nil, fmt.Errorf("%w: %s has unknown kind %q", ErrUnknownContract, contract, kind)
}

// instantiate creates a cw20 token and runs its init hook.
func (d *dispatcher) instantiate(ctx context.Context, store storetypes.KVStore, sender string, msg types.WasmInstantiateMsg, depth int) error {
	s := d.sandbox
	if msg.CodeID != s.cw20CodeID {
		return fmt.Errorf("%w: %d", ErrUnknownCode, msg.CodeID)
	}
	var init types.Cw20InitMsg
	if err := json.Unmarshal(msg.Msg, &init); err != nil {
		return errors.Join(ErrInvalidMessage, err)
	}
	if len(msg.Send) > 0 {
		return errors.Join(ErrInvalidMessage, errors.New("tokens cannot be instantiated with funds"))
	}

	token, err := s.newContract(store, kindCw20)
	if err != nil {
		return err
	}
	if err := s.createToken(store, token, init); err != nil {
		return err
	}
	s.logger.Debug().Str("token", token).Str("symbol", init.Symbol).Msg("Token instantiated")

	if init.InitHook != nil {
		_, err := d.execute(ctx, store, token, init.InitHook.ContractAddr, init.InitHook.Msg, nil, depth+1)
		if err != nil {
			return fmt.Errorf("init hook of %s failed: %w", token, err)
		}
	}
	return nil
}
