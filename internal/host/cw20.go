package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"cosmossdk.io/store/prefix"
	storetypes "cosmossdk.io/store/types"

	"github.com/elys-network/dpool/internal/types"
)

var prefixTokens = []byte("tokens/")

type tokenInfo struct {
	Name        string      `json:"name"`
	Symbol      string      `json:"symbol"`
	Decimals    uint8       `json:"decimals"`
	Minter      string      `json:"minter"`
	TotalSupply sdkmath.Int `json:"total_supply"`
}

// receiveEnvelope is what a cw20 send delivers to the receiving contract.
type receiveEnvelope struct {
	Receive *types.Cw20ReceiveMsg `json:"receive"`
}

func tokenStore(store storetypes.KVStore, token string) prefix.Store {
	return prefix.NewStore(store, append(append([]byte{}, prefixTokens...), []byte(token+"/")...))
}

func (s *Sandbox) loadToken(store storetypes.KVStore, token string) (tokenInfo, error) {
	bz := tokenStore(store, token).Get([]byte("info"))
	if bz == nil {
		return tokenInfo{}, fmt.Errorf("%w: token %s", ErrUnknownContract, token)
	}
	var info tokenInfo
	if err := json.Unmarshal(bz, &info); err != nil {
		return tokenInfo{}, fmt.Errorf("failed to decode token %s: %w", token, err)
	}
	return info, nil
}

func (s *Sandbox) storeToken(store storetypes.KVStore, token string, info tokenInfo) error {
	bz, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode token %s: %w", token, err)
	}
	tokenStore(store, token).Set([]byte("info"), bz)
	return nil
}

func (s *Sandbox) createToken(store storetypes.KVStore, token string, init types.Cw20InitMsg) error {
	info := tokenInfo{
		Name:        init.Name,
		Symbol:      init.Symbol,
		Decimals:    init.Decimals,
		TotalSupply: sdkmath.ZeroInt(),
	}
	if init.Mint != nil {
		info.Minter = init.Mint.Minter
	}
	for _, b := range init.InitialBalances {
		if _, err := s.codec.StringToBytes(b.Address); err != nil {
			return errors.Join(ErrInvalidMessage, fmt.Errorf("invalid initial balance address %q: %w", b.Address, err))
		}
		s.setTokenBalance(store, token, b.Address, s.tokenBalance(store, token, b.Address).Add(b.Amount))
		info.TotalSupply = info.TotalSupply.Add(b.Amount)
	}
	return s.storeToken(store, token, info)
}

func (s *Sandbox) tokenBalance(store storetypes.KVStore, token, addr string) sdkmath.Int {
	bz := tokenStore(store, token).Get([]byte("balance/" + addr))
	if bz == nil {
		return sdkmath.ZeroInt()
	}
	amount, ok := sdkmath.NewIntFromString(string(bz))
	if !ok {
		panic(fmt.Sprintf("corrupt token balance for %s/%s: %q", token, addr, bz))
	}
	return amount
}

func (s *Sandbox) setTokenBalance(store storetypes.KVStore, token, addr string, amount sdkmath.Int) {
	key := []byte("balance/" + addr)
	if amount.IsZero() {
		tokenStore(store, token).Delete(key)
		return
	}
	tokenStore(store, token).Set(key, []byte(amount.String()))
}

func (s *Sandbox) moveToken(store storetypes.KVStore, token, from, to string, amount sdkmath.Int) error {
	if _, err := s.codec.StringToBytes(to); err != nil {
		return errors.Join(ErrInvalidMessage, fmt.Errorf("invalid recipient %q: %w", to, err))
	}
	have := s.tokenBalance(store, token, from)
	if have.LT(amount) {
		return errors.Join(ErrInsufficientFunds, fmt.Errorf("%s holds %s of %s, needs %s", from, have, token, amount))
	}
	s.setTokenBalance(store, token, from, have.Sub(amount))
	s.setTokenBalance(store, token, to, s.tokenBalance(store, token, to).Add(amount))
	return nil
}

func (s *Sandbox) mintToken(store storetypes.KVStore, token, minter, to string, amount sdkmath.Int) error {
	info, err := s.loadToken(store, token)
	if err != nil {
		return err
	}
	if info.Minter == "" || info.Minter != minter {
		return errors.Join(ErrUnauthorizedSender, fmt.Errorf("%s is not the minter of %s", minter, token))
	}
	if _, err := s.codec.StringToBytes(to); err != nil {
		return errors.Join(ErrInvalidMessage, fmt.Errorf("invalid recipient %q: %w", to, err))
	}
	info.TotalSupply = info.TotalSupply.Add(amount)
	s.setTokenBalance(store, token, to, s.tokenBalance(store, token, to).Add(amount))
	return s.storeToken(store, token, info)
}

func (s *Sandbox) burnToken(store storetypes.KVStore, token, from string, amount sdkmath.Int) error {
	info, err := s.loadToken(store, token)
	if err != nil {
		return err
	}
	have := s.tokenBalance(store, token, from)
	if have.LT(amount) {
		return errors.Join(ErrInsufficientFunds, fmt.Errorf("%s holds %s of %s, cannot burn %s", from, have, token, amount))
	}
	s.setTokenBalance(store, token, from, have.Sub(amount))
	info.TotalSupply = info.TotalSupply.Sub(amount)
	return s.storeToken(store, token, info)
}

func validCw20Amount(amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return errors.Join(ErrInvalidMessage, errors.New("invalid zero amount"))
	}
	return nil
}

func (d *dispatcher) executeCw20(ctx context.Context, store storetypes.KVStore, token, sender string, raw []byte, depth int) ([]types.Attribute, error) {
	s := d.sandbox
	var msg types.Cw20HandleMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errors.Join(ErrInvalidMessage, err)
	}

	switch {
	case msg.Mint != nil:
		if err := validCw20Amount(msg.Mint.Amount); err != nil {
			return nil, err
		}
		if err := s.mintToken(store, token, sender, msg.Mint.Recipient, msg.Mint.Amount); err != nil {
			return nil, err
		}
		return cw20Log("mint", sender, msg.Mint.Recipient, msg.Mint.Amount), nil
	case msg.Burn != nil:
		if err := validCw20Amount(msg.Burn.Amount); err != nil {
			return nil, err
		}
		if err := s.burnToken(store, token, sender, msg.Burn.Amount); err != nil {
			return nil, err
		}
		return cw20Log("burn", sender, "", msg.Burn.Amount), nil
	case msg.Transfer != nil:
		if err := validCw20Amount(msg.Transfer.Amount); err != nil {
			return nil, err
		}
		if err := s.moveToken(store, token, sender, msg.Transfer.Recipient, msg.Transfer.Amount); err != nil {
			return nil, err
		}
		return cw20Log("transfer", sender, msg.Transfer.Recipient, msg.Transfer.Amount), nil
	case msg.Send != nil:
		if err := validCw20Amount(msg.Send.Amount); err != nil {
			return nil, err
		}
		if err := s.moveToken(store, token, sender, msg.Send.Contract, msg.Send.Amount); err != nil {
			return nil, err
		}
		hook, err := json.Marshal(receiveEnvelope{Receive: &types.Cw20ReceiveMsg{
			Sender: sender,
			Amount: msg.Send.Amount,
			Msg:    msg.Send.Msg,
		}})
		if err != nil {
			return nil, err
		}
		log, err := d.execute(ctx, store, token, msg.Send.Contract, hook, nil, depth+1)
		if err != nil {
			return nil, err
		}
		return append(cw20Log("send", sender, msg.Send.Contract, msg.Send.Amount), log...), nil
	}
	return nil, errors.Join(ErrInvalidMessage, errors.New("empty cw20 message"))
}

func cw20Log(action, from, to string, amount sdkmath.Int) []types.Attribute {
	log := []types.Attribute{
		types.NewAttribute("action", action),
		types.NewAttribute("from", from),
	}
	if to != "" {
		log = append(log, types.NewAttribute("to", to))
	}
	return append(log, types.NewAttribute("amount", amount.String()))
}

func (s *Sandbox) queryCw20(store storetypes.KVStore, token string, raw []byte) (any, error) {
	var msg types.Cw20QueryMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errors.Join(ErrInvalidMessage, err)
	}
	switch {
	case msg.Balance != nil:
		return types.Cw20BalanceResponse{Balance: s.tokenBalance(store, token, msg.Balance.Address)}, nil
	case msg.TokenInfo != nil:
		info, err := s.loadToken(store, token)
		if err != nil {
			return nil, err
		}
		return types.Cw20TokenInfoResponse{
			Name:        info.Name,
			Symbol:      info.Symbol,
			Decimals:    info.Decimals,
			TotalSupply: info.TotalSupply,
		}, nil
	}
	return nil, errors.Join(ErrInvalidMessage, errors.New("empty cw20 query"))
}

// TokenBalance returns addr's committed balance of a cw20 token.
func (s *Sandbox) TokenBalance(token, addr string) sdkmath.Int {
	return s.tokenBalance(s.current(), token, addr)
}

// TokenSupply returns the committed total supply of a cw20 token.
func (s *Sandbox) TokenSupply(token string) sdkmath.Int {
	info, err := s.loadToken(s.current(), token)
	if err != nil {
		return sdkmath.ZeroInt()
	}
	return info.TotalSupply
}
