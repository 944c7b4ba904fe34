/*

Wire shapes of the cw20 fungible token contract used as the deposit (DP) token and as the
money market's yield-bearing token.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

type Cw20HandleMsg struct {
	Mint     *Cw20MintMsg     `json:"mint,omitempty"`
	Burn     *Cw20BurnMsg     `json:"burn,omitempty"`
	Send     *Cw20SendMsg     `json:"send,omitempty"`
	Transfer *Cw20TransferMsg `json:"transfer,omitempty"`
}

type Cw20MintMsg struct {
	Recipient string      `json:"recipient"`
	Amount    sdkmath.Int `json:"amount"`
}

type Cw20BurnMsg struct {
	Amount sdkmath.Int `json:"amount"`
}

// Cw20SendMsg moves tokens to a contract and triggers its receive hook with Msg.
type Cw20SendMsg struct {
	Contract string      `json:"contract"`
	Amount   sdkmath.Int `json:"amount"`
	Msg      []byte      `json:"msg,omitempty"`
}

type Cw20TransferMsg struct {
	Recipient string      `json:"recipient"`
	Amount    sdkmath.Int `json:"amount"`
}

type Cw20InitialBalance struct {
	Address string      `json:"address"`
	Amount  sdkmath.Int `json:"amount"`
}

type MinterResponse struct {
	Minter string       `json:"minter"`
	Cap    *sdkmath.Int `json:"cap"`
}

// InitHook is executed by the token right after it is instantiated.
type InitHook struct {
	Msg          []byte `json:"msg"`
	ContractAddr string `json:"contract_addr"`
}

type Cw20InitMsg struct {
	Name            string               `json:"name"`
	Symbol          string               `json:"symbol"`
	Decimals        uint8                `json:"decimals"`
	InitialBalances []Cw20InitialBalance `json:"initial_balances"`
	Mint            *MinterResponse      `json:"mint,omitempty"`
	InitHook        *InitHook            `json:"init_hook,omitempty"`
}

type Cw20BalanceQuery struct {
	Address string `json:"address"`
}

type Cw20TokenInfoQuery struct{}

type Cw20QueryMsg struct {
	Balance   *Cw20BalanceQuery   `json:"balance,omitempty"`
	TokenInfo *Cw20TokenInfoQuery `json:"token_info,omitempty"`
}

type Cw20BalanceResponse struct {
	Balance sdkmath.Int `json:"balance"`
}

type Cw20TokenInfoResponse struct {
	Name        string      `json:"name"`
	Symbol      string      `json:"symbol"`
	Decimals    uint8       `json:"decimals"`
	TotalSupply sdkmath.Int `json:"total_supply"`
}
