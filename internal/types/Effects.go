/*

Outgoing messages returned by handlers. The pool never executes these itself; the host runs them
in order as part of the same transaction and rolls everything back if one fails.

*/

package types

import (
	"encoding/json"
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Message types used for receipts and metrics.
const (
	MsgTypeBankSend        = "bank/send"
	MsgTypeWasmExecute     = "wasm/execute"
	MsgTypeWasmInstantiate = "wasm/instantiate"
)

type CosmosMsg struct {
	Bank *BankMsg `json:"bank,omitempty"`
	Wasm *WasmMsg `json:"wasm,omitempty"`
}

type BankMsg struct {
	Send *BankSendMsg `json:"send,omitempty"`
}

type BankSendMsg struct {
	FromAddress string    `json:"from_address"`
	ToAddress   string    `json:"to_address"`
	Amount      sdk.Coins `json:"amount"`
}

type WasmMsg struct {
	Execute     *WasmExecuteMsg     `json:"execute,omitempty"`
	Instantiate *WasmInstantiateMsg `json:"instantiate,omitempty"`
}

type WasmExecuteMsg struct {
	ContractAddr string    `json:"contract_addr"`
	Msg          []byte    `json:"msg"`
	Send         sdk.Coins `json:"send"`
}

type WasmInstantiateMsg struct {
	CodeID uint64    `json:"code_id"`
	Msg    []byte    `json:"msg"`
	Send   sdk.Coins `json:"send"`
	Label  *string   `json:"label"`
}

// Type names the populated variant.
func (m CosmosMsg) Type() string {
	switch {
	case m.Bank != nil && m.Bank.Send != nil:
		return MsgTypeBankSend
	case m.Wasm != nil && m.Wasm.Execute != nil:
		return MsgTypeWasmExecute
	case m.Wasm != nil && m.Wasm.Instantiate != nil:
		return MsgTypeWasmInstantiate
	}
	return "unknown"
}

// NewBankSend builds a bank transfer of coins from one account to another.
func NewBankSend(from, to string, amount ...sdk.Coin) CosmosMsg {
	return CosmosMsg{Bank: &BankMsg{Send: &BankSendMsg{
		FromAddress: from,
		ToAddress:   to,
		Amount:      sdk.Coins(amount),
	}}}
}

// NewWasmExecute JSON-encodes msg and wraps it in a contract execution.
func NewWasmExecute(contract string, msg any, send ...sdk.Coin) (CosmosMsg, error) {
	bz, err := json.Marshal(msg)
	if err != nil {
		return CosmosMsg{}, fmt.Errorf("failed to encode execute msg for %s: %w", contract, err)
	}
	return CosmosMsg{Wasm: &WasmMsg{Execute: &WasmExecuteMsg{
		ContractAddr: contract,
		Msg:          bz,
		Send:         sdk.Coins(send),
	}}}, nil
}

// NewWasmInstantiate JSON-encodes msg and wraps it in a contract instantiation.
func NewWasmInstantiate(codeID uint64, msg any) (CosmosMsg, error) {
	bz, err := json.Marshal(msg)
	if err != nil {
		return CosmosMsg{}, fmt.Errorf("failed to encode instantiate msg for code %d: %w", codeID, err)
	}
	return CosmosMsg{Wasm: &WasmMsg{Instantiate: &WasmInstantiateMsg{
		CodeID: codeID,
		Msg:    bz,
	}}}, nil
}
