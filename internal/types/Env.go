package types

import (
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Env is the execution context the host hands to every entry point.
type Env struct {
	Block    BlockInfo    `json:"block"`
	Message  MessageInfo  `json:"message"`
	Contract ContractInfo `json:"contract"`
}

type BlockInfo struct {
	Height  uint64 `json:"height"`
	Time    uint64 `json:"time"` // unix seconds
	ChainID string `json:"chain_id"`
}

type MessageInfo struct {
	Sender    string    `json:"sender"`
	SentFunds sdk.Coins `json:"sent_funds"`
}

type ContractInfo struct {
	Address string `json:"address"`
}

// BlockTime returns the block time as a time.Time in UTC.
func (b BlockInfo) BlockTime() time.Time {
	return time.Unix(int64(b.Time), 0).UTC()
}
