package host

import (
	"context"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/dpool/internal/types"
)

// Host defines the interface for running pool transactions and reading pool state.
// This interface abstracts away where the pool actually lives, allowing the node to serve either
// a local sandbox or a deployed contract.
type Host interface {
	// Execute runs msg against contract as sender with funds attached, followed by every message
	// the contract returns, all-or-nothing.
	Execute(ctx context.Context, sender, contract string, msg []byte, funds sdk.Coins) (*ExecutionResult, error)

	// Query runs a read-only pool query and returns the JSON answer.
	Query(ctx context.Context, msg []byte) ([]byte, error)

	// Block returns the block the next execution or query runs at.
	Block(ctx context.Context) (types.BlockInfo, error)

	// PoolAddress returns the address of the pool served by this host.
	PoolAddress() string
}

// ExecutionResult describes a committed execution.
type ExecutionResult struct {
	Block types.BlockInfo
	// Log holds the attributes of the top level response.
	Log []types.Attribute
	// Dispatched lists every message that ran, nested ones included, in execution order.
	Dispatched []types.CosmosMsg
}
