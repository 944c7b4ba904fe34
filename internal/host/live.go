package host

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/dpool/internal/logger"
	"github.com/elys-network/dpool/internal/querier"
	"github.com/elys-network/dpool/internal/types"
)

var (
	_ Host        = (*Live)(nil)
	_ Host        = (*Sandbox)(nil)
	_ ChainReader = (*querier.ChainClient)(nil)
)

var ErrReadOnly = errors.New("live host is read-only: transactions are signed and broadcast by the pool's users")

// ChainReader is the part of a chain client the live host needs.
type ChainReader interface {
	QuerySmart(ctx context.Context, contract string, msg []byte) ([]byte, error)
	LatestBlock(ctx context.Context) (types.BlockInfo, error)
}

// Live serves a pool deployed on a running chain. Queries go to the chain; executions are refused.
type Live struct {
	logger zerolog.Logger
	chain  ChainReader
	pool   string
}

// NewLive creates a live host for the pool at poolAddress.
func NewLive(chain ChainReader, poolAddress string) (*Live, error) {
	if chain == nil {
		return nil, fmt.Errorf("chain client cannot be nil")
	}
	if poolAddress == "" {
		return nil, fmt.Errorf("pool address cannot be empty")
	}
	return &Live{
		logger: logger.GetForComponent("host_live"),
		chain:  chain,
		pool:   poolAddress,
	}, nil
}

func (l *Live) Execute(_ context.Context, sender, contract string, _ []byte, _ sdk.Coins) (*ExecutionResult, error) {
	l.logger.Warn().Str("sender", sender).Str("contract", contract).Msg("Refusing execution on live host")
	return nil, ErrReadOnly
}

func (l *Live) Query(ctx context.Context, msg []byte) ([]byte, error) {
	return l.chain.QuerySmart(ctx, l.pool, msg)
}

func (l *Live) Block(ctx context.Context) (types.BlockInfo, error) {
	return l.chain.LatestBlock(ctx)
}

func (l *Live) PoolAddress() string { return l.pool }
