package querier

import (
	"context"
	"errors"
	"fmt"
	"time"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"

	"github.com/rs/zerolog"

	"github.com/elys-network/dpool/internal/logger"
	"github.com/elys-network/dpool/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrConnectionFailed = errors.New("connection establishment failed")
	ErrRPCRequestFailed = errors.New("RPC request failed")
	ErrInvalidResponse  = errors.New("response data is invalid")
)

const defaultQueryTimeout = 10 * time.Second

// ChainClient answers smart queries against a live chain over gRPC and reads block
// metadata from the CometBFT RPC endpoint.
type ChainClient struct {
	logger   zerolog.Logger
	grpcConn *grpc.ClientConn
	wasm     wasmtypes.QueryClient
	rpc      *rpchttp.HTTP
	timeout  time.Duration
}

// NewChainClient wraps an established gRPC connection and dials the CometBFT RPC endpoint.
func NewChainClient(grpcConn *grpc.ClientConn, rpcEndpoint string) (*ChainClient, error) {
	if err := validateGRPCConnection(grpcConn); err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	if rpcEndpoint == "" {
		return nil, errors.Join(ErrConnectionFailed, errors.New("RPC endpoint is empty"))
	}
	rpc, err := rpchttp.New(rpcEndpoint, "/websocket")
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, fmt.Errorf("failed to create RPC client for %s: %w", rpcEndpoint, err))
	}

	c := &ChainClient{
		logger:   logger.GetForComponent("grpc_querier"),
		grpcConn: grpcConn,
		wasm:     wasmtypes.NewQueryClient(grpcConn),
		rpc:      rpc,
		timeout:  defaultQueryTimeout,
	}
	c.logger.Info().Str("rpc", rpcEndpoint).Msg("Chain client initialized")
	return c, nil
}

// QuerySmart runs a wasm smart query.
func (c *ChainClient) QuerySmart(ctx context.Context, contract string, msg []byte) ([]byte, error) {
	if err := validateGRPCConnection(c.grpcConn); err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.wasm.SmartContractState(ctx, &wasmtypes.QuerySmartContractStateRequest{
		Address:   contract,
		QueryData: wasmtypes.RawContractMessage(msg),
	})
	if err != nil {
		c.logger.Error().Err(err).Str("contract", contract).Msg("Smart query failed")
		return nil, errors.Join(ErrRPCRequestFailed, err)
	}
	if res == nil {
		return nil, errors.Join(ErrInvalidResponse, errors.New("smart query response is nil"))
	}
	return res.Data, nil
}

// LatestBlock returns the height, time and chain id of the latest committed block.
func (c *ChainClient) LatestBlock(ctx context.Context) (types.BlockInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status, err := c.rpc.Status(ctx)
	if err != nil {
		return types.BlockInfo{}, errors.Join(ErrRPCRequestFailed, err)
	}
	if status.SyncInfo.LatestBlockHeight < 0 {
		return types.BlockInfo{}, errors.Join(ErrInvalidResponse, fmt.Errorf("negative block height %d", status.SyncInfo.LatestBlockHeight))
	}
	return types.BlockInfo{
		Height:  uint64(status.SyncInfo.LatestBlockHeight),
		Time:    uint64(status.SyncInfo.LatestBlockTime.Unix()),
		ChainID: status.NodeInfo.Network,
	}, nil
}

// Close closes the gRPC connection.
func (c *ChainClient) Close() error {
	if c == nil || c.grpcConn == nil {
		return nil
	}
	if err := c.grpcConn.Close(); err != nil {
		return fmt.Errorf("failed to close gRPC connection: %w", err)
	}
	return nil
}

func validateGRPCConnection(grpcClient *grpc.ClientConn) error {
	if grpcClient == nil {
		return errors.New("gRPC connection is nil")
	}

	state := grpcClient.GetState()
	if state == connectivity.Shutdown {
		return errors.New("gRPC connection is shutdown")
	}
	if state == connectivity.TransientFailure {
		return errors.New("gRPC connection is in transient failure state")
	}

	return nil
}
