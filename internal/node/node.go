// Package node serves one pool: it serialises executions and queries against a host backend,
// records a receipt for every execution and keeps the pool's config history.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/dpool/internal/host"
	"github.com/elys-network/dpool/internal/logger"
	"github.com/elys-network/dpool/internal/metrics"
	"github.com/elys-network/dpool/internal/pool"
	"github.com/elys-network/dpool/internal/types"
	"github.com/elys-network/dpool/internal/utils"
)

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrSandboxOnly        = errors.New("operation is only available on a sandbox node")
	ErrHistoryUnavailable = errors.New("execution history is not configured")
)

// ReceiptStore persists execution receipts.
type ReceiptStore interface {
	SaveReceipt(receipt types.ExecutionReceipt) (int64, error)
	GetRecentReceipts(limit int) ([]types.ExecutionReceipt, error)
	GetReceipt(executionID string) (*types.ExecutionReceipt, error)
	GetReceiptSummary() (*types.ReceiptSummary, error)
}

// ConfigHistory keeps config snapshots. RecordConfigIfChanged reports whether a snapshot was written.
type ConfigHistory interface {
	RecordConfigIfChanged(cfg types.ConfigResponse, version uint32) (bool, error)
}

// SandboxControl is implemented by backends whose chain state the node may steer.
type SandboxControl interface {
	Fund(addr string, coins sdk.Coins) error
	SetMarketRate(rate sdkmath.LegacyDec)
	SetVirtualRate(rate sdkmath.LegacyDec)
	SetBlockTime(t time.Time)
	Balance(addr, denom string) sdkmath.Int
	TokenBalance(token, addr string) sdkmath.Int
}

// Migrator is implemented by backends that can run the pool's migrate entry point.
type Migrator interface {
	Migrate(ctx context.Context, sender string) (*host.ExecutionResult, error)
}

// Node represents a served pool with all its dependencies
type Node struct {
	logger   zerolog.Logger
	backend  host.Host
	metrics  *metrics.Metrics
	receipts ReceiptStore
	history  ConfigHistory
	mode     string

	// mu serialises every call into the backend: one transaction or query at a time.
	mu        sync.Mutex
	startedAt time.Time
}

// Config holds the configuration for creating a new Node instance
type Config struct {
	Backend host.Host
	Mode    string
	// Metrics, Receipts and ConfigHistory are optional.
	Metrics       *metrics.Metrics
	Receipts      ReceiptStore
	ConfigHistory ConfigHistory
}

// ExecuteRequest is a message sent to a contract by sender. Contract defaults to the pool.
type ExecuteRequest struct {
	Sender   string          `json:"sender"`
	Contract string          `json:"contract,omitempty"`
	Msg      json.RawMessage `json:"msg"`
	Funds    sdk.Coins       `json:"funds,omitempty"`
}

// Status is a summary of the node for health reporting.
type Status struct {
	Mode      string          `json:"mode"`
	Pool      string          `json:"pool"`
	Block     types.BlockInfo `json:"block"`
	StartedAt time.Time       `json:"started_at"`
	History   bool            `json:"history"`
}

// NewNode creates a new Node instance with dependency injection
func NewNode(cfg Config) (*Node, error) {
	if err := validateNodeConfig(cfg); err != nil {
		return nil, fmt.Errorf("node configuration validation failed: %w", err)
	}

	n := &Node{
		logger:    logger.GetForComponent("node"),
		backend:   cfg.Backend,
		metrics:   cfg.Metrics,
		receipts:  cfg.Receipts,
		history:   cfg.ConfigHistory,
		mode:      cfg.Mode,
		startedAt: time.Now().UTC(),
	}

	n.logger.Info().
		Str("mode", n.mode).
		Str("pool", n.backend.PoolAddress()).
		Bool("history", n.receipts != nil).
		Msg("Node instance created successfully with dependency injection")

	return n, nil
}

// validateNodeConfig validates the node configuration
func validateNodeConfig(cfg Config) error {
	if cfg.Backend == nil {
		return fmt.Errorf("backend cannot be nil")
	}
	if cfg.Mode == "" {
		return fmt.Errorf("mode cannot be empty")
	}
	if cfg.Backend.PoolAddress() == "" {
		return fmt.Errorf("backend serves no pool")
	}
	return nil
}

// Execute runs req through the backend and records its receipt. The receipt is returned for
// failed executions too, alongside the execution error.
func (n *Node) Execute(ctx context.Context, req ExecuteRequest) (*types.ExecutionReceipt, error) {
	if req.Sender == "" {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidRequest)
	}
	if len(req.Msg) == 0 {
		return nil, fmt.Errorf("%w: msg is required", ErrInvalidRequest)
	}
	contract := req.Contract
	if contract == "" {
		contract = n.backend.PoolAddress()
	}

	receipt := &types.ExecutionReceipt{
		ExecutionID: uuid.New().String(),
		Action:      actionOf(req.Msg),
		Contract:    contract,
		Sender:      req.Sender,
		Funds:       req.Funds.String(),
	}
	return n.run(ctx, receipt, func() (*host.ExecutionResult, error) {
		return n.backend.Execute(ctx, req.Sender, contract, req.Msg, req.Funds)
	})
}

// Migrate runs the pool's migrate entry point as sender and records its receipt. Only sandbox
// backends can migrate.
func (n *Node) Migrate(ctx context.Context, sender string) (*types.ExecutionReceipt, error) {
	if sender == "" {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidRequest)
	}
	migrator, ok := n.backend.(Migrator)
	if !ok {
		return nil, ErrSandboxOnly
	}
	receipt := &types.ExecutionReceipt{
		ExecutionID: uuid.New().String(),
		Action:      types.TagMigrate,
		Contract:    n.backend.PoolAddress(),
		Sender:      sender,
	}

	return n.run(ctx, receipt, func() (*host.ExecutionResult, error) {
		return migrator.Migrate(ctx, sender)
	})
}

// run executes fn under the node lock, then fills receipt from its outcome, reports it and
// persists it.
func (n *Node) run(ctx context.Context, receipt *types.ExecutionReceipt, fn func() (*host.ExecutionResult, error)) (*types.ExecutionReceipt, error) {
	execLogger := n.logger.With().
		Str("execution_id", receipt.ExecutionID).
		Str("action", receipt.Action).
		Logger()

	start := time.Now()
	n.mu.Lock()
	block, blockErr := n.backend.Block(ctx)
	result, err := fn()
	n.mu.Unlock()
	duration := time.Since(start)

	receipt.Timestamp = start.UTC()
	receipt.DurationMs = duration.Milliseconds()
	if blockErr == nil {
		receipt.BlockHeight, receipt.BlockTime = block.Height, block.Time
	}
	if err != nil {
		receipt.Error = err.Error()
		execLogger.Warn().Err(err).Str("sender", receipt.Sender).Msg("Execution failed")
	} else {
		receipt.Success = true
		receipt.BlockHeight, receipt.BlockTime = result.Block.Height, result.Block.Time
		receipt.Attributes = result.Log
		receipt.Messages = result.Dispatched
		receipt.MessageTypes = messageTypes(result.Dispatched)
		execLogger.Info().
			Str("sender", receipt.Sender).
			Int("dispatched", len(result.Dispatched)).
			Dur("duration", duration).
			Msg("Execution committed")
	}

	n.metrics.ObserveExecution(receipt.Action, err, duration)
	if err == nil {
		n.metrics.ObserveDispatched(receipt.MessageTypes)
		n.observeAmount(execLogger, *receipt)
	}
	n.saveReceipt(execLogger, *receipt)

	if err == nil && receipt.Contract == n.backend.PoolAddress() {
		n.recordConfig(ctx)
	}
	return receipt, err
}

// Query runs a read-only pool query.
func (n *Node) Query(ctx context.Context, msg []byte) ([]byte, error) {
	query := queryVariant(msg)

	start := time.Now()
	n.mu.Lock()
	res, err := n.backend.Query(ctx, msg)
	n.mu.Unlock()

	n.metrics.ObserveQuery(query, err, time.Since(start))
	if err != nil {
		n.logger.Debug().Err(err).Str("query", query).Msg("Query failed")
		return nil, err
	}
	return res, nil
}

// PoolConfig returns the pool's current config.
func (n *Node) PoolConfig(ctx context.Context) (types.ConfigResponse, error) {
	var cfg types.ConfigResponse
	bz, err := n.Query(ctx, []byte(`{"config":{}}`))
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(bz, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode pool config: %w", err)
	}
	return cfg, nil
}

// Status reports the node's mode, pool and current block.
func (n *Node) Status(ctx context.Context) (Status, error) {
	n.mu.Lock()
	block, err := n.backend.Block(ctx)
	n.mu.Unlock()
	if err != nil {
		return Status{}, err
	}
	return Status{
		Mode:      n.mode,
		Pool:      n.backend.PoolAddress(),
		Block:     block,
		StartedAt: n.startedAt,
		History:   n.receipts != nil,
	}, nil
}

// RecordConfig snapshots the pool config into the history when it changed. It is called after
// every committed pool execution and once at startup.
func (n *Node) RecordConfig(ctx context.Context) {
	n.recordConfig(ctx)
}

// Receipts returns the most recent receipts.
func (n *Node) Receipts(limit int) ([]types.ExecutionReceipt, error) {
	if n.receipts == nil {
		return nil, ErrHistoryUnavailable
	}
	return n.receipts.GetRecentReceipts(limit)
}

// Receipt returns one receipt by execution id.
func (n *Node) Receipt(executionID string) (*types.ExecutionReceipt, error) {
	if n.receipts == nil {
		return nil, ErrHistoryUnavailable
	}
	if _, err := uuid.Parse(executionID); err != nil {
		return nil, fmt.Errorf("%w: execution id: %w", ErrInvalidRequest, err)
	}
	return n.receipts.GetReceipt(executionID)
}

// ReceiptSummary aggregates the receipt history.
func (n *Node) ReceiptSummary() (*types.ReceiptSummary, error) {
	if n.receipts == nil {
		return nil, ErrHistoryUnavailable
	}
	return n.receipts.GetReceiptSummary()
}

// Sandbox runs fn against the backend's sandbox controls while holding the node lock.
func (n *Node) Sandbox(fn func(SandboxControl) error) error {
	control, ok := n.backend.(SandboxControl)
	if !ok {
		return ErrSandboxOnly
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(control)
}

func (n *Node) saveReceipt(l zerolog.Logger, receipt types.ExecutionReceipt) {
	if n.receipts == nil {
		return
	}
	if _, err := n.receipts.SaveReceipt(receipt); err != nil {
		n.metrics.ReceiptWriteFailed()
		l.Error().Err(err).Msg("Failed to persist execution receipt")
	}
}

// observeAmount reports the amount attribute of a committed execution in display units.
func (n *Node) observeAmount(l zerolog.Logger, receipt types.ExecutionReceipt) {
	for _, attr := range receipt.Attributes {
		if attr.Key != "amount" {
			continue
		}
		amount, ok := sdkmath.NewIntFromString(attr.Value)
		if !ok {
			l.Debug().Str("amount", attr.Value).Msg("Ignoring non-integer amount attribute")
			return
		}
		display, err := utils.SDKIntToFloat64(amount, pool.DPTokenDecimals)
		if err != nil {
			l.Debug().Err(err).Msg("Ignoring amount attribute")
			return
		}
		n.metrics.ObserveAmount(receipt.Action, display)
		return
	}
}

func (n *Node) recordConfig(ctx context.Context) {
	if n.history == nil {
		return
	}
	cfg, err := n.PoolConfig(ctx)
	if err != nil {
		n.logger.Error().Err(err).Msg("Failed to read pool config for history")
		return
	}
	written, err := n.history.RecordConfigIfChanged(cfg, types.ConfigVersion)
	if err != nil {
		n.logger.Error().Err(err).Msg("Failed to record pool config")
		return
	}
	if written {
		n.logger.Info().Str("pool", cfg.This).Str("dpToken", cfg.DPToken).Msg("Recorded new pool config snapshot")
	}
}

// actionOf names an execute message by its variant tag: the pool's handle variants, or the
// top level key of any other contract's message.
func actionOf(msg []byte) string {
	var handle types.HandleMsg
	if err := json.Unmarshal(msg, &handle); err == nil {
		return handle.Variant()
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(msg, &obj); err != nil || len(obj) != 1 {
		return ""
	}
	for key := range obj {
		return key
	}
	return ""
}

func queryVariant(msg []byte) string {
	var query types.QueryMsg
	if err := json.Unmarshal(msg, &query); err != nil {
		return ""
	}
	return query.Variant()
}

func messageTypes(msgs []types.CosmosMsg) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Type())
	}
	return out
}
