package types

import (
	"time"
)

// ExecutionReceipt records one pool execution as seen by the node, successful or not.
type ExecutionReceipt struct {
	ReceiptID    int64       `json:"receipt_id,omitempty"` // Auto-incremented by DB
	ExecutionID  string      `json:"execution_id"`
	Timestamp    time.Time   `json:"timestamp"`
	Action       string      `json:"action"`
	Contract     string      `json:"contract"`
	Sender       string      `json:"sender"`
	Funds        string      `json:"funds,omitempty"`
	Success      bool        `json:"success"`
	Error        string      `json:"error,omitempty"`
	BlockHeight  uint64      `json:"block_height"`
	BlockTime    uint64      `json:"block_time"`
	Attributes   []Attribute `json:"attributes"`
	Messages     []CosmosMsg `json:"messages"`
	MessageTypes []string    `json:"message_types"`
	DurationMs   int64       `json:"duration_ms"`
}

// ReceiptSummary aggregates the receipt history.
type ReceiptSummary struct {
	TotalExecutions      int            `json:"total_executions"`
	SuccessfulExecutions int            `json:"successful_executions"`
	FailedExecutions     int            `json:"failed_executions"`
	ByAction             map[string]int `json:"by_action"`
	LastExecutedAt       *time.Time     `json:"last_executed_at,omitempty"`
}

// ConfigSnapshot is a point-in-time copy of a pool's config kept for history.
type ConfigSnapshot struct {
	SnapshotID  int64          `json:"snapshot_id,omitempty"`
	PoolAddress string         `json:"pool_address"`
	Version     uint32         `json:"version"`
	IsActive    bool           `json:"is_active"`
	RecordedAt  time.Time      `json:"recorded_at"`
	Config      ConfigResponse `json:"config"`
}
