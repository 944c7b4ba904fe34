// ./internal/state/receipts.go
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/elys-network/dpool/internal/types"
)

var ErrReceiptNotFound = errors.New("receipt not found")

const (
	defaultReceiptLimit = 20
	maxReceiptLimit     = 100
)

const receiptColumns = `
	receipt_id, execution_id, executed_at, action, contract, sender, funds,
	success, error_message, block_height, block_time,
	attributes, messages, message_types, duration_ms`

// SaveReceipt saves an execution receipt to the database.
func SaveReceipt(receipt types.ExecutionReceipt) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	attributesJSON, err := json.Marshal(receipt.Attributes)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal attributes: %w", err)
	}
	messagesJSON, err := json.Marshal(receipt.Messages)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal messages: %w", err)
	}

	query := `
		INSERT INTO execution_receipts (
			execution_id, executed_at, action, contract, sender, funds,
			success, error_message, block_height, block_time,
			attributes, messages, message_types, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING receipt_id;
	`

	var receiptID int64
	err = DB.QueryRow(
		query,
		receipt.ExecutionID, receipt.Timestamp, receipt.Action, receipt.Contract, receipt.Sender, receipt.Funds,
		receipt.Success, nullString(receipt.Error), int64(receipt.BlockHeight), int64(receipt.BlockTime),
		attributesJSON, messagesJSON, pq.Array(receipt.MessageTypes), receipt.DurationMs,
	).Scan(&receiptID)
	if err != nil {
		return 0, fmt.Errorf("failed to save execution receipt: %w", err)
	}

	log.Debug().
		Int64("receipt_id", receiptID).
		Str("execution_id", receipt.ExecutionID).
		Str("action", receipt.Action).
		Bool("success", receipt.Success).
		Msg("Execution receipt saved to database")

	return receiptID, nil
}

// GetRecentReceipts retrieves the most recent receipts, newest first.
func GetRecentReceipts(limit int) ([]types.ExecutionReceipt, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `SELECT ` + receiptColumns + `
		FROM execution_receipts
		ORDER BY executed_at DESC, receipt_id DESC
		LIMIT $1`

	rows, err := DB.Query(query, NormalizeLimit(limit))
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent receipts")
		return nil, fmt.Errorf("failed to query recent receipts: %w", err)
	}
	defer rows.Close()

	var receipts []types.ExecutionReceipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan receipt row")
			continue // Skip this row and continue with others
		}
		receipts = append(receipts, receipt)
	}

	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return receipts, nil
}

// GetReceipt retrieves one receipt by execution id.
func GetReceipt(executionID string) (*types.ExecutionReceipt, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `SELECT ` + receiptColumns + `
		FROM execution_receipts
		WHERE execution_id = $1`

	receipt, err := scanReceipt(DB.QueryRow(query, executionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, executionID)
		}
		return nil, err
	}
	return &receipt, nil
}

// GetReceiptSummary aggregates the whole receipt history.
func GetReceiptSummary() (*types.ReceiptSummary, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `
		SELECT action, success, COUNT(*), MAX(executed_at)
		FROM execution_receipts
		GROUP BY action, success`

	rows, err := DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipt summary: %w", err)
	}
	defer rows.Close()

	var groups []receiptGroup
	for rows.Next() {
		var g receiptGroup
		if err := rows.Scan(&g.action, &g.success, &g.count, &g.last); err != nil {
			return nil, fmt.Errorf("failed to scan receipt summary row: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return summarize(groups), nil
}

type receiptGroup struct {
	action  string
	success bool
	count   int
	last    time.Time
}

func summarize(groups []receiptGroup) *types.ReceiptSummary {
	summary := &types.ReceiptSummary{ByAction: make(map[string]int)}
	for _, g := range groups {
		summary.TotalExecutions += g.count
		if g.success {
			summary.SuccessfulExecutions += g.count
		} else {
			summary.FailedExecutions += g.count
		}
		summary.ByAction[g.action] += g.count
		if summary.LastExecutedAt == nil || g.last.After(*summary.LastExecutedAt) {
			last := g.last
			summary.LastExecutedAt = &last
		}
	}
	return summary
}

// NormalizeLimit clamps a requested page size into [1, maxReceiptLimit].
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultReceiptLimit
	}
	if limit > maxReceiptLimit {
		return maxReceiptLimit
	}
	return limit
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (types.ExecutionReceipt, error) {
	var (
		r                            types.ExecutionReceipt
		errMsg                       sql.NullString
		height, blockTime            int64
		attributesJSON, messagesJSON []byte
	)
	err := row.Scan(
		&r.ReceiptID, &r.ExecutionID, &r.Timestamp, &r.Action, &r.Contract, &r.Sender, &r.Funds,
		&r.Success, &errMsg, &height, &blockTime,
		&attributesJSON, &messagesJSON, pq.Array(&r.MessageTypes), &r.DurationMs,
	)
	if err != nil {
		return types.ExecutionReceipt{}, err
	}
	r.Error = errMsg.String
	r.BlockHeight = uint64(height)
	r.BlockTime = uint64(blockTime)

	if len(attributesJSON) > 0 {
		if err := json.Unmarshal(attributesJSON, &r.Attributes); err != nil {
			return types.ExecutionReceipt{}, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}
	if len(messagesJSON) > 0 {
		if err := json.Unmarshal(messagesJSON, &r.Messages); err != nil {
			return types.ExecutionReceipt{}, fmt.Errorf("failed to unmarshal messages: %w", err)
		}
	}
	return r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
