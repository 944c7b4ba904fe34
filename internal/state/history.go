package state

import (
	"github.com/elys-network/dpool/internal/types"
)

// History binds the package-level receipt and config stores to a value that can be handed to
// the node. It requires InitDB to have succeeded.
type History struct{}

func (History) SaveReceipt(receipt types.ExecutionReceipt) (int64, error) {
	return SaveReceipt(receipt)
}

func (History) GetRecentReceipts(limit int) ([]types.ExecutionReceipt, error) {
	return GetRecentReceipts(limit)
}

func (History) GetReceipt(executionID string) (*types.ExecutionReceipt, error) {
	return GetReceipt(executionID)
}

func (History) GetReceiptSummary() (*types.ReceiptSummary, error) {
	return GetReceiptSummary()
}

func (History) RecordConfigIfChanged(cfg types.ConfigResponse, version uint32) (bool, error) {
	return RecordConfigIfChanged(cfg, version)
}
