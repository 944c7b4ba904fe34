// Package querier holds read-only accessors for the pool's external collaborators (money market,
// exchange rate feeder, cw20 tokens) and the builders for the messages sent to them.
package querier

import (
	"context"
	"encoding/json"

	errorsmod "cosmossdk.io/errors"

	"github.com/elys-network/dpool/internal/types"
)

// Querier runs a smart query against a contract and returns the raw JSON response.
type Querier interface {
	QuerySmart(ctx context.Context, contract string, msg []byte) ([]byte, error)
}

func querySmart[T any](ctx context.Context, q Querier, contract string, msg any) (T, error) {
	var out T
	if q == nil {
		return out, errorsmod.Wrap(types.ErrQueryFailed, "querier not configured")
	}
	bz, err := json.Marshal(msg)
	if err != nil {
		return out, errorsmod.Wrapf(types.ErrQueryFailed, "encode query for %s: %v", contract, err)
	}
	res, err := q.QuerySmart(ctx, contract, bz)
	if err != nil {
		return out, errorsmod.Wrapf(types.ErrQueryFailed, "query %s: %v", contract, err)
	}
	if err := json.Unmarshal(res, &out); err != nil {
		return out, errorsmod.Wrapf(types.ErrQueryFailed, "decode response from %s: %v", contract, err)
	}
	return out, nil
}
