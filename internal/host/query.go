package host

import (
	"context"
	"encoding/json"
	"fmt"
)

// QuerySmart implements querier.Querier against the sandbox state.
func (s *Sandbox) QuerySmart(ctx context.Context, contract string, msg []byte) ([]byte, error) {
	store := s.current()
	kind, err := s.kindOf(store, contract)
	if err != nil {
		return nil, err
	}

	var res any
	switch kind {
	case kindPool:
		return s.pool.Query(ctx, s.contractStore(store, contract), s.env("", contract, nil), msg)
	case kindCw20:
		res, err = s.queryCw20(store, contract, msg)
	case kindMarket:
		res, err = s.queryMarket(store, msg)
	case kindFeeder:
		res, err = s.queryFeeder(msg)
	default:
		return nil, fmt.Errorf("%w: %s has unknown kind %q", ErrUnknownContract, contract, kind)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}
