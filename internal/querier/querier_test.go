package querier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/dpool/internal/types"
)

// stubQuerier answers by contract address and records the last query per contract.
type stubQuerier struct {
	responses map[string]any
	last      map[string]string
}

func newStubQuerier() *stubQuerier {
	return &stubQuerier{responses: map[string]any{}, last: map[string]string{}}
}

func (s *stubQuerier) QuerySmart(_ context.Context, contract string, msg []byte) ([]byte, error) {
	s.last[contract] = string(msg)
	res, ok := s.responses[contract]
	if !ok {
		return nil, errors.New("no such contract")
	}
	return json.Marshal(res)
}

func TestEpochState(t *testing.T) {
	q := newStubQuerier()
	q.responses["market"] = types.EpochStateResponse{
		ExchangeRate: sdkmath.LegacyMustNewDecFromStr("1.1"),
		ATerraSupply: sdkmath.NewInt(100),
	}

	res, err := EpochState(context.Background(), q, "market", nil)
	require.NoError(t, err)
	require.Equal(t, "1.100000000000000000", res.ExchangeRate.String())
	require.JSONEq(t, `{"epoch_state":{}}`, q.last["market"])
}

func TestFetchExchangeRate(t *testing.T) {
	q := newStubQuerier()
	q.responses["feeder"] = types.ExchangeRateResponse{ExchangeRate: sdkmath.LegacyMustNewDecFromStr("1.05")}

	blocktime := uint64(1_600_000_000)
	rate, err := FetchExchangeRate(context.Background(), q, "feeder", "dp", &blocktime)
	require.NoError(t, err)
	require.True(t, rate.Equal(sdkmath.LegacyMustNewDecFromStr("1.05")))
	require.JSONEq(t, `{"exchange_rate_of":{"token":"dp","blocktime":1600000000}}`, q.last["feeder"])
}

func TestTokenQueries(t *testing.T) {
	q := newStubQuerier()
	q.responses["aust"] = types.Cw20BalanceResponse{Balance: sdkmath.NewInt(42)}
	q.responses["dp"] = types.Cw20TokenInfoResponse{Name: "dp", TotalSupply: sdkmath.NewInt(7)}

	bal, err := BalanceOf(context.Background(), q, "aust", "pool")
	require.NoError(t, err)
	require.Equal(t, int64(42), bal.Int64())
	require.JSONEq(t, `{"balance":{"address":"pool"}}`, q.last["aust"])

	supply, err := TotalSupply(context.Background(), q, "dp")
	require.NoError(t, err)
	require.Equal(t, int64(7), supply.Int64())
}

func TestQueryFailureIsClassified(t *testing.T) {
	_, err := TotalSupply(context.Background(), newStubQuerier(), "missing")
	require.ErrorIs(t, err, types.ErrQueryFailed)

	_, err = TotalSupply(context.Background(), nil, "missing")
	require.ErrorIs(t, err, types.ErrQueryFailed)
}

func TestMissingValuesAreQueryFailures(t *testing.T) {
	ctx := context.Background()
	q := newStubQuerier()
	for _, contract := range []string{"feeder", "market", "dp"} {
		q.responses[contract] = json.RawMessage(`{}`)
	}

	_, err := FetchExchangeRate(ctx, q, "feeder", "dp", nil)
	require.ErrorIs(t, err, types.ErrQueryFailed)
	require.ErrorContains(t, err, "no exchange rate")

	_, err = EpochState(ctx, q, "market", nil)
	require.ErrorIs(t, err, types.ErrQueryFailed)

	_, err = BalanceOf(ctx, q, "dp", "pool")
	require.ErrorIs(t, err, types.ErrQueryFailed)

	_, err = TotalSupply(ctx, q, "dp")
	require.ErrorIs(t, err, types.ErrQueryFailed)

	q.responses["feeder"] = json.RawMessage(`{"exchange_rate":"-1.0"}`)
	_, err = FetchExchangeRate(ctx, q, "feeder", "dp", nil)
	require.ErrorIs(t, err, types.ErrQueryFailed)
}

func TestRedeemStableMsg(t *testing.T) {
	msgs, err := RedeemStableMsg("market", "aust", sdkmath.NewInt(9))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	exec := msgs[0].Wasm.Execute
	require.Equal(t, "aust", exec.ContractAddr)

	var send types.Cw20HandleMsg
	require.NoError(t, json.Unmarshal(exec.Msg, &send))
	require.Equal(t, "market", send.Send.Contract)
	require.Equal(t, int64(9), send.Send.Amount.Int64())
	require.JSONEq(t, `{"redeem_stable":{}}`, string(send.Send.Msg))
}

func TestDepositStableMsg(t *testing.T) {
	msgs, err := DepositStableMsg("market", "uusd", sdkmath.NewInt(99))
	require.NoError(t, err)
	exec := msgs[0].Wasm.Execute
	require.Equal(t, "market", exec.ContractAddr)
	require.JSONEq(t, `{"deposit_stable":{}}`, string(exec.Msg))
	require.Equal(t, "99uusd", exec.Send.String())
}
