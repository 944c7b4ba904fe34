package node

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	addresscodec "github.com/cosmos/cosmos-sdk/codec/address"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/dpool/internal/host"
	"github.com/elys-network/dpool/internal/metrics"
	"github.com/elys-network/dpool/internal/pool"
	"github.com/elys-network/dpool/internal/types"
)

const denom = "uusd"

var codec = addresscodec.NewBech32Codec("terra")

func addr(name string) string {
	bz := make([]byte, 20)
	copy(bz, name)
	s, err := codec.BytesToString(bz)
	if err != nil {
		panic(err)
	}
	return s
}

var (
	owner       = addr("owner")
	user        = addr("user")
	beneficiary = addr("beneficiary")
	collector   = addr("collector")
)

type memReceipts struct {
	mu       sync.Mutex
	receipts []types.ExecutionReceipt
	failSave bool
}

func (m *memReceipts) SaveReceipt(r types.ExecutionReceipt) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return 0, errors.New("database unavailable")
	}
	r.ReceiptID = int64(len(m.receipts) + 1)
	m.receipts = append(m.receipts, r)
	return r.ReceiptID, nil
}

func (m *memReceipts) GetRecentReceipts(limit int) ([]types.ExecutionReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.ExecutionReceipt
	for i := len(m.receipts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.receipts[i])
	}
	return out, nil
}

func (m *memReceipts) GetReceipt(executionID string) (*types.ExecutionReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.receipts {
		if r.ExecutionID == executionID {
			r := r
			return &r, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *memReceipts) GetReceiptSummary() (*types.ReceiptSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &types.ReceiptSummary{ByAction: map[string]int{}}
	for _, r := range m.receipts {
		s.TotalExecutions++
		if r.Success {
			s.SuccessfulExecutions++
		} else {
			s.FailedExecutions++
		}
		s.ByAction[r.Action]++
	}
	return s, nil
}

type memHistory struct {
	snapshots []types.ConfigResponse
}

func (h *memHistory) RecordConfigIfChanged(cfg types.ConfigResponse, _ uint32) (bool, error) {
	if n := len(h.snapshots); n > 0 && h.snapshots[n-1] == cfg {
		return false, nil
	}
	h.snapshots = append(h.snapshots, cfg)
	return true, nil
}

type fixture struct {
	node     *Node
	sandbox  *host.Sandbox
	receipts *memReceipts
	history  *memHistory
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sb, err := host.NewSandbox(host.Config{
		AddressCodec: codec,
		ChainID:      "sandbox-1",
		StartTime:    time.Unix(1_600_000_000, 0),
		StableDenom:  denom,
		Cw20CodeID:   1,
		MarketRate:   sdkmath.LegacyOneDec(),
		VirtualRate:  sdkmath.LegacyOneDec(),
		TaxRate:      sdkmath.LegacyNewDecWithPrec(1, 2),
		TaxCap:       sdkmath.NewInt(1_000_000),
	})
	require.NoError(t, err)

	contract, err := pool.NewContract(pool.Config{AddressCodec: codec, Querier: sb, TaxQuerier: sb})
	require.NoError(t, err)
	_, err = sb.DeployPool(context.Background(), owner, contract, types.InitMsg{
		PoolName:     "node",
		Beneficiary:  beneficiary,
		FeeCollector: collector,
		DPCodeID:     1,
	})
	require.NoError(t, err)
	require.NoError(t, sb.Fund(user, sdk.NewCoins(sdk.NewInt64Coin(denom, 100_000_000))))
	require.NoError(t, sb.Fund(sb.MarketAddress(), sdk.NewCoins(sdk.NewInt64Coin(denom, 1_000_000_000))))

	f := &fixture{sandbox: sb, receipts: &memReceipts{}, history: &memHistory{}, metrics: metrics.New()}
	f.node, err = NewNode(Config{
		Backend:       sb,
		Mode:          "sandbox",
		Metrics:       f.metrics,
		Receipts:      f.receipts,
		ConfigHistory: f.history,
	})
	require.NoError(t, err)
	return f
}

func depositRequest(amount int64) ExecuteRequest {
	return ExecuteRequest{
		Sender: user,
		Msg:    json.RawMessage(`{"deposit":{}}`),
		Funds:  sdk.NewCoins(sdk.NewInt64Coin(denom, amount)),
	}
}

func TestNewNodeValidates(t *testing.T) {
	_, err := NewNode(Config{Mode: "sandbox"})
	require.Error(t, err)

	f := newFixture(t)
	_, err = NewNode(Config{Backend: f.sandbox})
	require.Error(t, err)
}

func TestExecuteRecordsReceipt(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.node.Execute(context.Background(), depositRequest(50_000_000))
	require.NoError(t, err)

	_, err = uuid.Parse(receipt.ExecutionID)
	require.NoError(t, err)
	require.True(t, receipt.Success)
	require.Equal(t, types.TagDeposit, receipt.Action)
	require.Equal(t, f.sandbox.PoolAddress(), receipt.Contract)
	require.Equal(t, "50000000uusd", receipt.Funds)
	require.Equal(t, []string{types.MsgTypeWasmExecute, types.MsgTypeWasmExecute, types.MsgTypeWasmExecute}, receipt.MessageTypes)
	require.Len(t, receipt.Messages, 3)
	require.NotZero(t, receipt.BlockHeight)

	var minted string
	for _, a := range receipt.Attributes {
		if a.Key == "amount" {
			minted = a.Value
		}
	}
	require.Equal(t, "49500000", minted)

	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(), `dpool_pool_amount_moved_total{action="deposit"} 49.5`)

	stored, err := f.node.Receipt(receipt.ExecutionID)
	require.NoError(t, err)
	require.Equal(t, receipt.ExecutionID, stored.ExecutionID)

	// config snapshot taken after the first committed execution, not repeated while unchanged
	require.Len(t, f.history.snapshots, 1)
	require.Equal(t, f.sandbox.DPToken(), f.history.snapshots[0].DPToken)
	_, err = f.node.Execute(context.Background(), depositRequest(2_000_000))
	require.NoError(t, err)
	require.Len(t, f.history.snapshots, 1)
}

func TestExecuteFailureStillRecorded(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.node.Execute(context.Background(), ExecuteRequest{
		Sender: user,
		Msg:    json.RawMessage(`{"earn":{}}`),
	})
	require.ErrorIs(t, err, types.ErrUnauthorized)
	require.NotNil(t, receipt)
	require.False(t, receipt.Success)
	require.Equal(t, types.TagEarn, receipt.Action)
	require.NotEmpty(t, receipt.Error)
	require.Empty(t, receipt.Messages)

	summary, err := f.node.ReceiptSummary()
	require.NoError(t, err)
	require.Equal(t, 1, summary.FailedExecutions)
	require.Empty(t, f.history.snapshots)
}

func TestExecuteRejectsInvalidRequests(t *testing.T) {
	f := newFixture(t)

	_, err := f.node.Execute(context.Background(), ExecuteRequest{Msg: json.RawMessage(`{"deposit":{}}`)})
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.node.Execute(context.Background(), ExecuteRequest{Sender: user})
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Empty(t, f.receipts.receipts)
}

func TestExecuteSurvivesReceiptStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.receipts.failSave = true

	receipt, err := f.node.Execute(context.Background(), depositRequest(10_000_000))
	require.NoError(t, err)
	require.True(t, receipt.Success)

	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(), "dpool_state_receipt_write_failures_total 1")
}

func TestRedeemThroughTokenContract(t *testing.T) {
	f := newFixture(t)
	_, err := f.node.Execute(context.Background(), depositRequest(10_000_000))
	require.NoError(t, err)

	dp := f.sandbox.DPToken()
	msg := []byte(`{"send":{"contract":"` + f.sandbox.PoolAddress() + `","amount":"9900000","msg":"eyJyZWRlZW0iOnt9fQ=="}}`)
	receipt, err := f.node.Execute(context.Background(), ExecuteRequest{Sender: user, Contract: dp, Msg: msg})
	require.NoError(t, err)
	require.Equal(t, "send", receipt.Action)
	require.Equal(t, dp, receipt.Contract)
	require.True(t, f.sandbox.TokenSupply(dp).IsZero())
}

func TestQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.node.Execute(context.Background(), depositRequest(50_000_000))
	require.NoError(t, err)

	bz, err := f.node.Query(context.Background(), []byte(`{"deposit_amount_of":{"owner":"`+user+`"}}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"amount":"49500000"}`, string(bz))

	_, err = f.node.Query(context.Background(), []byte(`{"withdraw":{}}`))
	require.ErrorIs(t, err, types.ErrMalformedRequest)

	cfg, err := f.node.PoolConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, beneficiary, cfg.Beneficiary)
	require.Equal(t, denom, cfg.StableDenom)
}

func TestConcurrentDepositsAreSerialised(t *testing.T) {
	f := newFixture(t)

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.node.Execute(context.Background(), depositRequest(2_000_000)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// each deposit nets 2_000_000 - 20_000 of tax
	require.Equal(t, "19800000", f.sandbox.TokenSupply(f.sandbox.DPToken()).String())
	require.Len(t, f.receipts.receipts, workers)

	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(), `dpool_pool_executions_total{action="deposit",outcome="success"} 10`)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	status, err := f.node.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sandbox", status.Mode)
	require.Equal(t, f.sandbox.PoolAddress(), status.Pool)
	require.Equal(t, "sandbox-1", status.Block.ChainID)
	require.True(t, status.History)
}

func TestSandboxControl(t *testing.T) {
	f := newFixture(t)
	err := f.node.Sandbox(func(c SandboxControl) error {
		c.SetMarketRate(sdkmath.LegacyMustNewDecFromStr("1.1"))
		return c.Fund(beneficiary, sdk.NewCoins(sdk.NewInt64Coin(denom, 5)))
	})
	require.NoError(t, err)
	require.Equal(t, "5", f.sandbox.Balance(beneficiary, denom).String())

	live, err := host.NewLive(stubChain{}, "terra1pool")
	require.NoError(t, err)
	n, err := NewNode(Config{Backend: live, Mode: "live"})
	require.NoError(t, err)
	require.ErrorIs(t, n.Sandbox(func(SandboxControl) error { return nil }), ErrSandboxOnly)

	_, err = n.Receipts(10)
	require.ErrorIs(t, err, ErrHistoryUnavailable)
	_, err = n.Execute(context.Background(), depositRequest(1))
	require.ErrorIs(t, err, host.ErrReadOnly)
}

func TestMigrate(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.node.Migrate(context.Background(), user)
	require.ErrorIs(t, err, host.ErrUnauthorizedSender)
	require.False(t, receipt.Success)
	require.Equal(t, types.TagMigrate, receipt.Action)

	receipt, err = f.node.Migrate(context.Background(), owner)
	require.NoError(t, err)
	require.True(t, receipt.Success)
	require.Equal(t, f.sandbox.PoolAddress(), receipt.Contract)
	require.Contains(t, receipt.Attributes, types.NewAttribute("to_version", "2"))
	require.Len(t, f.receipts.receipts, 2)

	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(), `dpool_pool_executions_total{action="migrate",outcome="success"} 1`)

	_, err = f.node.Migrate(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidRequest)

	live, err := host.NewLive(stubChain{}, "terra1pool")
	require.NoError(t, err)
	n, err := NewNode(Config{Backend: live, Mode: "live"})
	require.NoError(t, err)
	_, err = n.Migrate(context.Background(), owner)
	require.ErrorIs(t, err, ErrSandboxOnly)
}

func TestReceiptLookupValidatesID(t *testing.T) {
	f := newFixture(t)
	_, err := f.node.Receipt("not-a-uuid")
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestActionOf(t *testing.T) {
	require.Equal(t, types.TagDeposit, actionOf([]byte(`{"deposit":{}}`)))
	require.Equal(t, types.TagConfigure, actionOf([]byte(`{"configure":{"beneficiary":"x"}}`)))
	require.Equal(t, "transfer", actionOf([]byte(`{"transfer":{"recipient":"x","amount":"1"}}`)))
	require.Equal(t, "", actionOf([]byte(`{"a":{},"b":{}}`)))
	require.Equal(t, "", actionOf([]byte(`not json`)))
}

type stubChain struct{}

func (stubChain) QuerySmart(context.Context, string, []byte) ([]byte, error) {
	return []byte(`{}`), nil
}

func (stubChain) LatestBlock(context.Context) (types.BlockInfo, error) {
	return types.BlockInfo{Height: 1}, nil
}
