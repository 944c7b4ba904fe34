package host

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	addresscodec "github.com/cosmos/cosmos-sdk/codec/address"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/dpool/internal/pool"
	"github.com/elys-network/dpool/internal/state"
	"github.com/elys-network/dpool/internal/tax"
	"github.com/elys-network/dpool/internal/types"
	"github.com/elys-network/dpool/internal/utils"
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

const (
	userFunds   = 100_000_000
	marketFunds = 1_000_000_000
)

func newDeployedSandbox(t *testing.T) (*Sandbox, string) {
	t.Helper()
	sb, err := NewSandbox(Config{
		AddressCodec: codec,
		ChainID:      "sandbox-1",
		StartTime:    time.Unix(1_600_000_000, 0),
		StableDenom:  denom,
		Cw20CodeID:   9,
		MarketRate:   sdkmath.LegacyOneDec(),
		VirtualRate:  sdkmath.LegacyOneDec(),
		TaxRate:      sdkmath.LegacyNewDecWithPrec(1, 2),
		TaxCap:       sdkmath.NewInt(1_000_000),
	})
	require.NoError(t, err)

	contract, err := pool.NewContract(pool.Config{AddressCodec: codec, Querier: sb, TaxQuerier: sb})
	require.NoError(t, err)
	poolAddr, err := sb.DeployPool(context.Background(), owner, contract, types.InitMsg{
		PoolName:     "sandbox",
		Beneficiary:  beneficiary,
		FeeCollector: collector,
		DPCodeID:     9,
	})
	require.NoError(t, err)

	require.NoError(t, sb.Fund(user, sdk.NewCoins(sdk.NewInt64Coin(denom, userFunds))))
	require.NoError(t, sb.Fund(sb.MarketAddress(), sdk.NewCoins(sdk.NewInt64Coin(denom, marketFunds))))
	return sb, poolAddr
}

func attr(log []types.Attribute, key string) string {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Key == key {
			return log[i].Value
		}
	}
	return ""
}

func deposit(t *testing.T, sb *Sandbox, poolAddr string, amount int64) *ExecutionResult {
	t.Helper()
	res, err := sb.Execute(context.Background(), user, poolAddr, []byte(`{"deposit":{}}`), sdk.NewCoins(sdk.NewInt64Coin(denom, amount)))
	require.NoError(t, err)
	return res
}

func TestNewSandboxValidatesConfig(t *testing.T) {
	_, err := NewSandbox(Config{AddressCodec: codec, StableDenom: denom})
	require.ErrorIs(t, err, ErrInvalidSandbox)
}

func TestDeployPoolRegistersToken(t *testing.T) {
	sb, poolAddr := newDeployedSandbox(t)
	require.Equal(t, poolAddr, sb.PoolAddress())

	dp := sb.DPToken()
	require.NotEmpty(t, dp)

	bz, err := sb.QuerySmart(context.Background(), dp, []byte(`{"token_info":{}}`))
	require.NoError(t, err)
	var info types.Cw20TokenInfoResponse
	require.NoError(t, json.Unmarshal(bz, &info))
	require.Equal(t, "Deposit Token - sandbox", info.Name)
	require.Equal(t, "PylonDP", info.Symbol)
	require.True(t, info.TotalSupply.IsZero())

	bz, err = sb.Query(context.Background(), []byte(`{"config":{}}`))
	require.NoError(t, err)
	var cfg types.ConfigResponse
	require.NoError(t, json.Unmarshal(bz, &cfg))
	require.Equal(t, sb.ATokenAddress(), cfg.AToken)
	require.Equal(t, sb.MarketAddress(), cfg.Moneymarket)
	require.Equal(t, sb.FeederAddress(), cfg.ExchangeRateFeeder)
	require.Equal(t, denom, cfg.StableDenom)

	contract, err := pool.NewContract(pool.Config{AddressCodec: codec, Querier: sb, TaxQuerier: sb})
	require.NoError(t, err)
	_, err = sb.DeployPool(context.Background(), owner, contract, types.InitMsg{PoolName: "again", DPCodeID: 9})
	require.ErrorIs(t, err, ErrInvalidSandbox)
}

func TestDepositFlow(t *testing.T) {
	sb, poolAddr := newDeployedSandbox(t)
	total := sb.TotalBalance(denom)

	res := deposit(t, sb, poolAddr, 50_000_000)
	require.Equal(t, "49500000", attr(res.Log, "amount"))
	require.Len(t, res.Dispatched, 3)

	dp := sb.DPToken()
	require.Equal(t, "49500000", sb.Balance(user, denom).String())
	// the pool forwards 49500000 and pays 495000 of send tax out of the 50000000 it received
	require.Equal(t, "5000", sb.Balance(poolAddr, denom).String())
	require.Equal(t, "49500000", sb.TokenBalance(dp, user).String())
	require.Equal(t, "49500000", sb.TokenSupply(dp).String())
	require.Equal(t, "49500000", sb.TokenBalance(sb.ATokenAddress(), poolAddr).String())
	require.Equal(t, "995000", sb.Balance(sb.TreasuryAddress(), denom).String())
	require.Equal(t, total.String(), sb.TotalBalance(denom).String())

	height, ok := sb.LastFeederUpdate(dp)
	require.True(t, ok)
	require.Equal(t, res.Block.Height, height)
}

func TestRedeemFlowThroughDPToken(t *testing.T) {
	sb, poolAddr := newDeployedSandbox(t)
	deposit(t, sb, poolAddr, 50_000_000)
	sb.SetMarketRate(sdkmath.LegacyMustNewDecFromStr("1.1"))

	dp := sb.DPToken()
	total := sb.TotalBalance(denom)
	userBefore := sb.Balance(user, denom)
	atokenBefore := sb.TokenBalance(sb.ATokenAddress(), poolAddr)

	send := fmt.Sprintf(`{"send":{"contract":%q,"amount":"10000000","msg":"eyJyZWRlZW0iOnt9fQ=="}}`, poolAddr)
	res, err := sb.Execute(context.Background(), user, dp, []byte(send), nil)
	require.NoError(t, err)

	marketAmount, err := utils.DivRate(sdkmath.NewInt(10_000_000), sdkmath.LegacyMustNewDecFromStr("1.1"))
	require.NoError(t, err)
	first, err := tax.DeductTax(context.Background(), sb, sdk.NewCoin(denom, marketAmount))
	require.NoError(t, err)
	expected, err := tax.DeductTax(context.Background(), sb, first)
	require.NoError(t, err)

	require.Equal(t, expected.Amount.String(), attr(res.Log, "amount"))
	require.Equal(t, userBefore.Add(expected.Amount).String(), sb.Balance(user, denom).String())
	require.Equal(t, "8910000", expected.Amount.String())
	require.Equal(t, "39500000", sb.TokenBalance(dp, user).String())
	require.Equal(t, "39500000", sb.TokenSupply(dp).String())
	require.True(t, sb.TokenBalance(dp, poolAddr).IsZero())
	require.Equal(t, atokenBefore.Sub(marketAmount).String(), sb.TokenBalance(sb.ATokenAddress(), poolAddr).String())
	require.Equal(t, total.String(), sb.TotalBalance(denom).String())
}

func TestEarnFlow(t *testing.T) {
	sb, poolAddr := newDeployedSandbox(t)
	deposit(t, sb, poolAddr, 50_000_000)
	sb.SetMarketRate(sdkmath.LegacyMustNewDecFromStr("1.1"))
	sb.SetVirtualRate(sdkmath.LegacyMustNewDecFromStr("1.05"))
	total := sb.TotalBalance(denom)

	claimable, err := sb.Query(context.Background(), []byte(`{"claimable_reward":{}}`))
	require.NoError(t, err)

	res, err := sb.Execute(context.Background(), beneficiary, poolAddr, []byte(`{"earn":{}}`), nil)
	require.NoError(t, err)

	payout := attr(res.Log, "amount")
	fee := attr(res.Log, "fee")
	require.JSONEq(t, fmt.Sprintf(`{"amount":%q}`, payout), string(claimable))
	require.Equal(t, payout, sb.Balance(beneficiary, denom).String())
	require.Equal(t, fee, sb.Balance(collector, denom).String())
	require.True(t, sb.Balance(beneficiary, denom).IsPositive())
	require.True(t, sb.Balance(collector, denom).IsPositive())
	require.Equal(t, total.String(), sb.TotalBalance(denom).String())
	// DP supply is untouched by a harvest
	require.Equal(t, "49500000", sb.TokenSupply(sb.DPToken()).String())
}

func TestEarnWithoutFeeSkipsCollector(t *testing.T) {
	sb, poolAddr := newDeployedSandbox(t)
	deposit(t, sb, poolAddr, 50_000_000)
	sb.SetMarketRate(sdkmath.LegacyMustNewDecFromStr("1.1"))
	sb.SetVirtualRate(sdkmath.LegacyMustNewDecFromStr("1.2"))

	res, err := sb.Execute(context.Background(), beneficiary, poolAddr, []byte(`{"earn":{}}`), nil)
	require.NoError(t, err)
	require.Equal(t, "0", attr(res.Log, "fee"))
	require.True(t, sb.Balance(beneficiary, denom).IsPositive())
	require.True(t, sb.Balance(collector, denom).IsZero())
	for _, msg := range res.Dispatched {
		if msg.Type() == types.MsgTypeBankSend {
			require.NotEqual(t, collector, msg.Bank.Send.ToAddress)
		}
	}
}

func TestBankSendRejectsZeroCoins(t *testing.T) {
	sb, poolAddr := newDeployedSandbox(t)
	before := sb.Balance(user, denom)

	for _, coins := range []sdk.Coins{{sdk.Coin{Denom: denom, Amount: sdkmath.ZeroInt()}}, {}} {
		_, err := sb.transact(func(store storetypes.KVStore, d *dispatcher) error {
			return d.dispatch(context.Background(), store, user, types.NewBankSend(user, poolAddr, coins...), 0)
		})
		require.ErrorIs(t, err, ErrInvalidMessage)
	}
	require.Equal(t, before.String(), sb.Balance(user, denom).String())
}

func TestFailedMessageRollsBackEverything(t *testing.T) {
	sb, poolAddr := newDeployedSandbox(t)
	first := deposit(t, sb, poolAddr, 50_000_000)
	dp := sb.DPToken()

	// the withdrawal now exceeds the pool's aToken holdings, so the market redeem fails after the
	// feeder update already ran
	sb.SetMarketRate(sdkmath.LegacyNewDec(1000))
	block, err := sb.Block(context.Background())
	require.NoError(t, err)
	atokens := sb.TokenBalance(sb.ATokenAddress(), poolAddr)

	_, err = sb.Execute(context.Background(), beneficiary, poolAddr, []byte(`{"earn":{}}`), nil)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	height, ok := sb.LastFeederUpdate(dp)
	require.True(t, ok)
	require.Equal(t, first.Block.Height, height)
	require.Equal(t, atokens.String(), sb.TokenBalance(sb.ATokenAddress(), poolAddr).String())
	require.True(t, sb.Balance(beneficiary, denom).IsZero())

	after, err := sb.Block(context.Background())
	require.NoError(t, err)
	require.Equal(t, block, after)
}

func TestRejectedCallsLeaveBalancesUntouched(t *testing.T) {
	sb, poolAddr := newDeployedSandbox(t)
	require.NoError(t, sb.Fund(user, sdk.NewCoins(sdk.NewInt64Coin("ukrw", 1000))))

	funds := sdk.NewCoins(sdk.NewInt64Coin("ukrw", 100), sdk.NewInt64Coin(denom, 100))
	_, err := sb.Execute(context.Background(), user, poolAddr, []byte(`{"deposit":{}}`), funds)
	require.ErrorIs(t, err, types.ErrUnsupportedAsset)
	require.Equal(t, int64(userFunds), sb.Balance(user, denom).Int64())
	require.Equal(t, int64(1000), sb.Balance(user, "ukrw").Int64())
	require.True(t, sb.Balance(poolAddr, denom).IsZero())

	_, err = sb.Execute(context.Background(), user, poolAddr, []byte(`{"earn":{}}`), nil)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = sb.Execute(context.Background(), user, poolAddr, []byte(`{"deposit":{}}`), sdk.NewCoins(sdk.NewInt64Coin(denom, 2*userFunds)))
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestRoundDepositsSucceed(t *testing.T) {
	sb, poolAddr := newDeployedSandbox(t)
	dp := sb.DPToken()
	supply := sdkmath.ZeroInt()

	for _, amount := range []int64{1_000_000, 2_000_000, 5_000_000, 10_000_000, 20_000_000, 50_000_000} {
		res, err := sb.Execute(context.Background(), user, poolAddr, []byte(`{"deposit":{}}`), sdk.NewCoins(sdk.NewInt64Coin(denom, amount)))
		require.NoError(t, err, "deposit %d", amount)

		net, err := tax.DeductTax(context.Background(), sb, sdk.NewInt64Coin(denom, amount))
		require.NoError(t, err)
		require.Equal(t, net.Amount.String(), attr(res.Log, "amount"))
		supply = supply.Add(net.Amount)
	}
	require.Equal(t, "87120000", supply.String())
	require.Equal(t, supply.String(), sb.TokenSupply(dp).String())
	require.Equal(t, supply.String(), sb.TokenBalance(dp, user).String())
}

// stripConfigVersion rewrites the pool's config the way it was stored before records were versioned.
func stripConfigVersion(t *testing.T, sb *Sandbox, poolAddr string) {
	t.Helper()
	_, err := sb.transact(func(store storetypes.KVStore, _ *dispatcher) error {
		cs := sb.contractStore(store, poolAddr)
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(cs.Get(state.KeyConfig), &fields); err != nil {
			return err
		}
		delete(fields, "version")
		bz, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		cs.Set(state.KeyConfig, bz)
		return nil
	})
	require.NoError(t, err)
}

func TestMigrateLegacyPool(t *testing.T) {
	sb, poolAddr := newDeployedSandbox(t)
	stripConfigVersion(t, sb, poolAddr)

	_, err := sb.Execute(context.Background(), user, poolAddr, []byte(`{"deposit":{}}`), sdk.NewCoins(sdk.NewInt64Coin(denom, 2_000_000)))
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = sb.Migrate(context.Background(), user)
	require.ErrorIs(t, err, ErrUnauthorizedSender)

	res, err := sb.Migrate(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, "1", attr(res.Log, "from_version"))
	require.Equal(t, "2", attr(res.Log, "to_version"))
	require.Empty(t, res.Dispatched)

	deposit(t, sb, poolAddr, 2_000_000)
	require.Equal(t, "1980000", sb.TokenSupply(sb.DPToken()).String())

	res, err = sb.Migrate(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, "2", attr(res.Log, "from_version"))
}

func TestMigrateBeforeDeploy(t *testing.T) {
	sb, err := NewSandbox(Config{
		AddressCodec: codec,
		ChainID:      "sandbox-1",
		StartTime:    time.Unix(1_600_000_000, 0),
		StableDenom:  denom,
		Cw20CodeID:   9,
		MarketRate:   sdkmath.LegacyOneDec(),
		VirtualRate:  sdkmath.LegacyOneDec(),
		TaxRate:      sdkmath.LegacyZeroDec(),
		TaxCap:       sdkmath.ZeroInt(),
	})
	require.NoError(t, err)
	_, err = sb.Migrate(context.Background(), owner)
	require.ErrorIs(t, err, ErrPoolNotDeployed)
}

func TestCw20Rules(t *testing.T) {
	sb, poolAddr := newDeployedSandbox(t)
	deposit(t, sb, poolAddr, 2_000_000)
	dp := sb.DPToken()
	other := addr("other")

	_, err := sb.Execute(context.Background(), user, dp, []byte(fmt.Sprintf(`{"mint":{"recipient":%q,"amount":"5"}}`, user)), nil)
	require.ErrorIs(t, err, ErrUnauthorizedSender)

	_, err = sb.Execute(context.Background(), user, dp, []byte(fmt.Sprintf(`{"transfer":{"recipient":%q,"amount":"0"}}`, other)), nil)
	require.ErrorIs(t, err, ErrInvalidMessage)

	_, err = sb.Execute(context.Background(), user, dp, []byte(fmt.Sprintf(`{"transfer":{"recipient":%q,"amount":"100"}}`, other)), nil)
	require.NoError(t, err)
	require.Equal(t, int64(100), sb.TokenBalance(dp, other).Int64())

	// only the DP token may trigger a redeem
	_, err = sb.Execute(context.Background(), user, poolAddr, []byte(fmt.Sprintf(`{"receive":{"sender":%q,"amount":"100","msg":"eyJyZWRlZW0iOnt9fQ=="}}`, user)), nil)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = sb.Execute(context.Background(), user, addr("nowhere"), []byte(`{}`), nil)
	require.ErrorIs(t, err, ErrUnknownContract)
}
