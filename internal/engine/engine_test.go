package engine_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharvParlikar/perpetra/internal/engine"
	"github.com/atharvParlikar/perpetra/internal/market"
	"github.com/atharvParlikar/perpetra/internal/orderbook"
	"github.com/atharvParlikar/perpetra/internal/risk"
	"github.com/atharvParlikar/perpetra/internal/util"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type nopLogger struct{}

func (nopLogger) Infow(msg string, kv ...interface{})  {}
func (nopLogger) Errorw(msg string, kv ...interface{}) {}
func (nopLogger) Fatalw(msg string, kv ...interface{}) {}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	params := market.Default("PERP-USDC", "PERP", "USDC")
	oracle := &risk.StaticOracle{Price: d("100")}

	e := engine.New(engine.Config{
		Market:       params,
		Risk:         risk.Config{LiquidationThreshold: d("0.05"), RiskTickInterval: time.Hour, FundingInterval: time.Hour, FundingRate: d("0.0001")},
		QueueDepth:   64,
		DecimalScale: 8,
		Store:        nil,
		Oracle:       oracle,
		Clock:        util.RealClock{},
	}, nopLogger{}, func(orderbook.Trade) {}, func(engine.TopOfBookUpdate) {})

	require.NoError(t, e.Start())
	t.Cleanup(e.Stop)
	return e
}

func TestGatewaySimpleCrossEndToEnd(t *testing.T) {
	e := newTestEngine(t)
	e.Gateway.Deposit(alice, d("10000"))
	e.Gateway.Deposit(bob, d("10000"))

	makerOut, err := e.Gateway.SubmitOrder(engine.OrderRequest{
		Owner: alice, Side: orderbook.Bid, Kind: orderbook.Limit,
		Price: d("100"), Qty: d("10"), Leverage: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, orderbook.Resting, makerOut.Status)

	takerOut, err := e.Gateway.SubmitOrder(engine.OrderRequest{
		Owner: bob, Side: orderbook.Ask, Kind: orderbook.Limit,
		Price: d("100"), Qty: d("10"), Leverage: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, orderbook.Filled, takerOut.Status)
	require.Len(t, takerOut.Fills, 1)

	aliceLedger := e.Accounts().SnapshotLedger(alice)
	require.NotNil(t, aliceLedger.Position)
	assert.True(t, aliceLedger.Position.Size.Equal(d("10")))
}

func TestGatewayRejectsInsufficientCollateral(t *testing.T) {
	e := newTestEngine(t)
	e.Gateway.Deposit(alice, d("1"))

	_, err := e.Gateway.SubmitOrder(engine.OrderRequest{
		Owner: alice, Side: orderbook.Bid, Kind: orderbook.Limit,
		Price: d("100"), Qty: d("10"), Leverage: 1,
	})
	assert.ErrorIs(t, err, engine.ErrInsufficientCollateral)
}

func TestCancelOrderRefundsReservation(t *testing.T) {
	e := newTestEngine(t)
	e.Gateway.Deposit(alice, d("10000"))

	out, err := e.Gateway.SubmitOrder(engine.OrderRequest{
		Owner: alice, Side: orderbook.Bid, Kind: orderbook.Limit,
		Price: d("100"), Qty: d("10"), Leverage: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, orderbook.Resting, out.Status)

	ledgerBeforeCancel := e.Accounts().SnapshotLedger(alice)

	refunded, err := e.Gateway.CancelOrder(alice, out.OrderID)
	require.NoError(t, err)
	assert.True(t, refunded.Equal(d("100")), "10 qty * 100 price / 10x leverage = 100 reserved")

	ledgerAfterCancel := e.Accounts().SnapshotLedger(alice)
	assert.True(t, ledgerAfterCancel.Free.Sub(ledgerBeforeCancel.Free).Equal(refunded))
}

func TestCancelUnknownOrder(t *testing.T) {
	e := newTestEngine(t)
	e.Gateway.Deposit(alice, d("10000"))

	_, err := e.Gateway.CancelOrder(alice, [16]byte{})
	assert.ErrorIs(t, err, engine.ErrUnknownOrder)
}

func TestMarketOrderWithNoLiquiditySkipsReservation(t *testing.T) {
	e := newTestEngine(t)
	e.Gateway.Deposit(alice, d("10000"))

	out, err := e.Gateway.SubmitOrder(engine.OrderRequest{
		Owner: alice, Side: orderbook.Bid, Kind: orderbook.Market, Qty: d("5"), Leverage: 1,
	})
	require.NoError(t, err)
	assert.Empty(t, out.Fills)

	ledger := e.Accounts().SnapshotLedger(alice)
	assert.True(t, ledger.Free.Equal(d("10000")), "no opposing liquidity means nothing was reserved")
}
