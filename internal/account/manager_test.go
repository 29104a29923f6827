package account_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharvParlikar/perpetra/internal/account"
	"github.com/atharvParlikar/perpetra/internal/market"
	"github.com/atharvParlikar/perpetra/internal/orderbook"
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

func newManager() *account.Manager {
	params := market.Default("PERP-USDC", "PERP", "USDC")
	return account.NewManager(params, 8)
}

func TestReserveForOrderInsufficientCollateral(t *testing.T) {
	m := newManager()
	m.Deposit(alice, d("100"))

	err := m.ReserveForOrder(uuid.New(), alice, orderbook.Bid, d("100"), d("10"), 1)
	assert.ErrorIs(t, err, account.ErrInsufficientCollateral)
}

func TestReserveAndReleaseRoundTrips(t *testing.T) {
	m := newManager()
	m.Deposit(alice, d("1000"))

	id := uuid.New()
	require.NoError(t, m.ReserveForOrder(id, alice, orderbook.Bid, d("100"), d("5"), 10))

	l := m.SnapshotLedger(alice)
	assert.True(t, l.Free.Equal(d("950")), "500 notional / 10x leverage reserves 50")

	m.ReleaseReservation(alice, id)
	l = m.SnapshotLedger(alice)
	assert.True(t, l.Free.Equal(d("1000")))
}

func TestSettleFillOpensPositionWithVWAPEntry(t *testing.T) {
	m := newManager()
	m.Deposit(alice, d("10000"))
	m.Deposit(bob, d("10000"))

	makerID := uuid.New()
	takerID := uuid.New()
	require.NoError(t, m.ReserveForOrder(makerID, alice, orderbook.Bid, d("100"), d("10"), 10))
	require.NoError(t, m.ReserveForOrder(takerID, bob, orderbook.Ask, d("100"), d("10"), 10))

	trade := orderbook.Trade{
		MakerOrderID: makerID, TakerOrderID: takerID,
		MakerOwner: alice, TakerOwner: bob,
		MakerSide: orderbook.Bid, TakerSide: orderbook.Ask,
		Price: d("100"), Qty: d("10"),
	}
	settlement := m.SettleFill(trade, makerID, takerID)
	assert.True(t, settlement.MakerRealizedPnL.IsZero())
	assert.True(t, settlement.TakerRealizedPnL.IsZero())

	aliceLedger := m.SnapshotLedger(alice)
	require.NotNil(t, aliceLedger.Position)
	assert.True(t, aliceLedger.Position.Size.Equal(d("10")))
	assert.True(t, aliceLedger.Position.EntryPrice.Equal(d("100")))

	bobLedger := m.SnapshotLedger(bob)
	require.NotNil(t, bobLedger.Position)
	assert.True(t, bobLedger.Position.Size.Equal(d("-10")))
}

func TestSettleFillReducesAndRealizesPnL(t *testing.T) {
	m := newManager()
	m.Deposit(alice, d("10000"))
	m.Deposit(bob, d("10000"))

	openMakerID, openTakerID := uuid.New(), uuid.New()
	require.NoError(t, m.ReserveForOrder(openMakerID, alice, orderbook.Bid, d("100"), d("10"), 10))
	require.NoError(t, m.ReserveForOrder(openTakerID, bob, orderbook.Ask, d("100"), d("10"), 10))
	m.SettleFill(orderbook.Trade{
		MakerOrderID: openMakerID, TakerOrderID: openTakerID,
		MakerOwner: alice, TakerOwner: bob,
		MakerSide: orderbook.Bid, TakerSide: orderbook.Ask,
		Price: d("100"), Qty: d("10"),
	}, openMakerID, openTakerID)

	// Alice reduces her long by selling 4 @ 110: realized = 4 * (110-100) = 40.
	closeMakerID, closeTakerID := uuid.New(), uuid.New()
	require.NoError(t, m.ReserveForOrder(closeMakerID, alice, orderbook.Ask, d("110"), d("4"), 10))
	require.NoError(t, m.ReserveForOrder(closeTakerID, bob, orderbook.Bid, d("110"), d("4"), 10))
	settlement := m.SettleFill(orderbook.Trade{
		MakerOrderID: closeMakerID, TakerOrderID: closeTakerID,
		MakerOwner: alice, TakerOwner: bob,
		MakerSide: orderbook.Ask, TakerSide: orderbook.Bid,
		Price: d("110"), Qty: d("4"),
	}, closeMakerID, closeTakerID)

	assert.True(t, settlement.MakerRealizedPnL.Equal(d("40")), "closing 4 contracts 10 above entry realizes 40")

	l := m.SnapshotLedger(alice)
	require.NotNil(t, l.Position)
	assert.True(t, l.Position.Size.Equal(d("6")), "6 contracts remain open")
	assert.True(t, l.Position.EntryPrice.Equal(d("100")), "entry price is untouched by a reduce")
}

func TestSettleFillClosesAndFlips(t *testing.T) {
	m := newManager()
	m.Deposit(alice, d("10000"))
	m.Deposit(bob, d("10000"))

	openMakerID, openTakerID := uuid.New(), uuid.New()
	require.NoError(t, m.ReserveForOrder(openMakerID, alice, orderbook.Bid, d("100"), d("10"), 10))
	require.NoError(t, m.ReserveForOrder(openTakerID, bob, orderbook.Ask, d("100"), d("10"), 10))
	m.SettleFill(orderbook.Trade{
		MakerOrderID: openMakerID, TakerOrderID: openTakerID,
		MakerOwner: alice, TakerOwner: bob,
		MakerSide: orderbook.Bid, TakerSide: orderbook.Ask,
		Price: d("100"), Qty: d("10"),
	}, openMakerID, openTakerID)

	// Alice sells 15 @ 120 against her 10-long: closes all 10 (realized =
	// 10 * (120-100) = 200) and opens a fresh 5-short at entry 120.
	flipMakerID, flipTakerID := uuid.New(), uuid.New()
	require.NoError(t, m.ReserveForOrder(flipMakerID, alice, orderbook.Ask, d("120"), d("15"), 10))
	require.NoError(t, m.ReserveForOrder(flipTakerID, bob, orderbook.Bid, d("120"), d("15"), 10))
	settlement := m.SettleFill(orderbook.Trade{
		MakerOrderID: flipMakerID, TakerOrderID: flipTakerID,
		MakerOwner: alice, TakerOwner: bob,
		MakerSide: orderbook.Ask, TakerSide: orderbook.Bid,
		Price: d("120"), Qty: d("15"),
	}, flipMakerID, flipTakerID)

	assert.True(t, settlement.MakerRealizedPnL.Equal(d("200")), "closing the full 10-long 20 above entry realizes 200")

	l := m.SnapshotLedger(alice)
	require.NotNil(t, l.Position)
	assert.True(t, l.Position.Size.Equal(d("-5")), "5 contracts open short after the flip")
	assert.True(t, l.Position.EntryPrice.Equal(d("120")), "the flipped position's entry is the fill price")
}

func TestVWAPEntryPriceOnEqualSizeAdds(t *testing.T) {
	m := newManager()
	m.Deposit(alice, d("10000"))
	m.Deposit(bob, d("10000"))

	firstMakerID, firstTakerID := uuid.New(), uuid.New()
	require.NoError(t, m.ReserveForOrder(firstMakerID, alice, orderbook.Bid, d("100"), d("10"), 10))
	require.NoError(t, m.ReserveForOrder(firstTakerID, bob, orderbook.Ask, d("100"), d("10"), 10))
	m.SettleFill(orderbook.Trade{
		MakerOrderID: firstMakerID, TakerOrderID: firstTakerID,
		MakerOwner: alice, TakerOwner: bob,
		MakerSide: orderbook.Bid, TakerSide: orderbook.Ask,
		Price: d("100"), Qty: d("10"),
	}, firstMakerID, firstTakerID)

	// Adds another 10 @ 200: equal-sized adds average to (100+200)/2 = 150.
	secondMakerID, secondTakerID := uuid.New(), uuid.New()
	require.NoError(t, m.ReserveForOrder(secondMakerID, alice, orderbook.Bid, d("200"), d("10"), 10))
	require.NoError(t, m.ReserveForOrder(secondTakerID, bob, orderbook.Ask, d("200"), d("10"), 10))
	m.SettleFill(orderbook.Trade{
		MakerOrderID: secondMakerID, TakerOrderID: secondTakerID,
		MakerOwner: alice, TakerOwner: bob,
		MakerSide: orderbook.Bid, TakerSide: orderbook.Ask,
		Price: d("200"), Qty: d("10"),
	}, secondMakerID, secondTakerID)

	l := m.SnapshotLedger(alice)
	require.NotNil(t, l.Position)
	assert.True(t, l.Position.Size.Equal(d("20")))
	assert.True(t, l.Position.EntryPrice.Equal(d("150")), "equal-size adds average to (p+p')/2")
}

func TestSettleLiquidationCreditsCounterparty(t *testing.T) {
	charlie := common.HexToAddress("0x3333333333333333333333333333333333333333")

	m := newManager()
	m.Deposit(alice, d("10000"))
	m.Deposit(bob, d("10000"))
	m.Deposit(charlie, d("10000"))

	makerID, takerID := uuid.New(), uuid.New()
	require.NoError(t, m.ReserveForOrder(makerID, alice, orderbook.Bid, d("100"), d("10"), 10))
	require.NoError(t, m.ReserveForOrder(takerID, bob, orderbook.Ask, d("100"), d("10"), 10))
	m.SettleFill(orderbook.Trade{
		MakerOrderID: makerID, TakerOrderID: takerID,
		MakerOwner: alice, TakerOwner: bob,
		MakerSide: orderbook.Bid, TakerSide: orderbook.Ask,
		Price: d("100"), Qty: d("10"),
	}, makerID, takerID)

	// Bob's short gets liquidated: the liquidation order (taker, buying to
	// close) matches against a fresh resting ask from charlie, who has no
	// prior position — the exact case that stranded a counterparty's
	// reservation before liquidate() started routing fills through
	// SettleLiquidation's per-fill counterparty settlement.
	removed, ok := m.RemovePosition(bob)
	require.True(t, ok)

	counterID, liqTakerID := uuid.New(), uuid.New()
	require.NoError(t, m.ReserveForOrder(counterID, charlie, orderbook.Ask, d("80"), d("10"), 10))
	fill := orderbook.Trade{
		MakerOrderID: counterID, TakerOrderID: liqTakerID,
		MakerOwner: charlie, TakerOwner: bob,
		MakerSide: orderbook.Ask, TakerSide: orderbook.Bid,
		Price: d("80"), Qty: d("10"),
	}

	m.SettleLiquidation(bob, removed, []orderbook.Trade{fill}, decimal.Zero)

	charlieLedger := m.SnapshotLedger(charlie)
	require.NotNil(t, charlieLedger.Position, "charlie's resting order must settle like any other fill, not strand its reservation")
	assert.True(t, charlieLedger.Position.Size.Equal(d("-10")), "charlie opens the short the liquidation sold into")
	assert.True(t, charlieLedger.Position.EntryPrice.Equal(d("80")))
	assert.Empty(t, charlieLedger.Reservations, "charlie's reservation is consumed by the fill, not left stranded")
}

func TestAdjustFundingTransfersBetweenFreeAndFundingLedgers(t *testing.T) {
	m := newManager()
	m.Deposit(alice, d("1000"))

	m.AdjustFunding(alice, d("5"))
	l := m.SnapshotLedger(alice)
	assert.True(t, l.Free.Equal(d("995")))
	assert.True(t, l.FundingPaid.Equal(d("5")))

	m.AdjustFunding(alice, d("-2"))
	l = m.SnapshotLedger(alice)
	assert.True(t, l.Free.Equal(d("997")))
	assert.True(t, l.FundingRecvd.Equal(d("2")))
}

func TestAccountingIdentityHoldsAfterActivity(t *testing.T) {
	m := newManager()
	m.Deposit(alice, d("10000"))
	m.Deposit(bob, d("10000"))

	makerID, takerID := uuid.New(), uuid.New()
	require.NoError(t, m.ReserveForOrder(makerID, alice, orderbook.Bid, d("100"), d("10"), 10))
	require.NoError(t, m.ReserveForOrder(takerID, bob, orderbook.Ask, d("100"), d("10"), 10))
	m.SettleFill(orderbook.Trade{
		MakerOrderID: makerID, TakerOrderID: takerID,
		MakerOwner: alice, TakerOwner: bob,
		MakerSide: orderbook.Bid, TakerSide: orderbook.Ask,
		Price: d("100"), Qty: d("10"),
	}, makerID, takerID)

	assert.NoError(t, m.Validate())
}
