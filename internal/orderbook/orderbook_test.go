package orderbook_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharvParlikar/perpetra/internal/orderbook"
	"github.com/atharvParlikar/perpetra/internal/util"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	carol = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newOrder(owner common.Address, side orderbook.Side, kind orderbook.Kind, price, qty string) *orderbook.Order {
	return &orderbook.Order{
		ID:       uuid.New(),
		Owner:    owner,
		Side:     side,
		Kind:     kind,
		Price:    d(price),
		Qty:      d(qty),
		Leverage: 1,
	}
}

func TestSubmitSimpleCross(t *testing.T) {
	ob := orderbook.NewOrderBook()
	clock := util.NewFakeClock(time.Unix(0, 0))

	maker := newOrder(alice, orderbook.Bid, orderbook.Limit, "100.00", "5")
	restResult := ob.Submit(maker, clock)
	require.Equal(t, orderbook.Resting, restResult.Status)

	taker := newOrder(bob, orderbook.Ask, orderbook.Limit, "99.00", "5")
	result := ob.Submit(taker, clock)

	require.Equal(t, orderbook.Filled, result.Status)
	require.Len(t, result.Fills, 1)
	trade := result.Fills[0]
	assert.True(t, trade.Price.Equal(d("100.00")), "trade prices at the maker's resting price")
	assert.True(t, trade.Qty.Equal(d("5")))
	assert.Equal(t, maker.ID, trade.MakerOrderID)
	assert.Equal(t, taker.ID, trade.TakerOrderID)

	_, hasBid := ob.BestBid()
	assert.False(t, hasBid, "fully-filled maker's level is removed, leaving no bid")
}

func TestPriceTimePriority(t *testing.T) {
	ob := orderbook.NewOrderBook()
	clock := util.NewFakeClock(time.Unix(0, 0))

	first := newOrder(alice, orderbook.Bid, orderbook.Limit, "100.00", "3")
	ob.Submit(first, clock)
	clock.Advance(time.Millisecond)
	second := newOrder(bob, orderbook.Bid, orderbook.Limit, "100.00", "3")
	ob.Submit(second, clock)

	taker := newOrder(carol, orderbook.Ask, orderbook.Limit, "100.00", "4")
	result := ob.Submit(taker, clock)

	require.Len(t, result.Fills, 2)
	assert.Equal(t, first.ID, result.Fills[0].MakerOrderID, "the earlier-admitted order at the same price fills first")
	assert.True(t, result.Fills[0].Qty.Equal(d("3")), "first maker fully consumed")
	assert.Equal(t, second.ID, result.Fills[1].MakerOrderID)
	assert.True(t, result.Fills[1].Qty.Equal(d("1")), "second maker partially consumed")
}

func TestMarketOrderSweepsMultipleLevels(t *testing.T) {
	ob := orderbook.NewOrderBook()
	clock := util.NewFakeClock(time.Unix(0, 0))

	ob.Submit(newOrder(alice, orderbook.Ask, orderbook.Limit, "100.00", "2"), clock)
	ob.Submit(newOrder(bob, orderbook.Ask, orderbook.Limit, "101.00", "2"), clock)

	taker := newOrder(carol, orderbook.Bid, orderbook.Market, "0", "3")
	result := ob.Submit(taker, clock)

	require.Equal(t, orderbook.Filled, result.Status)
	require.Len(t, result.Fills, 2)
	assert.True(t, result.Fills[0].Price.Equal(d("100.00")), "sweeps the best price level first")
	assert.True(t, result.Fills[1].Price.Equal(d("101.00")))
	assert.True(t, result.Fills[1].Qty.Equal(d("1")))
}

func TestMarketOrderRemainderIsDiscardedNotRested(t *testing.T) {
	ob := orderbook.NewOrderBook()
	clock := util.NewFakeClock(time.Unix(0, 0))

	ob.Submit(newOrder(alice, orderbook.Ask, orderbook.Limit, "100.00", "1"), clock)

	taker := newOrder(bob, orderbook.Bid, orderbook.Market, "0", "5")
	result := ob.Submit(taker, clock)

	require.Len(t, result.Fills, 1)
	require.NotNil(t, result.Remainder)
	assert.True(t, result.Remainder.Qty.Equal(d("4")))

	_, found := ob.Lookup(taker.ID)
	assert.False(t, found, "an unfilled market order never rests on the book")
}

func TestCancelOwnershipEnforced(t *testing.T) {
	ob := orderbook.NewOrderBook()
	clock := util.NewFakeClock(time.Unix(0, 0))

	order := newOrder(alice, orderbook.Bid, orderbook.Limit, "100.00", "1")
	ob.Submit(order, clock)

	notOwner := ob.Cancel(order.ID, bob)
	assert.Equal(t, orderbook.NotOwner, notOwner.Status)

	ok := ob.Cancel(order.ID, alice)
	assert.Equal(t, orderbook.Cancelled, ok.Status)

	missing := ob.Cancel(order.ID, alice)
	assert.Equal(t, orderbook.NotFound, missing.Status)
}

func TestNoSelfTradePrevention(t *testing.T) {
	// spec's default: no self-trade prevention, so an order can match
	// against a resting order from the same owner.
	ob := orderbook.NewOrderBook()
	clock := util.NewFakeClock(time.Unix(0, 0))

	ob.Submit(newOrder(alice, orderbook.Bid, orderbook.Limit, "100.00", "1"), clock)
	result := ob.Submit(newOrder(alice, orderbook.Ask, orderbook.Limit, "100.00", "1"), clock)

	require.Len(t, result.Fills, 1)
	assert.Equal(t, alice, result.Fills[0].MakerOwner)
	assert.Equal(t, alice, result.Fills[0].TakerOwner)
}
