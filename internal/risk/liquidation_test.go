package risk_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharvParlikar/perpetra/internal/account"
	"github.com/atharvParlikar/perpetra/internal/orderbook"
	"github.com/atharvParlikar/perpetra/internal/risk"
)

var alice = common.HexToAddress("0x1111111111111111111111111111111111111111")

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// fakeAccounts is a minimal in-process double for risk.AccountsPort, used to
// exercise Worker.Tick/SettleFunding without spinning up the real Accounts
// worker's message queue.
type fakeAccounts struct {
	positions map[common.Address]account.Position
	funding   map[common.Address]decimal.Decimal
	settled   []settledCall
}

type settledCall struct {
	owner       common.Address
	removed     account.Position
	fills       []orderbook.Trade
	residualQty decimal.Decimal
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		positions: make(map[common.Address]account.Position),
		funding:   make(map[common.Address]decimal.Decimal),
	}
}

func (f *fakeAccounts) SnapshotPositions() []account.PositionSnapshot {
	out := make([]account.PositionSnapshot, 0, len(f.positions))
	for owner, pos := range f.positions {
		out = append(out, account.PositionSnapshot{Owner: owner, Position: pos})
	}
	return out
}

func (f *fakeAccounts) RemovePosition(owner common.Address) (account.Position, bool) {
	pos, ok := f.positions[owner]
	if ok {
		delete(f.positions, owner)
	}
	return pos, ok
}

func (f *fakeAccounts) SettleLiquidation(owner common.Address, removed account.Position, fills []orderbook.Trade, residualQty decimal.Decimal) {
	f.settled = append(f.settled, settledCall{owner: owner, removed: removed, fills: fills, residualQty: residualQty})
}

func (f *fakeAccounts) SettleFundingSweep(mark, rate decimal.Decimal) []common.Address {
	var touched []common.Address
	for owner, pos := range f.positions {
		if pos.Size.IsZero() {
			continue
		}
		delta := pos.Size.Mul(mark).Mul(rate)
		f.funding[owner] = f.funding[owner].Add(delta)
		touched = append(touched, owner)
	}
	return touched
}

// fakeBook is a minimal double for risk.BookPort.
type fakeBook struct {
	result *orderbook.SubmitResult
}

func (f *fakeBook) SubmitLiquidation(order *orderbook.Order) *orderbook.SubmitResult {
	return f.result
}

type nopLogger struct{}

func (nopLogger) Infow(msg string, kv ...interface{})  {}
func (nopLogger) Errorw(msg string, kv ...interface{}) {}

func TestTickLiquidatesInsolventPosition(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.positions[alice] = account.Position{Size: d("10"), EntryPrice: d("100"), Margin: d("50")}

	book := &fakeBook{result: &orderbook.SubmitResult{
		Status: orderbook.Filled,
		Fills: []orderbook.Trade{
			{Price: d("60"), Qty: d("10")},
		},
	}}

	oracle := &risk.StaticOracle{Price: d("60")}
	cfg := risk.Config{LiquidationThreshold: d("0.05")}
	w := risk.NewWorker(cfg, oracle, accounts, book, nil, nopLogger{})

	w.Tick()

	require.Len(t, accounts.settled, 1)
	assert.Equal(t, alice, accounts.settled[0].owner)
	_, stillOpen := accounts.positions[alice]
	assert.False(t, stillOpen, "the position is removed before the liquidation order reaches Book")
}

func TestTickSparesSolventPosition(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.positions[alice] = account.Position{Size: d("10"), EntryPrice: d("100"), Margin: d("500")}

	book := &fakeBook{}
	oracle := &risk.StaticOracle{Price: d("100")}
	cfg := risk.Config{LiquidationThreshold: d("0.05")}
	w := risk.NewWorker(cfg, oracle, accounts, book, nil, nopLogger{})

	w.Tick()

	assert.Empty(t, accounts.settled)
	_, stillOpen := accounts.positions[alice]
	assert.True(t, stillOpen)
}

func TestSettleFundingTransfersFromLongsToShorts(t *testing.T) {
	bobAddr := common.HexToAddress("0x2222222222222222222222222222222222222222")
	accounts := newFakeAccounts()
	accounts.positions[alice] = account.Position{Size: d("10"), EntryPrice: d("100")}
	accounts.positions[bobAddr] = account.Position{Size: d("-10"), EntryPrice: d("100")}

	oracle := &risk.StaticOracle{Price: d("100")}
	cfg := risk.Config{FundingRate: d("0.0001")}
	w := risk.NewWorker(cfg, oracle, accounts, &fakeBook{}, nil, nopLogger{})

	w.SettleFunding()

	assert.True(t, accounts.funding[alice].Equal(d("0.1")), "long pays size*mark*rate")
	assert.True(t, accounts.funding[bobAddr].Equal(d("-0.1")), "short receives the same amount")
}

func TestTickNoOpWithNoOpenPositions(t *testing.T) {
	accounts := newFakeAccounts()
	book := &fakeBook{result: &orderbook.SubmitResult{}}
	oracle := &risk.StaticOracle{Price: d("100")}
	w := risk.NewWorker(risk.DefaultConfig(), oracle, accounts, book, nil, nopLogger{})

	w.Tick()
	assert.Empty(t, accounts.settled, "no open positions means nothing to liquidate")
}
