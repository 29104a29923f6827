package risk

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atharvParlikar/perpetra/internal/account"
	"github.com/atharvParlikar/perpetra/internal/orderbook"
	"github.com/atharvParlikar/perpetra/internal/util"
)

// AccountsPort is the slice of the Accounts worker's contract Risk needs.
// In production this is backed by the message queue described in spec §5;
// tests can supply an in-process fake.
type AccountsPort interface {
	// SnapshotPositions returns a value copy of every open position (spec
	// §9: "never hold back-pointers" — Risk only ever sees a copy).
	SnapshotPositions() []account.PositionSnapshot
	// RemovePosition atomically takes a position out of the active set,
	// per spec §4.3's "retain and act" / at-most-once requirement.
	RemovePosition(owner common.Address) (account.Position, bool)
	// SettleLiquidation folds the trade legs of a liquidation order back
	// into the user's ledger: realized PnL against the removed position's
	// entry price, margin released to free, and (if the order only
	// partially filled) the residual re-registered as an open position.
	SettleLiquidation(owner common.Address, removed account.Position, fills []orderbook.Trade, residualQty decimal.Decimal)
	// SettleFundingSweep applies one funding cadence's transfer to every open
	// position in a single Accounts message, so no other message can land
	// mid-sweep (spec §4.4/§5's atomic-in-aggregate requirement). It returns
	// the owners it touched.
	SettleFundingSweep(mark, rate decimal.Decimal) []common.Address
}

// BookPort is the slice of Book's contract Risk needs: submitting a
// privileged liquidation order on the dedicated queue of spec §4.3(b).
type BookPort interface {
	SubmitLiquidation(order *orderbook.Order) *orderbook.SubmitResult
}

// Config holds the tunables of spec §6 that govern Risk's cadence and
// liquidation trigger.
type Config struct {
	LiquidationThreshold decimal.Decimal // fraction of margin; default 0.05
	RiskTickInterval     time.Duration   // default 100ms
	FundingInterval      time.Duration   // default 1h
	FundingRate          decimal.Decimal // placeholder constant, spec §9(c)
}

// DefaultConfig matches spec §6's defaults.
func DefaultConfig() Config {
	return Config{
		LiquidationThreshold: decimal.New(5, -2),
		RiskTickInterval:     100 * time.Millisecond,
		FundingInterval:      time.Hour,
		FundingRate:          decimal.New(1, -4), // 0.0001
	}
}

// Worker runs the periodic mark-price refresh, liquidation scan, and funding
// settlement described in spec §4.3/§4.4. Like Book and Accounts it is
// single-writer: only its own Run goroutine ever touches its fields.
type Worker struct {
	cfg      Config
	oracle   Oracle
	accounts AccountsPort
	book     BookPort
	clock    util.Clock
	log      Logger

	mark decimal.Decimal
}

// Logger is the narrow logging interface Risk needs, satisfied by
// *zap.SugaredLogger.
type Logger interface {
	Infow(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
}

func NewWorker(cfg Config, oracle Oracle, accounts AccountsPort, book BookPort, clock util.Clock, log Logger) *Worker {
	return &Worker{
		cfg:      cfg,
		oracle:   oracle,
		accounts: accounts,
		book:     book,
		clock:    clock,
		log:      log,
		mark:     oracle.CurrentMarkPrice(),
	}
}

// MarkPrice returns the most recently computed mark price.
func (w *Worker) MarkPrice() decimal.Decimal {
	return w.mark
}

// Run drives the two independent timers of spec §4.3/§4.4 until stop is
// closed. It is meant to run on its own OS thread (spec §5 "Coroutine vs.
// thread").
func (w *Worker) Run(stop <-chan struct{}) {
	riskTimer := w.clock.After(w.cfg.RiskTickInterval)
	fundingTimer := w.clock.After(w.cfg.FundingInterval)

	for {
		select {
		case <-stop:
			return
		case <-riskTimer:
			w.Tick()
			riskTimer = w.clock.After(w.cfg.RiskTickInterval)
		case <-fundingTimer:
			w.SettleFunding()
			fundingTimer = w.clock.After(w.cfg.FundingInterval)
		}
	}
}

// Tick implements one risk scan: recompute unrealized PnL and equity for
// every open position, and liquidate the insolvent ones (spec §4.3).
func (w *Worker) Tick() {
	w.mark = w.oracle.CurrentMarkPrice()

	for _, view := range w.accounts.SnapshotPositions() {
		pos := view.Position
		if !pos.IsOpen() {
			continue
		}
		equity := pos.Equity(w.mark)
		threshold := pos.Margin.Mul(w.cfg.LiquidationThreshold)
		if equity.GreaterThan(threshold) {
			continue
		}
		w.liquidate(view.Owner)
	}
}

// liquidate implements spec §4.3's insolvency action: remove-then-emit is
// atomic here because RemovePosition takes the position out of the active
// set before any liquidation order reaches Book, so a concurrent tick can
// never observe it again (at-most-once, spec §8 invariant 5).
func (w *Worker) liquidate(owner common.Address) {
	removed, ok := w.accounts.RemovePosition(owner)
	if !ok {
		return // already handled by a prior tick or a concurrent settlement
	}

	side := orderbook.Ask
	if removed.Size.IsNegative() {
		side = orderbook.Bid
	}

	order := &orderbook.Order{
		ID:       uuid.New(),
		Owner:    owner,
		Side:     side,
		Kind:     orderbook.Market,
		Qty:      removed.Size.Abs(),
		Leverage: 1,
	}

	result := w.book.SubmitLiquidation(order)
	w.log.Infow("liquidation submitted",
		"owner", owner.Hex(), "size", removed.Size.String(), "mark", w.mark.String(),
		"fills", len(result.Fills), "status", result.Status)

	residualQty := decimal.Zero
	if result.Remainder != nil {
		residualQty = result.Remainder.Qty
	}

	w.accounts.SettleLiquidation(owner, removed, result.Fills, residualQty)
}
