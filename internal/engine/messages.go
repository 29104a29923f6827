// Package engine wires the four workers of spec §2 — Gateway, Book,
// Accounts, Risk/Funding — together with the message queues and one-shot
// reply channels of spec §5. Each worker owns a disjoint slice of state and
// is driven by its own goroutine; cross-worker communication is always a
// channel send, never a shared lock.
package engine

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atharvParlikar/perpetra/internal/account"
	"github.com/atharvParlikar/perpetra/internal/orderbook"
)

// accountsMsg is the sum type carried on the Accounts worker's inbound
// queue. Exactly one of its optional fields is populated per message; a
// dedicated Go interface-per-message-kind would be more idiomatic for a
// public API, but Accounts is internal-only so one struct keeps the single
// select loop in accounts_worker.go simple.
type accountsMsg struct {
	kind accountsMsgKind

	reserve *reserveArgs
	release *releaseArgs
	settle  *settleArgs

	snapshotPositionsReply chan []account.PositionSnapshot
	removePosition         common.Address
	removePositionReply    chan removePositionResult
	settleLiquidation      *settleLiquidationArgs
	settleFundingSweep     *settleFundingSweepArgs
	deposit                *depositArgs
	snapshotLedger         common.Address
	snapshotLedgerReply    chan account.Ledger
}

type accountsMsgKind int

const (
	msgReserve accountsMsgKind = iota
	msgRelease
	msgSettleFill
	msgSnapshotPositions
	msgRemovePosition
	msgSettleLiquidation
	msgSettleFundingSweep
	msgDeposit
	msgSnapshotLedger
)

type reserveArgs struct {
	id       uuid.UUID
	owner    common.Address
	side     orderbook.Side
	price    decimal.Decimal
	qty      decimal.Decimal
	leverage int
	reply    chan reserveResult
}

type reserveResult struct {
	err error
}

type releaseArgs struct {
	owner common.Address
	id    uuid.UUID
}

type settleArgs struct {
	trade              orderbook.Trade
	makerReservationID uuid.UUID
	takerReservationID uuid.UUID
	reply              chan account.FillSettlement
}

type removePositionResult struct {
	position account.Position
	ok       bool
}

type settleLiquidationArgs struct {
	owner       common.Address
	removed     account.Position
	fills       []orderbook.Trade
	residualQty decimal.Decimal
}

// settleFundingSweepArgs carries a whole funding cadence as one message
// (spec §4.4/§5 "atomic in aggregate"): Accounts computes each position's
// delta itself from mark/rate rather than Risk pre-computing and sending
// one message per position, so the entire sweep is a single inbox entry no
// other message can interleave with.
type settleFundingSweepArgs struct {
	mark  decimal.Decimal
	rate  decimal.Decimal
	reply chan []common.Address
}

type depositArgs struct {
	owner  common.Address
	amount decimal.Decimal
}

// bookMsg is the sum type carried on Book's two queues (user orders and the
// privileged liquidation queue of spec §4.1/§4.3).
type bookMsg struct {
	order *orderbook.Order
	reply chan *orderbook.SubmitResult

	cancelID    uuid.UUID
	cancelOwner common.Address
	cancelReply chan orderbook.CancelResult

	// isCancel distinguishes the two request shapes carried on the same
	// queue; a cancel never appears on the liquidation queue.
	isCancel bool

	isTopOfBook   bool
	topOfBookReply chan TopOfBookUpdate
}

// TopOfBookUpdate is what Book passes to its top-of-book callback after every
// submitted order; the WebSocket hub turns it, and each orderbook.Trade passed
// to the trade callback, into frames (spec §6 "/ws"). TradeEvent is not
// produced by any worker.
type TradeEvent struct {
	Trade     orderbook.Trade
	Timestamp time.Time
}

type TopOfBookUpdate struct {
	BestBid *decimal.Decimal
	BestAsk *decimal.Decimal
}
