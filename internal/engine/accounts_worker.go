package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atharvParlikar/perpetra/internal/account"
	"github.com/atharvParlikar/perpetra/internal/orderbook"
)

// AccountsWorker owns the Manager exclusively: only its own Run goroutine
// ever calls into it, satisfying spec §5's "Accounts exclusively owns
// balances and positions". Every other component talks to it through
// AccountsClient.
type AccountsWorker struct {
	manager *account.Manager
	store   *account.Store // nil disables persistence
	inbox   chan accountsMsg
	log     Logger
}

// Logger is the narrow logging interface the engine needs, satisfied by
// *zap.SugaredLogger.
type Logger interface {
	Infow(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
	Fatalw(msg string, kv ...interface{})
}

func NewAccountsWorker(manager *account.Manager, store *account.Store, log Logger, queueDepth int) *AccountsWorker {
	return &AccountsWorker{
		manager: manager,
		store:   store,
		inbox:   make(chan accountsMsg, queueDepth),
		log:     log,
	}
}

// Run drains the inbound queue in FIFO order until stop is closed, per spec
// §5 "Within a single inbound queue, messages are processed in FIFO order."
func (w *AccountsWorker) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case msg := <-w.inbox:
			w.handle(msg)
		}
	}
}

func (w *AccountsWorker) handle(msg accountsMsg) {
	switch msg.kind {
	case msgReserve:
		a := msg.reserve
		err := w.manager.ReserveForOrder(a.id, a.owner, a.side, a.price, a.qty, a.leverage)
		a.reply <- reserveResult{err: err}
		w.persist(a.owner)

	case msgRelease:
		a := msg.release
		w.manager.ReleaseReservation(a.owner, a.id)
		w.persist(a.owner)

	case msgSettleFill:
		a := msg.settle
		settlement := w.manager.SettleFill(a.trade, a.makerReservationID, a.takerReservationID)
		a.reply <- settlement
		w.persist(a.trade.MakerOwner)
		w.persist(a.trade.TakerOwner)
		if w.store != nil {
			if err := w.store.SaveTrade(a.trade); err != nil {
				w.log.Errorw("failed to persist trade", "err", err)
			}
		}

	case msgSnapshotPositions:
		msg.snapshotPositionsReply <- w.manager.SnapshotPositions()

	case msgRemovePosition:
		pos, ok := w.manager.RemovePosition(msg.removePosition)
		msg.removePositionReply <- removePositionResult{position: pos, ok: ok}
		w.persist(msg.removePosition)

	case msgSettleLiquidation:
		a := msg.settleLiquidation
		w.manager.SettleLiquidation(a.owner, a.removed, a.fills, a.residualQty)
		w.persist(a.owner)
		for _, t := range a.fills {
			w.persist(t.MakerOwner)
		}

	case msgSettleFundingSweep:
		a := msg.settleFundingSweep
		touched := w.manager.SettleFundingSweep(a.mark, a.rate)
		a.reply <- touched
		for _, owner := range touched {
			w.persist(owner)
		}

	case msgDeposit:
		a := msg.deposit
		w.manager.Deposit(a.owner, a.amount)
		w.persist(a.owner)

	case msgSnapshotLedger:
		msg.snapshotLedgerReply <- w.manager.SnapshotLedger(msg.snapshotLedger)
	}

	if err := w.manager.Validate(); err != nil {
		// spec §7: invariant violations are fatal — the worker terminates
		// rather than continue from an inconsistent state.
		w.log.Fatalw("account invariant violated", "err", err)
	}
}

func (w *AccountsWorker) persist(owner common.Address) {
	if w.store == nil {
		return
	}
	l := w.manager.SnapshotLedger(owner)
	if err := w.store.SaveLedger(&l); err != nil {
		w.log.Errorw("failed to persist ledger", "owner", owner.Hex(), "err", err)
	}
}

// Restore loads every persisted ledger into the manager, run once at
// startup before any worker goroutine starts (spec §9 "Global state" — no
// worker owns another's construction-time state).
func (w *AccountsWorker) Restore() error {
	if w.store == nil {
		return nil
	}
	ledgers, err := w.store.LoadAllLedgers()
	if err != nil {
		return err
	}
	for _, l := range ledgers {
		w.manager.Restore(l)
	}
	return nil
}

// AccountsClient is the handle every other worker uses to talk to Accounts.
// Every method round-trips a message and its one-shot reply channel through
// the inbox, per spec §5's request/response idiom.
type AccountsClient struct {
	inbox chan accountsMsg
}

func (w *AccountsWorker) Client() AccountsClient {
	return AccountsClient{inbox: w.inbox}
}

func (c AccountsClient) ReserveForOrder(id uuid.UUID, owner common.Address, side orderbook.Side, price, qty decimal.Decimal, leverage int) error {
	reply := make(chan reserveResult, 1)
	c.inbox <- accountsMsg{kind: msgReserve, reserve: &reserveArgs{
		id: id, owner: owner, side: side, price: price, qty: qty, leverage: leverage, reply: reply,
	}}
	res := <-reply
	return res.err
}

func (c AccountsClient) ReleaseReservation(owner common.Address, id uuid.UUID) {
	c.inbox <- accountsMsg{kind: msgRelease, release: &releaseArgs{owner: owner, id: id}}
}

func (c AccountsClient) SettleFill(trade orderbook.Trade, makerReservationID, takerReservationID uuid.UUID) account.FillSettlement {
	reply := make(chan account.FillSettlement, 1)
	c.inbox <- accountsMsg{kind: msgSettleFill, settle: &settleArgs{
		trade: trade, makerReservationID: makerReservationID, takerReservationID: takerReservationID, reply: reply,
	}}
	return <-reply
}

func (c AccountsClient) SnapshotPositions() []account.PositionSnapshot {
	reply := make(chan []account.PositionSnapshot, 1)
	c.inbox <- accountsMsg{kind: msgSnapshotPositions, snapshotPositionsReply: reply}
	return <-reply
}

func (c AccountsClient) RemovePosition(owner common.Address) (account.Position, bool) {
	reply := make(chan removePositionResult, 1)
	c.inbox <- accountsMsg{kind: msgRemovePosition, removePosition: owner, removePositionReply: reply}
	res := <-reply
	return res.position, res.ok
}

func (c AccountsClient) SettleLiquidation(owner common.Address, removed account.Position, fills []orderbook.Trade, residualQty decimal.Decimal) {
	c.inbox <- accountsMsg{kind: msgSettleLiquidation, settleLiquidation: &settleLiquidationArgs{
		owner: owner, removed: removed, fills: fills, residualQty: residualQty,
	}}
}

// SettleFundingSweep sends one funding cadence's mark price and rate as a
// single message; Accounts walks every open position and applies the
// transfer without any other message able to land mid-sweep.
func (c AccountsClient) SettleFundingSweep(mark, rate decimal.Decimal) []common.Address {
	reply := make(chan []common.Address, 1)
	c.inbox <- accountsMsg{kind: msgSettleFundingSweep, settleFundingSweep: &settleFundingSweepArgs{mark: mark, rate: rate, reply: reply}}
	return <-reply
}

func (c AccountsClient) Deposit(owner common.Address, amount decimal.Decimal) {
	c.inbox <- accountsMsg{kind: msgDeposit, deposit: &depositArgs{owner: owner, amount: amount}}
}

func (c AccountsClient) SnapshotLedger(owner common.Address) account.Ledger {
	reply := make(chan account.Ledger, 1)
	c.inbox <- accountsMsg{kind: msgSnapshotLedger, snapshotLedger: owner, snapshotLedgerReply: reply}
	return <-reply
}
