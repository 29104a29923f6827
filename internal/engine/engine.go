package engine

import (
	"github.com/shopspring/decimal"

	"github.com/atharvParlikar/perpetra/internal/account"
	"github.com/atharvParlikar/perpetra/internal/market"
	"github.com/atharvParlikar/perpetra/internal/orderbook"
	"github.com/atharvParlikar/perpetra/internal/risk"
	"github.com/atharvParlikar/perpetra/internal/util"
)

// Config bundles everything Engine needs to assemble the four workers of
// spec §2. QueueDepth is the bound on Book's and Accounts' inbound queues. A
// send to a full queue blocks until the worker drains a message; no
// rejection is returned to the caller.
type Config struct {
	Market       market.Params
	Risk         risk.Config
	QueueDepth   int
	DecimalScale int32 // spec §6 decimal_scale, default 8
	Store        *account.Store // nil disables persistence
	Oracle       risk.Oracle
	Clock        util.Clock
}

// Engine owns the four workers and the goroutines that run them. It is the
// single construction point spec §9 "Global state" describes: configuration
// is passed in here, and each worker's state is owned, not global.
type Engine struct {
	cfg Config
	log Logger

	accountsWorker *AccountsWorker
	bookWorker     *BookWorker
	riskWorker     *risk.Worker

	Gateway *Gateway

	stop chan struct{}
}

// New assembles Gateway, Book, Accounts, and Risk, wiring their clients
// together per the control-flow diagram of spec §2.
func New(cfg Config, log Logger, onTrade func(orderbook.Trade), onTopOfBook func(TopOfBookUpdate)) *Engine {
	manager := account.NewManager(cfg.Market, cfg.DecimalScale)
	accountsWorker := NewAccountsWorker(manager, cfg.Store, log, cfg.QueueDepth)

	book := orderbook.NewOrderBook()
	bookWorker := NewBookWorker(book, cfg.Clock, cfg.QueueDepth, onTrade, onTopOfBook)

	gw := NewGateway(cfg.Market, accountsWorker.Client(), bookWorker.Client(), log)

	riskWorker := risk.NewWorker(cfg.Risk, cfg.Oracle, accountsWorker.Client(), bookWorker.Client(), cfg.Clock, log)

	return &Engine{
		cfg:            cfg,
		log:            log,
		accountsWorker: accountsWorker,
		bookWorker:     bookWorker,
		riskWorker:     riskWorker,
		Gateway:        gw,
		stop:           make(chan struct{}),
	}
}

// Start restores persisted state (if a store is configured) and launches
// every worker on its own goroutine, per spec §5 "the four engine workers
// must be real OS threads so that a blocked await cannot starve matching" —
// Go's scheduler multiplexes goroutines onto OS threads, and none of these
// loops ever blocks the runtime's cooperative scheduler since they only
// suspend on channel receives.
func (e *Engine) Start() error {
	if err := e.accountsWorker.Restore(); err != nil {
		return err
	}

	go e.accountsWorker.Run(e.stop)
	go e.bookWorker.Run(e.stop)
	go e.riskWorker.Run(e.stop)

	return nil
}

// Stop signals every worker goroutine to exit after finishing its current
// message.
func (e *Engine) Stop() {
	close(e.stop)
}

// MarkPrice exposes Risk's current mark price for read-only API/WS use.
func (e *Engine) MarkPrice() decimal.Decimal {
	return e.riskWorker.MarkPrice()
}

// Accounts exposes Accounts' client handle for the read-only account/
// position REST endpoints — the same handle Gateway itself uses, so these
// queries observe the same FIFO-ordered state.
func (e *Engine) Accounts() AccountsClient {
	return e.accountsWorker.Client()
}

// Params exposes the instrument's static trading rules for GET /market.
func (e *Engine) Params() market.Params {
	return e.cfg.Market
}

// Book exposes Book's client handle for the read-only GET /orderbook
// endpoint. Only top-of-book is served through it — Non-goals exclude depth
// snapshots beyond top-of-book.
func (e *Engine) Book() BookClient {
	return e.bookWorker.Client()
}
