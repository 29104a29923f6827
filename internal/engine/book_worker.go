package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/atharvParlikar/perpetra/internal/orderbook"
	"github.com/atharvParlikar/perpetra/internal/util"
)

// BookWorker owns the OrderBook exclusively (spec §5 "The order book is
// owned exclusively by Book"). It reads from two queues: ordinary user
// order/cancel traffic, and a privileged liquidation queue that Risk alone
// writes to.
type BookWorker struct {
	book  *orderbook.OrderBook
	clock util.Clock

	userQueue        chan bookMsg
	liquidationQueue chan bookMsg

	onTrade      func(orderbook.Trade)
	onTopOfBook  func(TopOfBookUpdate)
}

func NewBookWorker(book *orderbook.OrderBook, clock util.Clock, queueDepth int, onTrade func(orderbook.Trade), onTopOfBook func(TopOfBookUpdate)) *BookWorker {
	return &BookWorker{
		book:             book,
		clock:            clock,
		userQueue:        make(chan bookMsg, queueDepth),
		liquidationQueue: make(chan bookMsg, queueDepth),
		onTrade:          onTrade,
		onTopOfBook:      onTopOfBook,
	}
}

// Run implements spec §5's dual-queue strict priority: "liquidation is
// drained to empty before servicing the next user order". The nested
// select — a non-blocking peek at liquidationQueue before falling into the
// blocking select — is what gives liquidation messages priority without
// starving the user queue when no liquidation is pending.
func (w *BookWorker) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case msg := <-w.liquidationQueue:
			w.handle(msg)
			continue
		default:
		}

		select {
		case <-stop:
			return
		case msg := <-w.liquidationQueue:
			w.handle(msg)
		case msg := <-w.userQueue:
			w.handle(msg)
		}
	}
}

func (w *BookWorker) handle(msg bookMsg) {
	if msg.isTopOfBook {
		bid, ask := w.book.TopOfBook()
		msg.topOfBookReply <- TopOfBookUpdate{BestBid: bid, BestAsk: ask}
		return
	}

	if msg.isCancel {
		result := w.book.Cancel(msg.cancelID, msg.cancelOwner)
		msg.cancelReply <- result
		return
	}

	result := w.book.Submit(msg.order, w.clock)
	for _, t := range result.Fills {
		if w.onTrade != nil {
			w.onTrade(t)
		}
	}
	if w.onTopOfBook != nil {
		bid, ask := w.book.TopOfBook()
		w.onTopOfBook(TopOfBookUpdate{BestBid: bid, BestAsk: ask})
	}
	msg.reply <- result
}

// BookClient is the handle Gateway and Risk use to submit orders/cancels.
type BookClient struct {
	userQueue        chan bookMsg
	liquidationQueue chan bookMsg
}

func (w *BookWorker) Client() BookClient {
	return BookClient{userQueue: w.userQueue, liquidationQueue: w.liquidationQueue}
}

// Submit enqueues an ordinary user order and blocks for its result.
func (c BookClient) Submit(order *orderbook.Order) *orderbook.SubmitResult {
	reply := make(chan *orderbook.SubmitResult, 1)
	c.userQueue <- bookMsg{order: order, reply: reply}
	return <-reply
}

// Cancel enqueues a cancel request on the user queue.
func (c BookClient) Cancel(id uuid.UUID, owner common.Address) orderbook.CancelResult {
	reply := make(chan orderbook.CancelResult, 1)
	c.userQueue <- bookMsg{isCancel: true, cancelID: id, cancelOwner: owner, cancelReply: reply}
	return <-reply
}

// TopOfBook is a read-only query, still routed through the user queue so it
// observes a consistent point in the FIFO stream of mutations (spec §5's
// single-consumer-per-queue guarantee) rather than racing Book's map/heap
// state from another goroutine.
func (c BookClient) TopOfBook() TopOfBookUpdate {
	reply := make(chan TopOfBookUpdate, 1)
	c.userQueue <- bookMsg{isTopOfBook: true, topOfBookReply: reply}
	return <-reply
}

// SubmitLiquidation implements risk.BookPort: it enqueues on the privileged
// queue so the position is closed ahead of any resting user traffic.
func (c BookClient) SubmitLiquidation(order *orderbook.Order) *orderbook.SubmitResult {
	reply := make(chan *orderbook.SubmitResult, 1)
	c.liquidationQueue <- bookMsg{order: order, reply: reply}
	return <-reply
}
