// Package orderbook implements the price-time-priority limit order book and
// matching algorithm of spec §4.1. An OrderBook is owned exclusively by a
// single Book worker (see internal/engine) — per spec §5 there are no locks
// on the hot path, so this type is deliberately not safe for concurrent use.
package orderbook

import (
	"container/heap"
	"container/list"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atharvParlikar/perpetra/internal/util"
)

// PriceLevel is a FIFO queue of resting orders at one price. The invariant
// from spec §3 — every level holds at least one order, empty levels are
// removed immediately — is maintained by OrderBook, never by PriceLevel
// itself.
type PriceLevel struct {
	Price  decimal.Decimal
	orders *list.List // of *Order, head = oldest = first to match
}

// TotalQty sums the remaining quantity of every order resting at this level.
func (pl *PriceLevel) TotalQty() decimal.Decimal {
	total := decimal.Zero
	for e := pl.orders.Front(); e != nil; e = e.Next() {
		total = total.Add(e.Value.(*Order).Qty)
	}
	return total
}

type indexEntry struct {
	side Side
	el   *list.Element
}

// OrderBook is the single-instrument book: two maps from price to level,
// ordered through a max-heap of bid prices and a min-heap of ask prices,
// plus an id index for O(1) lookup and O(1) intrusive-list removal on cancel.
type OrderBook struct {
	bids map[string]*PriceLevel
	asks map[string]*PriceLevel

	bidHeap maxPriceHeap
	askHeap minPriceHeap

	index map[uuid.UUID]*indexEntry

	lastPrice decimal.Decimal
	seq       uint64
}

func NewOrderBook() *OrderBook {
	ob := &OrderBook{
		bids:  make(map[string]*PriceLevel),
		asks:  make(map[string]*PriceLevel),
		index: make(map[uuid.UUID]*indexEntry),
	}
	heap.Init(&ob.bidHeap)
	heap.Init(&ob.askHeap)
	return ob
}

func priceKey(p decimal.Decimal) string {
	return p.String()
}

// BestBid returns the highest resting bid price, if any.
func (ob *OrderBook) BestBid() (decimal.Decimal, bool) {
	if ob.bidHeap.Len() == 0 {
		return decimal.Zero, false
	}
	return ob.bidHeap[0], true
}

// BestAsk returns the lowest resting ask price, if any.
func (ob *OrderBook) BestAsk() (decimal.Decimal, bool) {
	if ob.askHeap.Len() == 0 {
		return decimal.Zero, false
	}
	return ob.askHeap[0], true
}

// TopOfBook implements spec §4.1 top_of_book().
func (ob *OrderBook) TopOfBook() (bestBid, bestAsk *decimal.Decimal) {
	if p, ok := ob.BestBid(); ok {
		bestBid = &p
	}
	if p, ok := ob.BestAsk(); ok {
		bestAsk = &p
	}
	return
}

// nextSeq assigns the book's next monotonic sequence number, shared by order
// admissions and trades. Ties within a price level are broken by the level's
// FIFO list order, not by this number.
func (ob *OrderBook) nextSeq() uint64 {
	ob.seq++
	return ob.seq
}

func (ob *OrderBook) levelsFor(side Side) map[string]*PriceLevel {
	if side == Bid {
		return ob.bids
	}
	return ob.asks
}

func (ob *OrderBook) rest(o *Order) {
	levels := ob.levelsFor(o.Side)
	key := priceKey(o.Price)
	level, ok := levels[key]
	if !ok {
		level = &PriceLevel{Price: o.Price, orders: list.New()}
		levels[key] = level
		if o.Side == Bid {
			heap.Push(&ob.bidHeap, o.Price)
		} else {
			heap.Push(&ob.askHeap, o.Price)
		}
	}
	el := level.orders.PushBack(o)
	ob.index[o.ID] = &indexEntry{side: o.Side, el: el}
}

func (ob *OrderBook) removeEmptyLevel(side Side, price decimal.Decimal) {
	key := priceKey(price)
	levels := ob.levelsFor(side)
	level, ok := levels[key]
	if !ok || level.orders.Len() > 0 {
		return
	}
	delete(levels, key)
	if side == Bid {
		removeFromHeap(&ob.bidHeap, price)
	} else {
		removeFromHeap(&ob.askHeap, price)
	}
}

func removeFromHeap(h heap.Interface, price decimal.Decimal) {
	switch hh := h.(type) {
	case *maxPriceHeap:
		for i, p := range *hh {
			if p.Equal(price) {
				heap.Remove(hh, i)
				return
			}
		}
	case *minPriceHeap:
		for i, p := range *hh {
			if p.Equal(price) {
				heap.Remove(hh, i)
				return
			}
		}
	}
}

// crosses reports whether an incoming order on side with the given limit
// price (ignored for market orders) would match against the current best
// opposing level, per the predicate in spec §4.1 step 1.
func crosses(side Side, isMarket bool, price, oppositeBest decimal.Decimal) bool {
	if isMarket {
		return true
	}
	if side == Bid {
		return oppositeBest.LessThanOrEqual(price)
	}
	return oppositeBest.GreaterThanOrEqual(price)
}

// Submit runs the matching algorithm of spec §4.1 for a new incoming order.
// clock.Now is the trade timestamp source; tests pin a fixed clock for
// determinism.
func (ob *OrderBook) Submit(o *Order, clock util.Clock) *SubmitResult {
	o.Seq = ob.nextSeq()
	o.SubmittedAt = clock.Now()

	opposite := o.Side.Opposite()
	isMarket := o.Kind == Market

	var fills []Trade
	for o.Remaining() {
		var bestPrice decimal.Decimal
		var ok bool
		if opposite == Bid {
			bestPrice, ok = ob.BestBid()
		} else {
			bestPrice, ok = ob.BestAsk()
		}
		if !ok || !crosses(o.Side, isMarket, o.Price, bestPrice) {
			break
		}

		levels := ob.levelsFor(opposite)
		level := levels[priceKey(bestPrice)]
		front := level.orders.Front()
		maker := front.Value.(*Order)

		qty := decimal.Min(o.Qty, maker.Qty)
		o.Qty = o.Qty.Sub(qty)
		maker.Qty = maker.Qty.Sub(qty)

		trade := Trade{
			Seq:          ob.nextSeq(),
			MakerOrderID: maker.ID,
			TakerOrderID: o.ID,
			MakerOwner:   maker.Owner,
			TakerOwner:   o.Owner,
			MakerSide:    maker.Side,
			TakerSide:    o.Side,
			Price:        bestPrice, // maker's resting price, spec §3/§4.1 step 2
			Qty:          qty,
			Timestamp:    clock.Now(),
		}
		fills = append(fills, trade)
		ob.lastPrice = bestPrice

		if !maker.Remaining() {
			level.orders.Remove(front)
			delete(ob.index, maker.ID)
			ob.removeEmptyLevel(opposite, bestPrice)
		}
		// else: maker stays at the head, still FIFO-correct in place.
	}

	result := &SubmitResult{OrderID: o.ID, Fills: fills}

	if o.Remaining() {
		if isMarket {
			result.Status = Filled
			remainder := *o
			result.Remainder = &remainder
		} else {
			ob.rest(o)
			if len(fills) == 0 {
				result.Status = Resting
			} else {
				result.Status = Filled
				remainder := *o
				result.Remainder = &remainder
			}
		}
	} else {
		result.Status = Filled
	}

	return result
}

// Cancel implements spec §4.1 cancel(order_id, user_id): owner mismatch
// returns NotOwner without revealing whether the order exists on the book.
func (ob *OrderBook) Cancel(id uuid.UUID, owner common.Address) CancelResult {
	entry, ok := ob.index[id]
	if !ok {
		return CancelResult{Status: NotFound}
	}

	levels := ob.levelsFor(entry.side)
	order := entry.el.Value.(*Order)
	if order.Owner != owner {
		return CancelResult{Status: NotOwner}
	}

	price := order.Price
	level := levels[priceKey(price)]
	level.orders.Remove(entry.el)
	delete(ob.index, id)
	ob.removeEmptyLevel(entry.side, price)

	return CancelResult{Status: Cancelled, Order: order}
}

// Lookup returns the resting order for id without mutating the book.
func (ob *OrderBook) Lookup(id uuid.UUID) (*Order, bool) {
	entry, ok := ob.index[id]
	if !ok {
		return nil, false
	}
	return entry.el.Value.(*Order), true
}

// BidLevels returns all bid price levels, best (highest) first.
func (ob *OrderBook) BidLevels() []PriceLevel {
	out := make([]PriceLevel, 0, len(ob.bids))
	prices := append(maxPriceHeap{}, ob.bidHeap...)
	for prices.Len() > 0 {
		p := heap.Pop(&prices).(decimal.Decimal)
		level := ob.bids[priceKey(p)]
		out = append(out, PriceLevel{Price: p, orders: level.orders})
	}
	return out
}

// AskLevels returns all ask price levels, best (lowest) first.
func (ob *OrderBook) AskLevels() []PriceLevel {
	out := make([]PriceLevel, 0, len(ob.asks))
	prices := append(minPriceHeap{}, ob.askHeap...)
	for prices.Len() > 0 {
		p := heap.Pop(&prices).(decimal.Decimal)
		level := ob.asks[priceKey(p)]
		out = append(out, PriceLevel{Price: p, orders: level.orders})
	}
	return out
}

// LastPrice returns the most recent trade price, or false before the first
// trade. Risk takes its mark price from the oracle only, not from here.
func (ob *OrderBook) LastPrice() (decimal.Decimal, bool) {
	if ob.lastPrice.IsZero() {
		return decimal.Zero, false
	}
	return ob.lastPrice, true
}

// MidPrice returns the mid of best bid/ask, or false if the book is one-sided
// or empty.
func (ob *OrderBook) MidPrice() (decimal.Decimal, bool) {
	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2)), true
}
