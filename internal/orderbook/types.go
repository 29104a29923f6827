package orderbook

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is which side of the book an order rests on or crosses.
type Side int8

const (
	Bid Side = 1
	Ask Side = -1
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Opposite returns the side an order on s would match against.
func (s Side) Opposite() Side {
	return -s
}

// Kind distinguishes resting limit orders from fire-and-forget market orders.
type Kind int8

const (
	Limit Kind = iota
	Market
)

func (k Kind) String() string {
	if k == Limit {
		return "limit"
	}
	return "market"
}

// Order is a single resting or incoming order, per spec §3.
type Order struct {
	ID       uuid.UUID
	Owner    common.Address
	Side     Side
	Kind     Kind
	Price    decimal.Decimal // ignored for market orders
	Qty      decimal.Decimal // remaining quantity; strictly positive while resting
	Leverage int
	// SubmittedAt is the book clock's time at admission. Seq is the book's
	// admission sequence number. Neither is consulted when matching: time
	// priority within a price level comes from the level's FIFO list order.
	SubmittedAt time.Time
	Seq         uint64
}

// Remaining reports whether the order still has quantity to fill.
func (o *Order) Remaining() bool {
	return o.Qty.GreaterThan(decimal.Zero)
}

// Trade is emitted on every match, per spec §3.
type Trade struct {
	Seq          uint64 // book-assigned, monotonic — used as the persistence sort key
	MakerOrderID uuid.UUID
	TakerOrderID uuid.UUID
	MakerOwner   common.Address
	TakerOwner   common.Address
	MakerSide    Side
	TakerSide    Side
	Price        decimal.Decimal // always the maker's resting price
	Qty          decimal.Decimal
	Timestamp    time.Time
}

// SubmitResult is the outcome of OrderBook.Submit.
type SubmitResult struct {
	Status    SubmitStatus
	OrderID   uuid.UUID
	Fills     []Trade
	Remainder *Order // non-nil when a market order had unfilled remainder, or a partially filled limit order rested the rest; nil for a limit order that rests without any fill
}

type SubmitStatus int8

const (
	Rejected SubmitStatus = iota
	Resting
	Filled
)

// CancelResult is the outcome of OrderBook.Cancel.
type CancelResult struct {
	Status CancelStatus
	Order  *Order // the cancelled order, if found and owned by the caller
}

type CancelStatus int8

const (
	Cancelled CancelStatus = iota
	NotFound
	NotOwner
)
