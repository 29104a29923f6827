package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atharvParlikar/perpetra/internal/account"
	"github.com/atharvParlikar/perpetra/internal/market"
	"github.com/atharvParlikar/perpetra/internal/orderbook"
)

// Errors surfaced at the API boundary, per spec §7's error-kind taxonomy.
var (
	ErrValidation            = errors.New("validation error")
	ErrInsufficientCollateral = account.ErrInsufficientCollateral
	ErrUnknownOrder          = errors.New("unknown order")
	ErrNotOwner              = errors.New("not owner")
)

// OrderRequest is the Gateway-facing shape of an inbound order, already
// authenticated (Owner is the address recovered from the JWT `sub` claim by
// SPEC_FULL §6's auth layer).
type OrderRequest struct {
	Owner    common.Address
	Side     orderbook.Side
	Kind     orderbook.Kind
	Price    decimal.Decimal
	Qty      decimal.Decimal
	Leverage int
}

// OrderOutcome mirrors spec §4.1's submit() result plus the order id Gateway
// hands back to the caller.
type OrderOutcome struct {
	OrderID uuid.UUID
	Status  orderbook.SubmitStatus
	Fills   []orderbook.Trade
}

// Gateway implements spec §4.5: validates, reserves margin, dispatches to
// Book, then settles the resulting fills — the full control-flow chain of
// spec §2 ("Gateway → Accounts → Book → Accounts → Gateway"). It holds no
// mutable state of its own; everything it touches belongs to Accounts or
// Book and is reached only through their clients.
type Gateway struct {
	params   market.Params
	accounts AccountsClient
	book     BookClient
	log      Logger

	onTrade func(orderbook.Trade)
}

func NewGateway(params market.Params, accounts AccountsClient, book BookClient, log Logger) *Gateway {
	return &Gateway{params: params, accounts: accounts, book: book, log: log}
}

// validate implements spec §4.5's field checks.
func (g *Gateway) validate(req OrderRequest) error {
	if req.Leverage < 1 || req.Leverage > g.params.MaxLeverage {
		return fmt.Errorf("%w: leverage %d out of range [1, %d]", ErrValidation, req.Leverage, g.params.MaxLeverage)
	}
	if req.Side != orderbook.Bid && req.Side != orderbook.Ask {
		return fmt.Errorf("%w: invalid side", ErrValidation)
	}
	if req.Kind != orderbook.Limit && req.Kind != orderbook.Market {
		return fmt.Errorf("%w: invalid order kind", ErrValidation)
	}
	if err := g.params.ValidateOrder(req.Price, req.Qty, req.Kind == orderbook.Market); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}
	return nil
}

// SubmitOrder runs the full pipeline of spec §2 for one incoming order. The
// order's own id is reused as its reservation id in Accounts, so a trade's
// MakerOrderID/TakerOrderID always doubles as the reservation id to settle —
// no separate correlation table is needed.
func (g *Gateway) SubmitOrder(req OrderRequest) (OrderOutcome, error) {
	if err := g.validate(req); err != nil {
		return OrderOutcome{}, err
	}

	orderID := uuid.New()
	reservePrice := req.Price
	if req.Kind == orderbook.Market {
		// spec §4.2: the taker's reservation is computed at its limit price
		// "or absent, for market" — we choose to reserve at the current
		// opposite best price rather than skip reservation entirely, so a
		// market order can never open a position with zero margin set aside.
		// Fills at worse levels further into the book are still margined at
		// this reserved price.
		top := g.book.TopOfBook()
		var best *decimal.Decimal
		if req.Side == orderbook.Bid {
			best = top.BestAsk
		} else {
			best = top.BestBid
		}
		if best == nil {
			// No opposing liquidity: the order will fill nothing, so no
			// reservation is needed at all.
			result := g.book.Submit(&orderbook.Order{
				ID: orderID, Owner: req.Owner, Side: req.Side, Kind: req.Kind,
				Qty: req.Qty, Leverage: req.Leverage,
			})
			return OrderOutcome{OrderID: result.OrderID, Status: result.Status, Fills: result.Fills}, nil
		}
		reservePrice = *best
	}

	if err := g.accounts.ReserveForOrder(orderID, req.Owner, req.Side, reservePrice, req.Qty, req.Leverage); err != nil {
		return OrderOutcome{}, err
	}

	order := &orderbook.Order{
		ID:       orderID,
		Owner:    req.Owner,
		Side:     req.Side,
		Kind:     req.Kind,
		Price:    req.Price,
		Qty:      req.Qty,
		Leverage: req.Leverage,
	}

	result := g.book.Submit(order)
	g.settle(result, orderID, req.Owner)

	return OrderOutcome{OrderID: result.OrderID, Status: result.Status, Fills: result.Fills}, nil
}

// settle folds every fill this order produced back into Accounts (spec §2's
// second Accounts hop) and releases the reservation left for a market
// order's discarded remainder.
func (g *Gateway) settle(result *orderbook.SubmitResult, takerReservationID uuid.UUID, taker common.Address) {
	for _, t := range result.Fills {
		g.accounts.SettleFill(t, t.MakerOrderID, takerReservationID)
	}

	if result.Remainder != nil && result.Remainder.Qty.IsPositive() && result.Remainder.Kind == orderbook.Market {
		// spec §4.1 step 3: market remainder is dropped and its reservation
		// released.
		g.accounts.ReleaseReservation(taker, takerReservationID)
	}
}

// CancelOrder implements spec §4.1's cancel(order_id, user_id).
func (g *Gateway) CancelOrder(owner common.Address, orderID uuid.UUID) (decimal.Decimal, error) {
	result := g.book.Cancel(orderID, owner)
	switch result.Status {
	case orderbook.NotFound:
		return decimal.Zero, ErrUnknownOrder
	case orderbook.NotOwner:
		return decimal.Zero, ErrNotOwner
	}

	ledgerBefore := g.accounts.SnapshotLedger(owner)
	g.accounts.ReleaseReservation(owner, orderID)
	ledgerAfter := g.accounts.SnapshotLedger(owner)
	refunded := ledgerAfter.Free.Sub(ledgerBefore.Free)
	return refunded, nil
}

// Deposit credits collateral to a user's ledger (the external bridge
// collaborator of spec §1).
func (g *Gateway) Deposit(owner common.Address, amount decimal.Decimal) {
	g.accounts.Deposit(owner, amount)
}
