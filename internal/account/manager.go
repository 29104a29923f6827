package account

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atharvParlikar/perpetra/internal/market"
	"github.com/atharvParlikar/perpetra/internal/orderbook"
)

// ErrInsufficientCollateral is returned by ReserveForOrder when free
// collateral cannot cover the required margin.
var ErrInsufficientCollateral = fmt.Errorf("insufficient collateral")

// Manager implements the Accounts worker's public contract (spec §4.2). It
// owns every user's ledger; callers never see a Ledger pointer outside of
// Snapshot, which returns a value copy.
type Manager struct {
	params  market.Params
	scale   int32
	ledgers map[common.Address]*Ledger
}

func NewManager(params market.Params, decimalScale int32) *Manager {
	return &Manager{
		params:  params,
		scale:   decimalScale,
		ledgers: make(map[common.Address]*Ledger),
	}
}

func (m *Manager) ledger(owner common.Address) *Ledger {
	l, ok := m.ledgers[owner]
	if !ok {
		l = NewLedger(owner)
		m.ledgers[owner] = l
	}
	return l
}

// Deposit credits externally-sourced collateral (the bridge/on-ramp is an
// external collaborator per spec §1; this is the only entry point for new
// money into the system).
func (m *Manager) Deposit(owner common.Address, amount decimal.Decimal) {
	l := m.ledger(owner)
	l.Free = l.Free.Add(amount)
	l.InitialDeposit = l.InitialDeposit.Add(amount)
}

// ReserveForOrder implements spec §4.2 reserve_for_order: required margin for
// quantity q at price p with leverage L is q*p/L, moved from free collateral
// to a reservation. For market orders Gateway passes the current best
// opposing price, so it can reserve before it's known what the order will
// actually fill at; fills are margined at this reservation price, not at
// their own fill price.
//
// id is the reservation's identifier — Gateway always passes the order's
// own id, so a reservation and the order that created it always share one
// id and no separate lookup is needed to find a maker's reservation from a
// trade's MakerOrderID.
func (m *Manager) ReserveForOrder(id uuid.UUID, owner common.Address, side orderbook.Side, price, qty decimal.Decimal, leverage int) error {
	required := market.RequiredMargin(price, qty, leverage)

	l := m.ledger(owner)
	if l.Free.LessThan(required) {
		return ErrInsufficientCollateral
	}

	l.Free = l.Free.Sub(required)
	l.Reservations[id] = &Reservation{
		ID:       id,
		Owner:    owner,
		Side:     side,
		Price:    price,
		Qty:      qty,
		Leverage: leverage,
		Amount:   required,
	}
	return nil
}

// ReleaseReservation returns reserved margin to free collateral. Called on
// cancellation and on market-order remainders (spec §4.1 step 3, §4.2).
func (m *Manager) ReleaseReservation(owner common.Address, id uuid.UUID) {
	l := m.ledger(owner)
	r, ok := l.Reservations[id]
	if !ok {
		return
	}
	l.Free = l.Free.Add(r.Amount)
	delete(l.Reservations, id)
}

// FillSettlement is what SettleFill returns so Book/Gateway can correlate a
// fill with both counterparties' resulting reservation/margin state.
type FillSettlement struct {
	MakerRealizedPnL decimal.Decimal
	TakerRealizedPnL decimal.Decimal
}

// SettleFill implements spec §4.2's "On fill of quantity q at price p" rules
// for both counterparties of a single trade. The maker's reservation (if any
// — a maker order is always a previously-rested limit order, so it always
// has one) and the taker's reservation (Gateway reserves for every order that
// can fill, market orders included) are resolved into position margin or
// returned to free collateral.
func (m *Manager) SettleFill(trade orderbook.Trade, makerReservationID, takerReservationID uuid.UUID) FillSettlement {
	makerPnL := m.applyCounterparty(trade.MakerOwner, trade.MakerSide, trade.Price, trade.Qty, makerReservationID)
	takerPnL := m.applyCounterparty(trade.TakerOwner, trade.TakerSide, trade.Price, trade.Qty, takerReservationID)
	return FillSettlement{MakerRealizedPnL: makerPnL, TakerRealizedPnL: takerPnL}
}

// applyCounterparty applies one side of a fill to one user's position and
// reservation, and returns the realized PnL from any closing portion.
func (m *Manager) applyCounterparty(owner common.Address, side orderbook.Side, price, qty decimal.Decimal, reservationID uuid.UUID) decimal.Decimal {
	l := m.ledger(owner)

	var reservation *Reservation
	if reservationID != uuid.Nil {
		reservation = l.Reservations[reservationID]
	}

	signedQty := qty
	if side == orderbook.Ask {
		signedQty = qty.Neg()
	}

	if l.Position == nil {
		l.Position = &Position{Size: decimal.Zero, EntryPrice: decimal.Zero, Margin: decimal.Zero}
	}
	pos := l.Position

	oldSize := pos.Size
	sameDirection := oldSize.IsZero() || oldSize.Sign() == signedQty.Sign()

	var realized decimal.Decimal
	// converted is the part of this fill's reservation share that becomes
	// position margin; the rest of the share is returned to free below.
	converted := decimal.Zero

	switch {
	case sameDirection:
		// Extends (or opens) the position: the fill's margin share converts
		// from reservation to position margin; entry price becomes the VWAP.
		fillMargin := marginShare(reservation, qty)
		newSize := oldSize.Add(signedQty)
		if oldSize.IsZero() {
			pos.EntryPrice = price
		} else {
			pos.EntryPrice = vwap(oldSize, pos.EntryPrice, signedQty, price, m.scale)
		}
		pos.Size = newSize
		pos.Margin = pos.Margin.Add(fillMargin)
		converted = fillMargin
		realized = decimal.Zero

	case qty.LessThanOrEqual(oldSize.Abs()):
		// Reduces the position (spec §4.2 "reduces"): realize PnL signed by
		// the position's original side, release margin proportionally,
		// leave entry price untouched.
		realized = qty.Mul(price.Sub(pos.EntryPrice))
		if oldSize.IsNegative() {
			realized = realized.Neg()
		}
		released := decimal.Zero
		if !oldSize.IsZero() {
			released = pos.Margin.Mul(qty).Div(oldSize.Abs())
		}
		if released.GreaterThan(pos.Margin) {
			released = pos.Margin
		}
		pos.Margin = pos.Margin.Sub(released)
		if pos.Margin.IsNegative() {
			// Rounding dust: clamp to zero and fold the remainder into
			// realized PnL so total collateral is still conserved (spec
			// §4.2 "Invariant (critical)").
			dust := pos.Margin
			pos.Margin = decimal.Zero
			realized = realized.Add(dust)
		}
		pos.Size = oldSize.Add(signedQty)
		l.Free = l.Free.Add(released)
		if pos.Size.IsZero() {
			pos.EntryPrice = decimal.Zero
			l.Position = nil
		}

	default:
		// Closes and flips (spec §4.2 "closes and flips"): split into a
		// closing sub-fill (all of the existing position) and an opening
		// sub-fill (the remainder), applying each rule in turn.
		closingQty := oldSize.Abs()
		openingQty := qty.Sub(closingQty)

		realized = closingQty.Mul(price.Sub(pos.EntryPrice))
		if oldSize.IsNegative() {
			realized = realized.Neg()
		}
		l.Free = l.Free.Add(pos.Margin)

		openingSignedQty := openingQty
		if side == orderbook.Ask {
			openingSignedQty = openingQty.Neg()
		}
		pos.Size = openingSignedQty
		pos.EntryPrice = price
		pos.Margin = marginShareFromTotal(reservation, qty, openingQty)
		converted = pos.Margin
	}

	if reservation != nil {
		l.Free = l.Free.Add(marginShare(reservation, qty).Sub(converted))
		consumeReservation(l, reservation, qty)
	}

	l.Free = l.Free.Add(realized)
	l.RealizedPnL = l.RealizedPnL.Add(realized)
	return realized
}

// marginShare returns the fraction of a reservation's amount attributable to
// filling `qty` out of the reservation's total quantity.
func marginShare(r *Reservation, qty decimal.Decimal) decimal.Decimal {
	if r == nil || r.Qty.IsZero() {
		return decimal.Zero
	}
	return r.Amount.Mul(qty).Div(r.Qty)
}

// marginShareFromTotal returns the reservation-derived margin for an opening
// sub-fill of size openingQty out of a fill whose total size was totalQty.
func marginShareFromTotal(r *Reservation, totalQty, openingQty decimal.Decimal) decimal.Decimal {
	if r == nil || totalQty.IsZero() {
		return decimal.Zero
	}
	return marginShare(r, totalQty).Mul(openingQty).Div(totalQty)
}

// consumeReservation shrinks a reservation by the filled quantity, deleting
// it once exhausted, and recomputes the remaining amount at the
// reservation's own price. It moves no collateral itself: applyCounterparty
// has already turned the filled share into position margin or returned it to
// free. Because that share is computed at the reservation price, a fill at a
// better maker price keeps the difference as position margin; it is not
// returned to free.
func consumeReservation(l *Ledger, r *Reservation, qty decimal.Decimal) {
	r.Qty = r.Qty.Sub(qty)
	if r.Qty.LessThanOrEqual(decimal.Zero) {
		delete(l.Reservations, r.ID)
		return
	}
	r.Amount = market.RequiredMargin(r.Price, r.Qty, r.Leverage)
}

// vwap implements spec §4.2's volume-weighted average entry price update,
// rounded half-to-even to decimalScale fractional digits per spec §4.1
// "Numeric semantics".
func vwap(oldSize, oldEntry, sizeDelta, fillPrice decimal.Decimal, scale int32) decimal.Decimal {
	newSize := oldSize.Add(sizeDelta)
	numerator := oldSize.Abs().Mul(oldEntry).Add(sizeDelta.Abs().Mul(fillPrice))
	divisor := newSize.Abs()
	q, r := numerator.QuoRem(divisor, scale)
	// Round half to even: compare 2*r with one unit of the last kept digit
	// (divisor * 10^-scale); on an exact tie, round up only an odd quotient.
	c := r.Mul(decimal.NewFromInt(2)).Cmp(divisor.Shift(-scale))
	if c > 0 || (c == 0 && q.Shift(scale).BigInt().Bit(0) == 1) {
		q = q.Add(decimal.New(1, -scale))
	}
	return q
}

// ReleaseReservationByOrder releases whatever reservation remains for an
// order id that the caller already knows is not resting anymore (e.g. a
// market order's discarded remainder in spec §4.1 step 3).
func (m *Manager) ReleaseReservationByOrder(owner common.Address, reservationID uuid.UUID) {
	m.ReleaseReservation(owner, reservationID)
}

// SnapshotPosition implements spec §4.2 snapshot_position(user): a value
// copy so Risk never holds a pointer into the Accounts worker's state (spec
// §9 "never hold back-pointers").
func (m *Manager) SnapshotPosition(owner common.Address) (Position, bool) {
	l, ok := m.ledgers[owner]
	if !ok || l.Position == nil {
		return Position{}, false
	}
	return *l.Position, true
}

// SnapshotLedger returns a value copy of a user's whole ledger, used by the
// periodic persistence snapshot (SPEC_FULL §6 persisted state) and by tests
// asserting the accounting identity.
func (m *Manager) SnapshotLedger(owner common.Address) Ledger {
	l := m.ledger(owner)
	copyLedger := *l
	if l.Position != nil {
		pos := *l.Position
		copyLedger.Position = &pos
	}
	copyLedger.Reservations = make(map[uuid.UUID]*Reservation, len(l.Reservations))
	for id, r := range l.Reservations {
		rc := *r
		copyLedger.Reservations[id] = &rc
	}
	return copyLedger
}

// AllOwners returns every user with a ledger, used by Risk/Funding to walk
// all open positions (spec §4.3/§4.4).
func (m *Manager) AllOwners() []common.Address {
	out := make([]common.Address, 0, len(m.ledgers))
	for addr := range m.ledgers {
		out = append(out, addr)
	}
	return out
}

// PositionSnapshot pairs an owner with a value copy of their position, used
// to hand Risk a walkable snapshot without back-pointers (spec §9).
type PositionSnapshot struct {
	Owner    common.Address
	Position Position
}

// SnapshotPositions returns a value copy of every open position.
func (m *Manager) SnapshotPositions() []PositionSnapshot {
	out := make([]PositionSnapshot, 0, len(m.ledgers))
	for addr, l := range m.ledgers {
		if l.Position == nil {
			continue
		}
		out = append(out, PositionSnapshot{Owner: addr, Position: *l.Position})
	}
	return out
}

// RemovePosition implements the "retain and act" idiom of spec §9: the
// position is removed from the active set atomically with the caller
// deciding to emit a liquidation order, so a later risk tick can never
// observe it again. It returns the removed position and false if there was
// none to remove.
func (m *Manager) RemovePosition(owner common.Address) (Position, bool) {
	l, ok := m.ledgers[owner]
	if !ok || l.Position == nil {
		return Position{}, false
	}
	pos := *l.Position
	l.Position = nil
	return pos, true
}

// ReopenPosition re-registers a position, used when a liquidation market
// order only partially fills and the residual size must be re-evaluated on
// the next risk tick (spec §4.3 "Action on insolvency").
func (m *Manager) ReopenPosition(owner common.Address, pos Position) {
	l := m.ledger(owner)
	l.Position = &pos
}

// SettleLiquidation implements spec §4.3(c): "credit any residual equity to
// free when the liquidation trade(s) settle", plus the partial-fill
// re-registration of §4.3's "Action on insolvency". removed is the value
// snapshot Risk took when it pulled the position out of the active set;
// fills are the trade legs Book produced for the liquidation order;
// residualQty is what the market order could not fill (zero if fully
// filled).
func (m *Manager) SettleLiquidation(owner common.Address, removed Position, fills []orderbook.Trade, residualQty decimal.Decimal) {
	// Spec §4.2's apply_fill(trade, maker_side, taker_side) applies to every
	// trade unconditionally, liquidation-originated or not: the resting
	// counterparty on the other side of each fill settles through the exact
	// same applyCounterparty rule SettleFill uses. Only the liquidated
	// owner's own leg is special-cased below, since RemovePosition already
	// took their position out of the active set and its PnL/residual must be
	// computed against removed's original entry price rather than reopened
	// from zero the way a fresh applyCounterparty call would.
	for _, t := range fills {
		m.applyCounterparty(t.MakerOwner, t.MakerSide, t.Price, t.Qty, t.MakerOrderID)
	}

	l := m.ledger(owner)
	sign := decimal.NewFromInt(1)
	if removed.Size.IsNegative() {
		sign = decimal.NewFromInt(-1)
	}

	realized := decimal.Zero
	for _, t := range fills {
		realized = realized.Add(t.Qty.Mul(t.Price.Sub(removed.EntryPrice)).Mul(sign))
	}
	l.RealizedPnL = l.RealizedPnL.Add(realized)

	releasedMargin := removed.Margin
	if residualQty.IsPositive() && !removed.Size.IsZero() {
		residualMargin := removed.Margin.Mul(residualQty).Div(removed.Size.Abs())
		releasedMargin = removed.Margin.Sub(residualMargin)
		m.ReopenPosition(owner, Position{
			Size:       sign.Mul(residualQty),
			EntryPrice: removed.EntryPrice,
			Margin:     residualMargin,
		})
	}

	l.Free = l.Free.Add(releasedMargin).Add(realized)
	if l.Free.IsNegative() {
		l.Free = decimal.Zero
	}
}

// CreditFree adds (or, if negative, subtracts) collateral directly to free
// balance, clamping at zero. No other function in this package calls it:
// SettleLiquidation, AdjustFunding and AdjustLiquidationProceeds each update
// free collateral themselves.
func (m *Manager) CreditFree(owner common.Address, delta decimal.Decimal) {
	l := m.ledger(owner)
	l.Free = l.Free.Add(delta)
	if l.Free.IsNegative() {
		l.Free = decimal.Zero
	}
}

// applyFundingDelta implements spec §4.2 adjust_funding(user, delta)'s
// transfer rule for one ledger: delta > 0 is a payment (reduces free,
// increases FundingPaid); delta < 0 is a receipt. Both AdjustFunding and
// SettleFundingSweep route through this so the cumulative
// FundingPaid/FundingRecvd ledger entries stay consistent with the
// accounting identity of spec §3.
func applyFundingDelta(l *Ledger, delta decimal.Decimal) {
	if delta.IsPositive() {
		l.Free = l.Free.Sub(delta)
		l.FundingPaid = l.FundingPaid.Add(delta)
	} else if delta.IsNegative() {
		recv := delta.Neg()
		l.Free = l.Free.Add(recv)
		l.FundingRecvd = l.FundingRecvd.Add(recv)
	}
}

// AdjustFunding implements spec §4.2 adjust_funding(user, delta) for a
// single ledger.
func (m *Manager) AdjustFunding(owner common.Address, delta decimal.Decimal) {
	applyFundingDelta(m.ledger(owner), delta)
}

// SettleFundingSweep implements spec §4.4's funding cadence as a single walk
// over every open position, computing each position's transfer as
// size * mark * rate and applying it via applyFundingDelta. The whole sweep
// runs inside one call — and, wired through Accounts' inbox, one message —
// so no other message can land partway through it (spec §4.4/§5 "must be
// atomic in aggregate"). It returns the owners it touched, for persistence.
func (m *Manager) SettleFundingSweep(mark, rate decimal.Decimal) []common.Address {
	var touched []common.Address
	for addr, l := range m.ledgers {
		if l.Position == nil || l.Position.Size.IsZero() {
			continue
		}
		delta := l.Position.Size.Mul(mark).Mul(rate)
		applyFundingDelta(l, delta)
		touched = append(touched, addr)
	}
	return touched
}

// AdjustLiquidationProceeds implements spec §4.2
// adjust_liquidation_proceeds(user, delta): credits (or, for a deficit,
// debits) the residual equity of a liquidated position directly to free
// collateral.
func (m *Manager) AdjustLiquidationProceeds(owner common.Address, delta decimal.Decimal) {
	l := m.ledger(owner)
	l.Free = l.Free.Add(delta)
	if l.Free.IsNegative() {
		l.Free = decimal.Zero
	}
}

// Restore installs a ledger loaded from the persistence store, used once at
// startup before any worker begins processing messages.
func (m *Manager) Restore(l *Ledger) {
	m.ledgers[l.Owner] = l
}

// Validate runs the per-account invariant check of spec §8.1 over every
// known ledger.
func (m *Manager) Validate() error {
	for _, l := range m.ledgers {
		if err := l.Validate(m.scale); err != nil {
			return err
		}
	}
	return nil
}
