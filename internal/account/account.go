// Package account owns every user's collateral balance and open position for
// the engine's single instrument (spec §4.2). An AccountManager is owned
// exclusively by the Accounts worker — like orderbook.OrderBook it is not
// safe for concurrent use; serialization comes from being the single
// consumer of its own message queue (spec §5).
package account

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atharvParlikar/perpetra/internal/orderbook"
)

// Position is the per-(user, instrument) state of spec §3.
type Position struct {
	Size       decimal.Decimal // signed: positive long, negative short
	EntryPrice decimal.Decimal // VWAP of the currently open contracts; undefined when Size == 0
	Margin     decimal.Decimal // collateral set aside for this position
}

func (p *Position) IsOpen() bool {
	return !p.Size.IsZero()
}

func (p *Position) IsLong() bool {
	return p.Size.IsPositive()
}

// UnrealizedPnL implements spec §4.3: size * (mark - entry), signed by
// direction (already correct for shorts since Size is negative).
func (p *Position) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	if p.Size.IsZero() {
		return decimal.Zero
	}
	return p.Size.Mul(mark.Sub(p.EntryPrice))
}

// Equity is spec's margin + unrealized PnL.
func (p *Position) Equity(mark decimal.Decimal) decimal.Decimal {
	return p.Margin.Add(p.UnrealizedPnL(mark))
}

// Reservation is collateral set aside for a resting order, per spec §4.2
// reserve_for_order. It is released verbatim on cancel/market-remainder. On a
// fill, the filled share becomes position margin where the fill opens or
// extends the position, and returns to free collateral where it reduces or
// closes it.
type Reservation struct {
	ID       uuid.UUID
	Owner    common.Address
	Side     orderbook.Side
	Price    decimal.Decimal
	Qty      decimal.Decimal
	Leverage int
	Amount   decimal.Decimal
}

// Ledger is the per-user state tracked by the manager: free collateral,
// the single instrument's open position (nil if none), and the running
// totals needed to audit the accounting identity of spec §3.
type Ledger struct {
	Owner common.Address

	Free decimal.Decimal

	Position *Position

	Reservations map[uuid.UUID]*Reservation

	RealizedPnL   decimal.Decimal
	FundingPaid   decimal.Decimal
	FundingRecvd  decimal.Decimal
	InitialDeposit decimal.Decimal
}

func NewLedger(owner common.Address) *Ledger {
	return &Ledger{
		Owner:          owner,
		Free:           decimal.Zero,
		Reservations:   make(map[uuid.UUID]*Reservation),
		RealizedPnL:    decimal.Zero,
		FundingPaid:    decimal.Zero,
		FundingRecvd:   decimal.Zero,
		InitialDeposit: decimal.Zero,
	}
}

// TotalReserved sums every open-order reservation's amount.
func (l *Ledger) TotalReserved() decimal.Decimal {
	total := decimal.Zero
	for _, r := range l.Reservations {
		total = total.Add(r.Amount)
	}
	return total
}

// TotalEncumbered is reservations plus position margin.
func (l *Ledger) TotalEncumbered() decimal.Decimal {
	total := l.TotalReserved()
	if l.Position != nil {
		total = total.Add(l.Position.Margin)
	}
	return total
}

// Validate checks the invariants of spec §3/§8.1: free >= 0, and the
// accounting identity free + encumbered == deposits + pnl - funding_paid +
// funding_received, to within one ulp at decimalScale.
func (l *Ledger) Validate(scale int32) error {
	if l.Free.IsNegative() {
		return fmt.Errorf("account %s: negative free collateral %s", l.Owner.Hex(), l.Free)
	}
	if l.Position != nil && l.Position.Margin.IsNegative() {
		return fmt.Errorf("account %s: negative position margin %s", l.Owner.Hex(), l.Position.Margin)
	}

	lhs := l.Free.Add(l.TotalEncumbered())
	rhs := l.InitialDeposit.Add(l.RealizedPnL).Sub(l.FundingPaid).Add(l.FundingRecvd)
	ulp := decimal.New(1, -scale)
	if lhs.Sub(rhs).Abs().GreaterThan(ulp) {
		return fmt.Errorf("account %s: accounting identity violated: lhs=%s rhs=%s", l.Owner.Hex(), lhs, rhs)
	}
	return nil
}
