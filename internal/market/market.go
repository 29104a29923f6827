// Package market holds the static trading parameters for the single
// instrument the engine quotes. Perpetra intentionally supports only one
// instrument per engine instance (spec Non-goals exclude cross-margining and
// multi-symbol matching) — multiple instruments means multiple engines.
package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Params describes an instrument's trading rules, adapted from the
// multi-market Market/MarketParams pair of the teacher repo and collapsed to
// a single instrument.
type Params struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string

	// TickSize is the minimum price increment; orders whose price is not an
	// exact multiple are rejected.
	TickSize decimal.Decimal
	// LotSize is the minimum quantity increment.
	LotSize decimal.Decimal

	MinOrderSize decimal.Decimal
	MaxOrderSize decimal.Decimal
	MaxPosition  decimal.Decimal
	MinNotional  decimal.Decimal

	MaxLeverage int

	// MaintenanceMarginFraction is the liquidation threshold of spec §4.3:
	// a position is insolvent once equity <= margin * this fraction.
	MaintenanceMarginFraction decimal.Decimal

	MakerFeeBps int64
	TakerFeeBps int64

	FundingInterval time.Duration
}

// Default returns parameters modelled on the teacher's HYPL-USDC defaults,
// rescaled to decimal prices and a 50x cap (spec §6 default max_leverage).
func Default(symbol, base, quote string) Params {
	return Params{
		Symbol:                    symbol,
		BaseAsset:                 base,
		QuoteAsset:                quote,
		TickSize:                  decimal.New(1, -2),   // 0.01
		LotSize:                   decimal.New(1, -4),   // 0.0001
		MinOrderSize:              decimal.New(1, -4),
		MaxOrderSize:              decimal.NewFromInt(1000),
		MaxPosition:               decimal.NewFromInt(10000),
		MinNotional:               decimal.NewFromInt(10),
		MaxLeverage:               50,
		MaintenanceMarginFraction: decimal.New(5, -2), // 0.05
		MakerFeeBps:               0,
		TakerFeeBps:               0,
		FundingInterval:           time.Hour,
	}
}

// ValidateOrder checks a resting-eligible order's price/quantity against the
// instrument's tick/lot/notional rules. When isMarket is true only the
// quantity rules are checked; price, tick size and notional are skipped.
func (p Params) ValidateOrder(price, qty decimal.Decimal, isMarket bool) error {
	if qty.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("quantity must be positive, got %s", qty)
	}
	if !p.LotSize.IsZero() && !modZero(qty, p.LotSize) {
		return fmt.Errorf("quantity %s is not a multiple of lot size %s", qty, p.LotSize)
	}
	if !p.MinOrderSize.IsZero() && qty.LessThan(p.MinOrderSize) {
		return fmt.Errorf("quantity %s below minimum order size %s", qty, p.MinOrderSize)
	}
	if !p.MaxOrderSize.IsZero() && qty.GreaterThan(p.MaxOrderSize) {
		return fmt.Errorf("quantity %s exceeds maximum order size %s", qty, p.MaxOrderSize)
	}
	if isMarket {
		return nil
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("price must be positive, got %s", price)
	}
	if !p.TickSize.IsZero() && !modZero(price, p.TickSize) {
		return fmt.Errorf("price %s is not a multiple of tick size %s", price, p.TickSize)
	}
	if !p.MinNotional.IsZero() {
		notional := price.Mul(qty)
		if notional.LessThan(p.MinNotional) {
			return fmt.Errorf("notional %s below minimum %s", notional, p.MinNotional)
		}
	}
	return nil
}

// RequiredMargin implements spec §4.2: q * p / L.
func RequiredMargin(price, qty decimal.Decimal, leverage int) decimal.Decimal {
	if leverage <= 0 {
		leverage = 1
	}
	return price.Mul(qty).Div(decimal.NewFromInt(int64(leverage)))
}

func modZero(v, step decimal.Decimal) bool {
	if step.IsZero() {
		return true
	}
	return v.Div(step).Mod(decimal.NewFromInt(1)).IsZero()
}
