// Package risk implements the periodic mark-price refresh, liquidation scan,
// and funding settlement of spec §4.3/§4.4. A Worker owns only a timer and
// the mark price — per spec §5 it has no access to Book's or Accounts' state
// except through their message queues.
package risk

import (
	"math/rand"

	"github.com/shopspring/decimal"
)

// Oracle is the pluggable mark-price source of spec §4.3 current_mark_price().
type Oracle interface {
	CurrentMarkPrice() decimal.Decimal
}

// SimulatedOracle implements the bounded random walk described in spec §4.3:
// step ±2%, clamped to [50000, 70000]. It is not safe for concurrent use;
// it is called only from the Risk worker's own goroutine.
type SimulatedOracle struct {
	price decimal.Decimal
	min   decimal.Decimal
	max   decimal.Decimal
	rng   *rand.Rand
}

// NewSimulatedOracle starts the walk at the given price.
func NewSimulatedOracle(start decimal.Decimal) *SimulatedOracle {
	return &SimulatedOracle{
		price: start,
		min:   decimal.NewFromInt(50000),
		max:   decimal.NewFromInt(70000),
		rng:   rand.New(rand.NewSource(1)),
	}
}

// CurrentMarkPrice advances the walk by one step and returns the new price.
func (o *SimulatedOracle) CurrentMarkPrice() decimal.Decimal {
	stepPct := (o.rng.Float64()*2 - 1) * 0.02 // uniform in [-2%, +2%]
	step := o.price.Mul(decimal.NewFromFloat(stepPct))
	next := o.price.Add(step)
	if next.LessThan(o.min) {
		next = o.min
	}
	if next.GreaterThan(o.max) {
		next = o.max
	}
	o.price = next
	return o.price
}

// StaticOracle always returns the same price, useful for deterministic
// tests of the liquidation and funding paths.
type StaticOracle struct {
	Price decimal.Decimal
}

func (o *StaticOracle) CurrentMarkPrice() decimal.Decimal { return o.Price }

// SetPrice lets tests move the mark price between ticks without
// reconstructing the oracle.
func (o *StaticOracle) SetPrice(p decimal.Decimal) { o.Price = p }
