package auction

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceCurve computes the asking price of a lot at a point in time under the
// discrete tick model: the price falls by Decrement once per TickInterval
// from a base price, and never below the lot's floor. A bid resets the base
// to the cleared price plus BidIncrease and holds it there for BidPause
// before decay resumes, which produces the saw-tooth curve of a Dutch clock.
//
// All arithmetic is exact decimal; the curve is a pure function of its
// inputs so recomputing for the same instant is idempotent.
type PriceCurve struct {
	TickInterval time.Duration
	Decrement    decimal.Decimal
	BidIncrease  decimal.Decimal
	BidPause     time.Duration
}

// PriceAt returns the asking price for a decay that starts from base at
// decayStart, clamped to [floor, base]. Before decayStart (a bid hold or lot
// transition pause) the price sits at base.
func (c PriceCurve) PriceAt(base, floor decimal.Decimal, decayStart, now time.Time) decimal.Decimal {
	if base.LessThan(floor) {
		return floor
	}
	elapsed := now.Sub(decayStart)
	if elapsed <= 0 || c.TickInterval <= 0 {
		return base
	}
	ticks := int64(elapsed / c.TickInterval)
	price := base.Sub(c.Decrement.Mul(decimal.NewFromInt(ticks)))
	if price.LessThan(floor) {
		return floor
	}
	return price
}

// JumpFrom returns the post-bid base price: the cleared price plus the
// configured increase, capped at the lot's original starting price so the
// clock can never climb above where it began.
func (c PriceCurve) JumpFrom(cleared, startingPrice decimal.Decimal) decimal.Decimal {
	jumped := cleared.Add(c.BidIncrease)
	if jumped.GreaterThan(startingPrice) {
		return startingPrice
	}
	return jumped
}

// DecrementFor derives the per-tick decrement that makes the discrete curve
// trace the straight line from start to floor over the given window. Used by
// operators who configure lots in window terms rather than tick terms.
func DecrementFor(start, floor decimal.Decimal, window, tick time.Duration) decimal.Decimal {
	if window <= 0 || tick <= 0 {
		return decimal.Zero
	}
	ticks := int64(window / tick)
	if ticks <= 0 {
		return start.Sub(floor)
	}
	return start.Sub(floor).Div(decimal.NewFromInt(ticks))
}
