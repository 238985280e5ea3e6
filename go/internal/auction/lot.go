package auction

import (
	"fmt"

	"github.com/shopspring/decimal"
)

func newLot(spec LotSpec) (*Lot, error) {
	if spec.Stock <= 0 {
		return nil, fmt.Errorf("lot %s: stock must be positive", spec.ID)
	}
	if spec.FloorPrice.IsNegative() || spec.StartingPrice.LessThan(spec.FloorPrice) {
		return nil, fmt.Errorf("lot %s: need startingPrice >= floorPrice >= 0", spec.ID)
	}
	return &Lot{
		ID:             spec.ID,
		InitialStock:   spec.Stock,
		RemainingStock: spec.Stock,
		StartingPrice:  spec.StartingPrice,
		FloorPrice:     spec.FloorPrice,
		CurrentPrice:   spec.StartingPrice,
	}, nil
}

// applyBid settles one bid at the lot's current price. The caller must have
// recomputed CurrentPrice for the bid's submission instant first, and must
// hold exclusive ownership of the lot.
func (l *Lot) applyBid(quantity int, offered decimal.Decimal) (BidResult, error) {
	if quantity <= 0 {
		return BidResult{}, fmt.Errorf("%w: quantity %d", ErrInsufficientStock, quantity)
	}
	if quantity > l.RemainingStock {
		return BidResult{}, fmt.Errorf("%w: want %d, have %d", ErrInsufficientStock, quantity, l.RemainingStock)
	}
	if offered.LessThan(l.CurrentPrice) {
		return BidResult{}, fmt.Errorf("%w: offered %s, asking %s", ErrStalePrice, offered, l.CurrentPrice)
	}

	// The clock stops exactly at the price the buyer accepted, which is the
	// displayed price at the instant of acceptance.
	l.RemainingStock -= quantity
	l.LastBidPrice = l.CurrentPrice

	return BidResult{
		ClearedPrice:   l.CurrentPrice,
		RemainingStock: l.RemainingStock,
		LotExhausted:   l.RemainingStock == 0,
	}, nil
}

func (l *Lot) conclude(reason ConclusionReason) {
	l.Resolved = true
	l.Conclusion = reason
}
