package auction

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Clock is one live Dutch auction cycling through an ordered queue of lots.
//
// A Clock is not safe for concurrent use. Every mutation must come from the
// single goroutine that owns it (the engine runs one actor per clock); the
// methods here are the pure state machine with no locking of their own.
type Clock struct {
	ID              uuid.UUID
	Region          Region
	Status          Status
	Lots            []*Lot
	CurrentLotIndex int // -1 when no lot is on the block
	RoundsCompleted int
	WindowStart     time.Time
	WindowEnd       time.Time

	curve PriceCurve

	// Decay anchor for the current lot: price decays from decayBase starting
	// at decayStart. A bid or a transition pause pushes decayStart forward.
	decayBase  decimal.Decimal
	decayStart time.Time

	lotDuration time.Duration
	lotPause    time.Duration
	pausedAt    time.Time
}

// NewClock builds a Scheduled clock from its full lot queue. The queue is
// fixed for the clock's lifetime; insertion order is auction order.
func NewClock(id uuid.UUID, region Region, specs []LotSpec, settings Settings) (*Clock, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("clock %s: at least one lot required", id)
	}
	lots := make([]*Lot, 0, len(specs))
	for _, spec := range specs {
		lot, err := newLot(spec)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return &Clock{
		ID:              id,
		Region:          region,
		Status:          StatusScheduled,
		Lots:            lots,
		CurrentLotIndex: -1,
		curve: PriceCurve{
			TickInterval: settings.TickInterval,
			Decrement:    settings.PriceDecrement,
			BidIncrease:  settings.BidIncrease,
			BidPause:     settings.BidPause,
		},
		lotDuration: settings.LotDuration,
		lotPause:    settings.LotPause,
	}, nil
}

// TickInterval returns the configured scheduler interval for this clock.
func (c *Clock) TickInterval() time.Duration {
	return c.curve.TickInterval
}

// CurrentLot returns the lot on the block, or nil outside Started/Paused/Stopped.
func (c *Clock) CurrentLot() *Lot {
	if c.CurrentLotIndex < 0 || c.CurrentLotIndex >= len(c.Lots) {
		return nil
	}
	return c.Lots[c.CurrentLotIndex]
}

// LotByID finds a lot in the queue.
func (c *Clock) LotByID(lotID uuid.UUID) (*Lot, error) {
	for _, lot := range c.Lots {
		if lot.ID == lotID {
			return lot, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLotNotFound, lotID)
}

// UnresolvedCount reports how many lots have not yet concluded.
func (c *Clock) UnresolvedCount() int {
	n := 0
	for _, lot := range c.Lots {
		if !lot.Resolved {
			n++
		}
	}
	return n
}

// Start opens the clock. From Scheduled it puts the first unresolved lot on
// the block; from Paused it resumes ticking with the bidding window shifted
// forward by the paused duration so no bidding time is silently lost.
func (c *Clock) Start(now time.Time) error {
	switch c.Status {
	case StatusScheduled:
		idx := c.nextUnresolvedIndex()
		if idx < 0 {
			return fmt.Errorf("%w: no unresolved lots", ErrInvalidTransition)
		}
		c.openLot(idx, now)
		return nil
	case StatusPaused:
		shift := now.Sub(c.pausedAt)
		c.WindowEnd = c.WindowEnd.Add(shift)
		c.decayStart = c.decayStart.Add(shift)
		c.pausedAt = time.Time{}
		c.Status = StatusStarted
		return nil
	default:
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, c.Status)
	}
}

// Pause freezes the price at its current value and suspends ticking.
func (c *Clock) Pause(now time.Time) error {
	if c.Status != StatusStarted {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, c.Status)
	}
	c.Tick(now)
	c.pausedAt = now
	c.Status = StatusPaused
	return nil
}

// StopLot concludes the current lot and moves the clock to Stopped, waiting
// for the auctioneer to pick the next lot or end the session.
func (c *Clock) StopLot(now time.Time, reason ConclusionReason) error {
	if c.Status != StatusStarted {
		return fmt.Errorf("%w: stop from %s", ErrInvalidTransition, c.Status)
	}
	lot := c.CurrentLot()
	if lot == nil {
		return fmt.Errorf("%w: no current lot", ErrInvalidTransition)
	}
	lot.conclude(reason)
	c.RoundsCompleted++
	c.Status = StatusStopped
	return nil
}

// ChangeLot puts the chosen unresolved lot on the block. Any unresolved lot
// may be chosen, not necessarily the next in queue order.
func (c *Clock) ChangeLot(now time.Time, lotID uuid.UUID) error {
	if c.Status != StatusStopped {
		return fmt.Errorf("%w: change lot from %s", ErrInvalidTransition, c.Status)
	}
	for i, lot := range c.Lots {
		if lot.ID != lotID {
			continue
		}
		if lot.Resolved {
			return fmt.Errorf("%w: lot %s already resolved", ErrInvalidTransition, lotID)
		}
		c.openLot(i, now)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrLotNotFound, lotID)
}

// End closes the clock for good. Legal from every non-terminal state; any
// lot still on the block is concluded as skipped.
func (c *Clock) End(now time.Time) error {
	if c.Status == StatusEnded {
		return fmt.Errorf("%w: already ended", ErrInvalidTransition)
	}
	if c.Status == StatusStarted || c.Status == StatusPaused {
		if lot := c.CurrentLot(); lot != nil && !lot.Resolved {
			lot.conclude(ConclusionSkipped)
			c.RoundsCompleted++
		}
	}
	c.CurrentLotIndex = -1
	c.Status = StatusEnded
	return nil
}

// Tick recomputes the current lot's price for the given instant. It reports
// whether the price moved, so callers can suppress redundant broadcasts once
// the clock is resting on its floor.
func (c *Clock) Tick(now time.Time) (decimal.Decimal, bool) {
	lot := c.CurrentLot()
	if lot == nil || c.Status != StatusStarted {
		return decimal.Zero, false
	}
	price := c.curve.PriceAt(c.decayBase, lot.FloorPrice, c.decayStart, now)
	changed := !price.Equal(lot.CurrentPrice)
	lot.CurrentPrice = price
	return price, changed
}

// WindowExpired reports whether the current bidding window has run out.
func (c *Clock) WindowExpired(now time.Time) bool {
	return c.Status == StatusStarted && !c.WindowEnd.IsZero() && !now.Before(c.WindowEnd)
}

// ApplyBid evaluates one bid against the clock. The price is always the live
// price recomputed for the bid's submission instant, never anything the
// client sent; a bid offering less than that price fails with ErrStalePrice.
// On success the post-bid jump and hold are applied, and the caller learns
// from the result whether the lot is now exhausted.
func (c *Clock) ApplyBid(bid BidRequest) (BidResult, error) {
	if c.Status != StatusStarted {
		return BidResult{}, fmt.Errorf("%w: clock is %s", ErrClockNotAccepting, c.Status)
	}
	lot := c.CurrentLot()
	if lot == nil {
		return BidResult{}, fmt.Errorf("%w: no current lot", ErrClockNotAccepting)
	}
	if lot.ID != bid.LotID {
		if _, err := c.LotByID(bid.LotID); err != nil {
			return BidResult{}, err
		}
		return BidResult{}, fmt.Errorf("%w: lot %s is not on the block", ErrClockNotAccepting, bid.LotID)
	}

	lot.CurrentPrice = c.curve.PriceAt(c.decayBase, lot.FloorPrice, c.decayStart, bid.SubmittedAt)

	result, err := lot.applyBid(bid.Quantity, bid.OfferedPrice)
	if err != nil {
		return BidResult{}, err
	}

	if result.LotExhausted {
		if err := c.StopLot(bid.SubmittedAt, ConclusionSoldOut); err != nil {
			return BidResult{}, err
		}
		return result, nil
	}

	// Saw-tooth rise: decay restarts from the jumped price after the bid hold.
	c.decayBase = c.curve.JumpFrom(result.ClearedPrice, lot.StartingPrice)
	c.decayStart = bid.SubmittedAt.Add(c.curve.BidPause)
	lot.CurrentPrice = c.decayBase
	return result, nil
}

// Snapshot returns a copy of the clock's public state.
func (c *Clock) Snapshot() Snapshot {
	snap := Snapshot{
		ClockID:         c.ID,
		Region:          c.Region,
		Status:          c.Status,
		RoundsCompleted: c.RoundsCompleted,
		WindowStart:     c.WindowStart,
		WindowEnd:       c.WindowEnd,
	}
	if lot := c.CurrentLot(); lot != nil {
		id := lot.ID
		snap.CurrentLotID = &id
		snap.CurrentPrice = lot.CurrentPrice
		snap.RemainingStock = lot.RemainingStock
	}
	return snap
}

func (c *Clock) nextUnresolvedIndex() int {
	for i, lot := range c.Lots {
		if !lot.Resolved {
			return i
		}
	}
	return -1
}

func (c *Clock) openLot(idx int, now time.Time) {
	lot := c.Lots[idx]
	c.CurrentLotIndex = idx
	c.WindowStart = now
	c.decayStart = now.Add(c.lotPause)
	c.WindowEnd = c.decayStart.Add(c.lotDuration)
	c.decayBase = lot.StartingPrice
	lot.CurrentPrice = lot.StartingPrice
	c.Status = StatusStarted
}
