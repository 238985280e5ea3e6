package auction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status defines the lifecycle state of a clock.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusStarted   Status = "STARTED"
	StatusPaused    Status = "PAUSED"
	StatusStopped   Status = "STOPPED"
	StatusEnded     Status = "ENDED"
)

// ConclusionReason records why a lot left the block.
type ConclusionReason string

const (
	ConclusionSoldOut  ConclusionReason = "SOLD_OUT"
	ConclusionTimedOut ConclusionReason = "TIMED_OUT"
	ConclusionSkipped  ConclusionReason = "SKIPPED"
)

// Region identifies the country/region pair a clock broadcasts under.
type Region struct {
	Country string `json:"country"`
	Region  string `json:"region"`
}

// Settings holds the pricing and timing knobs for a clock. Supplied by the
// operator at startup; the engine never hardcodes these.
type Settings struct {
	TickInterval   time.Duration   `json:"tick_interval"`
	PriceDecrement decimal.Decimal `json:"price_decrement"`
	BidIncrease    decimal.Decimal `json:"bid_increase"`
	BidPause       time.Duration   `json:"bid_pause"`
	LotPause       time.Duration   `json:"lot_pause"`
	LotDuration    time.Duration   `json:"lot_duration"`
}

// Lot is one sellable unit in a clock's queue. Owned exclusively by its
// parent Clock; never shared across goroutines.
type Lot struct {
	ID             uuid.UUID        `json:"id"`
	InitialStock   int              `json:"initial_stock"`
	RemainingStock int              `json:"remaining_stock"`
	StartingPrice  decimal.Decimal  `json:"starting_price"`
	FloorPrice     decimal.Decimal  `json:"floor_price"`
	CurrentPrice   decimal.Decimal  `json:"current_price"`
	LastBidPrice   decimal.Decimal  `json:"last_bid_price"`
	Resolved       bool             `json:"resolved"`
	Conclusion     ConclusionReason `json:"conclusion,omitempty"`
}

// LotSpec is the operator-facing description of a lot at clock creation.
type LotSpec struct {
	ID            uuid.UUID       `json:"id"`
	Stock         int             `json:"stock"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	FloorPrice    decimal.Decimal `json:"floor_price"`
}

// BidRequest is one accept-at-current-price action by a viewer. Ephemeral;
// the engine never persists it.
type BidRequest struct {
	ClockID      uuid.UUID       `json:"clock_id"`
	LotID        uuid.UUID       `json:"lot_id"`
	Quantity     int             `json:"quantity"`
	OfferedPrice decimal.Decimal `json:"offered_price"`
	SubmittedAt  time.Time       `json:"submitted_at"`
	BidderID     string          `json:"bidder_id"`
}

// BidResult is returned to the submitter of an accepted bid.
type BidResult struct {
	ClearedPrice   decimal.Decimal `json:"cleared_price"`
	RemainingStock int             `json:"remaining_stock"`
	LotExhausted   bool            `json:"lot_exhausted"`
}

// Snapshot is a consistent public view of one clock, safe to hand to
// subscribers outside the clock's owning goroutine.
type Snapshot struct {
	ClockID         uuid.UUID       `json:"clock_id"`
	Region          Region          `json:"region"`
	Status          Status          `json:"status"`
	CurrentLotID    *uuid.UUID      `json:"current_lot_id,omitempty"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	RemainingStock  int             `json:"remaining_stock"`
	RoundsCompleted int             `json:"rounds_completed"`
	ViewerCount     int             `json:"viewer_count"`
	WindowStart     time.Time       `json:"window_start"`
	WindowEnd       time.Time       `json:"window_end"`
}
