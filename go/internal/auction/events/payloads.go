package events

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/veilinghq/veiling/go/internal/auction"
)

// Type identifies an outbound event kind.
type Type string

const (
	TypeClockStarted       Type = "ClockStarted"
	TypeClockStateUpdate   Type = "ClockStateUpdate"
	TypeBidAccepted        Type = "BidAccepted"
	TypeLotChanged         Type = "LotChanged"
	TypePriceTick          Type = "PriceTick"
	TypeLotWaitingForNext  Type = "LotWaitingForNext"
	TypeClockEnded         Type = "ClockEnded"
	TypeRegionClockStarted Type = "RegionClockStarted"
	TypeRegionClockEnded   Type = "RegionClockEnded"
	TypeViewerCountChanged Type = "ViewerCountChanged"
)

// ClockGroup names the broadcast group for a single clock's subscribers.
func ClockGroup(clockID string) string {
	return "clock." + clockID
}

// RegionGroup names the broadcast group for all clocks in a region.
func RegionGroup(r auction.Region) string {
	return fmt.Sprintf("region.%s.%s", r.Country, r.Region)
}

// ClockStartedPayload announces that a lot went on the block.
type ClockStartedPayload struct {
	ClockID       string          `json:"clock_id"`
	LotID         string          `json:"lot_id"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	FloorPrice    decimal.Decimal `json:"floor_price"`
	Stock         int             `json:"stock"`
	WindowEnd     time.Time       `json:"window_end"`
	StartedAt     time.Time       `json:"started_at"`
}

// ClockStateUpdatePayload is the full snapshot pushed on lifecycle changes
// and to late joiners.
type ClockStateUpdatePayload struct {
	ClockID        string          `json:"clock_id"`
	Status         auction.Status  `json:"status"`
	CurrentLotID   string          `json:"current_lot_id,omitempty"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	RemainingStock int             `json:"remaining_stock"`
	ViewerCount    int             `json:"viewer_count"`
	WindowEnd      time.Time       `json:"window_end"`
}

// BidAcceptedPayload announces a winning bid.
type BidAcceptedPayload struct {
	ClockID        string          `json:"clock_id"`
	LotID          string          `json:"lot_id"`
	BidderID       string          `json:"bidder_id"`
	Quantity       int             `json:"quantity"`
	ClearedPrice   decimal.Decimal `json:"cleared_price"`
	RemainingStock int             `json:"remaining_stock"`
	AcceptedAt     time.Time       `json:"accepted_at"`
}

// LotChangedPayload announces the auctioneer moving to another lot.
type LotChangedPayload struct {
	ClockID       string          `json:"clock_id"`
	LotID         string          `json:"lot_id"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	Stock         int             `json:"stock"`
	WindowEnd     time.Time       `json:"window_end"`
	ChangedAt     time.Time       `json:"changed_at"`
}

// PriceTickPayload carries one price movement.
type PriceTickPayload struct {
	ClockID  string          `json:"clock_id"`
	LotID    string          `json:"lot_id"`
	Price    decimal.Decimal `json:"price"`
	TickedAt time.Time       `json:"ticked_at"`
}

// LotWaitingForNextPayload signals that a lot concluded and the clock is
// waiting for the auctioneer.
type LotWaitingForNextPayload struct {
	ClockID        string                   `json:"clock_id"`
	LotID          string                   `json:"lot_id"`
	Reason         auction.ConclusionReason `json:"reason"`
	RemainingStock int                      `json:"remaining_stock"`
	LastBidPrice   decimal.Decimal          `json:"last_bid_price"`
	UnresolvedLots int                      `json:"unresolved_lots"`
	ConcludedAt    time.Time                `json:"concluded_at"`
}

// ClockEndedPayload announces a clock reaching its terminal state.
type ClockEndedPayload struct {
	ClockID         string    `json:"clock_id"`
	RoundsCompleted int       `json:"rounds_completed"`
	EndedAt         time.Time `json:"ended_at"`
}

// RegionClockStartedPayload tells region watchers a clock opened.
type RegionClockStartedPayload struct {
	ClockID   string         `json:"clock_id"`
	Region    auction.Region `json:"region"`
	StartedAt time.Time      `json:"started_at"`
}

// RegionClockEndedPayload tells region watchers a clock closed.
type RegionClockEndedPayload struct {
	ClockID string         `json:"clock_id"`
	Region  auction.Region `json:"region"`
	EndedAt time.Time      `json:"ended_at"`
}

// ViewerCountChangedPayload carries the live viewer count for a clock.
type ViewerCountChangedPayload struct {
	ClockID string `json:"clock_id"`
	Viewers int    `json:"viewers"`
}
