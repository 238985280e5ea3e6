package engine

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/veilinghq/veiling/go/internal/auction"
	"github.com/veilinghq/veiling/go/internal/auction/events"
)

// Outbound event construction for the clock actor. All of these run on the
// actor goroutine after the state mutation committed; they only queue work
// for the engine dispatcher and never touch the network themselves.

func (a *actor) emitClockStarted(now time.Time) {
	lot := a.clock.CurrentLot()
	if lot == nil {
		return
	}
	group := a.clockGroup()
	payload := events.ClockStartedPayload{
		ClockID:       a.clock.ID.String(),
		LotID:         lot.ID.String(),
		StartingPrice: lot.StartingPrice,
		FloorPrice:    lot.FloorPrice,
		Stock:         lot.RemainingStock,
		WindowEnd:     a.clock.WindowEnd,
		StartedAt:     now,
	}
	a.engine.emit(events.TypeClockStarted, group, func(n notifier) error {
		return n.ClockStarted(group, payload)
	})

	regionGroup := events.RegionGroup(a.clock.Region)
	regionPayload := events.RegionClockStartedPayload{
		ClockID:   a.clock.ID.String(),
		Region:    a.clock.Region,
		StartedAt: now,
	}
	a.engine.emit(events.TypeRegionClockStarted, regionGroup, func(n notifier) error {
		return n.RegionClockStarted(regionGroup, regionPayload)
	})
}

func (a *actor) emitStateUpdate() {
	snap := a.snapshot()
	group := a.clockGroup()
	payload := events.ClockStateUpdatePayload{
		ClockID:        snap.ClockID.String(),
		Status:         snap.Status,
		CurrentPrice:   snap.CurrentPrice,
		RemainingStock: snap.RemainingStock,
		ViewerCount:    snap.ViewerCount,
		WindowEnd:      snap.WindowEnd,
	}
	if snap.CurrentLotID != nil {
		payload.CurrentLotID = snap.CurrentLotID.String()
	}
	a.engine.emit(events.TypeClockStateUpdate, group, func(n notifier) error {
		return n.ClockStateUpdate(group, payload)
	})
}

func (a *actor) emitBidAccepted(bid auction.BidRequest, result auction.BidResult) {
	group := a.clockGroup()
	payload := events.BidAcceptedPayload{
		ClockID:        bid.ClockID.String(),
		LotID:          bid.LotID.String(),
		BidderID:       bid.BidderID,
		Quantity:       bid.Quantity,
		ClearedPrice:   result.ClearedPrice,
		RemainingStock: result.RemainingStock,
		AcceptedAt:     bid.SubmittedAt,
	}
	a.engine.emit(events.TypeBidAccepted, group, func(n notifier) error {
		return n.BidAccepted(group, payload)
	})
}

func (a *actor) emitLotChanged(now time.Time) {
	lot := a.clock.CurrentLot()
	if lot == nil {
		return
	}
	group := a.clockGroup()
	payload := events.LotChangedPayload{
		ClockID:       a.clock.ID.String(),
		LotID:         lot.ID.String(),
		StartingPrice: lot.StartingPrice,
		Stock:         lot.RemainingStock,
		WindowEnd:     a.clock.WindowEnd,
		ChangedAt:     now,
	}
	a.engine.emit(events.TypeLotChanged, group, func(n notifier) error {
		return n.LotChanged(group, payload)
	})
	a.emitStateUpdate()
}

// emitLotConcluded signals external consumers that the current lot finished
// and the auctioneer should pick the next one.
func (a *actor) emitLotConcluded(lot *auction.Lot, at time.Time) {
	if lot == nil {
		return
	}
	group := a.clockGroup()
	payload := events.LotWaitingForNextPayload{
		ClockID:        a.clock.ID.String(),
		LotID:          lot.ID.String(),
		Reason:         lot.Conclusion,
		RemainingStock: lot.RemainingStock,
		LastBidPrice:   lot.LastBidPrice,
		UnresolvedLots: a.clock.UnresolvedCount(),
		ConcludedAt:    at,
	}
	a.engine.emit(events.TypeLotWaitingForNext, group, func(n notifier) error {
		return n.LotWaitingForNext(group, payload)
	})
}

// finish runs the terminal path: persist final state, announce the end to
// the clock and region audiences, tear down presence, and deregister.
func (a *actor) finish(now time.Time) {
	a.stopTicking()

	rec := recordOf(a.clock)
	a.engine.persistFinal(rec)

	group := a.clockGroup()
	endedPayload := events.ClockEndedPayload{
		ClockID:         a.clock.ID.String(),
		RoundsCompleted: a.clock.RoundsCompleted,
		EndedAt:         now,
	}
	a.engine.emit(events.TypeClockEnded, group, func(n notifier) error {
		return n.ClockEnded(group, endedPayload)
	})

	regionGroup := events.RegionGroup(a.clock.Region)
	regionPayload := events.RegionClockEndedPayload{
		ClockID: a.clock.ID.String(),
		Region:  a.clock.Region,
		EndedAt: now,
	}
	a.engine.emit(events.TypeRegionClockEnded, regionGroup, func(n notifier) error {
		return n.RegionClockEnded(regionGroup, regionPayload)
	})

	// Deregister first so racing Connects fail or roll back, then sweep the
	// audience: presence entries never outlive their clock.
	a.engine.remove(a.clock.ID)
	for _, connID := range a.engine.presence.ConnectionsFor(a.clock.ID) {
		if err := a.engine.Disconnect(connID); err != nil {
			log.Debug().Err(err).Str("connection_id", connID).Msg("teardown disconnect")
		}
	}

	log.Info().
		Str("clock_id", a.clock.ID.String()).
		Int("rounds", a.clock.RoundsCompleted).
		Msg("clock ended")
}
