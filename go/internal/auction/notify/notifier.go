package notify

import (
	"github.com/rs/zerolog/log"
	"github.com/veilinghq/veiling/go/internal/auction/events"
)

// Notifier is the outbound push channel the engine talks to. One method per
// event kind; the first argument is always the broadcast group the event is
// addressed to. Implementations own delivery (WebSocket hub, message bus,
// test stub); the engine only decides what goes to which group.
type Notifier interface {
	ClockStarted(group string, p events.ClockStartedPayload) error
	ClockStateUpdate(group string, p events.ClockStateUpdatePayload) error
	BidAccepted(group string, p events.BidAcceptedPayload) error
	LotChanged(group string, p events.LotChangedPayload) error
	PriceTick(group string, p events.PriceTickPayload) error
	LotWaitingForNext(group string, p events.LotWaitingForNextPayload) error
	ClockEnded(group string, p events.ClockEndedPayload) error
	RegionClockStarted(group string, p events.RegionClockStartedPayload) error
	RegionClockEnded(group string, p events.RegionClockEndedPayload) error
	ViewerCountChanged(group string, p events.ViewerCountChangedPayload) error
}

// Fanout delivers every event to each wrapped Notifier. A failing sink is
// logged and skipped so one slow transport never starves the others.
type Fanout []Notifier

func (f Fanout) each(kind events.Type, group string, fn func(Notifier) error) error {
	for _, n := range f {
		if err := fn(n); err != nil {
			log.Warn().
				Err(err).
				Str("event_type", string(kind)).
				Str("group", group).
				Msg("notification sink failed")
		}
	}
	return nil
}

func (f Fanout) ClockStarted(group string, p events.ClockStartedPayload) error {
	return f.each(events.TypeClockStarted, group, func(n Notifier) error { return n.ClockStarted(group, p) })
}

func (f Fanout) ClockStateUpdate(group string, p events.ClockStateUpdatePayload) error {
	return f.each(events.TypeClockStateUpdate, group, func(n Notifier) error { return n.ClockStateUpdate(group, p) })
}

func (f Fanout) BidAccepted(group string, p events.BidAcceptedPayload) error {
	return f.each(events.TypeBidAccepted, group, func(n Notifier) error { return n.BidAccepted(group, p) })
}

func (f Fanout) LotChanged(group string, p events.LotChangedPayload) error {
	return f.each(events.TypeLotChanged, group, func(n Notifier) error { return n.LotChanged(group, p) })
}

func (f Fanout) PriceTick(group string, p events.PriceTickPayload) error {
	return f.each(events.TypePriceTick, group, func(n Notifier) error { return n.PriceTick(group, p) })
}

func (f Fanout) LotWaitingForNext(group string, p events.LotWaitingForNextPayload) error {
	return f.each(events.TypeLotWaitingForNext, group, func(n Notifier) error { return n.LotWaitingForNext(group, p) })
}

func (f Fanout) ClockEnded(group string, p events.ClockEndedPayload) error {
	return f.each(events.TypeClockEnded, group, func(n Notifier) error { return n.ClockEnded(group, p) })
}

func (f Fanout) RegionClockStarted(group string, p events.RegionClockStartedPayload) error {
	return f.each(events.TypeRegionClockStarted, group, func(n Notifier) error { return n.RegionClockStarted(group, p) })
}

func (f Fanout) RegionClockEnded(group string, p events.RegionClockEndedPayload) error {
	return f.each(events.TypeRegionClockEnded, group, func(n Notifier) error { return n.RegionClockEnded(group, p) })
}

func (f Fanout) ViewerCountChanged(group string, p events.ViewerCountChangedPayload) error {
	return f.each(events.TypeViewerCountChanged, group, func(n Notifier) error { return n.ViewerCountChanged(group, p) })
}
