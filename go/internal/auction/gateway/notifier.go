package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/veilinghq/veiling/go/internal/auction/events"
)

// Envelope is the wire frame for every event pushed to WebSocket clients.
type Envelope struct {
	ID        string          `json:"id"`
	Type      events.Type     `json:"type"`
	Group     string          `json:"group"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// HubNotifier is the browser-facing notification sink: it wraps payloads in
// an Envelope and fans them out to the addressed group through the hub.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (hn *HubNotifier) deliver(kind events.Type, group string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	frame, err := json.Marshal(Envelope{
		ID:        uuid.New().String(),
		Type:      kind,
		Group:     group,
		Timestamp: time.Now(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", kind, err)
	}
	hn.hub.Broadcast(group, frame)
	return nil
}

func (hn *HubNotifier) ClockStarted(group string, p events.ClockStartedPayload) error {
	return hn.deliver(events.TypeClockStarted, group, p)
}

func (hn *HubNotifier) ClockStateUpdate(group string, p events.ClockStateUpdatePayload) error {
	return hn.deliver(events.TypeClockStateUpdate, group, p)
}

func (hn *HubNotifier) BidAccepted(group string, p events.BidAcceptedPayload) error {
	return hn.deliver(events.TypeBidAccepted, group, p)
}

func (hn *HubNotifier) LotChanged(group string, p events.LotChangedPayload) error {
	return hn.deliver(events.TypeLotChanged, group, p)
}

func (hn *HubNotifier) PriceTick(group string, p events.PriceTickPayload) error {
	return hn.deliver(events.TypePriceTick, group, p)
}

func (hn *HubNotifier) LotWaitingForNext(group string, p events.LotWaitingForNextPayload) error {
	return hn.deliver(events.TypeLotWaitingForNext, group, p)
}

func (hn *HubNotifier) ClockEnded(group string, p events.ClockEndedPayload) error {
	return hn.deliver(events.TypeClockEnded, group, p)
}

func (hn *HubNotifier) RegionClockStarted(group string, p events.RegionClockStartedPayload) error {
	return hn.deliver(events.TypeRegionClockStarted, group, p)
}

func (hn *HubNotifier) RegionClockEnded(group string, p events.RegionClockEndedPayload) error {
	return hn.deliver(events.TypeRegionClockEnded, group, p)
}

func (hn *HubNotifier) ViewerCountChanged(group string, p events.ViewerCountChangedPayload) error {
	return hn.deliver(events.TypeViewerCountChanged, group, p)
}
