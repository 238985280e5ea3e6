package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/veilinghq/veiling/go/internal/auction"
)

// EngineAPI is what the gateway needs from the auction engine.
type EngineAPI interface {
	Connect(connectionID string, clockID uuid.UUID, viewerID string) error
	Disconnect(connectionID string) error
	JoinRegion(connectionID string, region auction.Region) error
	LeaveRegion(connectionID string, region auction.Region) error
	SubmitBid(ctx context.Context, bid auction.BidRequest) (auction.BidResult, error)
	Snapshot(ctx context.Context, clockID uuid.UUID) (auction.Snapshot, error)
}

// Service ties the hub to the engine: it upgrades viewer connections,
// forwards their commands, and replies to them directly.
type Service struct {
	hub    *Hub
	engine EngineAPI
}

func NewService(hub *Hub, engine EngineAPI) *Service {
	return &Service{hub: hub, engine: engine}
}

// RegisterRoutes mounts the gateway endpoints on a mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/clock", s.handleWebSocket)
}

// clientMessage is one inbound command from a viewer.
type clientMessage struct {
	Action   string `json:"action"` // bid, join_region, leave_region
	LotID    string `json:"lot_id,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
	Price    string `json:"price,omitempty"`
	Country  string `json:"country,omitempty"`
	Region   string `json:"region,omitempty"`
}

// clientReply answers one inbound command.
type clientReply struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

// handleWebSocket upgrades GET /ws/clock?clock_id=...&viewer_id=... and binds
// the connection to that clock for the engine's presence tracking.
func (s *Service) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clockID, err := uuid.Parse(r.URL.Query().Get("clock_id"))
	if err != nil {
		http.Error(w, "invalid clock_id", http.StatusBadRequest)
		return
	}
	viewerID := r.URL.Query().Get("viewer_id")
	if viewerID == "" {
		http.Error(w, "viewer_id required", http.StatusBadRequest)
		return
	}

	connectionID := uuid.New().String()
	watching := clockID

	conn, err := s.hub.Upgrade(w, r, connectionID, viewerID,
		func(connID string, message []byte) {
			s.handleClientMessage(connID, viewerID, watching, message)
		},
		func(connID string) {
			if err := s.engine.Disconnect(connID); err != nil {
				log.Debug().Err(err).Str("connection_id", connID).Msg("disconnect after close")
			}
		},
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	if err := s.engine.Connect(connectionID, clockID, viewerID); err != nil {
		log.Warn().Err(err).Str("clock_id", clockID.String()).Msg("connect rejected")
		conn.Conn.Close()
		return
	}

	// Late joiners get the current state immediately instead of waiting for
	// the next broadcast.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if snap, err := s.engine.Snapshot(ctx, clockID); err == nil {
		if data, err := json.Marshal(clientReply{Action: "snapshot", OK: true, Result: snap}); err == nil {
			s.hub.SendTo(connectionID, data)
		}
	}
}

func (s *Service) handleClientMessage(connectionID, viewerID string, clockID uuid.UUID, message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		s.reply(connectionID, clientReply{Action: "error", Error: "malformed message"})
		return
	}

	switch msg.Action {
	case "bid":
		s.handleBid(connectionID, viewerID, clockID, msg)

	case "join_region":
		err := s.engine.JoinRegion(connectionID, auction.Region{Country: msg.Country, Region: msg.Region})
		s.replyErr(connectionID, msg.Action, err)

	case "leave_region":
		err := s.engine.LeaveRegion(connectionID, auction.Region{Country: msg.Country, Region: msg.Region})
		s.replyErr(connectionID, msg.Action, err)

	default:
		s.reply(connectionID, clientReply{Action: msg.Action, Error: "unknown action"})
	}
}

func (s *Service) handleBid(connectionID, viewerID string, clockID uuid.UUID, msg clientMessage) {
	lotID, err := uuid.Parse(msg.LotID)
	if err != nil {
		s.reply(connectionID, clientReply{Action: "bid", Error: "invalid lot_id"})
		return
	}
	offered, err := decimal.NewFromString(msg.Price)
	if err != nil {
		s.reply(connectionID, clientReply{Action: "bid", Error: "invalid price"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := s.engine.SubmitBid(ctx, auction.BidRequest{
		ClockID:      clockID,
		LotID:        lotID,
		Quantity:     msg.Quantity,
		OfferedPrice: offered,
		SubmittedAt:  time.Now(),
		BidderID:     viewerID,
	})
	if err != nil {
		s.reply(connectionID, clientReply{Action: "bid", Error: err.Error()})
		return
	}
	s.reply(connectionID, clientReply{Action: "bid", OK: true, Result: result})
}

func (s *Service) reply(connectionID string, r clientReply) {
	data, err := json.Marshal(r)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal client reply")
		return
	}
	s.hub.SendTo(connectionID, data)
}

func (s *Service) replyErr(connectionID, action string, err error) {
	if err != nil {
		s.reply(connectionID, clientReply{Action: action, Error: err.Error()})
		return
	}
	s.reply(connectionID, clientReply{Action: action, OK: true})
}
