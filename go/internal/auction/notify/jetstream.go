package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
	"github.com/veilinghq/veiling/go/internal/auction/events"
)

// JetStreamConfig holds connection and stream settings for the NATS sink.
type JetStreamConfig struct {
	URL            string
	StreamName     string
	SubjectPrefix  string
	MaxReconnects  int
	ReconnectWait  time.Duration
	MaxAge         time.Duration
	PublishTimeout time.Duration
}

// DefaultJetStreamConfig returns the settings used outside of tests.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:            nats.DefaultURL,
		StreamName:     "AUCTION_EVENTS",
		SubjectPrefix:  "auction.events",
		MaxReconnects:  -1,
		ReconnectWait:  2 * time.Second,
		MaxAge:         24 * time.Hour,
		PublishTimeout: 5 * time.Second,
	}
}

// JetStreamNotifier publishes auction events to a NATS JetStream stream, one
// subject per (group, event kind) pair. It is the bus-facing implementation
// of Notifier; the WebSocket gateway is the browser-facing one.
type JetStreamNotifier struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamNotifier(cfg JetStreamConfig) (*JetStreamNotifier, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	n := &JetStreamNotifier{nc: nc, js: js, config: cfg}
	if err := n.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return n, nil
}

func (n *JetStreamNotifier) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        n.config.StreamName,
		Description: "Dutch-clock auction event stream",
		Subjects:    []string{fmt.Sprintf("%s.>", n.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      n.config.MaxAge,
		Storage:     jetstream.FileStorage,
	}
	if _, err := n.js.Stream(ctx, n.config.StreamName); err != nil {
		if _, err := n.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", n.config.StreamName).Msg("created JetStream stream")
	}
	return nil
}

// Close drains the underlying connection.
func (n *JetStreamNotifier) Close() {
	if err := n.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("NATS drain failed")
	}
}

func (n *JetStreamNotifier) publish(kind events.Type, group string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	subject := fmt.Sprintf("%s.%s.%s", n.config.SubjectPrefix, group, kind)
	ctx, cancel := context.WithTimeout(context.Background(), n.config.PublishTimeout)
	defer cancel()

	_, err = n.js.Publish(ctx, subject, data, jetstream.WithMsgID(uuid.New().String()))
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (n *JetStreamNotifier) ClockStarted(group string, p events.ClockStartedPayload) error {
	return n.publish(events.TypeClockStarted, group, p)
}

func (n *JetStreamNotifier) ClockStateUpdate(group string, p events.ClockStateUpdatePayload) error {
	return n.publish(events.TypeClockStateUpdate, group, p)
}

func (n *JetStreamNotifier) BidAccepted(group string, p events.BidAcceptedPayload) error {
	return n.publish(events.TypeBidAccepted, group, p)
}

func (n *JetStreamNotifier) LotChanged(group string, p events.LotChangedPayload) error {
	return n.publish(events.TypeLotChanged, group, p)
}

func (n *JetStreamNotifier) PriceTick(group string, p events.PriceTickPayload) error {
	return n.publish(events.TypePriceTick, group, p)
}

func (n *JetStreamNotifier) LotWaitingForNext(group string, p events.LotWaitingForNextPayload) error {
	return n.publish(events.TypeLotWaitingForNext, group, p)
}

func (n *JetStreamNotifier) ClockEnded(group string, p events.ClockEndedPayload) error {
	return n.publish(events.TypeClockEnded, group, p)
}

func (n *JetStreamNotifier) RegionClockStarted(group string, p events.RegionClockStartedPayload) error {
	return n.publish(events.TypeRegionClockStarted, group, p)
}

func (n *JetStreamNotifier) RegionClockEnded(group string, p events.RegionClockEndedPayload) error {
	return n.publish(events.TypeRegionClockEnded, group, p)
}

func (n *JetStreamNotifier) ViewerCountChanged(group string, p events.ViewerCountChangedPayload) error {
	return n.publish(events.TypeViewerCountChanged, group, p)
}
