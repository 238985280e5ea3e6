package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/veilinghq/veiling/go/internal/auction"
	"github.com/veilinghq/veiling/go/internal/auction/events"
	"github.com/veilinghq/veiling/go/internal/auction/notify"
	"github.com/veilinghq/veiling/go/internal/auction/presence"
)

type notifier = notify.Notifier

// GroupTransport is what the engine needs from the push transport to manage
// broadcast-group membership. The transport never decides who belongs to a
// group; the engine tells it.
type GroupTransport interface {
	AddToGroup(connectionID, group string)
	RemoveFromGroup(connectionID, group string)
}

// ClockRecord is the durable form of a clock: what the store keeps while a
// clock is unresolved and what the engine writes back once it ends. Only
// final state is durable; tick history never touches the store.
type ClockRecord struct {
	ID              uuid.UUID      `json:"id"`
	Region          auction.Region `json:"region"`
	Status          auction.Status `json:"status"`
	RoundsCompleted int            `json:"rounds_completed"`
	Lots            []auction.Lot  `json:"lots"`
}

// Store is the persistence collaborator. Optional: a nil store means the
// engine runs purely in memory.
type Store interface {
	LoadUnresolved(ctx context.Context) ([]ClockRecord, error)
	SaveClock(ctx context.Context, rec ClockRecord) error
	SaveFinal(ctx context.Context, rec ClockRecord) error
}

type emission struct {
	kind  events.Type
	group string
	send  func(notifier) error
}

// Engine coordinates every live clock: lifecycle, bid submission, lot
// transitions, presence, and outbound notifications. Each clock runs on its
// own actor goroutine; the engine's registry is the only state shared across
// clocks and it hides behind its own narrow lock.
type Engine struct {
	wall     clockwork.Clock
	settings auction.Settings
	notifier notify.Notifier
	groups   GroupTransport
	presence *presence.Registry
	store    Store

	mu     sync.RWMutex
	actors map[uuid.UUID]*actor

	emitCh chan emission

	// shutdown is closed once when Run's context is canceled; every actor
	// selects on it, so actors registered before Run starts still stop.
	shutdown chan struct{}
}

// Options configures a new Engine. Notifier is required; Groups and Store
// may be nil.
type Options struct {
	Wall     clockwork.Clock
	Settings auction.Settings
	Notifier notify.Notifier
	Groups   GroupTransport
	Store    Store
}

func New(opts Options) *Engine {
	wall := opts.Wall
	if wall == nil {
		wall = clockwork.NewRealClock()
	}
	return &Engine{
		wall:     wall,
		settings: opts.Settings,
		notifier: opts.Notifier,
		groups:   opts.Groups,
		presence: presence.NewRegistry(),
		store:    opts.Store,
		actors:   make(map[uuid.UUID]*actor),
		emitCh:   make(chan emission, 1024),
		shutdown: make(chan struct{}),
	}
}

// Presence exposes the live-count registry for read-side consumers.
func (e *Engine) Presence() *presence.Registry {
	return e.presence
}

// Run drives the notification dispatcher until ctx is canceled, then stops
// every clock actor. Run is called once per engine. Notification delivery
// happens here, strictly after the owning actor committed its state change,
// so a slow sink can never stall bidding or ticking.
func (e *Engine) Run(ctx context.Context) error {
	log.Info().Msg("auction engine started")
	for {
		select {
		case <-ctx.Done():
			close(e.shutdown)
			log.Info().Msg("auction engine shutting down")
			return nil
		case em := <-e.emitCh:
			if err := em.send(e.notifier); err != nil {
				// Delivery failures are the transport's problem to retry;
				// state has already moved on.
				log.Warn().
					Err(err).
					Str("event_type", string(em.kind)).
					Str("group", em.group).
					Msg("notification delivery failed")
			}
		}
	}
}

// Hydrate loads every unresolved clock from the store and registers it, so a
// restarted process resumes with the same registry it went down with.
func (e *Engine) Hydrate(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	records, err := e.store.LoadUnresolved(ctx)
	if err != nil {
		return fmt.Errorf("load unresolved clocks: %w", err)
	}
	for _, rec := range records {
		specs := make([]auction.LotSpec, 0, len(rec.Lots))
		for _, lot := range rec.Lots {
			if lot.Resolved || lot.RemainingStock == 0 {
				continue
			}
			specs = append(specs, auction.LotSpec{
				ID:            lot.ID,
				Stock:         lot.RemainingStock,
				StartingPrice: lot.StartingPrice,
				FloorPrice:    lot.FloorPrice,
			})
		}
		if len(specs) == 0 {
			continue
		}
		clock, err := auction.NewClock(rec.ID, rec.Region, specs, e.settings)
		if err != nil {
			log.Error().Err(err).Str("clock_id", rec.ID.String()).Msg("skipping unloadable clock")
			continue
		}
		e.register(clock)
		log.Info().
			Str("clock_id", rec.ID.String()).
			Int("lots", len(specs)).
			Msg("rehydrated clock")
	}
	return nil
}

// CreateClock registers a new Scheduled clock with its full lot queue.
func (e *Engine) CreateClock(ctx context.Context, region auction.Region, lots []auction.LotSpec) (auction.Snapshot, error) {
	clock, err := auction.NewClock(uuid.New(), region, lots, e.settings)
	if err != nil {
		return auction.Snapshot{}, err
	}
	if e.store != nil {
		if err := e.store.SaveClock(ctx, recordOf(clock)); err != nil {
			return auction.Snapshot{}, fmt.Errorf("persist clock: %w", err)
		}
	}
	e.register(clock)
	log.Info().
		Str("clock_id", clock.ID.String()).
		Str("country", region.Country).
		Str("region", region.Region).
		Int("lots", len(lots)).
		Msg("clock created")
	return clock.Snapshot(), nil
}

// Start opens a Scheduled clock or resumes a Paused one.
func (e *Engine) Start(ctx context.Context, clockID uuid.UUID) (auction.Snapshot, error) {
	r, err := e.send(ctx, clockID, command{kind: cmdStart})
	return r.snap, err
}

// Pause freezes a running clock; Start resumes it with no bidding time lost.
func (e *Engine) Pause(ctx context.Context, clockID uuid.UUID) (auction.Snapshot, error) {
	r, err := e.send(ctx, clockID, command{kind: cmdPause})
	return r.snap, err
}

// Stop concludes the current lot early (skipped) and parks the clock until
// the auctioneer picks the next lot or ends the session.
func (e *Engine) Stop(ctx context.Context, clockID uuid.UUID) (auction.Snapshot, error) {
	r, err := e.send(ctx, clockID, command{kind: cmdStop})
	return r.snap, err
}

// ChangeLot puts the chosen unresolved lot on the block of a Stopped clock.
func (e *Engine) ChangeLot(ctx context.Context, clockID, lotID uuid.UUID) (auction.Snapshot, error) {
	r, err := e.send(ctx, clockID, command{kind: cmdChangeLot, lotID: lotID})
	return r.snap, err
}

// End closes a clock for good.
func (e *Engine) End(ctx context.Context, clockID uuid.UUID) (auction.Snapshot, error) {
	r, err := e.send(ctx, clockID, command{kind: cmdEnd})
	return r.snap, err
}

// SubmitBid resolves one bid against the live price at its submission
// instant. Bids racing on the same clock are processed one at a time in
// mailbox admission order; at most one mutation wins per instant.
func (e *Engine) SubmitBid(ctx context.Context, bid auction.BidRequest) (auction.BidResult, error) {
	if bid.SubmittedAt.IsZero() {
		bid.SubmittedAt = e.wall.Now()
	}
	r, err := e.send(ctx, bid.ClockID, command{kind: cmdBid, bid: bid})
	return r.bid, err
}

// Snapshot returns a consistent view of one clock, viewer count included.
func (e *Engine) Snapshot(ctx context.Context, clockID uuid.UUID) (auction.Snapshot, error) {
	r, err := e.send(ctx, clockID, command{kind: cmdSnapshot})
	return r.snap, err
}

// Connect maps a transport connection to the clock it watches. Idempotent:
// repeating an identical connect is a no-op. A connection moving between
// clocks is remapped and both viewer counts are rebroadcast.
func (e *Engine) Connect(connectionID string, clockID uuid.UUID, viewerID string) error {
	e.mu.RLock()
	_, ok := e.actors[clockID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", auction.ErrClockNotFound, clockID)
	}

	prev, err := e.presence.Connect(connectionID, clockID, viewerID)
	if err != nil {
		if errors.Is(err, presence.ErrAlreadyConnected) {
			return nil
		}
		return err
	}
	if prev != nil {
		e.removeFromGroup(connectionID, events.ClockGroup(prev.ClockID.String()))
		e.emitViewerCount(prev.ClockID)
	}
	e.addToGroup(connectionID, events.ClockGroup(clockID.String()))

	// The clock may have ended between the existence check and the presence
	// insert; its teardown sweep cannot have seen this entry, so roll it back.
	e.mu.RLock()
	_, ok = e.actors[clockID]
	e.mu.RUnlock()
	if !ok {
		_ = e.Disconnect(connectionID)
		return fmt.Errorf("%w: %s", auction.ErrClockNotFound, clockID)
	}

	e.emitViewerCount(clockID)
	return nil
}

// Disconnect drops a connection's clock and region memberships.
func (e *Engine) Disconnect(connectionID string) error {
	freed, err := e.presence.Disconnect(connectionID)
	if err != nil {
		return err
	}
	e.removeFromGroup(connectionID, events.ClockGroup(freed.ClockID.String()))
	for _, region := range freed.Regions {
		e.removeFromGroup(connectionID, events.RegionGroup(region))
	}
	e.emitViewerCount(freed.ClockID)
	return nil
}

// JoinRegion subscribes a connection to the region-wide audience.
func (e *Engine) JoinRegion(connectionID string, region auction.Region) error {
	if err := e.presence.JoinRegion(connectionID, region); err != nil {
		if errors.Is(err, presence.ErrAlreadyConnected) {
			return nil
		}
		return err
	}
	e.addToGroup(connectionID, events.RegionGroup(region))
	return nil
}

// LeaveRegion removes a connection from the region-wide audience.
func (e *Engine) LeaveRegion(connectionID string, region auction.Region) error {
	if err := e.presence.LeaveRegion(connectionID, region); err != nil {
		return err
	}
	e.removeFromGroup(connectionID, events.RegionGroup(region))
	return nil
}

func (e *Engine) register(clock *auction.Clock) {
	a := newActor(e, clock)
	e.mu.Lock()
	e.actors[clock.ID] = a
	e.mu.Unlock()
	go a.run()
}

func (e *Engine) remove(clockID uuid.UUID) {
	e.mu.Lock()
	delete(e.actors, clockID)
	e.mu.Unlock()
}

// send delivers one command to a clock's actor and waits for its reply. The
// wait is bounded by ctx; an actor that terminated while the command was in
// flight answers with ErrClockNotFound.
func (e *Engine) send(ctx context.Context, clockID uuid.UUID, cmd command) (reply, error) {
	e.mu.RLock()
	a, ok := e.actors[clockID]
	e.mu.RUnlock()
	if !ok {
		return reply{}, fmt.Errorf("%w: %s", auction.ErrClockNotFound, clockID)
	}

	cmd.reply = make(chan reply, 1)
	select {
	case a.mailbox <- cmd:
	case <-a.done:
		return reply{}, fmt.Errorf("%w: %s", auction.ErrClockNotFound, clockID)
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}

	select {
	case r := <-cmd.reply:
		return r, r.err
	case <-a.done:
		// The actor may have answered just before exiting.
		select {
		case r := <-cmd.reply:
			return r, r.err
		default:
			return reply{}, fmt.Errorf("%w: %s", auction.ErrClockNotFound, clockID)
		}
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

// emit queues a notification for asynchronous dispatch. Never blocks: when
// the queue is full the event is dropped with a warning, since delivery is
// at-least-once on the transport's terms anyway and state must keep moving.
func (e *Engine) emit(kind events.Type, group string, send func(notifier) error) {
	select {
	case e.emitCh <- emission{kind: kind, group: group, send: send}:
	default:
		log.Warn().
			Str("event_type", string(kind)).
			Str("group", group).
			Msg("notification queue full, dropping event")
	}
}

func (e *Engine) emitViewerCount(clockID uuid.UUID) {
	group := events.ClockGroup(clockID.String())
	count := e.presence.CountFor(clockID)
	e.emit(events.TypeViewerCountChanged, group, func(n notifier) error {
		return n.ViewerCountChanged(group, events.ViewerCountChangedPayload{
			ClockID: clockID.String(),
			Viewers: count,
		})
	})
}

func (e *Engine) addToGroup(connectionID, group string) {
	if e.groups != nil {
		e.groups.AddToGroup(connectionID, group)
	}
}

func (e *Engine) removeFromGroup(connectionID, group string) {
	if e.groups != nil {
		e.groups.RemoveFromGroup(connectionID, group)
	}
}

// persistFinal writes a finished clock's terminal state. Failures are logged
// and bounded; they never reach back into clock state.
func (e *Engine) persistFinal(rec ClockRecord) {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.SaveFinal(ctx, rec); err != nil {
		log.Error().Err(err).Str("clock_id", rec.ID.String()).Msg("failed to persist final clock state")
	}
}

func recordOf(c *auction.Clock) ClockRecord {
	lots := make([]auction.Lot, 0, len(c.Lots))
	for _, lot := range c.Lots {
		lots = append(lots, *lot)
	}
	return ClockRecord{
		ID:              c.ID,
		Region:          c.Region,
		Status:          c.Status,
		RoundsCompleted: c.RoundsCompleted,
		Lots:            lots,
	}
}
