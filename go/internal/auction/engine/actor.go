package engine

import (
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/veilinghq/veiling/go/internal/auction"
	"github.com/veilinghq/veiling/go/internal/auction/events"
)

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdPause
	cmdStop
	cmdChangeLot
	cmdEnd
	cmdBid
	cmdSnapshot
)

type command struct {
	kind  cmdKind
	lotID uuid.UUID
	bid   auction.BidRequest
	reply chan reply
}

type reply struct {
	snap auction.Snapshot
	bid  auction.BidResult
	err  error
}

// actor owns one clock. All mutations (bids, lifecycle commands, ticks)
// arrive as messages on its mailbox and are processed one at a time, which is
// what serializes concurrent bids against the same clock. Actors for
// different clocks share nothing, so unrelated auctions never wait on each
// other.
type actor struct {
	clock   *auction.Clock
	engine  *Engine
	mailbox chan command
	done    chan struct{}

	ticker  clockwork.Ticker
	ticking bool
}

func newActor(e *Engine, clock *auction.Clock) *actor {
	return &actor{
		clock:   clock,
		engine:  e,
		mailbox: make(chan command, 64),
		done:    make(chan struct{}),
	}
}

func (a *actor) run() {
	defer close(a.done)
	defer func() {
		if a.ticker != nil {
			a.ticker.Stop()
			a.ticker = nil
		}
	}()

	log.Debug().Str("clock_id", a.clock.ID.String()).Msg("clock actor started")

	for {
		if a.ticking {
			select {
			case <-a.engine.shutdown:
				return
			case cmd := <-a.mailbox:
				if a.handle(cmd) {
					return
				}
			case <-a.ticker.Chan():
				if a.handleTick() {
					return
				}
			}
		} else {
			select {
			case <-a.engine.shutdown:
				return
			case cmd := <-a.mailbox:
				if a.handle(cmd) {
					return
				}
			}
		}
	}
}

// handle processes one command. It returns true when the clock has reached
// its terminal state and the actor should exit.
func (a *actor) handle(cmd command) bool {
	now := a.engine.wall.Now()

	switch cmd.kind {
	case cmdStart:
		prev := a.clock.Status
		if err := a.clock.Start(now); err != nil {
			cmd.reply <- reply{err: err}
			return false
		}
		a.startTicking()
		cmd.reply <- reply{snap: a.snapshot()}
		if prev == auction.StatusScheduled {
			a.emitClockStarted(now)
		}
		a.emitStateUpdate()
		return false

	case cmdPause:
		if err := a.clock.Pause(now); err != nil {
			cmd.reply <- reply{err: err}
			return false
		}
		a.stopTicking()
		cmd.reply <- reply{snap: a.snapshot()}
		a.emitStateUpdate()
		return false

	case cmdStop:
		lot := a.clock.CurrentLot()
		if err := a.clock.StopLot(now, auction.ConclusionSkipped); err != nil {
			cmd.reply <- reply{err: err}
			return false
		}
		a.stopTicking()
		cmd.reply <- reply{snap: a.snapshot()}
		a.emitLotConcluded(lot, now)
		return a.endIfExhausted()

	case cmdChangeLot:
		if err := a.clock.ChangeLot(now, cmd.lotID); err != nil {
			cmd.reply <- reply{err: err}
			return false
		}
		a.startTicking()
		cmd.reply <- reply{snap: a.snapshot()}
		a.emitLotChanged(now)
		return false

	case cmdEnd:
		if err := a.clock.End(now); err != nil {
			cmd.reply <- reply{err: err}
			return false
		}
		cmd.reply <- reply{snap: a.snapshot()}
		a.finish(now)
		return true

	case cmdBid:
		lot := a.clock.CurrentLot()
		result, err := a.clock.ApplyBid(cmd.bid)
		if err != nil {
			cmd.reply <- reply{err: err}
			return false
		}
		cmd.reply <- reply{bid: result}
		a.emitBidAccepted(cmd.bid, result)
		if result.LotExhausted {
			a.stopTicking()
			a.emitLotConcluded(lot, cmd.bid.SubmittedAt)
			return a.endIfExhausted()
		}
		a.emitStateUpdate()
		return false

	case cmdSnapshot:
		cmd.reply <- reply{snap: a.snapshot()}
		return false
	}

	cmd.reply <- reply{err: auction.ErrInvalidTransition}
	return false
}

// handleTick runs one scheduler firing: recompute the price, broadcast it if
// it moved, and fire the time-based Started -> Stopped guard. Returns true
// when the tick ended the clock.
func (a *actor) handleTick() bool {
	now := a.engine.wall.Now()

	if a.clock.WindowExpired(now) {
		lot := a.clock.CurrentLot()
		if err := a.clock.StopLot(now, auction.ConclusionTimedOut); err != nil {
			log.Error().Err(err).Str("clock_id", a.clock.ID.String()).Msg("window expiry stop failed")
			return false
		}
		a.stopTicking()
		a.emitLotConcluded(lot, now)
		return a.endIfExhausted()
	}

	price, changed := a.clock.Tick(now)
	if !changed {
		return false
	}
	lot := a.clock.CurrentLot()
	a.engine.emit(events.TypePriceTick, a.clockGroup(), func(n notifier) error {
		return n.PriceTick(a.clockGroup(), events.PriceTickPayload{
			ClockID:  a.clock.ID.String(),
			LotID:    lot.ID.String(),
			Price:    price,
			TickedAt: now,
		})
	})
	return false
}

// endIfExhausted ends the clock automatically when a Stopped transition left
// nothing unresolved.
func (a *actor) endIfExhausted() bool {
	ts := a.engine.wall.Now()
	if a.clock.Status != auction.StatusStopped || a.clock.UnresolvedCount() > 0 {
		a.emitStateUpdate()
		return false
	}
	if err := a.clock.End(ts); err != nil {
		log.Error().Err(err).Str("clock_id", a.clock.ID.String()).Msg("auto-end failed")
		return false
	}
	a.finish(ts)
	return true
}

func (a *actor) startTicking() {
	if a.ticker == nil {
		a.ticker = a.engine.wall.NewTicker(a.clock.TickInterval())
	}
	a.ticking = true
}

// stopTicking cancels the timer outright; a clock outside Started must not
// keep a ticker firing into an undrained channel.
func (a *actor) stopTicking() {
	if a.ticker != nil {
		a.ticker.Stop()
		a.ticker = nil
	}
	a.ticking = false
}

func (a *actor) snapshot() auction.Snapshot {
	snap := a.clock.Snapshot()
	snap.ViewerCount = a.engine.presence.CountFor(a.clock.ID)
	return snap
}

func (a *actor) clockGroup() string {
	return events.ClockGroup(a.clock.ID.String())
}
