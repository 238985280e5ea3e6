package auction

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSettings = Settings{
	TickInterval:   50 * time.Millisecond,
	PriceDecrement: decimal02,
	BidIncrease:    decimal050,
	BidPause:       2 * time.Second,
	LotPause:       0,
	LotDuration:    20 * time.Second,
}

var (
	decimal02  = d("0.02")
	decimal050 = d("0.50")
)

var t0 = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func newTestClock(t *testing.T, lots int) *Clock {
	t.Helper()
	specs := make([]LotSpec, 0, lots)
	for i := 0; i < lots; i++ {
		specs = append(specs, LotSpec{
			ID:            uuid.New(),
			Stock:         50,
			StartingPrice: d("10.00"),
			FloorPrice:    d("2.00"),
		})
	}
	clock, err := NewClock(uuid.New(), Region{Country: "NL", Region: "Aalsmeer"}, specs, testSettings)
	require.NoError(t, err)
	return clock
}

func startedClock(t *testing.T, lots int) *Clock {
	t.Helper()
	clock := newTestClock(t, lots)
	require.NoError(t, clock.Start(t0))
	return clock
}

func bidAt(clock *Clock, at time.Time, qty int, offered string) (BidResult, error) {
	return clock.ApplyBid(BidRequest{
		ClockID:      clock.ID,
		LotID:        clock.CurrentLot().ID,
		Quantity:     qty,
		OfferedPrice: d(offered),
		SubmittedAt:  at,
		BidderID:     "viewer-1",
	})
}

func TestNewClock_RequiresLots(t *testing.T) {
	_, err := NewClock(uuid.New(), Region{}, nil, testSettings)
	assert.Error(t, err)
}

func TestNewClock_RejectsBadPrices(t *testing.T) {
	_, err := NewClock(uuid.New(), Region{}, []LotSpec{{
		ID:            uuid.New(),
		Stock:         10,
		StartingPrice: d("1.00"),
		FloorPrice:    d("2.00"),
	}}, testSettings)
	assert.Error(t, err)
}

func TestClock_StartOpensFirstLot(t *testing.T) {
	clock := newTestClock(t, 2)
	require.NoError(t, clock.Start(t0))

	assert.Equal(t, StatusStarted, clock.Status)
	assert.Equal(t, 0, clock.CurrentLotIndex)
	assert.Equal(t, t0, clock.WindowStart)
	assert.Equal(t, t0.Add(20*time.Second), clock.WindowEnd)
	assert.True(t, clock.CurrentLot().CurrentPrice.Equal(d("10.00")))
}

func TestClock_IllegalTransitionsLeaveStateUnchanged(t *testing.T) {
	clock := newTestClock(t, 1)

	err := clock.Pause(t0)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, StatusScheduled, clock.Status)

	err = clock.StopLot(t0, ConclusionSkipped)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, StatusScheduled, clock.Status)

	err = clock.ChangeLot(t0, clock.Lots[0].ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, StatusScheduled, clock.Status)

	require.NoError(t, clock.Start(t0))
	err = clock.Start(t0)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, StatusStarted, clock.Status)
}

func TestClock_PauseResumeKeepsBiddingTime(t *testing.T) {
	clock := startedClock(t, 1)
	windowEnd := clock.WindowEnd

	at := t0.Add(5 * time.Second)
	require.NoError(t, clock.Pause(at))
	assert.Equal(t, StatusPaused, clock.Status)

	// Price froze at its paused value.
	frozen := clock.CurrentLot().CurrentPrice
	assert.True(t, frozen.Equal(d("8.00")), "got %s", frozen)

	resumeAt := at.Add(30 * time.Second)
	require.NoError(t, clock.Start(resumeAt))
	assert.Equal(t, StatusStarted, clock.Status)
	assert.Equal(t, windowEnd.Add(30*time.Second), clock.WindowEnd)

	// Decay picks up where it left off, not further along.
	price, _ := clock.Tick(resumeAt)
	assert.True(t, price.Equal(d("8.00")), "got %s", price)
}

func TestClock_BidAtCurrentPrice(t *testing.T) {
	clock := startedClock(t, 1)

	at := t0.Add(10 * time.Second)
	result, err := bidAt(clock, at, 20, "6.00")
	require.NoError(t, err)

	assert.True(t, result.ClearedPrice.Equal(d("6.00")))
	assert.Equal(t, 30, result.RemainingStock)
	assert.False(t, result.LotExhausted)

	lot := clock.CurrentLot()
	assert.Equal(t, 30, lot.RemainingStock)
	assert.True(t, lot.LastBidPrice.Equal(d("6.00")))

	// Saw-tooth: price jumped to cleared + increase and holds through the
	// bid pause before decaying again.
	assert.True(t, lot.CurrentPrice.Equal(d("6.50")))
	price, _ := clock.Tick(at.Add(time.Second))
	assert.True(t, price.Equal(d("6.50")), "got %s", price)
	price, _ = clock.Tick(at.Add(2*time.Second + 50*time.Millisecond))
	assert.True(t, price.Equal(d("6.48")), "got %s", price)
}

func TestClock_BidAboveCurrentPriceClearsAtCurrent(t *testing.T) {
	clock := startedClock(t, 1)

	result, err := bidAt(clock, t0.Add(10*time.Second), 1, "7.25")
	require.NoError(t, err)
	assert.True(t, result.ClearedPrice.Equal(d("6.00")))
}

func TestClock_StaleBidRejected(t *testing.T) {
	clock := startedClock(t, 1)

	_, err := bidAt(clock, t0.Add(10*time.Second), 1, "5.99")
	assert.True(t, errors.Is(err, ErrStalePrice))
	assert.Equal(t, 50, clock.CurrentLot().RemainingStock)
}

func TestClock_InsufficientStockRejected(t *testing.T) {
	clock := startedClock(t, 1)

	_, err := bidAt(clock, t0.Add(time.Second), 60, "10.00")
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.Equal(t, 50, clock.CurrentLot().RemainingStock)
	assert.Equal(t, StatusStarted, clock.Status)
}

func TestClock_ExhaustingBidStopsClock(t *testing.T) {
	clock := startedClock(t, 2)
	lot := clock.CurrentLot()

	result, err := bidAt(clock, t0.Add(time.Second), 50, "10.00")
	require.NoError(t, err)
	assert.True(t, result.LotExhausted)
	assert.Equal(t, 0, result.RemainingStock)

	assert.Equal(t, StatusStopped, clock.Status)
	assert.True(t, lot.Resolved)
	assert.Equal(t, ConclusionSoldOut, lot.Conclusion)
	assert.Equal(t, 1, clock.RoundsCompleted)
	assert.Equal(t, 1, clock.UnresolvedCount())
}

func TestClock_BidAgainstStoppedClockRejected(t *testing.T) {
	clock := startedClock(t, 2)
	_, err := bidAt(clock, t0.Add(time.Second), 50, "10.00")
	require.NoError(t, err)

	_, err = clock.ApplyBid(BidRequest{
		ClockID:      clock.ID,
		LotID:        clock.Lots[1].ID,
		Quantity:     1,
		OfferedPrice: d("10.00"),
		SubmittedAt:  t0.Add(2 * time.Second),
	})
	assert.True(t, errors.Is(err, ErrClockNotAccepting))
}

func TestClock_BidForWrongLotRejected(t *testing.T) {
	clock := startedClock(t, 2)

	_, err := clock.ApplyBid(BidRequest{
		ClockID:      clock.ID,
		LotID:        clock.Lots[1].ID, // queued, not on the block
		Quantity:     1,
		OfferedPrice: d("10.00"),
		SubmittedAt:  t0.Add(time.Second),
	})
	assert.True(t, errors.Is(err, ErrClockNotAccepting))

	_, err = clock.ApplyBid(BidRequest{
		ClockID:      clock.ID,
		LotID:        uuid.New(),
		Quantity:     1,
		OfferedPrice: d("10.00"),
		SubmittedAt:  t0.Add(time.Second),
	})
	assert.True(t, errors.Is(err, ErrLotNotFound))
}

func TestClock_ChangeLotPicksAnyUnresolvedLot(t *testing.T) {
	clock := startedClock(t, 3)
	_, err := bidAt(clock, t0.Add(time.Second), 50, "10.00")
	require.NoError(t, err)
	require.Equal(t, StatusStopped, clock.Status)

	// The auctioneer may jump to the third lot directly.
	at := t0.Add(5 * time.Second)
	require.NoError(t, clock.ChangeLot(at, clock.Lots[2].ID))
	assert.Equal(t, StatusStarted, clock.Status)
	assert.Equal(t, 2, clock.CurrentLotIndex)
	assert.Equal(t, at.Add(20*time.Second), clock.WindowEnd)

	// A resolved lot can never come back on the block.
	require.NoError(t, clock.Pause(at))
	require.NoError(t, clock.Start(at))
	_, err = bidAt(clock, at.Add(time.Second), 50, "10.00")
	require.NoError(t, err)
	err = clock.ChangeLot(at.Add(2*time.Second), clock.Lots[0].ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestClock_WindowExpiry(t *testing.T) {
	clock := startedClock(t, 1)

	assert.False(t, clock.WindowExpired(t0.Add(19*time.Second)))
	assert.True(t, clock.WindowExpired(t0.Add(20*time.Second)))

	require.NoError(t, clock.StopLot(t0.Add(20*time.Second), ConclusionTimedOut))
	assert.Equal(t, StatusStopped, clock.Status)
	assert.Equal(t, ConclusionTimedOut, clock.CurrentLot().Conclusion)
	assert.Equal(t, 50, clock.CurrentLot().RemainingStock)
	assert.Equal(t, 0, clock.UnresolvedCount())
}

func TestClock_EndFromAnyState(t *testing.T) {
	clock := newTestClock(t, 1)
	require.NoError(t, clock.End(t0))
	assert.Equal(t, StatusEnded, clock.Status)

	err := clock.End(t0)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	running := startedClock(t, 2)
	require.NoError(t, running.End(t0.Add(time.Second)))
	assert.Equal(t, StatusEnded, running.Status)
	assert.Equal(t, ConclusionSkipped, running.Lots[0].Conclusion)
	assert.Nil(t, running.CurrentLot())
}

func TestClock_TickReportsChangeOnlyWhenPriceMoves(t *testing.T) {
	clock := startedClock(t, 1)

	_, changed := clock.Tick(t0.Add(50 * time.Millisecond))
	assert.True(t, changed)

	_, changed = clock.Tick(t0.Add(50 * time.Millisecond))
	assert.False(t, changed)

	// Resting on the floor: no further movement.
	price, changed := clock.Tick(t0.Add(25 * time.Second))
	assert.True(t, changed)
	assert.True(t, price.Equal(d("2.00")))
	_, changed = clock.Tick(t0.Add(26 * time.Second))
	assert.False(t, changed)
}

func TestClock_PriceBoundsHoldThroughTicksAndBids(t *testing.T) {
	clock := startedClock(t, 1)
	lot := clock.CurrentLot()

	at := t0
	for i := 0; i < 600; i++ {
		at = at.Add(50 * time.Millisecond)
		clock.Tick(at)
		assert.False(t, lot.CurrentPrice.LessThan(lot.FloorPrice))
		assert.False(t, lot.CurrentPrice.GreaterThan(lot.StartingPrice))
	}

	_, err := bidAt(clock, at, 1, "2.00")
	require.NoError(t, err)
	assert.False(t, lot.CurrentPrice.GreaterThan(lot.StartingPrice))
}

func TestClock_SnapshotReflectsCurrentLot(t *testing.T) {
	clock := startedClock(t, 2)
	snap := clock.Snapshot()

	require.NotNil(t, snap.CurrentLotID)
	assert.Equal(t, clock.CurrentLot().ID, *snap.CurrentLotID)
	assert.Equal(t, StatusStarted, snap.Status)
	assert.Equal(t, 50, snap.RemainingStock)
	assert.True(t, snap.CurrentPrice.Equal(d("10.00")))
}
