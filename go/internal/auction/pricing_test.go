package auction

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPriceCurve_LinearDecay(t *testing.T) {
	// The 20s window example: 10.00 -> 2.00, 50ms ticks, 0.02 per tick.
	curve := PriceCurve{
		TickInterval: 50 * time.Millisecond,
		Decrement:    d("0.02"),
	}
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		elapsed time.Duration
		want    string
	}{
		{0, "10.00"},
		{-time.Second, "10.00"}, // before decay starts the price holds
		{5 * time.Second, "8.00"},
		{10 * time.Second, "6.00"},
		{20 * time.Second, "2.00"},
		{30 * time.Second, "2.00"}, // clamped at the floor
	}
	for _, tc := range cases {
		got := curve.PriceAt(d("10.00"), d("2.00"), start, start.Add(tc.elapsed))
		assert.True(t, got.Equal(d(tc.want)), "elapsed %s: got %s, want %s", tc.elapsed, got, tc.want)
	}
}

func TestPriceCurve_PartialTickDoesNotMove(t *testing.T) {
	curve := PriceCurve{TickInterval: 50 * time.Millisecond, Decrement: d("0.02")}
	start := time.Now()

	got := curve.PriceAt(d("10.00"), d("2.00"), start, start.Add(49*time.Millisecond))
	assert.True(t, got.Equal(d("10.00")))

	got = curve.PriceAt(d("10.00"), d("2.00"), start, start.Add(50*time.Millisecond))
	assert.True(t, got.Equal(d("9.98")))
}

func TestPriceCurve_Idempotent(t *testing.T) {
	curve := PriceCurve{TickInterval: 50 * time.Millisecond, Decrement: d("0.02")}
	start := time.Now()
	at := start.Add(7 * time.Second)

	first := curve.PriceAt(d("10.00"), d("2.00"), start, at)
	second := curve.PriceAt(d("10.00"), d("2.00"), start, at)
	assert.True(t, first.Equal(second))
}

func TestPriceCurve_JumpFrom(t *testing.T) {
	curve := PriceCurve{BidIncrease: d("0.50")}

	jumped := curve.JumpFrom(d("6.00"), d("10.00"))
	assert.True(t, jumped.Equal(d("6.50")))

	// The jump never climbs above the lot's original starting price.
	capped := curve.JumpFrom(d("9.80"), d("10.00"))
	assert.True(t, capped.Equal(d("10.00")))
}

func TestDecrementFor(t *testing.T) {
	dec := DecrementFor(d("10.00"), d("2.00"), 20*time.Second, 50*time.Millisecond)
	require.True(t, dec.Equal(d("0.02")), "got %s", dec)

	assert.True(t, DecrementFor(d("10.00"), d("2.00"), 0, 50*time.Millisecond).IsZero())
}
