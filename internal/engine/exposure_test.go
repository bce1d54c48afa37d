package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rangeHedger/internal/model"
	"rangeHedger/internal/univ3"
)

func pricePoint(t *testing.T, tick int32) univ3.Price {
	t.Helper()
	price, err := univ3.PriceFromTick(tick, 6, 6)
	if err != nil {
		t.Fatalf("price at tick %d: %v", tick, err)
	}
	return price
}

func testPosition(liquidity int64, lower, upper int32) model.Position {
	return model.Position{
		ID:        1,
		Range:     univ3.Range{TickLower: lower, TickUpper: upper},
		Liquidity: decimal.New(liquidity, 0),
	}
}

func TestSnapshotDeltaZeroAtMidpoint(t *testing.T) {
	estimator := NewEstimator(time.Minute)
	pos := testPosition(1_000_000_000, -600, 600)

	// Tick 0 is the geometric midpoint of a symmetric range; the position's
	// token0 leg and token1 leg offset exactly and the net delta vanishes.
	snap, err := estimator.Snapshot(pos, pricePoint(t, 0), decimal.NewFromInt(1), decimal.NewFromInt(1), 0)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.DeltaToken0.Abs().GreaterThan(decimal.New(1, -20)) {
		t.Fatalf("midpoint delta: got %s, want ~0", snap.DeltaToken0)
	}
	if snap.FullyOneSided {
		t.Fatal("midpoint snapshot flagged one-sided")
	}
}

func TestSnapshotDeltaMonotonicInPrice(t *testing.T) {
	estimator := NewEstimator(time.Minute)
	pos := testPosition(1_000_000_000, -600, 600)

	var prev decimal.Decimal
	for i, tick := range []int32{-599, -300, 0, 300, 599} {
		snap, err := estimator.Snapshot(pos, pricePoint(t, tick), decimal.NewFromInt(1), decimal.NewFromInt(1), 0)
		if err != nil {
			t.Fatalf("snapshot at %d: %v", tick, err)
		}
		if i > 0 && !snap.DeltaToken0.LessThan(prev) {
			t.Fatalf("delta not decreasing at tick %d: %s then %s", tick, prev, snap.DeltaToken0)
		}
		prev = snap.DeltaToken0
	}
}

func TestSnapshotBelowRange(t *testing.T) {
	estimator := NewEstimator(time.Minute)
	pos := testPosition(1_000_000_000, 100, 700)

	snap, err := estimator.Snapshot(pos, pricePoint(t, 0), decimal.NewFromInt(1), decimal.NewFromInt(1), 0)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Amount1.Sign() != 0 {
		t.Fatalf("below range holds token1: %s", snap.Amount1)
	}
	if !snap.DeltaToken0.Equal(snap.Amount0) {
		t.Fatalf("below range delta %s != amount0 %s", snap.DeltaToken0, snap.Amount0)
	}
	if snap.DeltaToken0.Sign() <= 0 {
		t.Fatalf("below range delta must be positive, got %s", snap.DeltaToken0)
	}
	if snap.FullyOneSided {
		t.Fatal("below range flagged one-sided")
	}
}

func TestSnapshotAboveRange(t *testing.T) {
	estimator := NewEstimator(time.Minute)
	pos := testPosition(1_000_000_000, -700, -100)

	snap, err := estimator.Snapshot(pos, pricePoint(t, 0), decimal.NewFromInt(1), decimal.NewFromInt(1), 0)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Amount0.Sign() != 0 {
		t.Fatalf("above range holds token0: %s", snap.Amount0)
	}
	if snap.DeltaToken0.Sign() != 0 {
		t.Fatalf("above range delta: got %s, want 0", snap.DeltaToken0)
	}
	if !snap.FullyOneSided {
		t.Fatal("above range not flagged one-sided")
	}
}

func TestSnapshotUpperBoundExclusive(t *testing.T) {
	estimator := NewEstimator(time.Minute)
	pos := testPosition(1_000_000_000, -600, 600)

	// Exactly on the upper bound counts as above range.
	snap, err := estimator.Snapshot(pos, pricePoint(t, 600), decimal.NewFromInt(1), decimal.NewFromInt(1), 0)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.FullyOneSided {
		t.Fatal("upper bound price not treated as above range")
	}
}

func TestSnapshotStalePrice(t *testing.T) {
	estimator := NewEstimator(time.Minute)
	pos := testPosition(1_000_000_000, -600, 600)

	_, err := estimator.Snapshot(pos, pricePoint(t, 0), decimal.NewFromInt(1), decimal.NewFromInt(1), 2*time.Minute)
	if !errors.Is(err, ErrStalePrice) {
		t.Fatalf("stale price: got %v", err)
	}
}

func TestSnapshotNegativeLiquidity(t *testing.T) {
	estimator := NewEstimator(time.Minute)
	pos := testPosition(-1, -600, 600)

	_, err := estimator.Snapshot(pos, pricePoint(t, 0), decimal.NewFromInt(1), decimal.NewFromInt(1), 0)
	if !errors.Is(err, univ3.ErrNegativeLiquidity) {
		t.Fatalf("negative liquidity: got %v", err)
	}
}

func TestSnapshotValueUSD(t *testing.T) {
	estimator := NewEstimator(time.Minute)
	pos := testPosition(1_000_000_000, -700, -100)

	// Fully token1 above the range, so the USD value is amount1 times the
	// token1 price.
	snap, err := estimator.Snapshot(pos, pricePoint(t, 0), decimal.NewFromInt(2), decimal.NewFromInt(1), 0)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.ValueUSD.Equal(snap.Amount1) {
		t.Fatalf("value: got %s, want %s", snap.ValueUSD, snap.Amount1)
	}
}
