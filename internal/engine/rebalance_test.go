package engine

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"rangeHedger/internal/univ3"
)

func newTestRebalancer() *Rebalancer {
	return NewRebalancer(RebalanceConfig{
		TickSpacing: 10,
		WidthBps:    100,
		SlippageBps: 50,
	})
}

func TestEvaluateNoPosition(t *testing.T) {
	r := newTestRebalancer()

	decision, err := r.Evaluate(nil, pricePoint(t, 0), univ3.Amounts{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Action != ActionAwait {
		t.Fatalf("action: got %s, want %s", decision.Action, ActionAwait)
	}
	if r.State() != StateNoPosition {
		t.Fatalf("state: got %s", r.State())
	}

	// Zero liquidity means the position is gone.
	pos := testPosition(0, -100, 100)
	decision, err = r.Evaluate(&pos, pricePoint(t, 0), univ3.Amounts{})
	if err != nil {
		t.Fatalf("evaluate zero liquidity: %v", err)
	}
	if decision.Action != ActionAwait {
		t.Fatalf("zero liquidity action: got %s", decision.Action)
	}
}

func TestEvaluateInRange(t *testing.T) {
	r := newTestRebalancer()
	pos := testPosition(1_000_000, -100, 100)

	decision, err := r.Evaluate(&pos, pricePoint(t, 0), univ3.Amounts{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Action != ActionNone {
		t.Fatalf("action: got %s, want %s", decision.Action, ActionNone)
	}
	if r.State() != StateInRange {
		t.Fatalf("state: got %s", r.State())
	}
}

func TestEvaluateLowerBoundInclusive(t *testing.T) {
	r := newTestRebalancer()
	pos := testPosition(1_000_000, -100, 100)

	decision, err := r.Evaluate(&pos, pricePoint(t, -100), univ3.Amounts{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Action != ActionNone {
		t.Fatalf("price on lower bound must be in range, got %s", decision.Action)
	}
}

func TestEvaluateUpperBoundExclusive(t *testing.T) {
	r := newTestRebalancer()
	pos := testPosition(1_000_000, -100, 100)

	decision, err := r.Evaluate(&pos, pricePoint(t, 100), univ3.Amounts{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Action != ActionRebalance {
		t.Fatalf("price on upper bound must be out of range, got %s", decision.Action)
	}
}

func TestEvaluateRebalanceInstructions(t *testing.T) {
	r := newTestRebalancer()
	pos := testPosition(1_000_000, -100, 100)
	price := pricePoint(t, 400)
	recovered := univ3.Amounts{
		Amount0: decimal.Zero,
		Amount1: decimal.RequireFromString("123.45"),
	}

	decision, err := r.Evaluate(&pos, price, recovered)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Action != ActionRebalance {
		t.Fatalf("action: got %s", decision.Action)
	}
	if r.State() != StateOutOfRange {
		t.Fatalf("state: got %s", r.State())
	}

	if decision.Decrease == nil || !decision.Decrease.LiquidityAmount.Equal(pos.Liquidity) {
		t.Fatalf("decrease must close the whole position: %+v", decision.Decrease)
	}
	if decision.Collect == nil || decision.Collect.ID != pos.ID {
		t.Fatalf("collect targets wrong position: %+v", decision.Collect)
	}
	if decision.Provide == nil {
		t.Fatal("missing provide instruction")
	}
	if !decision.Provide.Amount1.Equal(recovered.Amount1) {
		t.Fatalf("provide must redeploy recovered funds: %s", decision.Provide.Amount1)
	}
	if decision.Provide.SlippageBps != 50 {
		t.Fatalf("slippage: got %d", decision.Provide.SlippageBps)
	}

	// The new range is centered on the current price and aligned to spacing.
	tick, err := univ3.TickFromPrice(price)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !decision.NewRange.Contains(tick) {
		t.Fatalf("new range [%d, %d) excludes current tick %d",
			decision.NewRange.TickLower, decision.NewRange.TickUpper, tick)
	}
	if decision.NewRange.TickLower%10 != 0 || decision.NewRange.TickUpper%10 != 0 {
		t.Fatalf("new range [%d, %d) not aligned", decision.NewRange.TickLower, decision.NewRange.TickUpper)
	}
}

func TestEvaluateNegativeLiquidity(t *testing.T) {
	r := newTestRebalancer()
	pos := testPosition(-5, -100, 100)

	if _, err := r.Evaluate(&pos, pricePoint(t, 0), univ3.Amounts{}); !errors.Is(err, univ3.ErrNegativeLiquidity) {
		t.Fatalf("negative liquidity: got %v", err)
	}
}

func TestRebalanceLifecycle(t *testing.T) {
	r := newTestRebalancer()
	pos := testPosition(1_000_000, -100, 100)

	if _, err := r.Evaluate(&pos, pricePoint(t, 400), univ3.Amounts{}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if r.State() != StateOutOfRange {
		t.Fatalf("state: got %s", r.State())
	}

	r.BeginRebalance()
	if r.State() != StateRebalancing {
		t.Fatalf("after begin: got %s", r.State())
	}

	r.RebalanceFailed()
	if r.State() != StateOutOfRange {
		t.Fatalf("after failure: got %s", r.State())
	}

	// A retry proposes fresh bounds from the current price, not the failed
	// attempt's.
	first, err := r.ProposeRange(pricePoint(t, 400))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	second, err := r.ProposeRange(pricePoint(t, 800))
	if err != nil {
		t.Fatalf("propose after move: %v", err)
	}
	if first == second {
		t.Fatalf("retry reused stale range %+v", second)
	}

	r.BeginRebalance()
	r.ConfirmRebalance()
	if r.State() != StateInRange {
		t.Fatalf("after confirm: got %s", r.State())
	}
}

func TestConfirmProvision(t *testing.T) {
	r := newTestRebalancer()
	if r.State() != StateNoPosition {
		t.Fatalf("initial state: got %s", r.State())
	}
	r.ConfirmProvision()
	if r.State() != StateInRange {
		t.Fatalf("after provision: got %s", r.State())
	}
}

func TestRestore(t *testing.T) {
	cases := []struct {
		in, want State
	}{
		{StateInRange, StateInRange},
		{StateOutOfRange, StateOutOfRange},
		{StateNoPosition, StateNoPosition},
		// Transient state collapses so the next cycle recomputes the target.
		{StateRebalancing, StateOutOfRange},
		{State("garbage"), StateNoPosition},
	}
	for _, c := range cases {
		r := newTestRebalancer()
		r.Restore(c.in)
		if r.State() != c.want {
			t.Fatalf("restore %s: got %s, want %s", c.in, r.State(), c.want)
		}
	}
}

func TestProposeRangeRequiresWidth(t *testing.T) {
	r := NewRebalancer(RebalanceConfig{TickSpacing: 10})
	if _, err := r.ProposeRange(pricePoint(t, 0)); err == nil {
		t.Fatal("zero width accepted")
	}
}
