package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"rangeHedger/internal/fixedpoint"
	"rangeHedger/internal/model"
	"rangeHedger/internal/univ3"
)

// State of the range machine.
type State string

const (
	StateNoPosition  State = "no_position"
	StateInRange     State = "in_range"
	StateOutOfRange  State = "out_of_range"
	StateRebalancing State = "rebalancing"
)

// RangeAction names what the decision asks of the executor.
type RangeAction string

const (
	ActionNone      RangeAction = "none"
	ActionRebalance RangeAction = "rebalance"
	ActionAwait     RangeAction = "await_position"
)

// Decision is the per-cycle output of the range machine. A rebalance carries
// the full close-then-reopen instruction pair; the executor reports back via
// ConfirmRebalance or RebalanceFailed before the next cycle.
type Decision struct {
	State    State
	Action   RangeAction
	NewRange univ3.Range

	Decrease *model.DecreaseLiquidity
	Collect  *model.CollectFees
	Provide  *model.ProvideLiquidity
}

// RebalanceConfig are the immutable knobs of the range machine.
type RebalanceConfig struct {
	TickSpacing int32
	// WidthBps is the half width of a freshly opened range, in basis points
	// of the current price.
	WidthBps uint32
	// SlippageBps is forwarded into provide instructions.
	SlippageBps uint32
}

// Rebalancer tracks the position lifecycle and decides when the range must
// be recentered. It owns no external state: every Evaluate call takes a
// fresh position and price snapshot.
type Rebalancer struct {
	cfg   RebalanceConfig
	state State
}

func NewRebalancer(cfg RebalanceConfig) *Rebalancer {
	return &Rebalancer{cfg: cfg, state: StateNoPosition}
}

// State returns the current machine state.
func (r *Rebalancer) State() State {
	return r.state
}

// Restore sets the machine state, used when resuming from a state file.
// Rebalancing is transient and collapses back to OutOfRange so the next
// cycle recomputes a fresh target range.
func (r *Rebalancer) Restore(state State) {
	if state == StateRebalancing {
		state = StateOutOfRange
	}
	switch state {
	case StateNoPosition, StateInRange, StateOutOfRange:
		r.state = state
	default:
		r.state = StateNoPosition
	}
}

// Evaluate runs one decision step for the snapshot. The lower bound is
// inclusive and the upper exclusive, matching tick quantization, so a price
// exactly on the lower bound is in range and one exactly on the upper is
// not.
func (r *Rebalancer) Evaluate(pos *model.Position, price univ3.Price, recovered univ3.Amounts) (Decision, error) {
	if pos == nil || pos.Liquidity.Sign() == 0 {
		r.state = StateNoPosition
		return Decision{State: r.state, Action: ActionAwait}, nil
	}
	if pos.Liquidity.Sign() < 0 {
		return Decision{}, fmt.Errorf("position %d: %w", pos.ID, univ3.ErrNegativeLiquidity)
	}

	tick, err := univ3.TickFromPrice(price)
	if err != nil {
		return Decision{}, err
	}

	if pos.Range.Contains(tick) {
		r.state = StateInRange
		return Decision{State: r.state, Action: ActionNone}, nil
	}

	// Price left the range: close, collect, and reopen around the current
	// price. The machine stays OutOfRange until the reopen is confirmed, so
	// a failed attempt retries next cycle with freshly computed bounds.
	r.state = StateOutOfRange

	newRange, err := r.ProposeRange(price)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		State:    r.state,
		Action:   ActionRebalance,
		NewRange: newRange,
		Decrease: &model.DecreaseLiquidity{ID: pos.ID, LiquidityAmount: pos.Liquidity},
		Collect:  &model.CollectFees{ID: pos.ID},
		Provide: &model.ProvideLiquidity{
			Range:       newRange,
			Amount0:     recovered.Amount0,
			Amount1:     recovered.Amount1,
			SlippageBps: r.cfg.SlippageBps,
		},
	}, nil
}

// ProposeRange centers a new range on the given price with the configured
// width band, quantized outward to the pool's tick spacing.
func (r *Rebalancer) ProposeRange(price univ3.Price) (univ3.Range, error) {
	if r.cfg.WidthBps == 0 {
		return univ3.Range{}, fmt.Errorf("width bps is zero: %w", fixedpoint.ErrInvalidDomain)
	}

	band := decimal.New(int64(r.cfg.WidthBps), -4)
	one := decimal.New(1, 0)

	lowerPrice, err := univ3.NewPrice(price.Value.Mul(one.Sub(band)), price.Decimals0, price.Decimals1)
	if err != nil {
		return univ3.Range{}, err
	}
	upperPrice, err := univ3.NewPrice(price.Value.Mul(one.Add(band)), price.Decimals0, price.Decimals1)
	if err != nil {
		return univ3.Range{}, err
	}

	lowerTick, err := univ3.TickFromPrice(lowerPrice)
	if err != nil {
		return univ3.Range{}, err
	}
	upperTick, err := univ3.TickFromPrice(upperPrice)
	if err != nil {
		return univ3.Range{}, err
	}

	lower, err := univ3.QuantizeDown(lowerTick, r.cfg.TickSpacing)
	if err != nil {
		return univ3.Range{}, err
	}
	upper, err := univ3.QuantizeUp(upperTick, r.cfg.TickSpacing)
	if err != nil {
		return univ3.Range{}, err
	}
	if upper == lower {
		upper = lower + r.cfg.TickSpacing
	}

	return univ3.NewRange(lower, upper, r.cfg.TickSpacing)
}

// BeginRebalance marks the close+reopen pair as dispatched.
func (r *Rebalancer) BeginRebalance() {
	if r.state == StateOutOfRange {
		r.state = StateRebalancing
	}
}

// ConfirmRebalance records that the reopen was confirmed with a live
// position.
func (r *Rebalancer) ConfirmRebalance() {
	r.state = StateInRange
}

// ConfirmProvision records a successful initial provision.
func (r *Rebalancer) ConfirmProvision() {
	if r.state == StateNoPosition {
		r.state = StateInRange
	}
}

// RebalanceFailed drops the machine back to OutOfRange; the next cycle
// recomputes the target range because price may have moved again.
func (r *Rebalancer) RebalanceFailed() {
	if r.state == StateRebalancing {
		r.state = StateOutOfRange
	}
}
