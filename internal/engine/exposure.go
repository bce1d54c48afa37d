package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"rangeHedger/internal/fixedpoint"
	"rangeHedger/internal/model"
	"rangeHedger/internal/univ3"
)

// ErrStalePrice reports a price observation older than the configured bound.
// It propagates instead of letting a hedge be sized on dead data.
var ErrStalePrice = errors.New("stale price")

// ExposureSnapshot is the derived, immutable view of a position at one price
// instant. Recomputed every cycle, never persisted as live state.
type ExposureSnapshot struct {
	Amount0       decimal.Decimal
	Amount1       decimal.Decimal
	ValueUSD      decimal.Decimal
	DeltaToken0   decimal.Decimal
	FullyOneSided bool
}

// Record converts the snapshot to its storage form.
func (s ExposureSnapshot) Record() *model.ExposureRecord {
	return &model.ExposureRecord{
		Amount0:       s.Amount0,
		Amount1:       s.Amount1,
		ValueUSD:      s.ValueUSD,
		DeltaToken0:   s.DeltaToken0,
		FullyOneSided: s.FullyOneSided,
	}
}

// Estimator computes position exposure. Token0 is the volatile asset: a
// positive DeltaToken0 means the position gains value as token0 rises, so a
// short of that size flattens it.
type Estimator struct {
	maxPriceAge time.Duration
}

func NewEstimator(maxPriceAge time.Duration) *Estimator {
	return &Estimator{maxPriceAge: maxPriceAge}
}

// Snapshot values the position and derives its delta at the given price.
// priceAge is how old the price observation is; beyond the configured bound
// the call fails with ErrStalePrice.
//
// Delta by region, in token0 units:
//   - below range: amount0; the position is one-sided in the volatile token
//     and each unit of price moves amount0 of value 1:1
//   - above range: 0 with FullyOneSided set; the position holds no token0
//     and its quote value no longer moves with it
//   - in range: amount0 - amount1/price; exact differentiation of the
//     closed-form amounts with respect to the sqrt price makes the quote-leg
//     coefficient exactly one, which reduces to L*(sL/P - 1/sU) in raw
//     terms: zero at the geometric midpoint of the range, strictly
//     decreasing as price rises, and continuous with the below-range region
//     at the lower bound
func (e *Estimator) Snapshot(pos model.Position, price univ3.Price, price0USD, price1USD decimal.Decimal, priceAge time.Duration) (ExposureSnapshot, error) {
	if e.maxPriceAge > 0 && priceAge > e.maxPriceAge {
		return ExposureSnapshot{}, fmt.Errorf("price age %s exceeds %s: %w", priceAge, e.maxPriceAge, ErrStalePrice)
	}
	if pos.Liquidity.Sign() < 0 {
		return ExposureSnapshot{}, fmt.Errorf("position %d: %w", pos.ID, univ3.ErrNegativeLiquidity)
	}

	amounts, err := univ3.AmountsInRange(pos.Liquidity, pos.Range, price)
	if err != nil {
		return ExposureSnapshot{}, err
	}

	snap := ExposureSnapshot{
		Amount0:  amounts.Amount0,
		Amount1:  amounts.Amount1,
		ValueUSD: amounts.ValueUSD(price0USD, price1USD),
	}

	tick, err := univ3.TickFromPrice(price)
	if err != nil {
		return ExposureSnapshot{}, err
	}

	switch {
	case tick < pos.Range.TickLower:
		snap.DeltaToken0 = amounts.Amount0
	case tick >= pos.Range.TickUpper:
		snap.DeltaToken0 = decimal.Zero
		snap.FullyOneSided = true
	default:
		snap.DeltaToken0 = amounts.Amount0.Sub(fixedpoint.Div(amounts.Amount1, price.Value))
	}

	return snap, nil
}
