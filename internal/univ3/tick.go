package univ3

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"rangeHedger/internal/fixedpoint"
)

// Tick bounds of the protocol, price 2^-128 .. 2^128 on the 1.0001 grid.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// ErrInvalidTickSpacing reports a non-positive tick spacing.
var ErrInvalidTickSpacing = errors.New("invalid tick spacing")

var tickBase = decimal.RequireFromString("1.0001")

// settleSlack bounds how far the log estimate in TickFromPrice may sit from
// the true tick before the grid walk gives up.
const settleSlack = 8

// sqrtRatioAtTick returns 1.0001^(tick/2), the unscaled sqrt price at a tick.
func sqrtRatioAtTick(tick int32) (decimal.Decimal, error) {
	half := decimal.NewFromInt32(tick).Div(decimal.NewFromInt32(2))
	return fixedpoint.Pow(tickBase, half)
}

// rawPriceAtTick returns 1.0001^tick.
func rawPriceAtTick(tick int32) (decimal.Decimal, error) {
	return fixedpoint.Pow(tickBase, decimal.NewFromInt32(tick))
}

// PriceFromTick computes the human price at a tick,
// 1.0001^tick * 10^(decimals0-decimals1).
func PriceFromTick(tick int32, decimals0, decimals1 uint8) (Price, error) {
	if tick < MinTick || tick > MaxTick {
		return Price{}, fmt.Errorf("tick %d out of bounds: %w", tick, fixedpoint.ErrInvalidDomain)
	}
	raw, err := rawPriceAtTick(tick)
	if err != nil {
		return Price{}, err
	}
	shift := int32(decimals0) - int32(decimals1)
	return NewPrice(raw.Mul(fixedpoint.PowTen(shift)), decimals0, decimals1)
}

// TickFromPrice returns the greatest tick whose price does not exceed the
// given price. The logarithm is taken on the sqrt of the raw price to halve
// the exponent, matching the pool's own sqrt representation, and the result
// is verified against the exact tick prices so the round trip with
// PriceFromTick is drift free.
func TickFromPrice(price Price) (int32, error) {
	if price.Value.Sign() <= 0 {
		return 0, fmt.Errorf("price %s: %w", price.Value.String(), fixedpoint.ErrInvalidDomain)
	}

	raw := price.Raw()
	sqrtRaw, err := fixedpoint.Sqrt(raw)
	if err != nil {
		return 0, err
	}
	lnSqrt, err := fixedpoint.Ln(sqrtRaw)
	if err != nil {
		return 0, err
	}
	sqrtBase, err := fixedpoint.Sqrt(tickBase)
	if err != nil {
		return 0, err
	}
	lnBase, err := fixedpoint.Ln(sqrtBase)
	if err != nil {
		return 0, err
	}

	tick64 := fixedpoint.Div(lnSqrt, lnBase).Floor().IntPart()
	if tick64 < int64(MinTick)-settleSlack || tick64 > int64(MaxTick)+settleSlack {
		return 0, fmt.Errorf("price %s maps to tick %d out of bounds: %w", price.Value.String(), tick64, fixedpoint.ErrInvalidDomain)
	}
	if tick64 < int64(MinTick) {
		tick64 = int64(MinTick)
	}
	if tick64 > int64(MaxTick) {
		tick64 = int64(MaxTick)
	}
	tick := int32(tick64)

	// The log estimate can land one off at tick boundaries; settle it against
	// the exact grid prices.
	for i := 0; i < settleSlack && tick < MaxTick; i++ {
		next, err := rawPriceAtTick(tick + 1)
		if err != nil {
			return 0, err
		}
		if next.GreaterThan(raw) {
			break
		}
		tick++
	}
	for i := 0; i < settleSlack && tick > MinTick; i++ {
		cur, err := rawPriceAtTick(tick)
		if err != nil {
			return 0, err
		}
		if !cur.GreaterThan(raw) {
			break
		}
		tick--
	}

	// Prices outside the grid's end buckets have no valid tick.
	if tick == MinTick {
		floor, err := rawPriceAtTick(MinTick)
		if err != nil {
			return 0, err
		}
		if raw.LessThan(floor) {
			return 0, fmt.Errorf("price %s below the minimum tick price: %w", price.Value.String(), fixedpoint.ErrInvalidDomain)
		}
	}
	if tick == MaxTick {
		past, err := rawPriceAtTick(MaxTick + 1)
		if err != nil {
			return 0, err
		}
		if !past.GreaterThan(raw) {
			return 0, fmt.Errorf("price %s above the maximum tick price: %w", price.Value.String(), fixedpoint.ErrInvalidDomain)
		}
	}

	return tick, nil
}

// QuantizeDown rounds tick down to the nearest multiple of spacing
// (toward negative infinity). Used for lower bounds so the realized range
// never shrinks below the requested one.
func QuantizeDown(tick, spacing int32) (int32, error) {
	if spacing <= 0 {
		return 0, fmt.Errorf("spacing %d: %w", spacing, ErrInvalidTickSpacing)
	}
	q := tick / spacing
	if tick%spacing != 0 && tick < 0 {
		q--
	}
	return q * spacing, nil
}

// QuantizeUp rounds tick up to the nearest multiple of spacing
// (toward positive infinity). Used for upper bounds.
func QuantizeUp(tick, spacing int32) (int32, error) {
	if spacing <= 0 {
		return 0, fmt.Errorf("spacing %d: %w", spacing, ErrInvalidTickSpacing)
	}
	q := tick / spacing
	if tick%spacing != 0 && tick > 0 {
		q++
	}
	return q * spacing, nil
}
