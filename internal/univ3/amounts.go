package univ3

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"rangeHedger/internal/fixedpoint"
)

// ErrNegativeLiquidity reports a position with liquidity below zero. It
// violates an upstream invariant and is treated as fatal by callers.
var ErrNegativeLiquidity = errors.New("negative liquidity")

// Amounts is the raw token composition of a position at one price instant.
type Amounts struct {
	Amount0 decimal.Decimal
	Amount1 decimal.Decimal
}

// AmountsAtSqrtRatio computes the raw token amounts held by a position with
// the given liquidity between sqrt ratios sqrtLower < sqrtUpper, at the
// current sqrt ratio sqrtCurrent. Token0 is the volatile asset by
// convention: when price falls through the floor the pool has converted the
// whole position into token0, when it rises through the ceiling into token1.
// In range
//
//	amount0 = L * (sU - sC) / (sC * sU)
//	amount1 = L * (sC - sL)
//
// and the one-sided regions are the limits of these at sC = sL and sC = sU,
// so the piecewise definition is continuous at both boundaries.
func AmountsAtSqrtRatio(liquidity, sqrtLower, sqrtUpper, sqrtCurrent decimal.Decimal) (Amounts, error) {
	if liquidity.Sign() < 0 {
		return Amounts{}, fmt.Errorf("liquidity %s: %w", liquidity.String(), ErrNegativeLiquidity)
	}
	if sqrtLower.Sign() <= 0 || !sqrtLower.LessThan(sqrtUpper) {
		return Amounts{}, fmt.Errorf("sqrt ratios [%s, %s]: %w", sqrtLower.String(), sqrtUpper.String(), fixedpoint.ErrInvalidDomain)
	}
	if sqrtCurrent.Sign() <= 0 {
		return Amounts{}, fmt.Errorf("current sqrt ratio %s: %w", sqrtCurrent.String(), fixedpoint.ErrInvalidDomain)
	}

	span := sqrtUpper.Sub(sqrtLower)

	switch {
	case !sqrtCurrent.GreaterThan(sqrtLower):
		amount0 := fixedpoint.Div(liquidity.Mul(span), sqrtUpper.Mul(sqrtLower))
		return Amounts{Amount0: amount0, Amount1: decimal.Zero}, nil
	case !sqrtCurrent.LessThan(sqrtUpper):
		return Amounts{Amount0: decimal.Zero, Amount1: liquidity.Mul(span)}, nil
	default:
		amount0 := fixedpoint.Div(liquidity.Mul(sqrtUpper.Sub(sqrtCurrent)), sqrtCurrent.Mul(sqrtUpper))
		amount1 := liquidity.Mul(sqrtCurrent.Sub(sqrtLower))
		return Amounts{Amount0: amount0, Amount1: amount1}, nil
	}
}

// AmountsInRange computes human-unit token amounts for a position over the
// given tick range at the given price.
func AmountsInRange(liquidity decimal.Decimal, r Range, price Price) (Amounts, error) {
	sqrtLower, err := sqrtRatioAtTick(r.TickLower)
	if err != nil {
		return Amounts{}, err
	}
	sqrtUpper, err := sqrtRatioAtTick(r.TickUpper)
	if err != nil {
		return Amounts{}, err
	}
	sqrtCurrent, err := price.SqrtRatio()
	if err != nil {
		return Amounts{}, err
	}

	raw, err := AmountsAtSqrtRatio(liquidity, sqrtLower, sqrtUpper, sqrtCurrent)
	if err != nil {
		return Amounts{}, err
	}

	return Amounts{
		Amount0: raw.Amount0.Mul(fixedpoint.PowTen(-int32(price.Decimals0))),
		Amount1: raw.Amount1.Mul(fixedpoint.PowTen(-int32(price.Decimals1))),
	}, nil
}

// ValueUSD prices a composition in USD given per-token USD prices.
func (a Amounts) ValueUSD(price0USD, price1USD decimal.Decimal) decimal.Decimal {
	return a.Amount0.Mul(price0USD).Add(a.Amount1.Mul(price1USD))
}
