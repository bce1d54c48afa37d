package univ3

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"rangeHedger/internal/fixedpoint"
)

// q96 is the 2^96 scale factor of the pool's sqrt price representation.
var q96 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 96), 0)

// Price is the human-readable price of token0 denominated in token1,
// together with the decimals of both tokens. It is always derived from a
// source value (a pool's sqrtPriceX96 or a tick), never stored on its own.
type Price struct {
	Value     decimal.Decimal
	Decimals0 uint8
	Decimals1 uint8
}

// NewPrice builds a Price and rejects non-positive values.
func NewPrice(value decimal.Decimal, decimals0, decimals1 uint8) (Price, error) {
	if value.Sign() <= 0 {
		return Price{}, fmt.Errorf("price %s: %w", value.String(), fixedpoint.ErrInvalidDomain)
	}
	return Price{Value: value, Decimals0: decimals0, Decimals1: decimals1}, nil
}

// Raw returns the price in raw on-chain units: value * 10^(decimals1-decimals0).
func (p Price) Raw() decimal.Decimal {
	shift := int32(p.Decimals1) - int32(p.Decimals0)
	return p.Value.Mul(fixedpoint.PowTen(shift))
}

// SqrtRatio returns sqrt of the raw price, the unscaled counterpart of the
// pool's sqrtPriceX96.
func (p Price) SqrtRatio() (decimal.Decimal, error) {
	return fixedpoint.Sqrt(p.Raw())
}

// SqrtPriceX96 returns the pool-native fixed point representation,
// floor(sqrt(raw) * 2^96).
func (p Price) SqrtPriceX96() (*big.Int, error) {
	root, err := p.SqrtRatio()
	if err != nil {
		return nil, err
	}
	return root.Mul(q96).BigInt(), nil
}

// PriceFromSqrtX96 converts a pool sqrtPriceX96 reading into a Price.
func PriceFromSqrtX96(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) (Price, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return Price{}, fmt.Errorf("sqrtPriceX96: %w", fixedpoint.ErrInvalidDomain)
	}
	root := fixedpoint.Div(decimal.NewFromBigInt(sqrtPriceX96, 0), q96)
	raw := root.Mul(root)
	shift := int32(decimals0) - int32(decimals1)
	return NewPrice(raw.Mul(fixedpoint.PowTen(shift)), decimals0, decimals1)
}
