package univ3

import (
	"fmt"

	"rangeHedger/internal/fixedpoint"
)

// Range is an ordered pair of ticks, both multiples of the pool's spacing.
type Range struct {
	TickLower int32 `json:"tick_lower"`
	TickUpper int32 `json:"tick_upper"`
}

// NewRange validates ordering and spacing alignment.
func NewRange(tickLower, tickUpper, spacing int32) (Range, error) {
	if spacing <= 0 {
		return Range{}, fmt.Errorf("spacing %d: %w", spacing, ErrInvalidTickSpacing)
	}
	if tickLower >= tickUpper {
		return Range{}, fmt.Errorf("range [%d, %d): %w", tickLower, tickUpper, fixedpoint.ErrInvalidDomain)
	}
	if tickLower%spacing != 0 || tickUpper%spacing != 0 {
		return Range{}, fmt.Errorf("range [%d, %d) not aligned to spacing %d: %w", tickLower, tickUpper, spacing, ErrInvalidTickSpacing)
	}
	return Range{TickLower: tickLower, TickUpper: tickUpper}, nil
}

// Width returns the tick width of the range.
func (r Range) Width() int32 {
	return r.TickUpper - r.TickLower
}

// Contains reports whether a tick falls inside the range. The lower bound is
// inclusive and the upper exclusive, the protocol's own convention, so range
// membership and tick quantization can never disagree at a boundary.
func (r Range) Contains(tick int32) bool {
	return tick >= r.TickLower && tick < r.TickUpper
}

// RangeAroundTick builds a range centered on a tick with the given half
// width in ticks, quantized outward so it never shrinks below the request.
func RangeAroundTick(center, halfWidth, spacing int32) (Range, error) {
	if halfWidth <= 0 {
		return Range{}, fmt.Errorf("half width %d: %w", halfWidth, fixedpoint.ErrInvalidDomain)
	}
	lower, err := QuantizeDown(center-halfWidth, spacing)
	if err != nil {
		return Range{}, err
	}
	upper, err := QuantizeUp(center+halfWidth, spacing)
	if err != nil {
		return Range{}, err
	}
	if upper == lower {
		upper = lower + spacing
	}
	return NewRange(lower, upper, spacing)
}
