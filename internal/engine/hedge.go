package engine

import (
	"github.com/shopspring/decimal"

	"rangeHedger/internal/model"
)

// HedgeSizer turns a delta into a short-size adjustment. Target short size
// equals the delta: net long exposure to token0 is flattened by an
// equal-magnitude short. Adjustments below the hysteresis threshold are
// suppressed to keep noise from churning orders.
type HedgeSizer struct {
	symbol    string
	threshold decimal.Decimal
}

func NewHedgeSizer(symbol string, threshold decimal.Decimal) *HedgeSizer {
	if threshold.Sign() < 0 {
		threshold = threshold.Abs()
	}
	return &HedgeSizer{symbol: symbol, threshold: threshold}
}

// Size computes the adjustment from delta and the venue-reported short.
// Pure: identical inputs always produce the identical instruction.
func (h *HedgeSizer) Size(delta, currentShort decimal.Decimal) model.AdjustHedge {
	adjustment := delta.Sub(currentShort)

	if adjustment.Abs().LessThan(h.threshold) {
		return model.AdjustHedge{Symbol: h.symbol, Direction: model.HedgeNoAction, Amount: decimal.Zero}
	}
	if adjustment.Sign() > 0 {
		return model.AdjustHedge{Symbol: h.symbol, Direction: model.HedgeIncreaseShort, Amount: adjustment}
	}
	return model.AdjustHedge{Symbol: h.symbol, Direction: model.HedgeDecreaseShort, Amount: adjustment.Neg()}
}
