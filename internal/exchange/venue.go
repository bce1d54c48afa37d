package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"rangeHedger/internal/model"
)

// Venue is the derivatives exchange the hedge lives on. The engine never
// assumes an adjustment took effect: the next cycle re-reads PositionSize
// and sizes against whatever the venue reports.
type Venue interface {
	// PositionSize returns the current short size for the symbol, in units
	// of the volatile token. Zero means no open short.
	PositionSize(ctx context.Context, symbol string) (decimal.Decimal, error)

	// AdjustHedge applies an increase or decrease instruction. Implementations
	// must treat HedgeNoAction as a no-op.
	AdjustHedge(ctx context.Context, instruction model.AdjustHedge) error
}
