package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rangeHedger/internal/model"
)

// PaperVenue is an in-process venue for dry runs. It fills every adjustment
// instantly and keeps the resulting short sizes in memory, so the whole loop
// can run against a live pool without touching a real exchange.
type PaperVenue struct {
	logger *zap.Logger

	mu     sync.Mutex
	shorts map[string]decimal.Decimal
}

func NewPaperVenue(logger *zap.Logger) *PaperVenue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperVenue{
		logger: logger,
		shorts: make(map[string]decimal.Decimal),
	}
}

// PositionSize returns the tracked short size for the symbol.
func (v *PaperVenue) PositionSize(_ context.Context, symbol string) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.shorts[symbol], nil
}

// AdjustHedge applies the instruction to the tracked size.
func (v *PaperVenue) AdjustHedge(_ context.Context, instruction model.AdjustHedge) error {
	if instruction.Direction == model.HedgeNoAction {
		return nil
	}
	if instruction.Amount.Sign() < 0 {
		return fmt.Errorf("negative adjustment amount %s", instruction.Amount.String())
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	current := v.shorts[instruction.Symbol]
	switch instruction.Direction {
	case model.HedgeIncreaseShort:
		current = current.Add(instruction.Amount)
	case model.HedgeDecreaseShort:
		current = current.Sub(instruction.Amount)
	default:
		return fmt.Errorf("unknown hedge direction %q", instruction.Direction)
	}
	v.shorts[instruction.Symbol] = current

	v.logger.Info("paper hedge adjusted",
		zap.String("symbol", instruction.Symbol),
		zap.String("direction", string(instruction.Direction)),
		zap.String("amount", instruction.Amount.String()),
		zap.String("short_size", current.String()),
	)
	return nil
}

// SetPositionSize seeds a short size, used by tests and state restore.
func (v *PaperVenue) SetPositionSize(symbol string, size decimal.Decimal) {
	v.mu.Lock()
	v.shorts[symbol] = size
	v.mu.Unlock()
}
