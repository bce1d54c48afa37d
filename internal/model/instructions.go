package model

import (
	"github.com/shopspring/decimal"

	"rangeHedger/internal/univ3"
)

// Instructions emitted by the decision engine. Execution (signing,
// broadcasting, order placement) happens in external collaborators; all
// amounts are exact decimals, no floats cross this boundary.

// ProvideLiquidity opens a new position over a range.
type ProvideLiquidity struct {
	Range       univ3.Range     `json:"range"`
	Amount0     decimal.Decimal `json:"amount0"`
	Amount1     decimal.Decimal `json:"amount1"`
	SlippageBps uint32          `json:"slippage_bps"`
}

// IncreaseLiquidity adds funds to an existing position.
type IncreaseLiquidity struct {
	ID          uint64          `json:"id"`
	Amount0     decimal.Decimal `json:"amount0"`
	Amount1     decimal.Decimal `json:"amount1"`
	SlippageBps uint32          `json:"slippage_bps"`
}

// DecreaseLiquidity removes liquidity from a position.
type DecreaseLiquidity struct {
	ID              uint64          `json:"id"`
	LiquidityAmount decimal.Decimal `json:"liquidity_amount"`
}

// CollectFees sweeps accrued fees from a position.
type CollectFees struct {
	ID uint64 `json:"id"`
}

// HedgeDirection tells the venue which way to adjust the short.
type HedgeDirection string

const (
	HedgeNoAction      HedgeDirection = "no_action"
	HedgeIncreaseShort HedgeDirection = "increase_short"
	HedgeDecreaseShort HedgeDirection = "decrease_short"
)

// AdjustHedge resizes the short on the derivatives venue.
type AdjustHedge struct {
	Symbol    string          `json:"symbol"`
	Direction HedgeDirection  `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
}
