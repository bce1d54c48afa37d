package model

import (
	"github.com/shopspring/decimal"
)

// ExposureRecord is the serialized form of an exposure snapshot.
type ExposureRecord struct {
	Amount0       decimal.Decimal `json:"amount0"`
	Amount1       decimal.Decimal `json:"amount1"`
	ValueUSD      decimal.Decimal `json:"value_usd"`
	DeltaToken0   decimal.Decimal `json:"delta_token0"`
	FullyOneSided bool            `json:"fully_one_sided"`
}

// DecisionRecord is the audit entry persisted after every decision cycle.
type DecisionRecord struct {
	ChainID      uint64          `json:"chain_id"`
	PoolAddress  string          `json:"pool_address"`
	PositionID   uint64          `json:"position_id"`
	CycleTS      int64           `json:"cycle_ts"`
	State        string          `json:"state"`
	Price        decimal.Decimal `json:"price"`
	Tick         int32           `json:"tick"`
	Exposure     *ExposureRecord `json:"exposure,omitempty"`
	RangeAction  string          `json:"range_action"`
	HedgeAction  string          `json:"hedge_action"`
	HedgeAmount  decimal.Decimal `json:"hedge_amount"`
	Error        string          `json:"error,omitempty"`
	DurationMS   int64           `json:"duration_ms"`
}
