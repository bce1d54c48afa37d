package model

import (
	"github.com/shopspring/decimal"

	"rangeHedger/internal/univ3"
)

// Position is a snapshot of an on-chain liquidity position. Liquidity is the
// raw protocol magnitude; the position is considered closed once it reaches
// zero and fees are collected.
type Position struct {
	ID          uint64          `json:"id"`
	Range       univ3.Range     `json:"range"`
	Liquidity   decimal.Decimal `json:"liquidity"`
	TokensOwed0 decimal.Decimal `json:"tokens_owed0"`
	TokensOwed1 decimal.Decimal `json:"tokens_owed1"`
}

// HedgeState mirrors the derivatives venue's short position. The engine only
// computes targets; CurrentShortSize is taken as reported by the venue and
// never assumed to match a previously emitted instruction.
type HedgeState struct {
	Symbol           string          `json:"symbol"`
	CurrentShortSize decimal.Decimal `json:"current_short_size"`
	TargetShortSize  decimal.Decimal `json:"target_short_size"`
	LastAdjustmentTS int64           `json:"last_adjustment_ts"`
}
