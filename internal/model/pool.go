package model

// Pool captures immutable V3 pool metadata.
type Pool struct {
	ChainID     uint64 `json:"chain_id"`
	Address     string `json:"address"`
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Fee         uint32 `json:"fee"`
	TickSpacing int32  `json:"tick_spacing"`
}

// TokenMeta captures ERC20 metadata for one of the pool's tokens.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}

// PoolState is one observation of a pool's mutable state.
type PoolState struct {
	SqrtPriceX96      string `json:"sqrt_price_x96"`
	Tick              int32  `json:"tick"`
	BlockNumber       uint64 `json:"block_number"`
	BlockTimestamp    uint64 `json:"block_timestamp"`
	ObservationAgeSec uint64 `json:"observation_age_sec"`
}
