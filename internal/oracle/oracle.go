package oracle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"rangeHedger/internal/dex"
	"rangeHedger/internal/model"
	"rangeHedger/internal/univ3"
)

// Quote carries USD prices for both pool tokens at one observation instant.
type Quote struct {
	Price      univ3.Price
	Price0USD  decimal.Decimal
	Price1USD  decimal.Decimal
	ObservedAt time.Time
	Age        time.Duration
}

// QuoteFromPoolState derives a USD quote from a pool observation. It
// requires token1 to be a USD stablecoin: the token1 USD price is pinned to
// one and the token0 price is the pool's own token1-per-token0 price, so the
// whole decision cycle prices off a single snapshot. Staleness follows the
// block the reading came from.
func QuoteFromPoolState(state model.PoolState, decimals0, decimals1 uint8) (Quote, error) {
	sqrtPrice, ok := new(big.Int).SetString(state.SqrtPriceX96, 10)
	if !ok {
		return Quote{}, fmt.Errorf("parse sqrtPriceX96 %q", state.SqrtPriceX96)
	}
	price, err := univ3.PriceFromSqrtX96(sqrtPrice, decimals0, decimals1)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Price:      price,
		Price0USD:  price.Value,
		Price1USD:  decimal.New(1, 0),
		ObservedAt: time.Unix(int64(state.BlockTimestamp), 0).UTC(),
		Age:        time.Duration(state.ObservationAgeSec) * time.Second,
	}, nil
}

// PoolOracle reads a pool and quotes it, for callers that do not already
// hold a pool state snapshot.
type PoolOracle struct {
	reader    *dex.Reader
	pool      common.Address
	decimals0 uint8
	decimals1 uint8
}

func NewPoolOracle(reader *dex.Reader, pool common.Address, decimals0, decimals1 uint8) *PoolOracle {
	return &PoolOracle{reader: reader, pool: pool, decimals0: decimals0, decimals1: decimals1}
}

// Quote performs a fresh pool read and builds a USD quote.
func (o *PoolOracle) Quote(ctx context.Context) (Quote, error) {
	state, err := o.reader.PoolState(ctx, o.pool)
	if err != nil {
		return Quote{}, fmt.Errorf("pool state: %w", err)
	}
	return QuoteFromPoolState(state, o.decimals0, o.decimals1)
}
