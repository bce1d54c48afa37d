package dex

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"rangeHedger/internal/fixedpoint"
	"rangeHedger/internal/model"
)

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// PayloadBuilder turns engine instructions into NFT position manager
// calldata. Building is pure; signing and broadcasting stay with the
// executor.
type PayloadBuilder struct {
	pool      model.Pool
	decimals0 uint8
	decimals1 uint8
	recipient common.Address
}

func NewPayloadBuilder(pool model.Pool, decimals0, decimals1 uint8, recipient common.Address) (*PayloadBuilder, error) {
	if !common.IsHexAddress(pool.Token0) || !common.IsHexAddress(pool.Token1) {
		return nil, fmt.Errorf("pool %s has invalid token addresses", pool.Address)
	}
	return &PayloadBuilder{
		pool:      pool,
		decimals0: decimals0,
		decimals1: decimals1,
		recipient: recipient,
	}, nil
}

type mintParams struct {
	Token0         common.Address
	Token1         common.Address
	Fee            *big.Int
	TickLower      *big.Int
	TickUpper      *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Recipient      common.Address
	Deadline       *big.Int
}

type increaseParams struct {
	TokenId        *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Deadline       *big.Int
}

type decreaseParams struct {
	TokenId    *big.Int
	Liquidity  *big.Int
	Amount0Min *big.Int
	Amount1Min *big.Int
	Deadline   *big.Int
}

type collectParams struct {
	TokenId    *big.Int
	Recipient  common.Address
	Amount0Max *big.Int
	Amount1Max *big.Int
}

// Mint builds the calldata that opens a new position over the instructed
// range. Minimum amounts come from the instruction's slippage tolerance.
func (b *PayloadBuilder) Mint(instruction model.ProvideLiquidity, deadline time.Time) ([]byte, error) {
	mgrABI, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse position manager abi: %w", err)
	}

	amount0 := rawAmount(instruction.Amount0, b.decimals0)
	amount1 := rawAmount(instruction.Amount1, b.decimals1)

	data, err := mgrABI.Pack("mint", mintParams{
		Token0:         common.HexToAddress(b.pool.Token0),
		Token1:         common.HexToAddress(b.pool.Token1),
		Fee:            new(big.Int).SetUint64(uint64(b.pool.Fee)),
		TickLower:      big.NewInt(int64(instruction.Range.TickLower)),
		TickUpper:      big.NewInt(int64(instruction.Range.TickUpper)),
		Amount0Desired: amount0,
		Amount1Desired: amount1,
		Amount0Min:     minAfterSlippage(amount0, instruction.SlippageBps),
		Amount1Min:     minAfterSlippage(amount1, instruction.SlippageBps),
		Recipient:      b.recipient,
		Deadline:       big.NewInt(deadline.Unix()),
	})
	if err != nil {
		return nil, fmt.Errorf("pack mint: %w", err)
	}
	return data, nil
}

// IncreaseLiquidity builds the calldata that adds funds to a position.
func (b *PayloadBuilder) IncreaseLiquidity(instruction model.IncreaseLiquidity, deadline time.Time) ([]byte, error) {
	mgrABI, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse position manager abi: %w", err)
	}

	amount0 := rawAmount(instruction.Amount0, b.decimals0)
	amount1 := rawAmount(instruction.Amount1, b.decimals1)

	data, err := mgrABI.Pack("increaseLiquidity", increaseParams{
		TokenId:        new(big.Int).SetUint64(instruction.ID),
		Amount0Desired: amount0,
		Amount1Desired: amount1,
		Amount0Min:     minAfterSlippage(amount0, instruction.SlippageBps),
		Amount1Min:     minAfterSlippage(amount1, instruction.SlippageBps),
		Deadline:       big.NewInt(deadline.Unix()),
	})
	if err != nil {
		return nil, fmt.Errorf("pack increaseLiquidity: %w", err)
	}
	return data, nil
}

// DecreaseLiquidity builds the calldata that removes liquidity. The returned
// amounts depend on the execution-time price, so the minimums are left at
// zero and the close is protected by the reopen's own slippage bounds.
func (b *PayloadBuilder) DecreaseLiquidity(instruction model.DecreaseLiquidity, deadline time.Time) ([]byte, error) {
	mgrABI, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse position manager abi: %w", err)
	}
	if instruction.LiquidityAmount.Sign() <= 0 {
		return nil, fmt.Errorf("decrease liquidity amount %s must be positive", instruction.LiquidityAmount.String())
	}

	data, err := mgrABI.Pack("decreaseLiquidity", decreaseParams{
		TokenId:    new(big.Int).SetUint64(instruction.ID),
		Liquidity:  instruction.LiquidityAmount.BigInt(),
		Amount0Min: big.NewInt(0),
		Amount1Min: big.NewInt(0),
		Deadline:   big.NewInt(deadline.Unix()),
	})
	if err != nil {
		return nil, fmt.Errorf("pack decreaseLiquidity: %w", err)
	}
	return data, nil
}

// Collect builds the calldata that sweeps everything owed to the position.
func (b *PayloadBuilder) Collect(instruction model.CollectFees) ([]byte, error) {
	mgrABI, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse position manager abi: %w", err)
	}

	data, err := mgrABI.Pack("collect", collectParams{
		TokenId:    new(big.Int).SetUint64(instruction.ID),
		Recipient:  b.recipient,
		Amount0Max: new(big.Int).Set(maxUint128),
		Amount1Max: new(big.Int).Set(maxUint128),
	})
	if err != nil {
		return nil, fmt.Errorf("pack collect: %w", err)
	}
	return data, nil
}

// rawAmount converts a human amount to raw integer units, truncating any
// dust below one raw unit.
func rawAmount(amount decimal.Decimal, decimals uint8) *big.Int {
	if amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	return amount.Mul(fixedpoint.PowTen(int32(decimals))).BigInt()
}

// minAfterSlippage reduces a desired amount by the slippage tolerance.
func minAfterSlippage(desired *big.Int, slippageBps uint32) *big.Int {
	if desired.Sign() <= 0 {
		return big.NewInt(0)
	}
	keep := big.NewInt(10_000 - int64(slippageBps))
	if keep.Sign() < 0 {
		keep.SetInt64(0)
	}
	out := new(big.Int).Mul(desired, keep)
	return out.Div(out, big.NewInt(10_000))
}
