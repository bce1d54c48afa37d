package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rangeHedger/internal/chain"
	"rangeHedger/internal/model"
	"rangeHedger/internal/univ3"
)

// Reader loads pool, token, and position snapshots over eth_call. Token
// metadata is immutable and cached; everything else is re-read each cycle.
type Reader struct {
	chainClient *chain.Client
	logger      *zap.Logger

	mu     sync.RWMutex
	tokens map[common.Address]model.TokenMeta
}

func NewReader(chainClient *chain.Client, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		chainClient: chainClient,
		logger:      logger,
		tokens:      make(map[common.Address]model.TokenMeta),
	}
}

// Pool loads immutable pool metadata.
func (r *Reader) Pool(ctx context.Context, pool common.Address) (model.Pool, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.Pool{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := r.call(ctx, pool, poolABI, "token0")
	if err != nil {
		return model.Pool{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return model.Pool{}, fmt.Errorf("token0: %w", err)
	}

	values, err = r.call(ctx, pool, poolABI, "token1")
	if err != nil {
		return model.Pool{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return model.Pool{}, fmt.Errorf("token1: %w", err)
	}

	values, err = r.call(ctx, pool, poolABI, "fee")
	if err != nil {
		return model.Pool{}, err
	}
	feeInt, err := asBigInt(values[0])
	if err != nil {
		return model.Pool{}, fmt.Errorf("fee: %w", err)
	}

	values, err = r.call(ctx, pool, poolABI, "tickSpacing")
	if err != nil {
		return model.Pool{}, err
	}
	tickSpacingInt, err := asBigInt(values[0])
	if err != nil {
		return model.Pool{}, fmt.Errorf("tick spacing: %w", err)
	}
	tickSpacing, err := int24FromBig(tickSpacingInt)
	if err != nil {
		return model.Pool{}, fmt.Errorf("tick spacing: %w", err)
	}

	chainID, err := r.chainClient.GetChainID(ctx)
	if err != nil {
		return model.Pool{}, fmt.Errorf("get chain id: %w", err)
	}

	return model.Pool{
		ChainID:     chainID.Uint64(),
		Address:     pool.Hex(),
		Token0:      token0.Hex(),
		Token1:      token1.Hex(),
		Fee:         uint32(feeInt.Uint64()),
		TickSpacing: tickSpacing,
	}, nil
}

// PoolState reads slot0 and stamps it with the latest block's age so stale
// observations can be rejected downstream.
func (r *Reader) PoolState(ctx context.Context, pool common.Address) (model.PoolState, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.PoolState{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := r.call(ctx, pool, poolABI, "slot0")
	if err != nil {
		return model.PoolState{}, err
	}
	if len(values) < 2 {
		return model.PoolState{}, fmt.Errorf("slot0 returned %d values", len(values))
	}
	sqrtPrice, err := asBigInt(values[0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("sqrtPriceX96: %w", err)
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("tick: %w", err)
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("tick: %w", err)
	}

	header, err := r.chainClient.LatestHeader(ctx)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("latest header: %w", err)
	}

	state := model.PoolState{
		SqrtPriceX96:   sqrtPrice.String(),
		Tick:           tick,
		BlockNumber:    header.Number.Uint64(),
		BlockTimestamp: header.Time,
	}
	if now := uint64(time.Now().Unix()); now > header.Time {
		state.ObservationAgeSec = now - header.Time
	}
	return state, nil
}

// TokenMeta loads ERC20 metadata, consulting the cache first. Symbol and
// name fall back to the bytes32 ABI variant used by some older tokens.
func (r *Reader) TokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	r.mu.RLock()
	meta, ok := r.tokens[token]
	r.mu.RUnlock()
	if ok {
		return meta, nil
	}

	meta = model.TokenMeta{Address: token.Hex()}

	stringABI, err := erc20StringABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}
	bytes32ABI, err := erc20Bytes32ABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := r.call(ctx, token, stringABI, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := r.call(ctx, token, stringABI, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := r.call(ctx, token, bytes32ABI, "symbol"); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else {
		r.logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := r.call(ctx, token, stringABI, "name"); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := r.call(ctx, token, bytes32ABI, "name"); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else {
		r.logger.Debug("name call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	r.mu.Lock()
	r.tokens[token] = meta
	r.mu.Unlock()
	return meta, nil
}

// Position reads positions(tokenId) from the NFT position manager.
func (r *Reader) Position(ctx context.Context, manager common.Address, tokenID uint64) (model.Position, error) {
	mgrABI, err := PositionManagerABI()
	if err != nil {
		return model.Position{}, fmt.Errorf("parse position manager abi: %w", err)
	}

	data, err := mgrABI.Pack("positions", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return model.Position{}, fmt.Errorf("pack positions: %w", err)
	}
	msg := ethereum.CallMsg{To: &manager, Data: data}
	resp, err := r.chainClient.CallContract(ctx, msg, nil)
	if err != nil {
		return model.Position{}, fmt.Errorf("call positions: %w", err)
	}
	values, err := mgrABI.Unpack("positions", resp)
	if err != nil {
		return model.Position{}, fmt.Errorf("unpack positions: %w", err)
	}
	if len(values) < 12 {
		return model.Position{}, fmt.Errorf("positions returned %d values", len(values))
	}

	tickLowerInt, err := asBigInt(values[5])
	if err != nil {
		return model.Position{}, fmt.Errorf("tickLower: %w", err)
	}
	tickLower, err := int24FromBig(tickLowerInt)
	if err != nil {
		return model.Position{}, fmt.Errorf("tickLower: %w", err)
	}
	tickUpperInt, err := asBigInt(values[6])
	if err != nil {
		return model.Position{}, fmt.Errorf("tickUpper: %w", err)
	}
	tickUpper, err := int24FromBig(tickUpperInt)
	if err != nil {
		return model.Position{}, fmt.Errorf("tickUpper: %w", err)
	}
	liquidity, err := asBigInt(values[7])
	if err != nil {
		return model.Position{}, fmt.Errorf("liquidity: %w", err)
	}
	owed0, err := asBigInt(values[10])
	if err != nil {
		return model.Position{}, fmt.Errorf("tokensOwed0: %w", err)
	}
	owed1, err := asBigInt(values[11])
	if err != nil {
		return model.Position{}, fmt.Errorf("tokensOwed1: %w", err)
	}

	return model.Position{
		ID:          tokenID,
		Range:       univ3.Range{TickLower: tickLower, TickUpper: tickUpper},
		Liquidity:   decimal.NewFromBigInt(liquidity, 0),
		TokensOwed0: decimal.NewFromBigInt(owed0, 0),
		TokensOwed1: decimal.NewFromBigInt(owed1, 0),
	}, nil
}

// FindPool resolves a pool address from the factory.
func (r *Reader) FindPool(ctx context.Context, factory, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	factoryABI, err := V3FactoryABI()
	if err != nil {
		return common.Address{}, fmt.Errorf("parse factory abi: %w", err)
	}

	data, err := factoryABI.Pack("getPool", tokenA, tokenB, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return common.Address{}, fmt.Errorf("pack getPool: %w", err)
	}
	msg := ethereum.CallMsg{To: &factory, Data: data}
	resp, err := r.chainClient.CallContract(ctx, msg, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("call getPool: %w", err)
	}
	values, err := factoryABI.Unpack("getPool", resp)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack getPool: %w", err)
	}
	pool, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, fmt.Errorf("getPool: %w", err)
	}
	if pool == (common.Address{}) {
		return common.Address{}, fmt.Errorf("no pool for %s/%s fee %d", tokenA.Hex(), tokenB.Hex(), fee)
	}
	return pool, nil
}

func (r *Reader) call(ctx context.Context, target common.Address, parsed abi.ABI, method string) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &target, Data: data}
	resp, err := r.chainClient.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
