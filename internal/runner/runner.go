package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rangeHedger/internal/dex"
	"rangeHedger/internal/engine"
	"rangeHedger/internal/exchange"
	"rangeHedger/internal/fixedpoint"
	"rangeHedger/internal/model"
	"rangeHedger/internal/oracle"
	"rangeHedger/internal/storage"
	"rangeHedger/internal/storage/postgres"
	"rangeHedger/internal/univ3"
)

// SnapshotSource provides fresh external snapshots for one decision cycle.
type SnapshotSource interface {
	PoolState(ctx context.Context) (model.PoolState, error)
	Position(ctx context.Context, id uint64) (model.Position, error)
}

// Executor carries the engine's instructions to the ledger. Transaction
// construction, signing, and broadcasting live behind this interface.
type Executor interface {
	DecreaseLiquidity(ctx context.Context, instruction model.DecreaseLiquidity) error
	CollectFees(ctx context.Context, instruction model.CollectFees) error
	// ProvideLiquidity returns the id of the confirmed new position.
	ProvideLiquidity(ctx context.Context, instruction model.ProvideLiquidity) (uint64, error)
}

// DexSource binds a dex.Reader to the managed pool and position manager.
type DexSource struct {
	Reader  *dex.Reader
	Pool    common.Address
	Manager common.Address
}

func (s *DexSource) PoolState(ctx context.Context) (model.PoolState, error) {
	return s.Reader.PoolState(ctx, s.Pool)
}

func (s *DexSource) Position(ctx context.Context, id uint64) (model.Position, error) {
	return s.Reader.Position(ctx, s.Manager, id)
}

// RunConfig holds runtime settings for the control loop.
type RunConfig struct {
	Pool        model.Pool
	Decimals0   uint8
	Decimals1   uint8
	PositionID  uint64
	HedgeSymbol string

	// InitialAmount0/1 fund the first provision when no position exists yet.
	InitialAmount0 decimal.Decimal
	InitialAmount1 decimal.Decimal

	Interval     time.Duration
	CallTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	// PriceMaxAgeLoose is the outer staleness bound: past it the whole cycle
	// is skipped. The tighter hedge-only bound lives in the Estimator.
	PriceMaxAgeLoose time.Duration
}

// Runner drives the decision loop: one cycle at a time, fresh snapshots in,
// at most one instruction set out, state persisted at the cycle boundary.
type Runner struct {
	cfg        RunConfig
	source     SnapshotSource
	executor   Executor
	venue      exchange.Venue
	sink       storage.Storage
	history    *postgres.Store
	state      *StateStore
	feed       *exchange.MarkFeed
	logger     *zap.Logger
	rebalancer *engine.Rebalancer
	estimator  *engine.Estimator
	hedger     *engine.HedgeSizer

	positionID uint64
	hedge      model.HedgeState
	// quarantine holds the liquidity reading that tripped the negative
	// liquidity invariant; the position is ignored until it changes.
	quarantine map[uint64]string
}

// Deps bundles the runner's collaborators.
type Deps struct {
	Source     SnapshotSource
	Executor   Executor
	Venue      exchange.Venue
	Sink       storage.Storage
	History    *postgres.Store
	State      *StateStore
	Feed       *exchange.MarkFeed
	Rebalancer *engine.Rebalancer
	Estimator  *engine.Estimator
	Hedger     *engine.HedgeSizer
	Logger     *zap.Logger
}

func NewRunner(cfg RunConfig, deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		source:     deps.Source,
		executor:   deps.Executor,
		venue:      deps.Venue,
		sink:       deps.Sink,
		history:    deps.History,
		state:      deps.State,
		feed:       deps.Feed,
		logger:     logger,
		rebalancer: deps.Rebalancer,
		estimator:  deps.Estimator,
		hedger:     deps.Hedger,
		positionID: cfg.PositionID,
		hedge:      model.HedgeState{Symbol: cfg.HedgeSymbol},
		quarantine: make(map[uint64]string),
	}
}

// Run executes the loop until the context is canceled. Cycles never overlap;
// a trigger from the mark feed only shortens the wait for the next one.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("snapshot source is nil")
	}
	if r.venue == nil {
		return fmt.Errorf("hedge venue is nil")
	}
	if r.cfg.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	if r.state != nil {
		saved, ok, err := r.state.Load()
		if err != nil {
			return err
		}
		if ok {
			r.rebalancer.Restore(saved.State)
			if saved.PositionID != 0 {
				r.positionID = saved.PositionID
			}
			if saved.Hedge.Symbol == r.cfg.HedgeSymbol {
				r.hedge = saved.Hedge
			}
			r.logger.Info("resume from state file",
				zap.String("state", string(saved.State)),
				zap.Uint64("position_id", r.positionID),
			)
		}
	}

	var triggers <-chan decimal.Decimal
	if r.feed != nil {
		triggers = r.feed.Triggers()
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		r.runCycle(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case mark, ok := <-triggers:
			if !ok {
				triggers = nil
				continue
			}
			r.logger.Info("price deviation trigger", zap.String("mark", mark.String()))
		}
	}
}

// runCycle executes one decision cycle. Collaborator failures are logged and
// retried next cycle; computation-layer invariant violations are surfaced as
// operator alerts.
func (r *Runner) runCycle(ctx context.Context) {
	started := time.Now()

	record := model.DecisionRecord{
		ChainID:     r.cfg.Pool.ChainID,
		PoolAddress: r.cfg.Pool.Address,
		PositionID:  r.positionID,
		CycleTS:     started.Unix(),
		RangeAction: string(engine.ActionNone),
		HedgeAction: string(model.HedgeNoAction),
		HedgeAmount: decimal.Zero,
	}

	err := r.cycle(ctx, &record)
	if err != nil {
		record.Error = err.Error()
		switch {
		case errors.Is(err, univ3.ErrNegativeLiquidity), errors.Is(err, fixedpoint.ErrInvalidDomain):
			r.logger.Error("invariant violation, cycle aborted", zap.Error(err))
		case errors.Is(err, context.Canceled):
			return
		default:
			r.logger.Warn("cycle failed, retrying next interval", zap.Error(err))
		}
	}

	record.State = string(r.rebalancer.State())
	record.DurationMS = time.Since(started).Milliseconds()
	r.persist(ctx, record)
}

func (r *Runner) cycle(ctx context.Context, record *model.DecisionRecord) error {
	poolState, err := r.fetchPoolState(ctx)
	if err != nil {
		return fmt.Errorf("pool state: %w", err)
	}

	quote, err := oracle.QuoteFromPoolState(poolState, r.cfg.Decimals0, r.cfg.Decimals1)
	if err != nil {
		return err
	}
	record.Price = quote.Price.Value
	record.Tick = poolState.Tick
	defer func() {
		if r.feed != nil {
			r.feed.Anchor(quote.Price.Value)
		}
	}()

	if r.cfg.PriceMaxAgeLoose > 0 && quote.Age > r.cfg.PriceMaxAgeLoose {
		return fmt.Errorf("observation age %s beyond loose bound %s: %w", quote.Age, r.cfg.PriceMaxAgeLoose, engine.ErrStalePrice)
	}

	if r.positionID == 0 {
		return r.provisionInitial(ctx, quote, record)
	}

	pos, err := r.fetchPosition(ctx, r.positionID)
	if err != nil {
		return fmt.Errorf("position %d: %w", r.positionID, err)
	}

	if reading, held := r.quarantine[pos.ID]; held {
		if reading == pos.Liquidity.String() {
			return fmt.Errorf("position %d quarantined on liquidity %s: %w", pos.ID, reading, univ3.ErrNegativeLiquidity)
		}
		delete(r.quarantine, pos.ID)
		r.logger.Info("position left quarantine", zap.Uint64("position_id", pos.ID))
	}
	if pos.Liquidity.Sign() < 0 {
		r.quarantine[pos.ID] = pos.Liquidity.String()
		return fmt.Errorf("position %d liquidity %s: %w", pos.ID, pos.Liquidity.String(), univ3.ErrNegativeLiquidity)
	}

	recovered, err := univ3.AmountsInRange(pos.Liquidity, pos.Range, quote.Price)
	if err != nil {
		return err
	}

	decision, err := r.rebalancer.Evaluate(&pos, quote.Price, recovered)
	if err != nil {
		return err
	}
	record.RangeAction = string(decision.Action)

	if decision.Action == engine.ActionRebalance {
		r.executeRebalance(ctx, decision, record)
		// The position just changed (or the attempt failed); hedge against
		// the next cycle's fresh snapshot instead of this one.
		return nil
	}

	return r.adjustHedge(ctx, pos, quote, record)
}

func (r *Runner) provisionInitial(ctx context.Context, quote oracle.Quote, record *model.DecisionRecord) error {
	if r.executor == nil || (r.cfg.InitialAmount0.Sign() == 0 && r.cfg.InitialAmount1.Sign() == 0) {
		r.logger.Info("no active position to manage")
		return nil
	}

	newRange, err := r.rebalancer.ProposeRange(quote.Price)
	if err != nil {
		return err
	}

	instruction := model.ProvideLiquidity{
		Range:   newRange,
		Amount0: r.cfg.InitialAmount0,
		Amount1: r.cfg.InitialAmount1,
	}
	record.RangeAction = "provide"

	id, err := r.executor.ProvideLiquidity(ctx, instruction)
	if err != nil {
		return fmt.Errorf("initial provision: %w", err)
	}

	r.positionID = id
	record.PositionID = id
	r.rebalancer.ConfirmProvision()
	r.logger.Info("initial position provided",
		zap.Uint64("position_id", id),
		zap.Int32("tick_lower", newRange.TickLower),
		zap.Int32("tick_upper", newRange.TickUpper),
	)
	return nil
}

func (r *Runner) executeRebalance(ctx context.Context, decision engine.Decision, record *model.DecisionRecord) {
	if r.executor == nil {
		r.logger.Warn("rebalance needed but no executor configured",
			zap.Int32("tick_lower", decision.NewRange.TickLower),
			zap.Int32("tick_upper", decision.NewRange.TickUpper),
		)
		return
	}

	r.rebalancer.BeginRebalance()

	if err := r.executor.DecreaseLiquidity(ctx, *decision.Decrease); err != nil {
		r.rebalancer.RebalanceFailed()
		record.Error = err.Error()
		r.logger.Warn("decrease liquidity failed", zap.Error(err))
		return
	}
	if err := r.executor.CollectFees(ctx, *decision.Collect); err != nil {
		r.rebalancer.RebalanceFailed()
		record.Error = err.Error()
		r.logger.Warn("collect fees failed", zap.Error(err))
		return
	}

	id, err := r.executor.ProvideLiquidity(ctx, *decision.Provide)
	if err != nil {
		// Reopen unconfirmed: stay out of range and retry next cycle with a
		// freshly computed range.
		r.rebalancer.RebalanceFailed()
		record.Error = err.Error()
		r.logger.Warn("reopen failed, will retry with fresh range", zap.Error(err))
		return
	}

	r.positionID = id
	r.rebalancer.ConfirmRebalance()
	r.logger.Info("rebalance complete",
		zap.Uint64("position_id", id),
		zap.Int32("tick_lower", decision.NewRange.TickLower),
		zap.Int32("tick_upper", decision.NewRange.TickUpper),
	)
}

func (r *Runner) adjustHedge(ctx context.Context, pos model.Position, quote oracle.Quote, record *model.DecisionRecord) error {
	snap, err := r.estimator.Snapshot(pos, quote.Price, quote.Price0USD, quote.Price1USD, quote.Age)
	if err != nil {
		if errors.Is(err, engine.ErrStalePrice) {
			// Range status was still evaluated; only hedging is skipped.
			r.logger.Warn("price too stale to hedge", zap.Duration("age", quote.Age))
			return nil
		}
		return err
	}
	record.Exposure = snap.Record()

	currentShort, err := r.fetchShortSize(ctx)
	if err != nil {
		return fmt.Errorf("hedge position size: %w", err)
	}
	r.hedge.CurrentShortSize = currentShort

	instruction := r.hedger.Size(snap.DeltaToken0, currentShort)
	record.HedgeAction = string(instruction.Direction)
	record.HedgeAmount = instruction.Amount

	if instruction.Direction == model.HedgeNoAction {
		return nil
	}

	if err := r.venue.AdjustHedge(ctx, instruction); err != nil {
		return fmt.Errorf("adjust hedge: %w", err)
	}

	r.hedge.TargetShortSize = snap.DeltaToken0
	r.hedge.LastAdjustmentTS = time.Now().Unix()
	r.logger.Info("hedge adjusted",
		zap.String("direction", string(instruction.Direction)),
		zap.String("amount", instruction.Amount.String()),
		zap.String("delta", snap.DeltaToken0.String()),
	)
	return nil
}

func (r *Runner) fetchPoolState(ctx context.Context) (model.PoolState, error) {
	var state model.PoolState
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		callCtx, cancel := r.callContext(ctx)
		defer cancel()
		var err error
		state, err = r.source.PoolState(callCtx)
		if err != nil {
			r.logger.Warn("pool state fetch failed", zap.Error(err))
		}
		return err
	})
	return state, err
}

func (r *Runner) fetchPosition(ctx context.Context, id uint64) (model.Position, error) {
	var pos model.Position
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		callCtx, cancel := r.callContext(ctx)
		defer cancel()
		var err error
		pos, err = r.source.Position(callCtx, id)
		if err != nil {
			r.logger.Warn("position fetch failed", zap.Uint64("position_id", id), zap.Error(err))
		}
		return err
	})
	return pos, err
}

func (r *Runner) fetchShortSize(ctx context.Context) (decimal.Decimal, error) {
	var size decimal.Decimal
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		callCtx, cancel := r.callContext(ctx)
		defer cancel()
		var err error
		size, err = r.venue.PositionSize(callCtx, r.cfg.HedgeSymbol)
		return err
	})
	return size, err
}

func (r *Runner) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.CallTimeout)
}

func (r *Runner) persist(ctx context.Context, record model.DecisionRecord) {
	if r.sink != nil {
		if err := r.sink.PutDecisionBatch([]model.DecisionRecord{record}); err != nil {
			r.logger.Warn("append decision log failed", zap.Error(err))
		}
	}
	if r.history != nil {
		if err := r.history.UpsertDecisions(ctx, []model.DecisionRecord{record}); err != nil {
			r.logger.Warn("decision history upsert failed", zap.Error(err))
		}
	}
	if r.state != nil {
		save := LoopState{
			State:      r.rebalancer.State(),
			PositionID: r.positionID,
			Hedge:      r.hedge,
		}
		if err := r.state.Save(save); err != nil {
			r.logger.Warn("save state file failed", zap.Error(err))
		}
	}
}
