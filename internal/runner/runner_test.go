package runner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rangeHedger/internal/engine"
	"rangeHedger/internal/exchange"
	"rangeHedger/internal/model"
	"rangeHedger/internal/storage"
	"rangeHedger/internal/univ3"
)

// sqrtPriceX96 for raw price 1, i.e. 2^96.
const unitySqrtX96 = "79228162514264337593543950336"

type fakeSource struct {
	state    model.PoolState
	pos      model.Position
	stateErr error
	posErr   error
}

func (f *fakeSource) PoolState(context.Context) (model.PoolState, error) {
	return f.state, f.stateErr
}

func (f *fakeSource) Position(context.Context, uint64) (model.Position, error) {
	return f.pos, f.posErr
}

type fakeExecutor struct {
	decreased  []model.DecreaseLiquidity
	collected  []model.CollectFees
	provided   []model.ProvideLiquidity
	newID      uint64
	provideErr error
}

func (f *fakeExecutor) DecreaseLiquidity(_ context.Context, instruction model.DecreaseLiquidity) error {
	f.decreased = append(f.decreased, instruction)
	return nil
}

func (f *fakeExecutor) CollectFees(_ context.Context, instruction model.CollectFees) error {
	f.collected = append(f.collected, instruction)
	return nil
}

func (f *fakeExecutor) ProvideLiquidity(_ context.Context, instruction model.ProvideLiquidity) (uint64, error) {
	f.provided = append(f.provided, instruction)
	if f.provideErr != nil {
		return 0, f.provideErr
	}
	return f.newID, nil
}

type memSink struct {
	records []model.DecisionRecord
}

func (s *memSink) PutDecisionBatch(decisions []model.DecisionRecord) error {
	s.records = append(s.records, decisions...)
	return nil
}

var _ storage.Storage = (*memSink)(nil)

func unityPoolState() model.PoolState {
	return model.PoolState{
		SqrtPriceX96:      unitySqrtX96,
		Tick:              0,
		BlockNumber:       100,
		BlockTimestamp:    1700000000,
		ObservationAgeSec: 10,
	}
}

func newTestRunner(t *testing.T, source SnapshotSource, executor Executor) (*Runner, *memSink, *exchange.PaperVenue) {
	t.Helper()

	sink := &memSink{}
	venue := exchange.NewPaperVenue(zap.NewNop())

	r := NewRunner(RunConfig{
		Pool: model.Pool{
			ChainID:     1,
			Address:     "0x1111111111111111111111111111111111111111",
			TickSpacing: 10,
		},
		Decimals0:        6,
		Decimals1:        6,
		PositionID:       7,
		HedgeSymbol:      "ETHUSDT",
		Interval:         time.Second,
		CallTimeout:      time.Second,
		MaxRetries:       0,
		RetryBackoff:     time.Millisecond,
		PriceMaxAgeLoose: 15 * time.Minute,
	}, Deps{
		Source:   source,
		Executor: executor,
		Venue:    venue,
		Sink:     sink,
		State:    NewStateStore(filepath.Join(t.TempDir(), "state.json"), true),
		Rebalancer: engine.NewRebalancer(engine.RebalanceConfig{
			TickSpacing: 10,
			WidthBps:    100,
			SlippageBps: 50,
		}),
		Estimator: engine.NewEstimator(time.Minute),
		Hedger:    engine.NewHedgeSizer("ETHUSDT", decimal.RequireFromString("0.01")),
		Logger:    zap.NewNop(),
	})
	return r, sink, venue
}

func TestCycleInRangeHedges(t *testing.T) {
	source := &fakeSource{
		state: unityPoolState(),
		pos: model.Position{
			ID: 7,
			// Price sits in the lower part of the range, so the position is
			// net long token0 and needs a short.
			Range:     univ3.Range{TickLower: -10, TickUpper: 300},
			Liquidity: decimal.New(1, 9),
		},
	}
	r, sink, venue := newTestRunner(t, source, nil)

	r.runCycle(context.Background())

	if len(sink.records) != 1 {
		t.Fatalf("records: got %d, want 1", len(sink.records))
	}
	record := sink.records[0]
	if record.State != string(engine.StateInRange) {
		t.Fatalf("state: got %s", record.State)
	}
	if record.RangeAction != string(engine.ActionNone) {
		t.Fatalf("range action: got %s", record.RangeAction)
	}
	if record.HedgeAction != string(model.HedgeIncreaseShort) {
		t.Fatalf("hedge action: got %s", record.HedgeAction)
	}
	if record.Exposure == nil || record.Exposure.DeltaToken0.Sign() <= 0 {
		t.Fatalf("exposure: %+v", record.Exposure)
	}
	if record.Error != "" {
		t.Fatalf("unexpected error: %s", record.Error)
	}

	short, err := venue.PositionSize(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("position size: %v", err)
	}
	if !short.Equal(record.HedgeAmount) {
		t.Fatalf("venue short %s != instructed %s", short, record.HedgeAmount)
	}

	// Next cycle against the unchanged snapshot: the short now matches the
	// delta and nothing is dispatched.
	r.runCycle(context.Background())
	if got := sink.records[1].HedgeAction; got != string(model.HedgeNoAction) {
		t.Fatalf("second cycle hedge action: got %s", got)
	}
}

func TestCycleOutOfRangeRebalances(t *testing.T) {
	source := &fakeSource{
		state: unityPoolState(),
		pos: model.Position{
			ID:        7,
			Range:     univ3.Range{TickLower: 100, TickUpper: 200},
			Liquidity: decimal.New(1, 9),
		},
	}
	executor := &fakeExecutor{newID: 777}
	r, sink, _ := newTestRunner(t, source, executor)

	r.runCycle(context.Background())

	if len(executor.decreased) != 1 || len(executor.collected) != 1 || len(executor.provided) != 1 {
		t.Fatalf("instructions: %d/%d/%d, want 1/1/1",
			len(executor.decreased), len(executor.collected), len(executor.provided))
	}
	if !executor.decreased[0].LiquidityAmount.Equal(source.pos.Liquidity) {
		t.Fatalf("decrease amount: got %s", executor.decreased[0].LiquidityAmount)
	}
	// Below the range the pool returns the whole position as token0.
	if executor.provided[0].Amount0.Sign() <= 0 || executor.provided[0].Amount1.Sign() != 0 {
		t.Fatalf("provide amounts: %s / %s", executor.provided[0].Amount0, executor.provided[0].Amount1)
	}

	if r.positionID != 777 {
		t.Fatalf("position id: got %d, want 777", r.positionID)
	}
	if r.rebalancer.State() != engine.StateInRange {
		t.Fatalf("state after confirm: got %s", r.rebalancer.State())
	}

	record := sink.records[0]
	if record.RangeAction != string(engine.ActionRebalance) {
		t.Fatalf("range action: got %s", record.RangeAction)
	}
	// The hedge waits for the next cycle's fresh snapshot of the new
	// position.
	if record.HedgeAction != string(model.HedgeNoAction) {
		t.Fatalf("hedge action: got %s", record.HedgeAction)
	}
}

func TestCycleReopenFailureRetries(t *testing.T) {
	source := &fakeSource{
		state: unityPoolState(),
		pos: model.Position{
			ID:        7,
			Range:     univ3.Range{TickLower: 100, TickUpper: 200},
			Liquidity: decimal.New(1, 9),
		},
	}
	executor := &fakeExecutor{newID: 777, provideErr: errors.New("nonce too low")}
	r, sink, _ := newTestRunner(t, source, executor)

	r.runCycle(context.Background())

	if r.positionID != 7 {
		t.Fatalf("position id changed on failed reopen: %d", r.positionID)
	}
	if r.rebalancer.State() != engine.StateOutOfRange {
		t.Fatalf("state: got %s", r.rebalancer.State())
	}
	if sink.records[0].Error == "" {
		t.Fatal("reopen failure not recorded")
	}

	// The retry dispatches a fresh close/reopen pair.
	r.runCycle(context.Background())
	if len(executor.provided) != 2 {
		t.Fatalf("provide attempts: got %d, want 2", len(executor.provided))
	}
}

func TestCycleNoExecutorObservesOnly(t *testing.T) {
	source := &fakeSource{
		state: unityPoolState(),
		pos: model.Position{
			ID:        7,
			Range:     univ3.Range{TickLower: 100, TickUpper: 200},
			Liquidity: decimal.New(1, 9),
		},
	}
	r, sink, _ := newTestRunner(t, source, nil)

	r.runCycle(context.Background())

	if r.rebalancer.State() != engine.StateOutOfRange {
		t.Fatalf("state: got %s", r.rebalancer.State())
	}
	if sink.records[0].RangeAction != string(engine.ActionRebalance) {
		t.Fatalf("range action: got %s", sink.records[0].RangeAction)
	}
}

func TestCycleStaleBeyondLooseBound(t *testing.T) {
	state := unityPoolState()
	state.ObservationAgeSec = 3600
	source := &fakeSource{
		state: state,
		pos: model.Position{
			ID:        7,
			Range:     univ3.Range{TickLower: -10, TickUpper: 300},
			Liquidity: decimal.New(1, 9),
		},
	}
	r, sink, _ := newTestRunner(t, source, nil)

	r.runCycle(context.Background())

	record := sink.records[0]
	if record.Error == "" {
		t.Fatal("stale observation not recorded as error")
	}
	if record.HedgeAction != string(model.HedgeNoAction) {
		t.Fatalf("hedged on stale data: %s", record.HedgeAction)
	}
	_ = r
}

func TestCycleQuarantinesNegativeLiquidity(t *testing.T) {
	source := &fakeSource{
		state: unityPoolState(),
		pos: model.Position{
			ID:        7,
			Range:     univ3.Range{TickLower: -10, TickUpper: 300},
			Liquidity: decimal.New(-5, 0),
		},
	}
	r, sink, _ := newTestRunner(t, source, nil)

	r.runCycle(context.Background())
	if sink.records[0].Error == "" {
		t.Fatal("negative liquidity not recorded")
	}
	if _, held := r.quarantine[7]; !held {
		t.Fatal("position not quarantined")
	}

	// Same reading again: still refused.
	r.runCycle(context.Background())
	if sink.records[1].Error == "" {
		t.Fatal("quarantined position acted on")
	}

	// The reading changed, so the quarantine lifts and the cycle proceeds.
	source.pos.Liquidity = decimal.New(1, 9)
	r.runCycle(context.Background())
	if sink.records[2].Error != "" {
		t.Fatalf("recovered cycle failed: %s", sink.records[2].Error)
	}
	if _, held := r.quarantine[7]; held {
		t.Fatal("quarantine not lifted")
	}
}

func TestCycleSourceFailureRecorded(t *testing.T) {
	source := &fakeSource{
		state:    unityPoolState(),
		stateErr: errors.New("rpc unreachable"),
	}
	r, sink, _ := newTestRunner(t, source, nil)

	r.runCycle(context.Background())

	if len(sink.records) != 1 {
		t.Fatalf("records: got %d", len(sink.records))
	}
	if sink.records[0].Error == "" {
		t.Fatal("source failure not recorded")
	}
	_ = r
}
