package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rangeHedger/internal/chain"
	"rangeHedger/internal/config"
	"rangeHedger/internal/dex"
	"rangeHedger/internal/engine"
	"rangeHedger/internal/exchange"
	"rangeHedger/internal/model"
	"rangeHedger/internal/oracle"
	"rangeHedger/internal/runner"
	"rangeHedger/internal/storage"
	"rangeHedger/internal/storage/postgres"
	"rangeHedger/internal/univ3"
)

func main() {
	root := &cobra.Command{
		Use:          "hedger",
		Short:        "Delta-neutral concentrated liquidity manager",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the decision loop",
		RunE:  runLoop,
	}

	addPoolFlags(runCmd)
	runCmd.Flags().Uint32("width-bps", 500, "half width of a fresh range, in bps of price")
	runCmd.Flags().Uint32("slippage-bps", 50, "slippage tolerance for provide instructions")
	runCmd.Flags().String("hedge-symbol", "", "perp symbol for the short hedge")
	runCmd.Flags().String("hedge-threshold", "0.01", "minimum hedge adjustment, in token0 units")
	runCmd.Flags().String("initial-amount0", "", "token0 budget for the first provision")
	runCmd.Flags().String("initial-amount1", "", "token1 budget for the first provision")
	runCmd.Flags().Duration("interval", 30*time.Second, "cycle interval")
	runCmd.Flags().Duration("call-timeout", 10*time.Second, "per-call RPC timeout")
	runCmd.Flags().Duration("price-max-age", 2*time.Minute, "max observation age for hedging")
	runCmd.Flags().Duration("price-max-age-loose", 15*time.Minute, "max observation age for any action")
	runCmd.Flags().String("mark-feed-url", "", "websocket mark price feed URL (empty disables)")
	runCmd.Flags().String("mark-feed-symbol", "", "mark feed subscription symbol")
	runCmd.Flags().Uint32("deviation-bps", 25, "mark deviation that triggers an early cycle")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN for decision history (empty disables)")
	runCmd.Flags().String("decision-log", "./data/decisions.jsonl", "decision log JSONL path")
	runCmd.Flags().String("state-file", "./data/state.json", "loop state file path")
	runCmd.Flags().Bool("state-file-enabled", true, "persist loop state between runs")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	evaluateCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run a single evaluation and print the result",
		RunE:  runEvaluate,
	}

	addPoolFlags(evaluateCmd)
	evaluateCmd.Flags().Uint32("width-bps", 500, "half width of a fresh range, in bps of price")
	evaluateCmd.Flags().Duration("price-max-age", 2*time.Minute, "max observation age for hedging")
	evaluateCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(evaluateCmd)

	rangeCmd := &cobra.Command{
		Use:   "range",
		Short: "Print the range a fresh provision would use at the current price",
		RunE:  runRange,
	}

	addPoolFlags(rangeCmd)
	rangeCmd.Flags().Uint32("width-bps", 500, "half width of a fresh range, in bps of price")
	rangeCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(rangeCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addPoolFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "Ethereum RPC URL")
	cmd.Flags().String("pool", "", "Uniswap v3 pool address")
	cmd.Flags().String("position-manager", "", "NFT position manager address")
	cmd.Flags().String("factory", "", "v3 factory address (verifies the pool address when set)")
	cmd.Flags().Uint64("position-id", 0, "managed position token id")
}

func runLoop(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.HedgeSymbol == "" {
		return fmt.Errorf("hedge symbol is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer env.client.Close()

	sink := storage.NewJsonlStorage(cfg.DecisionLog)

	var history *postgres.Store
	if cfg.PostgresDSN != "" {
		history, err = postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer history.Close()
		if err := history.UpsertPool(ctx, env.pool); err != nil {
			return err
		}
	}

	var feed *exchange.MarkFeed
	if cfg.MarkFeedURL != "" {
		feed = exchange.NewMarkFeed(exchange.MarkFeedConfig{
			URL:          cfg.MarkFeedURL,
			Symbol:       cfg.MarkFeedSymbol,
			DeviationBps: cfg.DeviationBps,
		}, logger)
		go func() {
			if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("mark feed stopped", zap.Error(err))
			}
		}()
	}

	venue := exchange.NewPaperVenue(logger)

	// On-chain execution is deliberately unwired: rebalance instructions are
	// logged and persisted, hedge adjustments go to the paper venue. A signing
	// executor plugs in behind runner.Executor.
	logger.Info("observe-only, no transaction executor configured")

	loop := runner.NewRunner(runner.RunConfig{
		Pool:             env.pool,
		Decimals0:        env.token0.Decimals,
		Decimals1:        env.token1.Decimals,
		PositionID:       cfg.PositionID,
		HedgeSymbol:      cfg.HedgeSymbol,
		InitialAmount0:   cfg.InitialAmount0,
		InitialAmount1:   cfg.InitialAmount1,
		Interval:         cfg.Interval,
		CallTimeout:      cfg.CallTimeout,
		MaxRetries:       cfg.MaxRetries,
		RetryBackoff:     cfg.RetryBackoff,
		PriceMaxAgeLoose: cfg.PriceMaxAgeLoose,
	}, runner.Deps{
		Source: &runner.DexSource{
			Reader:  env.reader,
			Pool:    env.poolAddr,
			Manager: env.managerAddr,
		},
		Executor: nil,
		Venue:    venue,
		Sink:     sink,
		History:  history,
		State:    runner.NewStateStore(cfg.StateFile, cfg.StateFileEnabled),
		Feed:     feed,
		Rebalancer: engine.NewRebalancer(engine.RebalanceConfig{
			TickSpacing: env.pool.TickSpacing,
			WidthBps:    cfg.WidthBps,
			SlippageBps: cfg.SlippageBps,
		}),
		Estimator: engine.NewEstimator(cfg.PriceMaxAge),
		Hedger:    engine.NewHedgeSizer(cfg.HedgeSymbol, cfg.HedgeThreshold),
		Logger:    logger,
	})

	logger.Info("hedger start",
		zap.String("pool", env.poolAddr.Hex()),
		zap.String("token0", env.token0.Symbol),
		zap.String("token1", env.token1.Symbol),
		zap.Uint64("position_id", cfg.PositionID),
		zap.String("hedge_symbol", cfg.HedgeSymbol),
		zap.Duration("interval", cfg.Interval),
	)

	return loop.Run(ctx)
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer env.client.Close()

	state, err := env.reader.PoolState(ctx, env.poolAddr)
	if err != nil {
		return err
	}
	quote, err := oracle.QuoteFromPoolState(state, env.token0.Decimals, env.token1.Decimals)
	if err != nil {
		return err
	}

	out := struct {
		Pool     model.Pool            `json:"pool"`
		State    model.PoolState       `json:"pool_state"`
		Price    string                `json:"price"`
		Position *model.Position       `json:"position,omitempty"`
		InRange  *bool                 `json:"in_range,omitempty"`
		Exposure *model.ExposureRecord `json:"exposure,omitempty"`
	}{
		Pool:  env.pool,
		State: state,
		Price: quote.Price.Value.String(),
	}

	if cfg.PositionID != 0 {
		if env.managerAddr == (common.Address{}) {
			return fmt.Errorf("position manager address is required with position-id")
		}
		pos, err := env.reader.Position(ctx, env.managerAddr, cfg.PositionID)
		if err != nil {
			return err
		}
		out.Position = &pos

		inRange := pos.Range.Contains(state.Tick)
		out.InRange = &inRange

		estimator := engine.NewEstimator(cfg.PriceMaxAge)
		snap, err := estimator.Snapshot(pos, quote.Price, quote.Price0USD, quote.Price1USD, quote.Age)
		if err != nil {
			return err
		}
		out.Exposure = snap.Record()
	}

	return printJSON(out)
}

func runRange(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer env.client.Close()

	state, err := env.reader.PoolState(ctx, env.poolAddr)
	if err != nil {
		return err
	}
	quote, err := oracle.QuoteFromPoolState(state, env.token0.Decimals, env.token1.Decimals)
	if err != nil {
		return err
	}

	rebalancer := engine.NewRebalancer(engine.RebalanceConfig{
		TickSpacing: env.pool.TickSpacing,
		WidthBps:    cfg.WidthBps,
	})
	proposed, err := rebalancer.ProposeRange(quote.Price)
	if err != nil {
		return err
	}

	lower, err := univ3.PriceFromTick(proposed.TickLower, env.token0.Decimals, env.token1.Decimals)
	if err != nil {
		return err
	}
	upper, err := univ3.PriceFromTick(proposed.TickUpper, env.token0.Decimals, env.token1.Decimals)
	if err != nil {
		return err
	}

	return printJSON(struct {
		Price      string      `json:"price"`
		Tick       int32       `json:"tick"`
		Range      univ3.Range `json:"range"`
		PriceLower string      `json:"price_lower"`
		PriceUpper string      `json:"price_upper"`
	}{
		Price:      quote.Price.Value.String(),
		Tick:       state.Tick,
		Range:      proposed,
		PriceLower: lower.Value.String(),
		PriceUpper: upper.Value.String(),
	})
}

// env bundles the chain-side collaborators shared by the subcommands.
type runEnv struct {
	client      *chain.Client
	reader      *dex.Reader
	pool        model.Pool
	poolAddr    common.Address
	managerAddr common.Address
	token0      model.TokenMeta
	token1      model.TokenMeta
}

func connect(ctx context.Context, cfg config.Config, logger *zap.Logger) (*runEnv, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.PoolAddress == "" {
		return nil, fmt.Errorf("pool address is required")
	}
	if !common.IsHexAddress(cfg.PoolAddress) {
		return nil, fmt.Errorf("invalid pool address %q", cfg.PoolAddress)
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	reader := dex.NewReader(client, logger)
	poolAddr := common.HexToAddress(cfg.PoolAddress)

	pool, err := reader.Pool(ctx, poolAddr)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("read pool: %w", err)
	}

	token0, err := reader.TokenMeta(ctx, common.HexToAddress(pool.Token0))
	if err != nil {
		client.Close()
		return nil, err
	}
	token1, err := reader.TokenMeta(ctx, common.HexToAddress(pool.Token1))
	if err != nil {
		client.Close()
		return nil, err
	}

	if cfg.Factory != "" {
		if !common.IsHexAddress(cfg.Factory) {
			client.Close()
			return nil, fmt.Errorf("invalid factory address %q", cfg.Factory)
		}
		resolved, err := reader.FindPool(ctx, common.HexToAddress(cfg.Factory),
			common.HexToAddress(pool.Token0), common.HexToAddress(pool.Token1), pool.Fee)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("resolve pool from factory: %w", err)
		}
		if resolved != poolAddr {
			client.Close()
			return nil, fmt.Errorf("factory resolves %s/%s fee %d to %s, not %s",
				token0.Symbol, token1.Symbol, pool.Fee, resolved.Hex(), poolAddr.Hex())
		}
	}

	var managerAddr common.Address
	if cfg.PositionManager != "" {
		if !common.IsHexAddress(cfg.PositionManager) {
			client.Close()
			return nil, fmt.Errorf("invalid position manager address %q", cfg.PositionManager)
		}
		managerAddr = common.HexToAddress(cfg.PositionManager)
	}

	return &runEnv{
		client:      client,
		reader:      reader,
		pool:        pool,
		poolAddr:    poolAddr,
		managerAddr: managerAddr,
		token0:      token0,
		token1:      token1,
	}, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
