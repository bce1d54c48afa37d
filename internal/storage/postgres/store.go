package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rangeHedger/internal/model"
)

// Store provides Postgres persistence for the decision history.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertPool inserts or updates pool metadata.
func (s *Store) UpsertPool(ctx context.Context, pool model.Pool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pools (
			chain_id, pool_address, token0, token1, fee, tick_spacing, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (chain_id, pool_address)
		DO UPDATE SET
			token0 = EXCLUDED.token0,
			token1 = EXCLUDED.token1,
			fee = EXCLUDED.fee,
			tick_spacing = EXCLUDED.tick_spacing,
			updated_at = now()
	`,
		int64(pool.ChainID),
		pool.Address,
		pool.Token0,
		pool.Token1,
		pool.Fee,
		pool.TickSpacing,
	)
	return err
}

// UpsertDecisions inserts or updates decision cycle records.
func (s *Store) UpsertDecisions(ctx context.Context, decisions []model.DecisionRecord) error {
	if len(decisions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, d := range decisions {
		var amount0, amount1, valueUSD, delta *string
		var oneSided *bool
		if d.Exposure != nil {
			a0 := d.Exposure.Amount0.String()
			a1 := d.Exposure.Amount1.String()
			v := d.Exposure.ValueUSD.String()
			dl := d.Exposure.DeltaToken0.String()
			os := d.Exposure.FullyOneSided
			amount0, amount1, valueUSD, delta, oneSided = &a0, &a1, &v, &dl, &os
		}
		batch.Queue(`
			INSERT INTO decision_cycles (
				chain_id, pool_address, position_id, cycle_ts, state, price, tick,
				amount0, amount1, value_usd, delta_token0, fully_one_sided,
				range_action, hedge_action, hedge_amount, error, duration_ms,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,now(),now())
			ON CONFLICT (chain_id, pool_address, position_id, cycle_ts)
			DO UPDATE SET
				state = EXCLUDED.state,
				price = EXCLUDED.price,
				tick = EXCLUDED.tick,
				amount0 = EXCLUDED.amount0,
				amount1 = EXCLUDED.amount1,
				value_usd = EXCLUDED.value_usd,
				delta_token0 = EXCLUDED.delta_token0,
				fully_one_sided = EXCLUDED.fully_one_sided,
				range_action = EXCLUDED.range_action,
				hedge_action = EXCLUDED.hedge_action,
				hedge_amount = EXCLUDED.hedge_amount,
				error = EXCLUDED.error,
				duration_ms = EXCLUDED.duration_ms,
				updated_at = now()
		`,
			int64(d.ChainID),
			d.PoolAddress,
			int64(d.PositionID),
			d.CycleTS,
			d.State,
			d.Price.String(),
			d.Tick,
			amount0,
			amount1,
			valueUSD,
			delta,
			oneSided,
			d.RangeAction,
			d.HedgeAction,
			d.HedgeAmount.String(),
			nullIfEmpty(d.Error),
			d.DurationMS,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range decisions {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
