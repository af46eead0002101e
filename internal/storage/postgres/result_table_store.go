package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"strategy-sweep-lab/internal/domain"
	"strategy-sweep-lab/internal/idhash"
	"strategy-sweep-lab/internal/storage"
)

// ResultTableStore implements storage.ResultTableStore using PostgreSQL.
// The global table is not stored; it is the ordered union of all instrument
// rows of the namespace.
type ResultTableStore struct {
	pool      *Pool
	namespace string
}

// NewResultTableStore creates a store for one namespace. Close closes the pool.
func NewResultTableStore(pool *Pool, namespace string) *ResultTableStore {
	return &ResultTableStore{pool: pool, namespace: namespace}
}

// Compile-time interface check.
var _ storage.ResultTableStore = (*ResultTableStore)(nil)

var observationColumns = []string{
	"namespace", "key_id", "symbol",
	"atr_tenths", "rr_tenths", "vol_tenths",
	"atr_multiplier", "rr", "vol_multiplier",
	"net_profit_raw", "net_profit", "win_rate", "drawdown", "total_trades", "profit_factor",
	"failed",
}

var bestColumns = []string{
	"namespace", "symbol", "position",
	"atr_multiplier", "rr", "vol_multiplier",
	"net_profit_raw", "net_profit", "win_rate", "drawdown", "total_trades", "profit_factor",
}

// Instruments lists symbols with at least one row, alphabetically.
func (s *ResultTableStore) Instruments(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT symbol
		FROM sweep_observations
		WHERE namespace = $1
		ORDER BY symbol ASC
	`

	rows, err := s.pool.Query(ctx, query, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		out = append(out, symbol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instruments: %w", err)
	}
	return out, nil
}

// ReadInstrument returns one instrument table in key order.
func (s *ResultTableStore) ReadInstrument(ctx context.Context, instrument string) ([]domain.Observation, error) {
	query := `
		SELECT
			symbol, atr_multiplier, rr, vol_multiplier,
			net_profit_raw, net_profit, win_rate, drawdown, total_trades, profit_factor,
			failed
		FROM sweep_observations
		WHERE namespace = $1 AND symbol = $2
		ORDER BY atr_tenths ASC, rr_tenths ASC, vol_tenths ASC
	`

	rows, err := s.pool.Query(ctx, query, s.namespace, instrument)
	if err != nil {
		return nil, fmt.Errorf("get observations by symbol: %w", err)
	}
	defer rows.Close()

	out, err := scanObservations(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, storage.ErrNotFound
	}
	return out, nil
}

// ReadGlobal returns every row of the namespace in key order.
func (s *ResultTableStore) ReadGlobal(ctx context.Context) ([]domain.Observation, error) {
	query := `
		SELECT
			symbol, atr_multiplier, rr, vol_multiplier,
			net_profit_raw, net_profit, win_rate, drawdown, total_trades, profit_factor,
			failed
		FROM sweep_observations
		WHERE namespace = $1
		ORDER BY symbol ASC, atr_tenths ASC, rr_tenths ASC, vol_tenths ASC
	`

	rows, err := s.pool.Query(ctx, query, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("get all observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// ReadBest returns the best-per-instrument table in stored order.
func (s *ResultTableStore) ReadBest(ctx context.Context) ([]domain.Observation, error) {
	query := `
		SELECT
			symbol, atr_multiplier, rr, vol_multiplier,
			net_profit_raw, net_profit, win_rate, drawdown, total_trades, profit_factor,
			FALSE
		FROM sweep_best
		WHERE namespace = $1
		ORDER BY position ASC
	`

	rows, err := s.pool.Query(ctx, query, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("get best rows: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// WriteCheckpoint replaces the instrument rows and the best table in one
// transaction.
func (s *ResultTableStore) WriteCheckpoint(ctx context.Context, cp *storage.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM sweep_observations WHERE namespace = $1 AND symbol = $2`,
		s.namespace, cp.Instrument,
	); err != nil {
		return fmt.Errorf("delete instrument rows: %w", err)
	}

	obsRows := make([][]any, len(cp.Rows))
	for i, o := range cp.Rows {
		k := idhash.KeyOf(o)
		obsRows[i] = []any{
			s.namespace, idhash.ComputeKeyID(k), k.Instrument,
			k.ATRTenths, k.RRTenths, k.VolTenths,
			o.Combination.ATRMultiplier, o.Combination.RiskReward, o.Combination.VolMultiplier,
			o.NetProfitRaw, o.NetProfit, o.WinRate, o.Drawdown, o.TotalTrades, o.ProfitFactor,
			o.Failed,
		}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"sweep_observations"}, observationColumns, pgx.CopyFromRows(obsRows)); err != nil {
		return fmt.Errorf("copy instrument rows: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM sweep_best WHERE namespace = $1`, s.namespace); err != nil {
		return fmt.Errorf("delete best rows: %w", err)
	}
	bestRows := make([][]any, len(cp.Best))
	for i, o := range cp.Best {
		bestRows[i] = []any{
			s.namespace, idhash.NormalizeInstrument(o.Instrument), int32(i),
			o.Combination.ATRMultiplier, o.Combination.RiskReward, o.Combination.VolMultiplier,
			o.NetProfitRaw, o.NetProfit, o.WinRate, o.Drawdown, o.TotalTrades, o.ProfitFactor,
		}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"sweep_best"}, bestColumns, pgx.CopyFromRows(bestRows)); err != nil {
		return fmt.Errorf("copy best rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Reset deletes every row of the namespace.
func (s *ResultTableStore) Reset(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM sweep_observations WHERE namespace = $1`, s.namespace); err != nil {
		return fmt.Errorf("reset observations: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM sweep_best WHERE namespace = $1`, s.namespace); err != nil {
		return fmt.Errorf("reset best rows: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *ResultTableStore) Close() error {
	s.pool.Close()
	return nil
}

func scanObservations(rows pgx.Rows) ([]domain.Observation, error) {
	var out []domain.Observation

	for rows.Next() {
		var o domain.Observation

		err := rows.Scan(
			&o.Instrument,
			&o.Combination.ATRMultiplier, &o.Combination.RiskReward, &o.Combination.VolMultiplier,
			&o.NetProfitRaw, &o.NetProfit, &o.WinRate, &o.Drawdown, &o.TotalTrades, &o.ProfitFactor,
			&o.Failed,
		)
		if err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}

		out = append(out, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observation rows: %w", err)
	}

	return out, nil
}
