package clickhouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"strategy-sweep-lab/internal/domain"
	"strategy-sweep-lab/internal/idhash"
	"strategy-sweep-lab/internal/storage"
)

// ResultTableStore implements storage.ResultTableStore using ClickHouse.
// Tables are ReplacingMergeTree keyed by namespace and observation key; a row
// is replaced by inserting a higher version and removed by inserting a
// tombstone (deleted = 1). Reads use FINAL.
type ResultTableStore struct {
	conn      *Conn
	namespace string

	mu          sync.Mutex
	lastVersion uint64
}

// NewResultTableStore creates a store for one namespace. Close closes conn.
func NewResultTableStore(conn *Conn, namespace string) *ResultTableStore {
	return &ResultTableStore{conn: conn, namespace: namespace}
}

// Compile-time interface check.
var _ storage.ResultTableStore = (*ResultTableStore)(nil)

// nextVersion returns a strictly increasing version seeded from wall time.
func (s *ResultTableStore) nextVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := uint64(time.Now().UnixNano())
	if v <= s.lastVersion {
		v = s.lastVersion + 1
	}
	s.lastVersion = v
	return v
}

const selectObservation = `
	SELECT
		symbol, atr_multiplier, rr, vol_multiplier,
		net_profit_raw, net_profit, win_rate, drawdown, total_trades, profit_factor,
		failed
	FROM sweep_observations FINAL
`

// Instruments lists symbols with live rows, alphabetically.
func (s *ResultTableStore) Instruments(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT symbol
		FROM sweep_observations FINAL
		WHERE namespace = ? AND deleted = 0
		ORDER BY symbol ASC
	`

	rows, err := s.conn.Query(ctx, query, s.namespace)
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
	query := selectObservation + `
		WHERE namespace = ? AND symbol = ? AND deleted = 0
		ORDER BY atr_tenths ASC, rr_tenths ASC, vol_tenths ASC
	`
	out, err := s.queryObservations(ctx, query, s.namespace, instrument)
	if err != nil {
		return nil, fmt.Errorf("get observations by symbol: %w", err)
	}
	if len(out) == 0 {
		return nil, storage.ErrNotFound
	}
	return out, nil
}

// ReadGlobal returns every live row of the namespace in key order.
func (s *ResultTableStore) ReadGlobal(ctx context.Context) ([]domain.Observation, error) {
	query := selectObservation + `
		WHERE namespace = ? AND deleted = 0
		ORDER BY symbol ASC, atr_tenths ASC, rr_tenths ASC, vol_tenths ASC
	`
	out, err := s.queryObservations(ctx, query, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("get all observations: %w", err)
	}
	return out, nil
}

// ReadBest returns the best-per-instrument table in stored order.
func (s *ResultTableStore) ReadBest(ctx context.Context) ([]domain.Observation, error) {
	query := `
		SELECT
			symbol, atr_multiplier, rr, vol_multiplier,
			net_profit_raw, net_profit, win_rate, drawdown, total_trades, profit_factor,
			toUInt8(0)
		FROM sweep_best FINAL
		WHERE namespace = ? AND deleted = 0
		ORDER BY position ASC
	`
	out, err := s.queryObservations(ctx, query, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("get best rows: %w", err)
	}
	return out, nil
}

func (s *ResultTableStore) queryObservations(ctx context.Context, query string, args ...any) ([]domain.Observation, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Observation
	for rows.Next() {
		var o domain.Observation
		var failed uint8
		err := rows.Scan(
			&o.Instrument,
			&o.Combination.ATRMultiplier, &o.Combination.RiskReward, &o.Combination.VolMultiplier,
			&o.NetProfitRaw, &o.NetProfit, &o.WinRate, &o.Drawdown, &o.TotalTrades, &o.ProfitFactor,
			&failed,
		)
		if err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}
		o.Failed = failed == 1
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observation rows: %w", err)
	}
	return out, nil
}

// WriteCheckpoint inserts the instrument rows at a new version, then tombstones
// keys that are no longer present. The best table is rewritten the same way.
// ClickHouse has no multi-table transaction: a failure after the first insert
// leaves stale keys that the next checkpoint removes.
func (s *ResultTableStore) WriteCheckpoint(ctx context.Context, cp *storage.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}

	tombstone := s.nextVersion()
	live := s.nextVersion()
	if len(cp.Rows) == 0 {
		return s.writeBest(ctx, cp.Best, tombstone, live)
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO sweep_observations (
			namespace, symbol, atr_tenths, rr_tenths, vol_tenths,
			atr_multiplier, rr, vol_multiplier,
			net_profit_raw, net_profit, win_rate, drawdown, total_trades, profit_factor,
			failed, deleted, version
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, o := range cp.Rows {
		k := idhash.KeyOf(o)
		err = batch.Append(
			s.namespace, k.Instrument, k.ATRTenths, k.RRTenths, k.VolTenths,
			o.Combination.ATRMultiplier, o.Combination.RiskReward, o.Combination.VolMultiplier,
			o.NetProfitRaw, o.NetProfit, o.WinRate, o.Drawdown, o.TotalTrades, o.ProfitFactor,
			boolToUInt8(o.Failed), uint8(0), live,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO sweep_observations
		SELECT
			namespace, symbol, atr_tenths, rr_tenths, vol_tenths,
			atr_multiplier, rr, vol_multiplier,
			net_profit_raw, net_profit, win_rate, drawdown, total_trades, profit_factor,
			failed, toUInt8(1), toUInt64(?)
		FROM sweep_observations FINAL
		WHERE namespace = ? AND symbol = ? AND deleted = 0 AND version < ?
	`, tombstone, s.namespace, cp.Instrument, live)
	if err != nil {
		return fmt.Errorf("tombstone stale rows: %w", err)
	}

	return s.writeBest(ctx, cp.Best, tombstone, live)
}

func (s *ResultTableStore) writeBest(ctx context.Context, best []domain.Observation, tombstone, live uint64) error {
	if len(best) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO sweep_best (
			namespace, symbol, position,
			atr_multiplier, rr, vol_multiplier,
			net_profit_raw, net_profit, win_rate, drawdown, total_trades, profit_factor,
			deleted, version
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare best batch: %w", err)
	}
	for i, o := range best {
		err = batch.Append(
			s.namespace, idhash.NormalizeInstrument(o.Instrument), uint32(i),
			o.Combination.ATRMultiplier, o.Combination.RiskReward, o.Combination.VolMultiplier,
			o.NetProfitRaw, o.NetProfit, o.WinRate, o.Drawdown, o.TotalTrades, o.ProfitFactor,
			uint8(0), live,
		)
		if err != nil {
			return fmt.Errorf("append best row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send best batch: %w", err)
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO sweep_best
		SELECT
			namespace, symbol, position,
			atr_multiplier, rr, vol_multiplier,
			net_profit_raw, net_profit, win_rate, drawdown, total_trades, profit_factor,
			toUInt8(1), toUInt64(?)
		FROM sweep_best FINAL
		WHERE namespace = ? AND deleted = 0 AND version < ?
	`, tombstone, s.namespace, live)
	if err != nil {
		return fmt.Errorf("tombstone stale best rows: %w", err)
	}
	return nil
}

// Reset tombstones every live row of the namespace.
func (s *ResultTableStore) Reset(ctx context.Context) error {
	v := s.nextVersion()
	err := s.conn.Exec(ctx, `
		INSERT INTO sweep_observations
		SELECT
			namespace, symbol, atr_tenths, rr_tenths, vol_tenths,
			atr_multiplier, rr, vol_multiplier,
			net_profit_raw, net_profit, win_rate, drawdown, total_trades, profit_factor,
			failed, toUInt8(1), toUInt64(?)
		FROM sweep_observations FINAL
		WHERE namespace = ? AND deleted = 0
	`, v, s.namespace)
	if err != nil {
		return fmt.Errorf("reset observations: %w", err)
	}
	err = s.conn.Exec(ctx, `
		INSERT INTO sweep_best
		SELECT
			namespace, symbol, position,
			atr_multiplier, rr, vol_multiplier,
			net_profit_raw, net_profit, win_rate, drawdown, total_trades, profit_factor,
			toUInt8(1), toUInt64(?)
		FROM sweep_best FINAL
		WHERE namespace = ? AND deleted = 0
	`, v, s.namespace)
	if err != nil {
		return fmt.Errorf("reset best rows: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *ResultTableStore) Close() error {
	return s.conn.Close()
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
