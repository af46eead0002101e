// Package results holds the resumable record of every observation: the
// per-instrument tables, the derived global and best tables, the skip cache
// and the pending batches.
package results

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"strategy-sweep-lab/internal/cleaning"
	"strategy-sweep-lab/internal/domain"
	"strategy-sweep-lab/internal/idhash"
	"strategy-sweep-lab/internal/observability"
	"strategy-sweep-lab/internal/storage"
)

// Options configures a Store.
type Options struct {
	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// LoadSummary describes what Load recovered.
type LoadSummary struct {
	Rows        int
	Instruments int
	Reset       bool // prior data was unreadable and the store started empty
}

// Store is owned by a single sweep goroutine and is not safe for concurrent use.
type Store struct {
	tables  storage.ResultTableStore
	log     zerolog.Logger
	metrics *observability.Metrics

	cache     map[domain.ObservationKey]domain.Observation
	durable   map[string][]domain.Observation // merged rows per instrument, key order
	order     []string                        // instruments in table order
	best      map[string]domain.Observation
	bestOrder []string
	batches   map[string][]domain.Observation
	rewrite   map[string]bool // tables whose persisted form differs from normalized rows
}

// New creates an empty Store over tables. Call Load before use.
func New(tables storage.ResultTableStore, opts Options) *Store {
	return &Store{
		tables:  tables,
		log:     opts.Logger,
		metrics: opts.Metrics,
		cache:   make(map[domain.ObservationKey]domain.Observation),
		durable: make(map[string][]domain.Observation),
		best:    make(map[string]domain.Observation),
		batches: make(map[string][]domain.Observation),
		rewrite: make(map[string]bool),
	}
}

// Load replays every persisted row through normalization and rebuilds the
// cache. Prior data that cannot be decoded (storage.ErrCorrupt) is discarded
// through Reset and the store starts empty. Any other read error is returned
// and the persisted tables are left untouched.
func (s *Store) Load(ctx context.Context) (LoadSummary, error) {
	err := s.load(ctx)
	if err == nil {
		sum := LoadSummary{Rows: len(s.cache), Instruments: len(s.order)}
		s.log.Info().Int("rows", sum.Rows).Int("instruments", sum.Instruments).Msg("loaded cached rows")
		return sum, nil
	}
	s.clear()
	if ctx.Err() != nil {
		return LoadSummary{}, ctx.Err()
	}
	if !errors.Is(err, storage.ErrCorrupt) {
		return LoadSummary{}, fmt.Errorf("load results: %w", err)
	}

	s.log.Warn().Err(err).Msg("existing results are corrupt, starting fresh")
	if rerr := s.tables.Reset(ctx); rerr != nil {
		return LoadSummary{}, fmt.Errorf("reset result store: %w", errors.Join(err, rerr))
	}
	return LoadSummary{Reset: true}, nil
}

func (s *Store) clear() {
	s.cache = make(map[domain.ObservationKey]domain.Observation)
	s.durable = make(map[string][]domain.Observation)
	s.order = nil
	s.best = make(map[string]domain.Observation)
	s.bestOrder = nil
	s.batches = make(map[string][]domain.Observation)
	s.rewrite = make(map[string]bool)
}

func (s *Store) load(ctx context.Context) error {
	s.clear()

	instruments, err := s.tables.Instruments(ctx)
	if err != nil {
		return fmt.Errorf("list instruments: %w", err)
	}

	for _, inst := range instruments {
		rows, err := s.tables.ReadInstrument(ctx, inst)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", inst, err)
		}
		s.absorb(idhash.NormalizeInstrument(inst), rows)
	}

	if len(instruments) == 0 {
		// A store holding only a global table still seeds the cache.
		global, err := s.tables.ReadGlobal(ctx)
		if err != nil {
			return fmt.Errorf("read global table: %w", err)
		}
		byInst := make(map[string][]domain.Observation)
		var order []string
		for _, o := range global {
			inst := idhash.NormalizeInstrument(o.Instrument)
			if _, ok := byInst[inst]; !ok {
				order = append(order, inst)
			}
			byInst[inst] = append(byInst[inst], o)
		}
		for _, inst := range order {
			s.absorb(inst, byInst[inst])
			s.rewrite[inst] = true
		}
	}

	best, err := s.tables.ReadBest(ctx)
	if err != nil {
		return fmt.Errorf("read best table: %w", err)
	}
	for _, o := range best {
		s.setBest(cleaning.Normalize(o))
	}
	for _, inst := range s.order {
		if b, ok := BestOf(s.durable[inst]); ok {
			s.setBest(b)
		}
	}

	for _, rows := range s.durable {
		for _, o := range rows {
			s.cache[idhash.KeyOf(o)] = o
		}
	}
	return nil
}

// absorb normalizes and deduplicates rows read back for one instrument.
func (s *Store) absorb(inst string, raw []domain.Observation) {
	normalized := make([]domain.Observation, 0, len(raw))
	changed := false
	for _, o := range raw {
		n := cleaning.Normalize(o)
		if n.Instrument != inst {
			n.Instrument = inst
		}
		if !reflect.DeepEqual(n.Cells(), o.Cells()) {
			changed = true
		}
		normalized = append(normalized, n)
	}
	merged := Merge(s.durable[inst], normalized)
	if len(merged) != len(raw) {
		changed = true
	}
	if _, ok := s.durable[inst]; !ok {
		s.order = append(s.order, inst)
	}
	s.durable[inst] = merged
	if changed {
		s.rewrite[inst] = true
	}
}

func (s *Store) setBest(o domain.Observation) {
	if _, ok := s.best[o.Instrument]; !ok {
		s.bestOrder = append(s.bestOrder, o.Instrument)
	}
	s.best[o.Instrument] = o
}

func (s *Store) dropBest(inst string) {
	if _, ok := s.best[inst]; !ok {
		return
	}
	delete(s.best, inst)
	for i, name := range s.bestOrder {
		if name == inst {
			s.bestOrder = append(s.bestOrder[:i:i], s.bestOrder[i+1:]...)
			break
		}
	}
}

// Has reports whether key is already persisted.
func (s *Store) Has(key domain.ObservationKey) bool {
	_, ok := s.cache[key]
	return ok
}

// GetCached returns the persisted row for key.
func (s *Store) GetCached(key domain.ObservationKey) (domain.Observation, bool) {
	o, ok := s.cache[key]
	if !ok {
		return domain.Observation{}, false
	}
	return o.Clone(), true
}

// Seed adds rows to the skip cache without making them part of any table.
// Worker shards use it to skip keys the main store already holds.
func (s *Store) Seed(rows []domain.Observation) {
	for _, o := range rows {
		o = cleaning.Normalize(o)
		k := idhash.KeyOf(o)
		if _, ok := s.cache[k]; !ok {
			s.cache[k] = o
		}
	}
}

// Append adds o to its instrument's pending batch. Nothing is persisted.
func (s *Store) Append(o domain.Observation) {
	inst := idhash.NormalizeInstrument(o.Instrument)
	o.Instrument = inst
	s.batches[inst] = append(s.batches[inst], o)
}

// Pending returns the size of an instrument's batch.
func (s *Store) Pending(instrument string) int {
	return len(s.batches[idhash.NormalizeInstrument(instrument)])
}

// Checkpoint merges the instrument's batch into its durable table and writes
// the instrument, best and global tables. An empty batch writes nothing.
// On a write error the batch is kept for the next checkpoint.
func (s *Store) Checkpoint(ctx context.Context, instrument string) error {
	inst := idhash.NormalizeInstrument(instrument)
	batch := s.batches[inst]
	if len(batch) == 0 {
		return nil
	}
	if err := s.write(ctx, inst, Merge(s.durable[inst], batch)); err != nil {
		return err
	}
	delete(s.batches, inst)
	return nil
}

// Finalize checkpoints the instrument and rewrites its table once more when
// the persisted rows were not in normalized form. Calling it again is a no-op.
func (s *Store) Finalize(ctx context.Context, instrument string) error {
	inst := idhash.NormalizeInstrument(instrument)
	if err := s.Checkpoint(ctx, inst); err != nil {
		return err
	}
	if !s.rewrite[inst] {
		return nil
	}
	rows, ok := s.durable[inst]
	if !ok {
		delete(s.rewrite, inst)
		return nil
	}
	return s.write(ctx, inst, rows)
}

func (s *Store) write(ctx context.Context, inst string, merged []domain.Observation) error {
	start := time.Now()

	best := make(map[string]domain.Observation, len(s.best)+1)
	for k, v := range s.best {
		best[k] = v
	}
	bestOrder := append([]string(nil), s.bestOrder...)
	b, hasBest := BestOf(merged)
	if hasBest {
		if _, ok := best[inst]; !ok {
			bestOrder = append(bestOrder, inst)
		}
		best[inst] = b
	} else if _, ok := best[inst]; ok {
		delete(best, inst)
		bestOrder = removeString(bestOrder, inst)
	}

	order := s.order
	if _, ok := s.durable[inst]; !ok {
		order = append(append([]string(nil), s.order...), inst)
	}

	cp := &storage.Checkpoint{
		Instrument: inst,
		Rows:       merged,
		Best:       make([]domain.Observation, 0, len(bestOrder)),
		Global:     s.globalWith(inst, merged),
	}
	for _, name := range bestOrder {
		cp.Best = append(cp.Best, best[name])
	}

	err := s.tables.WriteCheckpoint(ctx, cp)
	s.metrics.RecordCheckpoint(time.Since(start), err)
	if err != nil {
		s.log.Warn().Err(err).Str("instrument", inst).Int("pending", len(s.batches[inst])).
			Msg("checkpoint failed, batch retained")
		return fmt.Errorf("checkpoint %s: %w", inst, err)
	}

	s.order = order
	s.durable[inst] = merged
	if hasBest {
		s.setBest(b)
	} else {
		s.dropBest(inst)
	}
	for _, o := range merged {
		s.cache[idhash.KeyOf(o)] = o
	}
	delete(s.rewrite, inst)

	ev := s.log.Info().Str("instrument", inst).Int("rows", len(merged))
	if hasBest {
		ev = ev.Float64("best_net_profit", *b.NetProfit)
	}
	ev.Msg("checkpoint written")
	return nil
}

// globalWith returns the union of every durable table with inst replaced by rows.
func (s *Store) globalWith(inst string, rows []domain.Observation) []domain.Observation {
	held := make(map[domain.ObservationKey]domain.Observation)
	for name, table := range s.durable {
		if name == inst {
			continue
		}
		for _, o := range table {
			held[idhash.KeyOf(o)] = o
		}
	}
	for _, o := range rows {
		held[idhash.KeyOf(o)] = o
	}
	return sortedRows(held)
}

// Table returns a copy of an instrument's durable rows in key order.
func (s *Store) Table(instrument string) []domain.Observation {
	return cloneRows(s.durable[idhash.NormalizeInstrument(instrument)])
}

// Global returns the union of all durable tables in key order.
func (s *Store) Global() []domain.Observation {
	return cloneRows(s.globalWith("", nil))
}

// Best returns the best-per-instrument rows in table order.
func (s *Store) Best() []domain.Observation {
	out := make([]domain.Observation, 0, len(s.bestOrder))
	for _, name := range s.bestOrder {
		out = append(out, s.best[name].Clone())
	}
	return out
}

// Instruments lists instruments with a durable table.
func (s *Store) Instruments() []string {
	return append([]string(nil), s.order...)
}

// CacheSize returns the number of cached keys.
func (s *Store) CacheSize() int {
	return len(s.cache)
}

// Close releases the underlying table store.
func (s *Store) Close() error {
	return s.tables.Close()
}

func cloneRows(rows []domain.Observation) []domain.Observation {
	out := make([]domain.Observation, len(rows))
	for i, o := range rows {
		out[i] = o.Clone()
	}
	return out
}

func removeString(list []string, v string) []string {
	out := list[:0:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
