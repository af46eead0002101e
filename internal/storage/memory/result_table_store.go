package memory

import (
	"context"
	"sort"
	"sync"

	"strategy-sweep-lab/internal/domain"
	"strategy-sweep-lab/internal/storage"
)

var (
	_ storage.ResultTableStore = (*ResultTableStore)(nil)
	_ storage.SheetWriter      = (*ResultTableStore)(nil)
)

// Sheet is a named extra table held by the store.
type Sheet struct {
	Header []string
	Rows   [][]any
}

// ResultTableStore is an in-memory implementation of storage.ResultTableStore.
// Failure injection hooks make it usable as a test double.
type ResultTableStore struct {
	mu       sync.RWMutex
	tables   map[string][]domain.Observation // keyed by instrument
	order    []string                        // instruments in first-write order
	best     []domain.Observation
	global   []domain.Observation
	sheets   map[string]Sheet
	writes   int
	writeErr error
	readErr  error
}

// NewResultTableStore creates a new in-memory result table store.
func NewResultTableStore() *ResultTableStore {
	return &ResultTableStore{
		tables: make(map[string][]domain.Observation),
		sheets: make(map[string]Sheet),
	}
}

// SetWriteError makes every following WriteCheckpoint fail with err. Nil clears it.
func (s *ResultTableStore) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// SetReadError makes every following read fail with err. Nil clears it.
func (s *ResultTableStore) SetReadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// Writes returns the number of successful checkpoint writes.
func (s *ResultTableStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Sheet returns a copy of a named extra table.
func (s *ResultTableStore) Sheet(name string) (Sheet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.sheets[name]
	if !ok {
		return Sheet{}, false
	}
	return Sheet{Header: append([]string(nil), sh.Header...), Rows: copyCells(sh.Rows)}, true
}

// Instruments lists instruments in first-write order.
func (s *ResultTableStore) Instruments(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	return append([]string(nil), s.order...), nil
}

// ReadInstrument returns a copy of one instrument table.
func (s *ResultTableStore) ReadInstrument(_ context.Context, instrument string) ([]domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	rows, ok := s.tables[instrument]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyRows(rows), nil
}

// ReadGlobal returns a copy of the global table.
func (s *ResultTableStore) ReadGlobal(_ context.Context) ([]domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	return copyRows(s.global), nil
}

// ReadBest returns a copy of the best-per-instrument table.
func (s *ResultTableStore) ReadBest(_ context.Context) ([]domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	return copyRows(s.best), nil
}

// WriteCheckpoint replaces all three tables under one lock.
func (s *ResultTableStore) WriteCheckpoint(_ context.Context, cp *storage.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return s.writeErr
	}
	if _, exists := s.tables[cp.Instrument]; !exists {
		s.order = append(s.order, cp.Instrument)
	}
	s.tables[cp.Instrument] = copyRows(cp.Rows)
	s.best = copyRows(cp.Best)
	s.global = copyRows(cp.Global)
	s.writes++
	return nil
}

// WriteSheet stores a named extra table.
func (s *ResultTableStore) WriteSheet(_ context.Context, name string, header []string, rows [][]any) error {
	if name == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[name] = Sheet{Header: append([]string(nil), header...), Rows: copyCells(rows)}
	return nil
}

// Reset drops every table.
func (s *ResultTableStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[string][]domain.Observation)
	s.sheets = make(map[string]Sheet)
	s.order = nil
	s.best = nil
	s.global = nil
	s.readErr = nil
	return nil
}

// Close is a no-op.
func (s *ResultTableStore) Close() error { return nil }

// SheetNames returns the names of the extra tables, sorted.
func (s *ResultTableStore) SheetNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.sheets))
	for name := range s.sheets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func copyRows(rows []domain.Observation) []domain.Observation {
	if rows == nil {
		return nil
	}
	out := make([]domain.Observation, len(rows))
	for i, o := range rows {
		out[i] = o.Clone()
	}
	return out
}

func copyCells(rows [][]any) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}
