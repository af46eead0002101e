package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"strategy-sweep-lab/internal/cleaning"
	"strategy-sweep-lab/internal/domain"
	"strategy-sweep-lab/internal/storage"
)

var (
	_ storage.ResultTableStore = (*ResultTableStore)(nil)
	_ storage.SheetWriter      = (*ResultTableStore)(nil)
)

// Options configures a workbook store.
type Options struct {
	Path   string
	Logger zerolog.Logger
}

// ResultTableStore keeps the decoded workbook in memory and rewrites the whole
// file on every write. The file on disk is always a complete workbook.
type ResultTableStore struct {
	path string
	log  zerolog.Logger

	mu          sync.Mutex
	loaded      bool
	instruments []string
	tables      map[string][]domain.Observation
	global      []domain.Observation
	best        []domain.Observation
	extraOrder  []string
	extra       map[string]sheet
}

// NewResultTableStore creates a store over opts.Path. The file is read lazily.
func NewResultTableStore(opts Options) *ResultTableStore {
	return &ResultTableStore{
		path:   opts.Path,
		log:    opts.Logger,
		tables: make(map[string][]domain.Observation),
		extra:  make(map[string]sheet),
	}
}

// Path returns the workbook path.
func (s *ResultTableStore) Path() string { return s.path }

func (s *ResultTableStore) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	names, rows, err := readSheets(s.path)
	if errors.Is(err, os.ErrPermission) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrCorrupt, err)
	}

	tables := make(map[string][]domain.Observation)
	var instruments, extraOrder []string
	extra := make(map[string]sheet)
	var global, best []domain.Observation

	for _, name := range names {
		data := rows[name]
		switch {
		case name == domain.GlobalTable:
			global = s.decodeResults(name, data, "")
		case name == domain.BestTable:
			best = s.decodeBest(data)
		case strings.HasSuffix(name, domain.InstrumentTableSuffix):
			inst := strings.TrimSuffix(name, domain.InstrumentTableSuffix)
			instruments = append(instruments, inst)
			tables[inst] = s.decodeResults(name, data, inst)
		default:
			sh := sheet{name: name}
			if len(data) > 0 {
				sh.header = data[0]
				sh.rows = textCells(data[1:])
			}
			extraOrder = append(extraOrder, name)
			extra[name] = sh
		}
	}

	s.instruments = instruments
	s.tables = tables
	s.global = global
	s.best = best
	s.extraOrder = extraOrder
	s.extra = extra
	s.loaded = true
	return nil
}

func (s *ResultTableStore) decodeResults(name string, data [][]string, instrument string) []domain.Observation {
	if len(data) == 0 {
		return nil
	}
	h := cleaning.NewHeader(data[0])
	out := make([]domain.Observation, 0, len(data)-1)
	skipped := 0
	for _, cells := range data[1:] {
		if blank(cells) {
			continue
		}
		o, err := cleaning.FromCells(h, cells, instrument)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, o)
	}
	if skipped > 0 {
		s.log.Warn().Str("sheet", name).Int("skipped", skipped).Msg("skipped malformed rows")
	}
	return out
}

func (s *ResultTableStore) decodeBest(data [][]string) []domain.Observation {
	if len(data) == 0 {
		return nil
	}
	h := cleaning.NewHeader(data[0])
	out := make([]domain.Observation, 0, len(data)-1)
	for _, cells := range data[1:] {
		if blank(cells) {
			continue
		}
		o, err := cleaning.BestFromCells(h, cells)
		if err != nil {
			continue
		}
		out = append(out, o)
	}
	return out
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Instruments lists instrument sheets in workbook order.
func (s *ResultTableStore) Instruments(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	return append([]string(nil), s.instruments...), nil
}

// ReadInstrument returns the rows of <instrument>_Results.
func (s *ResultTableStore) ReadInstrument(_ context.Context, instrument string) ([]domain.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	rows, ok := s.tables[instrument]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneRows(rows), nil
}

// ReadGlobal returns the rows of All_Results.
func (s *ResultTableStore) ReadGlobal(_ context.Context) ([]domain.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	return cloneRows(s.global), nil
}

// ReadBest returns the rows of Best_Per_Symbol.
func (s *ResultTableStore) ReadBest(_ context.Context) ([]domain.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	return cloneRows(s.best), nil
}

// WriteCheckpoint rewrites the workbook with the new instrument, best and
// global tables. In-memory state changes only after the file is replaced.
func (s *ResultTableStore) WriteCheckpoint(_ context.Context, cp *storage.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	instruments := s.instruments
	if _, ok := s.tables[cp.Instrument]; !ok {
		instruments = append(append([]string(nil), s.instruments...), cp.Instrument)
	}
	tables := make(map[string][]domain.Observation, len(s.tables)+1)
	for k, v := range s.tables {
		tables[k] = v
	}
	tables[cp.Instrument] = cloneRows(cp.Rows)
	global := cloneRows(cp.Global)
	best := cloneRows(cp.Best)

	if err := writeWorkbook(s.path, s.render(instruments, tables, global, best, s.extraOrder, s.extra)); err != nil {
		return err
	}

	s.instruments = instruments
	s.tables = tables
	s.global = global
	s.best = best
	return nil
}

// WriteSheet replaces or appends a named extra sheet.
func (s *ResultTableStore) WriteSheet(_ context.Context, name string, header []string, rows [][]any) error {
	if name == "" || len(name) > 31 {
		return fmt.Errorf("%w: sheet name %q", storage.ErrInvalidInput, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	order := s.extraOrder
	if _, ok := s.extra[name]; !ok {
		order = append(append([]string(nil), s.extraOrder...), name)
	}
	extra := make(map[string]sheet, len(s.extra)+1)
	for k, v := range s.extra {
		extra[k] = v
	}
	extra[name] = sheet{name: name, header: append([]string(nil), header...), rows: rows}

	if err := writeWorkbook(s.path, s.render(s.instruments, s.tables, s.global, s.best, order, extra)); err != nil {
		return err
	}
	s.extraOrder = order
	s.extra = extra
	return nil
}

func (s *ResultTableStore) render(
	instruments []string,
	tables map[string][]domain.Observation,
	global, best []domain.Observation,
	extraOrder []string,
	extra map[string]sheet,
) []sheet {
	out := make([]sheet, 0, len(instruments)+2+len(extraOrder))
	for _, inst := range instruments {
		out = append(out, resultSheet(domain.InstrumentTable(inst), tables[inst]))
	}
	out = append(out, resultSheet(domain.GlobalTable, global))

	bestRows := make([][]any, len(best))
	for i, o := range best {
		bestRows[i] = o.BestCells()
	}
	out = append(out, sheet{name: domain.BestTable, header: domain.BestColumns, rows: bestRows})

	for _, name := range extraOrder {
		out = append(out, extra[name])
	}
	return out
}

func resultSheet(name string, rows []domain.Observation) sheet {
	cells := make([][]any, len(rows))
	for i, o := range rows {
		cells[i] = o.Cells()
	}
	return sheet{name: name, header: domain.ResultColumns, rows: cells}
}

// Reset moves an existing workbook aside to <path>.bak and starts empty.
func (s *ResultTableStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		backup := s.path + ".bak"
		if err := os.Rename(s.path, backup); err != nil {
			return fmt.Errorf("move aside %s: %w", s.path, err)
		}
		s.log.Warn().Str("path", s.path).Str("backup", backup).Msg("workbook moved aside")
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", s.path, err)
	}

	s.instruments = nil
	s.tables = make(map[string][]domain.Observation)
	s.global = nil
	s.best = nil
	s.extraOrder = nil
	s.extra = make(map[string]sheet)
	s.loaded = true
	return nil
}

// Close is a no-op; the workbook is not held open between writes.
func (s *ResultTableStore) Close() error { return nil }

func cloneRows(rows []domain.Observation) []domain.Observation {
	if rows == nil {
		return nil
	}
	out := make([]domain.Observation, len(rows))
	for i, o := range rows {
		out[i] = o.Clone()
	}
	return out
}
