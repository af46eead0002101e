package storage

import (
	"context"

	"strategy-sweep-lab/internal/domain"
)

// Checkpoint is one durable write of an instrument's merged state.
// All fields describe the state after the write, not a delta.
type Checkpoint struct {
	Instrument string               // instrument whose table is replaced
	Rows       []domain.Observation // deduplicated instrument table, key order
	Best       []domain.Observation // full best-per-instrument table, one row per instrument
	Global     []domain.Observation // union of every instrument table, key order
}

// Validate checks that every row belongs to the checkpoint's instrument.
func (c *Checkpoint) Validate() error {
	if c == nil || c.Instrument == "" {
		return ErrInvalidInput
	}
	for _, o := range c.Rows {
		if o.Instrument != c.Instrument {
			return ErrInvalidInput
		}
	}
	return nil
}

// ResultTableStore persists the result tables of one namespace (a test level
// or a worker shard). Each WriteCheckpoint leaves the store independently
// reloadable.
type ResultTableStore interface {
	// Instruments lists instruments that have a persisted table.
	Instruments(ctx context.Context) ([]string, error)

	// ReadInstrument returns one instrument table. Returns ErrNotFound if absent.
	ReadInstrument(ctx context.Context, instrument string) ([]domain.Observation, error)

	// ReadGlobal returns the global table.
	ReadGlobal(ctx context.Context) ([]domain.Observation, error)

	// ReadBest returns the best-per-instrument table.
	ReadBest(ctx context.Context) ([]domain.Observation, error)

	// WriteCheckpoint replaces the instrument table, the best table and the
	// global table in a single durable step.
	WriteCheckpoint(ctx context.Context, cp *Checkpoint) error

	// Reset discards every table of the namespace.
	Reset(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}

// SheetWriter is implemented by stores that can hold extra named tables,
// such as analysis output.
type SheetWriter interface {
	// WriteSheet replaces a named table. Cells are rendered as-is; nil is empty.
	WriteSheet(ctx context.Context, name string, header []string, rows [][]any) error
}
