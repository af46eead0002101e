// Package evaluator defines the capability the sweep consumes from the
// external evaluation environment: apply a parameter set, read back the
// rendered metrics and restore the baseline.
package evaluator

import (
	"context"
	"errors"

	"strategy-sweep-lab/internal/domain"
)

var (
	// ErrEvaluation wraps every failure reported by an evaluator.
	ErrEvaluation = errors.New("evaluation failed")
	// ErrApplyRejected is returned when the environment refused a parameter set.
	ErrApplyRejected = errors.New("parameters rejected")
)

// Evaluator drives one evaluation environment. Implementations are used by a
// single goroutine at a time.
type Evaluator interface {
	// SelectInstrument switches the environment to instrument.
	SelectInstrument(ctx context.Context, instrument string) error

	// ApplyParameters configures the strategy inputs. It returns false when
	// the inputs were not accepted.
	ApplyParameters(ctx context.Context, c domain.Combination) (bool, error)

	// ReadMetrics returns the raw metric text of the last applied combination.
	// It fails when the metrics did not render within the environment's timeout.
	ReadMetrics(ctx context.Context) (domain.RawMetrics, error)

	// ResetToBaseline restores the default parameters.
	ResetToBaseline(ctx context.Context) error

	Close() error
}
