// Package sweep runs the parameter sweep: it walks the parameter space per
// instrument, skips keys already on record, evaluates the rest with bounded
// retries and streams observations into the result store.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"strategy-sweep-lab/internal/cleaning"
	"strategy-sweep-lab/internal/domain"
	"strategy-sweep-lab/internal/evaluator"
	"strategy-sweep-lab/internal/idhash"
	"strategy-sweep-lab/internal/observability"
	"strategy-sweep-lab/internal/paramspace"
	"strategy-sweep-lab/internal/progress"
	"strategy-sweep-lab/internal/results"
)

// Defaults.
const (
	DefaultCheckpointEvery = 200
	DefaultMaxAttempts     = 3
	flushTimeout           = 30 * time.Second
)

// ErrInterrupted is returned when the run was cancelled. Pending batches
// were flushed on a best-effort basis.
var ErrInterrupted = errors.New("sweep interrupted")

// Options configures an Executor.
type Options struct {
	Space       paramspace.Space
	Instruments []string
	Store       *results.Store
	Evaluator   evaluator.Evaluator

	Progress *progress.Reporter // optional
	Timings  *progress.Timings  // optional
	Metrics  *observability.Metrics
	Logger   zerolog.Logger

	CheckpointEvery int           // default DefaultCheckpointEvery
	MaxAttempts     int           // default DefaultMaxAttempts
	RetryPause      time.Duration // pause between attempts

	SkipComplete bool // skip instruments whose every key is cached
	Force        bool // evaluate cached keys again
	RetryFailed  bool // evaluate cached recorded failures again

	// Trace, when set, observes every state transition.
	Trace func(key domain.ObservationKey, from, to State)
}

// Summary reports what a run did.
type Summary struct {
	Instruments        int
	SkippedInstruments int
	FailedInstruments  int
	Evaluated          int
	Cached             int
	Failed             int
	Attempts           int
	CheckpointErrors   int
	Elapsed            time.Duration
}

// Add accumulates other into s. Elapsed keeps the larger value.
func (s *Summary) Add(other Summary) {
	s.Instruments += other.Instruments
	s.SkippedInstruments += other.SkippedInstruments
	s.FailedInstruments += other.FailedInstruments
	s.Evaluated += other.Evaluated
	s.Cached += other.Cached
	s.Failed += other.Failed
	s.Attempts += other.Attempts
	s.CheckpointErrors += other.CheckpointErrors
	if other.Elapsed > s.Elapsed {
		s.Elapsed = other.Elapsed
	}
}

// Executor runs one sequential sweep. It is not safe for concurrent use.
type Executor struct {
	opts    Options
	log     zerolog.Logger
	summary Summary
}

// New validates opts and creates an Executor.
func New(opts Options) (*Executor, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("sweep: result store is required")
	}
	if opts.Evaluator == nil {
		return nil, fmt.Errorf("sweep: evaluator is required")
	}
	if opts.Space.Len() == 0 {
		return nil, fmt.Errorf("sweep: parameter space is empty")
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = DefaultCheckpointEvery
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Executor{
		opts: opts,
		log:  opts.Logger.With().Str("component", "sweep").Str("level", string(opts.Space.Level)).Logger(),
	}, nil
}

// TotalCombinations is the number of pairs the run walks.
func (e *Executor) TotalCombinations() int {
	return len(e.opts.Instruments) * e.opts.Space.Len()
}

// Run sweeps every configured instrument in order. Evaluation failures are
// recorded, not returned; the only errors are ErrInterrupted and context errors.
func (e *Executor) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	err := e.run(ctx)
	e.summary.Elapsed = time.Since(start)
	return e.summary, err
}

func (e *Executor) run(ctx context.Context) error {
	for _, raw := range e.opts.Instruments {
		inst := idhash.NormalizeInstrument(raw)
		if ctx.Err() != nil {
			return e.interrupted(ctx, inst)
		}
		e.summary.Instruments++

		if e.opts.SkipComplete && e.complete(inst) {
			e.log.Info().Str("instrument", inst).Msg("all combinations cached, skipping instrument")
			e.summary.SkippedInstruments++
			e.progressSkip()
			continue
		}

		if err := e.sweepInstrument(ctx, inst); err != nil {
			if errors.Is(err, ErrInterrupted) {
				return err
			}
			e.summary.FailedInstruments++
			e.log.Error().Err(err).Str("instrument", inst).Msg("instrument aborted")
			e.progressSkip()
		}
	}

	e.flushPending(ctx)
	if e.opts.Progress != nil {
		e.opts.Progress.Finish()
	}
	return nil
}

// complete reports whether every key of inst is cached and would be replayed.
func (e *Executor) complete(inst string) bool {
	if e.opts.Force {
		return false
	}
	for _, c := range e.opts.Space.All() {
		o, ok := e.opts.Store.GetCached(idhash.MakeKey(inst, c))
		if !ok || (e.opts.RetryFailed && o.Failed) {
			return false
		}
	}
	return true
}

func (e *Executor) progressSkip() {
	if e.opts.Progress != nil {
		e.opts.Progress.Skip(e.opts.Space.Len())
	}
}

func (e *Executor) sweepInstrument(ctx context.Context, inst string) error {
	if err := e.opts.Evaluator.SelectInstrument(ctx, inst); err != nil {
		if ctx.Err() != nil {
			return e.interrupted(ctx, inst)
		}
		return fmt.Errorf("select instrument: %w", err)
	}
	if e.opts.Progress != nil {
		e.opts.Progress.StartInstrument(inst, e.opts.Space.Len())
	}
	e.log.Info().Str("instrument", inst).Int("combinations", e.opts.Space.Len()).Msg("sweeping instrument")

	sinceCheckpoint := 0
	for _, c := range e.opts.Space.All() {
		if ctx.Err() != nil {
			return e.interrupted(ctx, inst)
		}

		o, ok := e.runCombination(ctx, inst, c)
		if !ok {
			return e.interrupted(ctx, inst)
		}
		e.opts.Store.Append(o)

		sinceCheckpoint++
		if sinceCheckpoint >= e.opts.CheckpointEvery {
			e.checkpoint(ctx, inst, false)
			sinceCheckpoint = 0
		}
	}

	e.checkpoint(ctx, inst, true)

	stop := e.time(progress.LabelReset)
	if err := e.opts.Evaluator.ResetToBaseline(ctx); err != nil {
		e.log.Warn().Err(err).Str("instrument", inst).Msg("reset to baseline failed")
	}
	stop()
	e.opts.Metrics.RecordInstrumentCompleted()
	return nil
}

// runCombination drives one pair to a terminal state. It returns false only
// when the context was cancelled before metrics were read; nothing is
// recorded then. Metrics that arrived before a cancellation are kept.
func (e *Executor) runCombination(ctx context.Context, inst string, c domain.Combination) (domain.Observation, bool) {
	key := idhash.MakeKey(inst, c)
	p := &pair{state: StatePending}
	if e.opts.Trace != nil {
		p.trace = func(from, to State) { e.opts.Trace(key, from, to) }
	}

	if cached, ok := e.opts.Store.GetCached(key); ok && e.replay(cached) {
		p.to(StateCached)
		e.summary.Cached++
		e.opts.Metrics.RecordCombination(observability.OutcomeCached)
		if e.opts.Progress != nil {
			e.opts.Progress.Substituted()
		}
		return cached, true
	}

	p.to(StateEvaluating)
	start := time.Now()
	raw, timing, err := e.evaluate(ctx, c)
	elapsed := time.Since(start)
	if err != nil && ctx.Err() != nil {
		return domain.Observation{}, false
	}

	var o domain.Observation
	outcome := observability.OutcomeSuccess
	if err != nil {
		p.to(StateFailed)
		outcome = observability.OutcomeFailed
		o = cleaning.Failed(inst, c)
		e.summary.Failed++
		e.log.Warn().Err(err).Str("instrument", inst).Str("combination", c.String()).
			Int("attempts", timing.attempts).Msg("recorded failure")
		if e.opts.Progress != nil {
			e.opts.Progress.Substituted()
		}
	} else {
		p.to(StateSuccess)
		o = cleaning.Observe(inst, c, raw)
		e.summary.Evaluated++
		e.opts.Metrics.ObserveEvaluation(elapsed)
		if e.opts.Progress != nil {
			e.opts.Progress.Measured(elapsed)
		}
	}
	e.opts.Metrics.RecordCombination(outcome)

	if t := e.opts.Timings; t != nil {
		t.Add(progress.LabelCombo, elapsed)
		t.AddCombo(progress.ComboTiming{
			Instrument:  inst,
			Combination: c,
			Outcome:     outcome,
			Attempts:    timing.attempts,
			Apply:       timing.apply,
			Read:        timing.read,
			Total:       elapsed,
		})
	}
	return o, true
}

// replay reports whether a cached row is used as is.
func (e *Executor) replay(cached domain.Observation) bool {
	switch {
	case e.opts.Force:
		return false
	case e.opts.RetryFailed && cached.Failed:
		return false
	}
	return true
}

type attemptTiming struct {
	attempts int
	apply    time.Duration
	read     time.Duration
}

// evaluate applies c and reads the metrics, up to MaxAttempts times. Each
// attempt starts from scratch.
func (e *Executor) evaluate(ctx context.Context, c domain.Combination) (domain.RawMetrics, attemptTiming, error) {
	var (
		raw    domain.RawMetrics
		timing attemptTiming
	)

	op := func() error {
		timing.attempts++
		e.summary.Attempts++
		e.opts.Metrics.RecordAttempt()

		t0 := time.Now()
		applied, err := e.opts.Evaluator.ApplyParameters(ctx, c)
		timing.apply = time.Since(t0)
		if e.opts.Timings != nil {
			e.opts.Timings.Add(progress.LabelApply, timing.apply)
		}
		if err == nil && !applied {
			err = evaluator.ErrApplyRejected
		}
		if err != nil {
			return e.attemptFailed(ctx, c, timing.attempts, fmt.Errorf("apply parameters: %w", err))
		}

		t1 := time.Now()
		m, err := e.opts.Evaluator.ReadMetrics(ctx)
		timing.read = time.Since(t1)
		if e.opts.Timings != nil {
			e.opts.Timings.Add(progress.LabelRead, timing.read)
		}
		if err != nil {
			return e.attemptFailed(ctx, c, timing.attempts, fmt.Errorf("read metrics: %w", err))
		}
		raw = m
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.opts.RetryPause), uint64(e.opts.MaxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(op, b)
	return raw, timing, err
}

func (e *Executor) attemptFailed(ctx context.Context, c domain.Combination, attempt int, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(ctx.Err())
	}
	e.log.Debug().Err(err).Str("combination", c.String()).Int("attempt", attempt).Msg("attempt failed")
	return err
}

// checkpoint persists the instrument's batch. Failures are counted and the
// batch stays pending for the next trigger.
func (e *Executor) checkpoint(ctx context.Context, inst string, final bool) {
	stop := e.time(progress.LabelCheckpoint)
	defer stop()

	var err error
	if final {
		err = e.opts.Store.Finalize(ctx, inst)
	} else {
		err = e.opts.Store.Checkpoint(ctx, inst)
	}
	if err != nil {
		e.summary.CheckpointErrors++
	}
}

// flushPending retries instruments whose batches failed to persist earlier.
func (e *Executor) flushPending(ctx context.Context) {
	for _, raw := range e.opts.Instruments {
		inst := idhash.NormalizeInstrument(raw)
		if e.opts.Store.Pending(inst) == 0 {
			continue
		}
		e.checkpoint(ctx, inst, true)
	}
}

// interrupted flushes what is pending on a context that outlives ctx.
func (e *Executor) interrupted(ctx context.Context, inst string) error {
	e.log.Warn().Str("instrument", inst).Msg("interrupted, flushing pending results")
	if e.opts.Progress != nil {
		e.opts.Progress.Finish()
	}
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	e.flushPending(flushCtx)
	return fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
}

func (e *Executor) time(label string) func() time.Duration {
	if e.opts.Timings == nil {
		start := time.Now()
		return func() time.Duration { return time.Since(start) }
	}
	return e.opts.Timings.Time(label)
}
