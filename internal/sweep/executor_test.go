package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-sweep-lab/internal/domain"
	"strategy-sweep-lab/internal/evaluator/stub"
	"strategy-sweep-lab/internal/idhash"
	"strategy-sweep-lab/internal/paramspace"
	"strategy-sweep-lab/internal/progress"
	"strategy-sweep-lab/internal/results"
	"strategy-sweep-lab/internal/storage/memory"
)

func coarse(t *testing.T) paramspace.Space {
	t.Helper()
	s, err := paramspace.Preset("COARSE")
	require.NoError(t, err)
	return s
}

func loadStore(t *testing.T, tables *memory.ResultTableStore) *results.Store {
	t.Helper()
	s := results.New(tables, results.Options{Logger: zerolog.Nop()})
	_, err := s.Load(context.Background())
	require.NoError(t, err)
	return s
}

func newExecutor(t *testing.T, opts Options) *Executor {
	t.Helper()
	opts.Logger = zerolog.Nop()
	ex, err := New(opts)
	require.NoError(t, err)
	return ex
}

func assertNoDuplicates(t *testing.T, rows []domain.Observation) {
	t.Helper()
	seen := make(map[domain.ObservationKey]bool, len(rows))
	for _, o := range rows {
		k := idhash.KeyOf(o)
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
}

func TestRun_EndToEndCoarse(t *testing.T) {
	ctx := context.Background()
	tables := memory.NewResultTableStore()
	store := loadStore(t, tables)
	ev := stub.New()
	space := coarse(t)

	ex := newExecutor(t, Options{
		Space:       space,
		Instruments: []string{"EURUSD"},
		Store:       store,
		Evaluator:   ev,
		Progress:    progress.NewReporter(nil, 0, 0, space.Len()),
		Timings:     progress.NewTimings(),
	})
	sum, err := ex.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 75, sum.Evaluated)
	assert.Equal(t, 0, sum.Failed)
	assert.Equal(t, 75, sum.Attempts)

	rows, err := tables.ReadInstrument(ctx, "EURUSD")
	require.NoError(t, err)
	require.Len(t, rows, 75)
	assertNoDuplicates(t, rows)

	global, err := tables.ReadGlobal(ctx)
	require.NoError(t, err)
	assert.Len(t, global, 75)

	best, err := tables.ReadBest(ctx)
	require.NoError(t, err)
	require.Len(t, best, 1)
	assert.Equal(t, space.At(74), best[0].Combination)
	assert.Equal(t, 750.5, *best[0].NetProfit)

	assert.Equal(t, 1, ev.Calls().Reset)
	assert.Equal(t, 1, tables.Writes(), "75 rows fit in one checkpoint")
}

func TestRun_PeriodicCheckpoints(t *testing.T) {
	tables := memory.NewResultTableStore()
	ex := newExecutor(t, Options{
		Space:           coarse(t),
		Instruments:     []string{"EURUSD"},
		Store:           loadStore(t, tables),
		Evaluator:       stub.New(),
		CheckpointEvery: 10,
	})
	_, err := ex.Run(context.Background())
	require.NoError(t, err)

	// 7 full batches of 10 plus the instrument-end checkpoint of 5.
	assert.Equal(t, 8, tables.Writes())
}

func TestRun_RetryExhaustion(t *testing.T) {
	ctx := context.Background()
	tables := memory.NewResultTableStore()
	store := loadStore(t, tables)
	ev := stub.New()
	ev.ReadErr = stub.AlwaysFail
	space := paramspace.New(paramspace.Coarse, []float64{1.0}, []float64{2.0}, []float64{0.8, 1.0})

	ex := newExecutor(t, Options{
		Space:       space,
		Instruments: []string{"EURUSD"},
		Store:       store,
		Evaluator:   ev,
		RetryPause:  time.Millisecond,
	})
	sum, err := ex.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, 6, sum.Attempts)

	rows := store.Table("EURUSD")
	require.Len(t, rows, 2)
	for i, c := range []domain.Combination{space.At(0), space.At(1)} {
		assert.Equal(t, 3, ev.Attempts("EURUSD", c))
		assert.True(t, rows[i].Failed)
		for _, cell := range rows[i].Cells()[4:] {
			assert.Equal(t, domain.ErrorMarker, cell)
		}
	}
	assert.Empty(t, store.Best())
}

func TestRun_RecoversWithinAttempts(t *testing.T) {
	ev := stub.New()
	ev.ReadErr = stub.FailFirst(2)
	store := loadStore(t, memory.NewResultTableStore())
	space := paramspace.New(paramspace.Coarse, []float64{1.0}, []float64{2.0}, []float64{0.8})

	sum, err := newExecutor(t, Options{
		Space: space, Instruments: []string{"EURUSD"}, Store: store, Evaluator: ev,
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Evaluated)
	assert.Equal(t, 3, sum.Attempts)
	assert.False(t, store.Table("EURUSD")[0].Failed)
}

func TestRun_RejectedParametersAreRetried(t *testing.T) {
	ev := stub.New()
	ev.Reject = func(string, domain.Combination) bool { return true }
	store := loadStore(t, memory.NewResultTableStore())
	space := paramspace.New(paramspace.Coarse, []float64{1.0}, []float64{2.0}, []float64{0.8})

	sum, err := newExecutor(t, Options{
		Space: space, Instruments: []string{"EURUSD"}, Store: store, Evaluator: ev,
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 3, ev.Calls().Apply)
	assert.Equal(t, 0, ev.Calls().Read)
}

func TestRun_StateTransitions(t *testing.T) {
	tables := memory.NewResultTableStore()
	space := paramspace.New(paramspace.Coarse, []float64{1.0}, []float64{2.0}, []float64{0.8, 1.0})

	// First pass evaluates, second pass replays from cache.
	for pass, want := range []State{StateSuccess, StateCached} {
		terminal := map[domain.ObservationKey]State{}
		_, err := newExecutor(t, Options{
			Space:       space,
			Instruments: []string{"EURUSD"},
			Store:       loadStore(t, tables),
			Evaluator:   stub.New(),
			Trace: func(k domain.ObservationKey, from, to State) {
				assert.True(t, CanTransition(from, to), "%s -> %s", from, to)
				if to.Terminal() {
					terminal[k] = to
				}
			},
		}).Run(context.Background())
		require.NoError(t, err)
		require.Len(t, terminal, 2, "pass %d", pass)
		for k, s := range terminal {
			assert.Equal(t, want, s, "pass %d key %s", pass, k)
		}
	}
}

func TestRun_ResumeAfterInterrupt(t *testing.T) {
	tables := memory.NewResultTableStore()
	space := coarse(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := 0
	_, err := newExecutor(t, Options{
		Space:           space,
		Instruments:     []string{"EURUSD"},
		Store:           loadStore(t, tables),
		Evaluator:       stub.New(),
		CheckpointEvery: 10,
		Trace: func(_ domain.ObservationKey, _, to State) {
			if to == StateSuccess {
				done++
				if done == 25 {
					cancel()
				}
			}
		},
	}).Run(ctx)
	require.ErrorIs(t, err, ErrInterrupted)

	persisted, err := tables.ReadInstrument(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Len(t, persisted, 25, "interrupt flushes the open batch")

	ev := stub.New()
	sum, err := newExecutor(t, Options{
		Space:       space,
		Instruments: []string{"EURUSD"},
		Store:       loadStore(t, tables),
		Evaluator:   ev,
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, sum.Cached)
	assert.Equal(t, 50, sum.Evaluated)

	global, err := tables.ReadGlobal(context.Background())
	require.NoError(t, err)
	assert.Len(t, global, 75)
	assertNoDuplicates(t, global)
}

func TestRun_CancelAfterReadKeepsMetrics(t *testing.T) {
	tables := memory.NewResultTableStore()
	space := paramspace.New(paramspace.Coarse, []float64{1.0, 1.5}, []float64{2.0, 3.0}, []float64{0.8})
	require.Equal(t, 4, space.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ev := stub.New()
	reads := 0
	ev.Metrics = func(inst string, index int, c domain.Combination) domain.RawMetrics {
		reads++
		if reads == 3 {
			cancel()
		}
		return stub.DefaultMetrics(inst, index, c)
	}

	sum, err := newExecutor(t, Options{
		Space:       space,
		Instruments: []string{"EURUSD"},
		Store:       loadStore(t, tables),
		Evaluator:   ev,
	}).Run(ctx)
	require.ErrorIs(t, err, ErrInterrupted)

	assert.Equal(t, 3, ev.Calls().Read)
	assert.Equal(t, 3, sum.Evaluated)
	assert.Equal(t, 0, sum.Failed)

	persisted, err := tables.ReadInstrument(context.Background(), "EURUSD")
	require.NoError(t, err)
	got := make([]domain.Combination, 0, len(persisted))
	for _, o := range persisted {
		assert.False(t, o.Failed)
		got = append(got, o.Combination)
	}
	assert.ElementsMatch(t, []domain.Combination{space.At(0), space.At(1), space.At(2)}, got)
}

func TestRun_SkipComplete(t *testing.T) {
	tables := memory.NewResultTableStore()
	space := paramspace.New(paramspace.Coarse, []float64{1.0}, []float64{2.0}, []float64{0.8, 1.0})
	_, err := newExecutor(t, Options{
		Space: space, Instruments: []string{"EURUSD"}, Store: loadStore(t, tables), Evaluator: stub.New(),
	}).Run(context.Background())
	require.NoError(t, err)
	writes := tables.Writes()

	ev := stub.New()
	sum, err := newExecutor(t, Options{
		Space:        space,
		Instruments:  []string{"EURUSD", "GBPUSD"},
		Store:        loadStore(t, tables),
		Evaluator:    ev,
		SkipComplete: true,
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.SkippedInstruments)
	assert.Equal(t, 2, sum.Evaluated)
	assert.Equal(t, 1, ev.Calls().Select, "only GBPUSD is selected")
	assert.Equal(t, writes+1, tables.Writes())
}

func TestRun_RetryFailed(t *testing.T) {
	tables := memory.NewResultTableStore()
	space := paramspace.New(paramspace.Coarse, []float64{1.0}, []float64{2.0}, []float64{0.8, 1.0})

	failing := stub.New()
	failing.ReadErr = func(_ string, c domain.Combination, _ int) error {
		if c.VolMultiplier == 1.0 {
			return stub.AlwaysFail("", c, 0)
		}
		return nil
	}
	_, err := newExecutor(t, Options{
		Space: space, Instruments: []string{"EURUSD"}, Store: loadStore(t, tables), Evaluator: failing,
	}).Run(context.Background())
	require.NoError(t, err)

	// Without the flag the failure is a cache hit.
	sum, err := newExecutor(t, Options{
		Space: space, Instruments: []string{"EURUSD"}, Store: loadStore(t, tables), Evaluator: stub.New(),
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Cached)

	store := loadStore(t, tables)
	sum, err = newExecutor(t, Options{
		Space: space, Instruments: []string{"EURUSD"}, Store: store, Evaluator: stub.New(), RetryFailed: true,
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Cached)
	assert.Equal(t, 1, sum.Evaluated)

	for _, o := range store.Table("EURUSD") {
		assert.False(t, o.Failed)
	}
	assert.Len(t, store.Table("EURUSD"), 2)
}

func TestRun_PersistenceErrorDoesNotStopSweep(t *testing.T) {
	tables := memory.NewResultTableStore()
	store := loadStore(t, tables)
	tables.SetWriteError(errors.New("disk full"))
	space := paramspace.New(paramspace.Coarse, []float64{1.0}, []float64{2.0}, []float64{0.8, 1.0})

	sum, err := newExecutor(t, Options{
		Space:       space,
		Instruments: []string{"EURUSD", "GBPUSD"},
		Store:       store,
		Evaluator:   stub.New(),
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Evaluated)
	assert.Positive(t, sum.CheckpointErrors)
	assert.Equal(t, 2, store.Pending("EURUSD"))

	tables.SetWriteError(nil)
	require.NoError(t, store.Finalize(context.Background(), "EURUSD"))
	assert.Len(t, store.Table("EURUSD"), 2)
}

func TestRun_SelectFailureSkipsInstrument(t *testing.T) {
	ev := stub.New()
	require.NoError(t, ev.Close())
	space := paramspace.New(paramspace.Coarse, []float64{1.0}, []float64{2.0}, []float64{0.8})

	sum, err := newExecutor(t, Options{
		Space: space, Instruments: []string{"EURUSD"}, Store: loadStore(t, memory.NewResultTableStore()), Evaluator: ev,
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FailedInstruments)
	assert.Equal(t, 0, sum.Evaluated)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
