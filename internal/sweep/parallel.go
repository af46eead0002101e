package sweep

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"strategy-sweep-lab/internal/evaluator"
	"strategy-sweep-lab/internal/results"
	"strategy-sweep-lab/internal/storage"
)

// Worker is one isolated evaluation session with its own shard of storage.
type Worker struct {
	Evaluator evaluator.Evaluator
	Tables    storage.ResultTableStore
}

// ShardNamespace names the storage namespace of worker i.
func ShardNamespace(namespace string, i int) string {
	return fmt.Sprintf("%s_w%d", namespace, i)
}

// Partition deals instruments round-robin into at most n disjoint subsets,
// preserving list order within each subset. Empty subsets are dropped.
func Partition(instruments []string, n int) [][]string {
	if n <= 0 {
		n = 1
	}
	if n > len(instruments) {
		n = len(instruments)
	}
	parts := make([][]string, n)
	for i, inst := range instruments {
		parts[i%n] = append(parts[i%n], inst)
	}
	return parts
}

// RunParallel sweeps base.Instruments with one sequential executor per worker.
// Workers share no store: each owns a shard seeded with the main store's
// cache. Once every worker has returned, the shards are merged into main one
// instrument at a time through the normal checkpoint path. When base.Progress
// is set, each worker reports through its own fork of it.
func RunParallel(ctx context.Context, main *results.Store, base Options, workers []Worker) (Summary, error) {
	if len(workers) == 0 {
		return Summary{}, fmt.Errorf("sweep: no workers")
	}
	parts := Partition(base.Instruments, len(workers))
	seed := main.Global()

	shards := make([]*results.Store, len(parts))
	summaries := make([]Summary, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	for i, part := range parts {
		w := workers[i]
		log := base.Logger.With().Int("worker", i).Logger()
		shard := results.New(w.Tables, results.Options{Logger: log, Metrics: base.Metrics})
		shards[i] = shard

		opts := base
		opts.Instruments = part
		opts.Store = shard
		opts.Evaluator = w.Evaluator
		opts.Progress = nil
		if base.Progress != nil {
			opts.Progress = base.Progress.Fork(fmt.Sprintf("w%d", i), len(part)*base.Space.Len())
		}
		opts.Logger = log

		g.Go(func() error {
			if _, err := shard.Load(gctx); err != nil {
				return fmt.Errorf("worker %d: load shard: %w", i, err)
			}
			shard.Seed(seed)

			ex, err := New(opts)
			if err != nil {
				return fmt.Errorf("worker %d: %w", i, err)
			}
			summaries[i], err = ex.Run(gctx)
			return err
		})
	}
	runErr := g.Wait()

	var total Summary
	for _, s := range summaries {
		total.Add(s)
	}

	mergeCtx := ctx
	if ctx.Err() != nil {
		mergeCtx = context.WithoutCancel(ctx)
	}
	if err := mergeShards(mergeCtx, main, shards); err != nil {
		return total, errors.Join(runErr, err)
	}
	return total, runErr
}

// mergeShards folds each shard's tables into main.
func mergeShards(ctx context.Context, main *results.Store, shards []*results.Store) error {
	var errs []error
	for _, shard := range shards {
		if shard == nil {
			continue
		}
		for _, inst := range shard.Instruments() {
			for _, o := range shard.Table(inst) {
				main.Append(o)
			}
			if err := main.Finalize(ctx, inst); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
