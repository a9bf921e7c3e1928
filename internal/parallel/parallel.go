// Package parallel provides the fork/join helpers the tree-family builders
// use for their parallel recursive-build step, built on
// golang.org/x/sync/errgroup for fan-out-with-first-error semantics.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Threshold is the default minimum partition size below which a build falls
// back to sequential recursion — forking a goroutine per tiny partition
// costs more than it saves.
const Threshold = 512

// Fork runs left and right concurrently if n meets threshold, otherwise runs
// them sequentially in-line. It returns the first non-nil error from either
// side (errgroup semantics) and reports whether it actually forked, so
// callers can feed BuildStats.RecordParallelFanout.
func Fork(ctx context.Context, n, threshold int, left, right func(ctx context.Context) error) (forked bool, err error) {
	if n < threshold {
		if err := left(ctx); err != nil {
			return false, err
		}
		return false, right(ctx)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return left(gctx) })
	g.Go(func() error { return right(gctx) })
	return true, g.Wait()
}

// ForkN runs every task concurrently (used by DCI's per-(j,l) simple
// index build and Ball Tree's per-anchor subtree builds), bounded by an
// errgroup so the first failure cancels the rest via ctx.
func ForkN(ctx context.Context, limit int, tasks ...func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, task := range tasks {
		task := task
		g.Go(func() error { return task(gctx) })
	}
	return g.Wait()
}
