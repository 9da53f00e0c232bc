// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package workpool provides the bounded task pool and the first-success race
// used at every concurrency site: batch jobs, OCR page rendering, and the
// per-job source race.
package workpool

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// AutoSize returns runtime.NumCPU clamped to [lo, hi].
func AutoSize(lo, hi int) int {
	return clamp(runtime.NumCPU(), lo, hi)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// Map runs fn for every item with at most size concurrent calls and returns
// the results in input order. Items are admitted in order. fn reports
// failures through its result value, so one item never cancels the others;
// only ctx cancellation stops admission, leaving the zero value for items
// that never ran.
func Map[T, R any](ctx context.Context, size int, items []T, fn func(ctx context.Context, i int, item T) R) []R {
	if size <= 0 {
		size = 1
	}
	results := make([]R, len(items))
	var g errgroup.Group
	g.SetLimit(size)
	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = fn(ctx, i, item)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ErrNoCandidates is returned by First when called without functions.
var ErrNoCandidates = errors.New("workpool: no candidates")

// First runs every fn concurrently and returns the first successful result.
// The context passed to the remaining fns is cancelled as soon as a winner
// is known, and First waits for all of them to return before it does, so no
// loser outlives the call. When every fn fails the errors are joined in
// argument order.
func First[R any](ctx context.Context, fns ...func(ctx context.Context) (R, error)) (R, error) {
	var zero R
	if len(fns) == 0 {
		return zero, ErrNoCandidates
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		i   int
		val R
		err error
	}
	ch := make(chan outcome, len(fns))
	for i, fn := range fns {
		go func() {
			v, err := fn(raceCtx)
			ch <- outcome{i, v, err}
		}()
	}

	errs := make([]error, len(fns))
	var (
		winner R
		won    bool
	)
	for range fns {
		o := <-ch
		if o.err == nil && !won {
			winner, won = o.val, true
			cancel()
			continue
		}
		errs[o.i] = o.err
	}
	if won {
		return winner, nil
	}
	return zero, errors.Join(errs...)
}
