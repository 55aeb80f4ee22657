// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package concurrent runs bounded groups of functions concurrently.
package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// WorkerPool represents a pool of workers that can process jobs concurrently
type WorkerPool struct {
	workerCount int
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &WorkerPool{
		workerCount: workerCount,
	}
}

// Run executes all functions using errgroup with goroutine limiting
// Returns the first error encountered, and cancels remaining work
func (wp *WorkerPool) Run(ctx context.Context, functions ...func() error) error {
	if len(functions) == 0 {
		return nil
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(wp.workerCount)

	for _, fn := range functions {
		g.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			return fn()
		})
	}

	return g.Wait()
}

// RunAll executes all functions without cancellation on error.
// The returned slice holds one entry per function, in submission order,
// nil where the function succeeded. It is nil when every function succeeded.
func (wp *WorkerPool) RunAll(ctx context.Context, functions ...func() error) []error {
	if len(functions) == 0 {
		return nil
	}

	// Each goroutine writes only its own slot.
	results := make([]error, len(functions))

	g := new(errgroup.Group)
	g.SetLimit(wp.workerCount)

	for i, fn := range functions {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = err
				return nil
			}
			results[i] = fn()
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range results {
		if err != nil {
			return results
		}
	}
	return nil
}
