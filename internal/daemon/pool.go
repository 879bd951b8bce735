package daemon

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// WorkerPool bounds job execution concurrency with golang.org/x/sync's
// errgroup, the same idiom the teacher uses for controlled-concurrency
// fan-out (internal/campaign/intelligence_gatherer.go's errgroup.WithContext
// + per-task eg.Go), generalized from a fixed fan-out of gatherers to an
// open-ended stream of scheduled jobs via SetLimit.
type WorkerPool struct {
	eg  *errgroup.Group
	ctx context.Context
}

// NewWorkerPool builds a pool bounded to maxConcurrent simultaneous jobs.
func NewWorkerPool(ctx context.Context, maxConcurrent int) *WorkerPool {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrent)
	return &WorkerPool{eg: eg, ctx: egCtx}
}

// Context returns the pool's derived context, cancelled once any
// submitted job returns a non-nil error.
func (p *WorkerPool) Context() context.Context { return p.ctx }

// Submit blocks until a slot is free, then runs fn in a new goroutine.
func (p *WorkerPool) Submit(fn func(ctx context.Context) error) {
	p.eg.Go(func() error {
		return fn(p.ctx)
	})
}

// Wait blocks until every submitted job has returned, and returns the
// first non-nil error if any.
func (p *WorkerPool) Wait() error {
	return p.eg.Wait()
}
