package tiledbcore

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool is the process-wide CPU-bound task pool (spec §5: "process-wide
// work-stealing thread pool"), implemented over errgroup.Group — Go's
// GOMAXPROCS-scheduled goroutines already work-steal, so the pool's
// only job is bounding concurrency and propagating the first error.
type Pool struct {
	concurrency int
}

// NewPool returns a Pool bounded to n concurrent tasks; n<=0 defaults
// to runtime.GOMAXPROCS(0), matching the spec's "sized by default to
// hardware concurrency".
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Pool{concurrency: n}
}

// Run executes tasks concurrently (bounded by the pool's concurrency),
// cancelling the rest on the first error and returning it — the
// `Future<Result>` + `wait_all` composition from spec §5, expressed as
// errgroup.Group.Go/Wait.
func (p *Pool) Run(ctx context.Context, tasks ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, t := range tasks {
		t := t
		g.Go(func() error { return t(gctx) })
	}
	return g.Wait()
}
