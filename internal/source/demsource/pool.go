package demsource

import (
	"context"
	"runtime"
)

// workPool funnels blocking raster I/O through a bounded set of workers so
// CPU-bound decoding cannot starve concurrent request handling.
type workPool struct {
	tasks chan func()
}

func newWorkPool(workers, queue int) *workPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if queue <= 0 {
		queue = 64
	}
	p := &workPool{tasks: make(chan func(), queue)}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *workPool) worker() {
	for task := range p.tasks {
		task()
	}
}

// run executes fn on a worker and waits for it, honoring ctx while queued
// and while waiting. fn itself is not interrupted mid-read; an abandoned
// result is discarded by the caller.
func (p *workPool) run(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case p.tasks <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
