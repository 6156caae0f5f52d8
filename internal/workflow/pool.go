package workflow

import (
	"context"
	"sync"
	"sync/atomic"
)

// Pool runs jobs off the request path with bounded concurrency. Submit never
// blocks; jobs wait for a free slot in their own goroutine.
type Pool struct {
	slots   chan struct{}
	wg      sync.WaitGroup
	waiting atomic.Int64
	active  atomic.Int64
}

// NewPool returns a pool running at most workers jobs at once.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{slots: make(chan struct{}, workers)}
}

// Submit schedules fn. A job still waiting for a slot when ctx ends is dropped.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context)) {
	p.wg.Add(1)
	p.waiting.Add(1)
	go func() {
		defer p.wg.Done()
		select {
		case p.slots <- struct{}{}:
			p.waiting.Add(-1)
		case <-ctx.Done():
			p.waiting.Add(-1)
			return
		}
		p.active.Add(1)
		defer func() {
			p.active.Add(-1)
			<-p.slots
		}()
		fn(ctx)
	}()
}

// Wait blocks until every submitted job has returned or been dropped.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Active reports running jobs.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Waiting reports jobs queued for a slot.
func (p *Pool) Waiting() int { return int(p.waiting.Load()) }
