package voice

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// WorkerPool bounds concurrent blocking collaborator calls (transcription,
// synthesis) so capture and the silence monitor never wait on them.
type WorkerPool struct {
	sem  *semaphore.Weighted
	size int
	wg   sync.WaitGroup
}

func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Go runs fn on its own goroutine once a slot is free. The caller never
// blocks. If ctx ends before a slot frees up, fn runs with the cancelled
// ctx so it can report the failure through its normal path.
func (p *WorkerPool) Go(ctx context.Context, fn func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			fn(ctx)
			return
		}
		defer p.sem.Release(1)
		fn(ctx)
	}()
}

// Do runs fn in the calling goroutine while holding a slot.
func (p *WorkerPool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(ctx)
}

// Size returns the number of slots.
func (p *WorkerPool) Size() int { return p.size }

// Wait blocks until every job started with Go has returned.
func (p *WorkerPool) Wait() { p.wg.Wait() }
