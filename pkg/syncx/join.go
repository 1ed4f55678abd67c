package syncx

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"framesync/pkg/logger"
	"framesync/pkg/models"
)

// perItemTimeout is the budget granted to a batch of concurrent fetches
// per item in the batch. A pass over n anchors waits n*perItemTimeout
// before abandoning the barrier.
const perItemTimeout = 5 * time.Second

// joinBudget returns the barrier timeout for a batch of n items.
func joinBudget(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return time.Duration(n) * perItemTimeout
}

// join runs fns concurrently and waits for all of them, up to timeout.
// On timeout it returns models.ErrTimedOut; branches still running are
// abandoned and their late writes are repaired by the next pass.
func join(clock clockwork.Clock, timeout time.Duration, fns ...func()) error {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(len(fns))
	for _, fn := range fns {
		go func(fn func()) {
			defer wg.Done()
			fn()
		}(fn)
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := clock.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.Chan():
		return models.ErrTimedOut
	}
}

// forEachLimit runs fn over items with at most workers goroutines. Every
// item is attempted even when earlier ones fail; the first error is
// returned after the pool drains.
func forEachLimit(ctx context.Context, workers int, items []string, fn func(ctx context.Context, item string) error) error {
	if len(items) == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	queue := make(chan string)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				if err := ctx.Err(); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					continue
				}
				if err := fn(ctx, item); err != nil {
					logger.Warn("sync_worker_item_failed", "item", item, "error", err.Error())
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}
		}()
	}
	for _, item := range items {
		queue <- item
	}
	close(queue)
	wg.Wait()
	return firstErr
}
