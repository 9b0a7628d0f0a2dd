// Package worker runs blocking work (key derivation, file IO, code refresh)
// off the caller's goroutine on a bounded pool and hands results back as
// futures.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/fahmaliyi/otpvault/errs"
)

// DefaultSize is used when NewPool receives a non-positive size.
const DefaultSize = 2

// ErrTimeout is returned by AwaitWithTimeout when the work is still running.
var ErrTimeout = errs.New(errs.KindInternal, "worker: timed out waiting for result")

// Pool bounds how many tasks run at once.
type Pool struct {
	sem  *semaphore.Weighted
	size int
	log  *slog.Logger
	wg   sync.WaitGroup
}

// NewPool creates a pool running at most size tasks concurrently.
func NewPool(size int, log *slog.Logger) *Pool {
	if size < 1 {
		size = min(DefaultSize, runtime.NumCPU())
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size, log: log}
}

func (p *Pool) Size() int { return p.size }

// Wait blocks until every task started on the pool has returned.
func (p *Pool) Wait() { p.wg.Wait() }

// Future is the pending result of a task.
type Future[T any] struct {
	result T
	err    error
	done   chan struct{}
}

// Await blocks until the task finishes.
func (f *Future[T]) Await() (T, error) {
	<-f.done
	return f.result, f.err
}

// AwaitContext blocks until the task finishes or ctx is done. Returning early
// does not stop the task.
func (f *Future[T]) AwaitContext(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) AwaitWithTimeout(timeout time.Duration) (T, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-f.done:
		return f.result, f.err
	case <-t.C:
		var zero T
		return zero, ErrTimeout
	}
}

func (f *Future[T]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Go schedules fn on the pool. Waiting for a free slot respects ctx; once fn
// has started it receives ctx unchanged.
func Go[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) *Future[T] {
	return spawn(ctx, ctx, p, fn)
}

// Do runs fn on the pool and waits for it. If ctx ends first Do returns
// ctx.Err() while fn keeps running to completion with a context that is
// never cancelled, so a half-finished write is never abandoned.
func Do[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	return spawn(ctx, context.WithoutCancel(ctx), p, fn).AwaitContext(ctx)
}

func spawn[T any](acquireCtx, runCtx context.Context, p *Pool, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		f.err = err
		close(f.done)
		return f
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(f.done)
		defer p.sem.Release(1)
		defer func() {
			if rvr := recover(); rvr != nil {
				p.log.ErrorContext(runCtx, "panic in worker task",
					slog.Any("panic", rvr),
					slog.String("stack", string(debug.Stack())),
				)
				f.err = errs.New(errs.KindInternal, fmt.Sprintf("worker task panicked: %v", rvr))
			}
		}()

		f.result, f.err = fn(runCtx)
	}()

	return f
}

// All waits for every future and returns the results in order along with the
// first error encountered.
func All[T any](futures ...*Future[T]) ([]T, error) {
	results := make([]T, len(futures))
	var first error
	for i, f := range futures {
		res, err := f.Await()
		results[i] = res
		if err != nil && first == nil {
			first = err
		}
	}
	return results, first
}
