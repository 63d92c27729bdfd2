package engine

import (
	"context"
	"errors"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/oklog/ulid/v2"
	"go.uber.org/atomic"

	"github.com/AmirulAndalib/polars/internal/planner/logical"
	"github.com/AmirulAndalib/polars/internal/planner/physical"
)

var (
	// ErrNotReady is returned by a non-blocking [Result.Get] when the collect
	// has not finished yet.
	ErrNotReady = errors.New("result is not ready")

	// ErrTimeout is returned by [Result.Get] when the collect does not finish
	// within the given timeout.
	ErrTimeout = errors.New("timed out waiting for result")
)

// Future is a handle to a collect scheduled by [Engine.CollectAsync] or
// [Engine.CollectAllAsync]. Failures are delivered through the handle, never
// at schedule time, and abandoning the handle does not stop execution.
type Future[T any] struct {
	id        string
	done      chan struct{}
	completed atomic.Bool

	value T
	err   error
}

func newFuture[T any](id string) *Future[T] {
	return &Future[T]{id: id, done: make(chan struct{})}
}

// complete publishes the outcome and wakes every waiter. Must be called
// exactly once.
func (f *Future[T]) complete(value T, err error) {
	f.value = value
	f.err = err
	f.completed.Store(true)
	close(f.done)
}

// ID identifies the scheduled collect. Log lines emitted by the collect carry
// the same value under the query_id field.
func (f *Future[T]) ID() string { return f.id }

// Done reports whether the collect has finished.
func (f *Future[T]) Done() bool { return f.completed.Load() }

// Await blocks until the collect finishes or ctx is canceled. Cancelation
// abandons the handle; the collect keeps running with the context it was
// scheduled under.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// CollectAsync schedules Collect on a new goroutine and returns immediately.
// The caller owns the record obtained from the returned handle.
func (e *Engine) CollectAsync(ctx context.Context, plan logical.Plan, flags physical.OptimizationFlags) *Future[arrow.Record] {
	id := ulid.Make().String()
	f := newFuture[arrow.Record](id)
	go func() {
		rec, err := e.collect(ctx, log.With(e.logger, "query_id", id), plan, flags)
		f.complete(rec, err)
	}()
	return f
}

// CollectAllAsync schedules CollectAll on a new goroutine and returns
// immediately. The handle resolves to one record per input plan, in input
// order.
func (e *Engine) CollectAllAsync(ctx context.Context, plans []logical.Plan, flags physical.OptimizationFlags) *Future[[]arrow.Record] {
	f := newFuture[[]arrow.Record](ulid.Make().String())
	go func() {
		recs, err := e.CollectAll(ctx, plans, flags)
		f.complete(recs, err)
	}()
	return f
}

// Result adapts a collect handle to poll-style consumption.
type Result struct {
	fut   *Future[arrow.Record]
	clock quartz.Clock
}

// CollectResult schedules Collect like [Engine.CollectAsync] and wraps the
// handle in a [Result].
func (e *Engine) CollectResult(ctx context.Context, plan logical.Plan, flags physical.OptimizationFlags) *Result {
	return &Result{fut: e.CollectAsync(ctx, plan, flags), clock: e.clock}
}

// Ready reports whether the collect has finished.
func (r *Result) Ready() bool { return r.fut.Done() }

// Get returns the outcome of the collect. With block set it waits up to
// timeout, or forever when timeout is not positive; otherwise it returns
// [ErrNotReady] when the collect is still running. An elapsed timeout returns
// [ErrTimeout]. Get may be called repeatedly and returns the same outcome
// each time; the record must be released exactly once.
func (r *Result) Get(block bool, timeout time.Duration) (arrow.Record, error) {
	select {
	case <-r.fut.done:
		return r.fut.value, r.fut.err
	default:
	}
	if !block {
		return nil, ErrNotReady
	}
	if timeout <= 0 {
		<-r.fut.done
		return r.fut.value, r.fut.err
	}

	timer := r.clock.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.fut.done:
		return r.fut.value, r.fut.err
	case <-timer.C:
		return nil, ErrTimeout
	}
}
