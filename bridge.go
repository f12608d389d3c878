package taskcoord

import (
	"context"
	"runtime"
)

// result carries either a value or an error down the bridge's channel.
type result[R any] struct {
	value R
	err   error
}

// ContinuationBridge is a one-shot sink holding at most one resolver for a
// result of type R. The handle side is created and returned synchronously
// with submission; Resume is called later, exactly once, from the
// resolution site. A bridge destroyed without a prior Resume auto-resumes
// with Cancelled, so a coordinator teardown can never leave a caller
// waiting forever on an abandoned operation.
type ContinuationBridge[R any] struct {
	ch chan result[R]
}

// NewContinuationBridge creates a bridge and registers a best-effort
// cleanup that resumes it with Cancelled if it is garbage-collected before
// any Resume call took effect.
func NewContinuationBridge[R any]() *ContinuationBridge[R] {
	b := &ContinuationBridge[R]{ch: make(chan result[R], 1)}
	runtime.AddCleanup(b, func(ch chan result[R]) {
		select {
		case ch <- result[R]{err: Cancelled}:
		default:
		}
	}, b.ch)
	return b
}

// Resume delivers the operation's outcome. The first call consumes the
// bridge; subsequent calls are silent no-ops.
func (b *ContinuationBridge[R]) Resume(value R, err error) {
	select {
	case b.ch <- result[R]{value: value, err: err}:
	default:
	}
}

// Handle returns the caller-visible awaitable bound to this bridge. cancel,
// if non-nil, is invoked when Await gives up because its context is done, so
// cancelling the wait also cancels the operation it was waiting on; it is
// typically the owning TaskNode's Invalidate.
func (b *ContinuationBridge[R]) Handle(cancel func()) *Handle[R] {
	return &Handle[R]{ch: b.ch, cancel: cancel}
}

// Handle is the caller-visible awaitable bound one-to-one with a
// submission. It resolves with the operation's value, its error, or
// Cancelled.
type Handle[R any] struct {
	ch     <-chan result[R]
	cancel func()
}

// Await blocks until the bound operation resolves or ctx is done. It is
// meant to be called once per Handle, by the submission's single caller;
// Resume delivers exactly one value onto the bridge's channel, so a second
// Await on the same Handle after a successful first read blocks forever.
//
// If ctx is done first, Await invokes the handle's cancel callback before
// returning, so giving up on Await also cancels the underlying operation
// instead of leaving it running with nothing left to observe it.
func (h *Handle[R]) Await(ctx context.Context) (R, error) {
	select {
	case r, ok := <-h.ch:
		if !ok {
			var zero R
			return zero, Cancelled
		}
		return r.value, r.err
	case <-ctx.Done():
		if h.cancel != nil {
			h.cancel()
		}
		var zero R
		return zero, ctx.Err()
	}
}
