package gateway

import (
	"context"
	"sync"

	"github.com/mlbridge/gateway/internal/transport"
)

// Future is the handle for an asynchronous submission. It resolves exactly
// once; Poll and Wait observe the same outcome, and Cancel after resolution
// is a no-op.
type Future struct {
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc

	result *transport.Result
	err    error
}

// SubmitAsync dispatches an operation without blocking the caller. The
// returned Future supports a blocking wait or a non-blocking poll.
func (g *Gateway) SubmitAsync(ctx context.Context, operation string, payload map[string]any) *Future {
	runCtx, cancel := context.WithCancel(ctx)
	f := &Future{
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer cancel()
		result, err := g.Submit(runCtx, operation, payload)
		f.resolve(result, err)
	}()

	return f
}

func (f *Future) resolve(result *transport.Result, err error) {
	f.once.Do(func() {
		f.result = result
		f.err = err
		close(f.done)
	})
}

// Poll reports the outcome without blocking. The boolean is false while the
// submission is still in flight.
func (f *Future) Poll() (*transport.Result, error, bool) {
	select {
	case <-f.done:
		return f.result, f.err, true
	default:
		return nil, nil, false
	}
}

// Wait blocks until the submission resolves or ctx expires.
func (f *Future) Wait(ctx context.Context) (*transport.Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel stops the submission. A subprocess worker is killed and an HTTP
// call aborted; a queued task cannot be recalled, so cancellation there only
// stops the wait.
func (f *Future) Cancel() {
	f.cancel()
}
