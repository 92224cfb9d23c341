package broker

import (
	"context"
	"errors"
	"sync"
)

var ErrBrokerClosed = errors.New("broker: closed")

// MemoryBroker is an in-process broker backed by channels. It serves embedded
// deployments and tests; Serve attaches a worker function that consumes
// published tasks and produces replies, the way an external queue worker
// would.
type MemoryBroker struct {
	tasks   chan TaskEnvelope
	replies chan Reply

	mu     sync.Mutex
	closed bool
}

func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBroker{
		tasks:   make(chan TaskEnvelope, buffer),
		replies: make(chan Reply, buffer),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, env TaskEnvelope) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBrokerClosed
	}

	select {
	case b.tasks <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroker) Replies(ctx context.Context) (<-chan Reply, error) {
	return b.replies, nil
}

// Serve runs a worker loop until ctx is cancelled. Each published task is
// handed to fn and the reply is pushed back to the gateway side. Tasks keep
// executing even if the submitter has stopped waiting.
func (b *MemoryBroker) Serve(ctx context.Context, fn func(TaskEnvelope) Reply) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-b.tasks:
			reply := fn(env)
			reply.CorrelationID = env.CorrelationID
			select {
			case b.replies <- reply:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
