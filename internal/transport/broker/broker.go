// Package broker carries queue transport messages between the gateway and
// workers consuming a shared task queue.
package broker

import (
	"context"
	"encoding/json"
)

// TaskEnvelope is the outbound message published for a worker to pick up.
type TaskEnvelope struct {
	CorrelationID string          `json:"correlation_id"`
	Operation     string          `json:"operation"`
	Payload       json.RawMessage `json:"payload"`
	Sealed        bool            `json:"sealed,omitempty"`
}

// Reply is the inbound message a worker publishes once a task finishes.
type Reply struct {
	CorrelationID string          `json:"correlation_id"`
	Status        string          `json:"status"` // "ok" or "error"
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
}

const (
	ReplyStatusOK    = "ok"
	ReplyStatusError = "error"
)

// Broker publishes tasks and surfaces worker replies. Publishing is
// fire-and-forget: a published task cannot be recalled.
type Broker interface {
	Publish(ctx context.Context, env TaskEnvelope) error
	// Replies returns the stream of worker replies. The channel closes when
	// ctx is cancelled or the broker shuts down.
	Replies(ctx context.Context) (<-chan Reply, error)
	Close() error
}
