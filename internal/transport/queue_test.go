package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mlbridge/gateway/internal/codec"
	"github.com/mlbridge/gateway/internal/crypto"
	"github.com/mlbridge/gateway/internal/transport/broker"
)

func startQueue(t *testing.T, worker func(broker.TaskEnvelope) broker.Reply, opts ...QueueOption) (*QueueTransport, *broker.MemoryBroker) {
	t.Helper()

	b := broker.NewMemoryBroker(16)
	tr := NewQueueTransport(b, codec.NewRegistry(), nil, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := tr.Start(ctx); err != nil {
		t.Fatalf("failed to start queue transport: %v", err)
	}
	if worker != nil {
		go b.Serve(ctx, worker)
	}
	return tr, b
}

func queueConfig(timeout time.Duration) Config {
	return Config{Kind: KindQueue, Target: "ml_tasks", Timeout: timeout}
}

func TestQueueSuccess(t *testing.T) {
	t.Parallel()

	tr, _ := startQueue(t, func(env broker.TaskEnvelope) broker.Reply {
		if env.Operation != "sentiment" {
			t.Errorf("unexpected operation %s", env.Operation)
		}
		return broker.Reply{
			Status: broker.ReplyStatusOK,
			Result: json.RawMessage(`{"sentiment":"positive","confidence":0.85}`),
		}
	})

	req := newWireRequest(t, "sentiment", map[string]any{"text": "great product"})
	result := tr.Submit(context.Background(), req, queueConfig(5*time.Second))
	if result.Status != StatusSuccess {
		t.Fatalf("unexpected status %s: %s", result.Status, result.ErrorDetail)
	}
}

func TestQueueWorkerErrorReply(t *testing.T) {
	t.Parallel()

	tr, _ := startQueue(t, func(broker.TaskEnvelope) broker.Reply {
		return broker.Reply{Status: broker.ReplyStatusError, Error: "model not found"}
	})

	req := newWireRequest(t, "sentiment", map[string]any{"text": "x"})
	result := tr.Submit(context.Background(), req, queueConfig(5*time.Second))
	if result.Status != StatusWorkerError {
		t.Fatalf("unexpected status %s", result.Status)
	}
	if result.ErrorDetail != "model not found" {
		t.Fatalf("worker error not surfaced: %q", result.ErrorDetail)
	}
}

func TestQueueTimeoutWithoutWorker(t *testing.T) {
	t.Parallel()

	tr, _ := startQueue(t, nil) // nothing consumes the task queue

	req := newWireRequest(t, "sentiment", map[string]any{"text": "x"})
	start := time.Now()
	result := tr.Submit(context.Background(), req, queueConfig(100*time.Millisecond))

	if result.Status != StatusTimeout {
		t.Fatalf("unexpected status %s", result.Status)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not honored, took %s", elapsed)
	}
}

func TestQueueLateReplyIsDiscarded(t *testing.T) {
	t.Parallel()

	workerDone := make(chan struct{})
	tr, _ := startQueue(t, func(env broker.TaskEnvelope) broker.Reply {
		// The task outlives the caller's patience; it still completes.
		time.Sleep(300 * time.Millisecond)
		close(workerDone)
		return broker.Reply{
			Status: broker.ReplyStatusOK,
			Result: json.RawMessage(`{"sentiment":"positive","confidence":0.85}`),
		}
	})

	req := newWireRequest(t, "sentiment", map[string]any{"text": "x"})
	result := tr.Submit(context.Background(), req, queueConfig(50*time.Millisecond))
	if result.Status != StatusTimeout {
		t.Fatalf("unexpected status %s", result.Status)
	}

	// The late reply must be dispatched and dropped without a waiter.
	select {
	case <-workerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never finished the abandoned task")
	}
	time.Sleep(100 * time.Millisecond)

	if n := tr.waiters.Len(); n != 0 {
		t.Fatalf("waiter map leaked %d entries", n)
	}
}

func TestQueueSealedPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	sealer, err := crypto.NewSealer([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("failed to create sealer: %v", err)
	}

	payload := map[string]any{"text": "confidential review"}
	encoded, _ := codec.Encode(payload)

	tr, _ := startQueue(t, func(env broker.TaskEnvelope) broker.Reply {
		if !env.Sealed {
			t.Error("envelope not marked sealed")
		}
		var sealed string
		if err := json.Unmarshal(env.Payload, &sealed); err != nil {
			t.Errorf("sealed payload not a JSON string: %v", err)
		}
		if sealed == string(encoded) {
			t.Error("payload crossed the broker in the clear")
		}
		opened, err := sealer.Open(sealed)
		if err != nil {
			t.Errorf("worker failed to open payload: %v", err)
		}
		if string(opened) != string(encoded) {
			t.Errorf("unsealed payload mismatch: %s", opened)
		}
		return broker.Reply{
			Status: broker.ReplyStatusOK,
			Result: json.RawMessage(`{"sentiment":"positive","confidence":0.9}`),
		}
	}, WithSealer(sealer))

	req := newWireRequest(t, "sentiment", payload)
	result := tr.Submit(context.Background(), req, queueConfig(5*time.Second))
	if result.Status != StatusSuccess {
		t.Fatalf("unexpected status %s: %s", result.Status, result.ErrorDetail)
	}
}
