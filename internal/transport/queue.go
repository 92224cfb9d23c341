package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/teris-io/shortid"

	"github.com/mlbridge/gateway/internal/codec"
	"github.com/mlbridge/gateway/internal/crypto"
	"github.com/mlbridge/gateway/internal/transport/broker"
)

// QueueTransport publishes tasks to a broker and waits for the correlated
// reply. Publishing is at-least-once on the worker side: a timed-out task
// keeps running and its late reply is discarded, never delivered to a caller
// that stopped waiting.
//
// Each in-flight request owns one entry in the waiter map. Resolution goes
// through a single atomic GetAndDel, so a reply and a timeout racing on the
// same correlation id cannot both win.
type QueueTransport struct {
	broker  broker.Broker
	codec   *codec.Registry
	sealer  *crypto.Sealer // optional, seals outbound payloads
	logger  *slog.Logger
	waiters *haxmap.Map[string, chan broker.Reply]
}

// QueueOption configures a QueueTransport.
type QueueOption func(*QueueTransport)

// WithSealer encrypts outbound payloads before they reach the broker.
func WithSealer(s *crypto.Sealer) QueueOption {
	return func(t *QueueTransport) { t.sealer = s }
}

func NewQueueTransport(b broker.Broker, reg *codec.Registry, logger *slog.Logger, opts ...QueueOption) *QueueTransport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &QueueTransport{
		broker:  b,
		codec:   reg,
		logger:  logger,
		waiters: haxmap.New[string, chan broker.Reply](),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *QueueTransport) Kind() Kind {
	return KindQueue
}

// Start begins consuming worker replies. It must be called once before the
// first Submit; the consumer stops when ctx is cancelled.
func (t *QueueTransport) Start(ctx context.Context) error {
	replies, err := t.broker.Replies(ctx)
	if err != nil {
		return fmt.Errorf("failed to open reply stream: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case reply, ok := <-replies:
				if !ok {
					return
				}
				t.dispatch(reply)
			}
		}
	}()
	return nil
}

func (t *QueueTransport) dispatch(reply broker.Reply) {
	ch, ok := t.waiters.GetAndDel(reply.CorrelationID)
	if !ok {
		// Caller stopped waiting; the worker already did the work.
		t.logger.Warn("discarding reply with no waiter",
			slog.String("correlation_id", reply.CorrelationID),
			slog.String("status", reply.Status),
		)
		return
	}
	ch <- reply // buffered, never blocks
}

func (t *QueueTransport) Submit(ctx context.Context, req *Request, cfg Config) *Result {
	start := time.Now()

	id, err := shortid.Generate()
	if err != nil {
		return failure(StatusTransportError,
			fmt.Sprintf("failed to generate correlation id: %v", err),
			nil, start)
	}

	payload := json.RawMessage(req.Encoded)
	sealed := false
	if t.sealer != nil {
		sealedPayload, err := t.sealer.Seal(req.Encoded)
		if err != nil {
			return failure(StatusTransportError,
				fmt.Sprintf("failed to seal payload: %v", err),
				nil, start)
		}
		payload, _ = json.Marshal(sealedPayload)
		sealed = true
	}

	ch := make(chan broker.Reply, 1)
	t.waiters.Set(id, ch)

	env := broker.TaskEnvelope{
		CorrelationID: id,
		Operation:     req.Operation,
		Payload:       payload,
		Sealed:        sealed,
	}

	if err := t.broker.Publish(ctx, env); err != nil {
		t.waiters.Del(id)
		return failure(StatusTransportError,
			fmt.Sprintf("failed to publish task: %v", err),
			nil, start)
	}

	t.logger.Debug("published task",
		slog.String("correlation_id", id),
		slog.String("operation", req.Operation),
		slog.Int("attempt", int(req.Attempt)),
	)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return t.resolve(req, reply, start)

	case <-ctx.Done():
		return t.abandon(req, id, ch, start,
			fmt.Sprintf("submission cancelled: %v", ctx.Err()), StatusTransportError)

	case <-timer.C:
		// The task is not recalled; the worker may still finish it. Any late
		// reply finds no waiter and is discarded by dispatch.
		return t.abandon(req, id, ch, start,
			fmt.Sprintf("no reply within %s", timeout), StatusTimeout)
	}
}

// abandon removes this request's waiter entry. If the dispatcher won the
// race and already claimed the entry, the reply is sitting in ch and is
// honored instead of the timeout.
func (t *QueueTransport) abandon(req *Request, id string, ch chan broker.Reply, start time.Time, detail string, status Status) *Result {
	if _, claimed := t.waiters.GetAndDel(id); !claimed {
		select {
		case reply := <-ch:
			return t.resolve(req, reply, start)
		default:
		}
	}
	return failure(status, detail, nil, start)
}

func (t *QueueTransport) resolve(req *Request, reply broker.Reply, start time.Time) *Result {
	if reply.Status != broker.ReplyStatusOK {
		detail := reply.Error
		if detail == "" {
			detail = "worker reported failure without detail"
		}
		return failure(StatusWorkerError, detail, []byte(reply.Error), start)
	}

	data, err := t.codec.DecodeResult(req.Operation, reply.Result)
	if err != nil {
		return failure(StatusInvalidResponse,
			fmt.Sprintf("worker reply rejected: %v", err),
			reply.Result, start)
	}

	return &Result{
		Status:    StatusSuccess,
		Data:      data,
		RawOutput: reply.Result,
		Duration:  time.Since(start),
	}
}
