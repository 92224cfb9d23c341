package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker publishes tasks onto a Redis list and consumes worker replies
// from the companion replies list. Workers BRPOP the task list and LPUSH
// their replies, mirroring the queue contract of the ML worker scripts.
type RedisBroker struct {
	client *redis.Client
	queue  string
	logger *slog.Logger

	once    sync.Once
	replies chan Reply
}

// NewRedisBroker connects a broker to the named task queue.
func NewRedisBroker(client *redis.Client, queue string, logger *slog.Logger) *RedisBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBroker{
		client: client,
		queue:  queue,
		logger: logger,
	}
}

func (b *RedisBroker) taskKey() string  { return b.queue }
func (b *RedisBroker) replyKey() string { return b.queue + ":replies" }

func (b *RedisBroker) Publish(ctx context.Context, env TaskEnvelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal task envelope: %w", err)
	}
	if err := b.client.LPush(ctx, b.taskKey(), raw).Err(); err != nil {
		return fmt.Errorf("failed to publish task: %w", err)
	}
	return nil
}

func (b *RedisBroker) Replies(ctx context.Context) (<-chan Reply, error) {
	b.once.Do(func() {
		b.replies = make(chan Reply, 64)
		go b.consume(ctx)
	})
	return b.replies, nil
}

func (b *RedisBroker) consume(ctx context.Context) {
	defer close(b.replies)

	for {
		if ctx.Err() != nil {
			return
		}

		values, err := b.client.BRPop(ctx, time.Second, b.replyKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			b.logger.Error("failed to read reply list", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if len(values) != 2 {
			continue
		}

		var reply Reply
		if err := json.Unmarshal([]byte(values[1]), &reply); err != nil {
			b.logger.Error("discarding malformed reply", slog.String("error", err.Error()))
			continue
		}

		select {
		case b.replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
