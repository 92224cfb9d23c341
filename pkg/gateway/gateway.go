// Package gateway is the single entry point for dispatching ML operations to
// external workers. It owns fingerprinting, cache lookup, rate limiting,
// retry with backoff, and the normalization of every failure into a typed
// result.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mlbridge/gateway/internal/cache"
	"github.com/mlbridge/gateway/internal/codec"
	"github.com/mlbridge/gateway/internal/ratelimit"
	"github.com/mlbridge/gateway/internal/retry"
	"github.com/mlbridge/gateway/internal/transport"
)

var ErrNoTransport = errors.New("gateway: no transport configured")

// Config assembles a Gateway. There is no ambient default; every dependency
// is explicit.
type Config struct {
	Transport       transport.Transport
	TransportConfig transport.Config

	// Codec defaults to the built-in operation registry.
	Codec *codec.Registry

	// Cache is optional. Only Success results are ever stored in it.
	Cache    cache.Cache
	CacheTTL time.Duration

	// Retry defaults to retry.DefaultPolicy. Only TransportError and
	// Timeout outcomes are retried.
	Retry *retry.Policy

	// Limiter is optional; when set, Submit waits for admission before each
	// transport attempt.
	Limiter *ratelimit.Limiter

	Logger *slog.Logger
}

// Gateway dispatches operations through one transport.
type Gateway struct {
	transport transport.Transport
	cfg       transport.Config
	codec     *codec.Registry
	cache     cache.Cache
	cacheTTL  time.Duration
	policy    *retry.Policy
	limiter   *ratelimit.Limiter
	group     singleflight.Group
	logger    *slog.Logger
}

// New creates a Gateway from an explicit configuration.
func New(cfg Config) (*Gateway, error) {
	if cfg.Transport == nil {
		return nil, ErrNoTransport
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.NewRegistry()
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}

	return &Gateway{
		transport: cfg.Transport,
		cfg:       cfg.TransportConfig,
		codec:     cfg.Codec,
		cache:     cfg.Cache,
		cacheTTL:  cfg.CacheTTL,
		policy:    cfg.Retry,
		limiter:   cfg.Limiter,
		logger:    cfg.Logger,
	}, nil
}

// Codec exposes the response schema registry so callers can register
// schemas for their own operations.
func (g *Gateway) Codec() *codec.Registry {
	return g.codec
}

// Submit dispatches one operation and blocks until a terminal outcome.
//
// The returned error covers caller-side faults only: payloads that cannot be
// encoded and contexts cancelled before completion. Worker and transport
// failures always arrive as a typed Result.
func (g *Gateway) Submit(ctx context.Context, operation string, payload map[string]any) (*transport.Result, error) {
	encoded, err := codec.Encode(payload)
	if err != nil {
		return nil, err
	}
	fingerprint, err := codec.Fingerprint(operation, payload)
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		if data, err := g.cache.Get(ctx, fingerprint); err == nil {
			g.logger.Debug("cache hit",
				slog.String("operation", operation),
				slog.String("fingerprint", fingerprint),
			)
			return &transport.Result{Status: transport.StatusSuccess, Data: data}, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Concurrent cache misses on the same fingerprint collapse to one
	// external call; the racers share the winner's result.
	value, err, _ := g.group.Do(fingerprint, func() (any, error) {
		return g.attempt(ctx, &transport.Request{
			Operation:   operation,
			Payload:     payload,
			Encoded:     encoded,
			Fingerprint: fingerprint,
		})
	})
	if err != nil {
		return nil, err
	}
	return value.(*transport.Result), nil
}

// attempt runs the retry loop for one deduplicated submission.
func (g *Gateway) attempt(ctx context.Context, req *transport.Request) (*transport.Result, error) {
	for attempt := int32(1); ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if g.limiter != nil {
			if err := g.limiter.Wait(ctx, req.Operation); err != nil {
				return nil, fmt.Errorf("gateway: rate limit wait aborted: %w", err)
			}
		}

		attemptReq := *req
		attemptReq.Attempt = attempt

		result := g.transport.Submit(ctx, &attemptReq, g.cfg)

		g.logger.Info("transport attempt finished",
			slog.String("operation", req.Operation),
			slog.String("fingerprint", req.Fingerprint),
			slog.Int("attempt", int(attempt)),
			slog.String("status", string(result.Status)),
			slog.Duration("duration", result.Duration),
		)

		if result.Status == transport.StatusSuccess {
			g.store(ctx, req.Fingerprint, result)
			return result, nil
		}

		if !result.Status.Retryable() || !g.policy.ShouldRetry(attempt) {
			return result, nil
		}

		delay := g.policy.NextRetryDelay(attempt)
		g.logger.Warn("retrying after transient failure",
			slog.String("operation", req.Operation),
			slog.Int("attempt", int(attempt)),
			slog.String("status", string(result.Status)),
			slog.Duration("backoff", delay),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// store writes through to the cache. Failures never reach here, so the cache
// can never replay a failure.
func (g *Gateway) store(ctx context.Context, fingerprint string, result *transport.Result) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, fingerprint, result.Data, g.cacheTTL); err != nil {
		g.logger.Warn("failed to cache result",
			slog.String("fingerprint", fingerprint),
			slog.String("error", err.Error()),
		)
	}
}
