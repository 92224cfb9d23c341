// Package ratelimit bounds how fast the gateway issues external worker calls.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter applies a global budget plus a per-operation budget, so one hot
// operation cannot starve the rest.
type Limiter struct {
	limiters     map[string]*rate.Limiter
	global       *rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

type Config struct {
	GlobalRPS      float64
	GlobalBurst    int
	OperationRPS   float64
	OperationBurst int
}

func DefaultConfig() Config {
	return Config{
		GlobalRPS:      100,
		GlobalBurst:    200,
		OperationRPS:   25,
		OperationBurst: 50,
	}
}

func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		global:       rate.NewLimiter(rate.Limit(cfg.GlobalRPS), cfg.GlobalBurst),
		defaultRate:  rate.Limit(cfg.OperationRPS),
		defaultBurst: cfg.OperationBurst,
	}
}

// Allow reports whether one call for the operation may proceed now.
func (l *Limiter) Allow(operation string) bool {
	if !l.global.Allow() {
		return false
	}
	return l.getOrCreateOperationLimiter(operation).Allow()
}

// Wait blocks until both budgets admit one call or ctx expires.
func (l *Limiter) Wait(ctx context.Context, operation string) error {
	if err := l.global.Wait(ctx); err != nil {
		return err
	}
	return l.getOrCreateOperationLimiter(operation).Wait(ctx)
}

func (l *Limiter) getOrCreateOperationLimiter(operation string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[operation]
	l.mu.RUnlock()

	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, ok = l.limiters[operation]; ok {
		return limiter
	}

	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[operation] = limiter
	return limiter
}
