package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter spaces requests to the same origin by at least the origin's delay.
// Origins never wait on each other.
type Limiter struct {
	defaultDelay time.Duration
	logger       *zap.Logger

	mu      sync.RWMutex
	origins map[string]*rate.Limiter
}

func NewLimiter(defaultDelay time.Duration, logger *zap.Logger) *Limiter {
	if defaultDelay < 0 {
		defaultDelay = 0
	}
	return &Limiter{
		defaultDelay: defaultDelay,
		logger:       logger,
		origins:      make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to origin is allowed. The first request to an
// origin never waits.
func (l *Limiter) Wait(ctx context.Context, origin string) error {
	if err := l.limiter(origin).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", origin, err)
	}
	return nil
}

// SetDelay overrides the spacing for one origin.
func (l *Limiter) SetDelay(origin string, delay time.Duration) {
	lim := l.limiter(origin)
	lim.SetLimit(every(delay))
	l.logger.Debug("origin delay changed", zap.String("origin", origin), zap.Duration("delay", delay))
}

// Delay reports the spacing currently applied to origin.
func (l *Limiter) Delay(origin string) time.Duration {
	l.mu.RLock()
	lim, ok := l.origins[origin]
	l.mu.RUnlock()
	if !ok {
		return l.defaultDelay
	}
	limit := lim.Limit()
	if limit == rate.Inf || limit <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(limit))
}

func (l *Limiter) limiter(origin string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.origins[origin]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.origins[origin]; ok {
		return lim
	}
	lim = rate.NewLimiter(every(l.defaultDelay), 1)
	l.origins[origin] = lim
	l.logger.Debug("new origin limiter", zap.String("origin", origin), zap.Duration("delay", l.defaultDelay))
	return lim
}

func every(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}
