// Package rate implementa un rate limit de ventana fija sobre un contador
// compartido (cache en memoria o Redis).
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Counter es el contador atómico que respalda al limiter.
// cache.Client lo satisface.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
	// ResetAt es el fin de la ventana actual.
	ResetAt time.Time
}

// Limiter: fixed window (INCR + TTL en el primer hit).
type Limiter struct {
	counter Counter
	prefix  string
	max     int64
	window  time.Duration
	now     func() time.Time
}

// New crea un limiter de max hits por window. Retorna nil si max o window
// no son positivos (limiter desactivado).
func New(counter Counter, prefix string, max int, window time.Duration) *Limiter {
	if max <= 0 || window <= 0 {
		return nil
	}
	if prefix == "" {
		prefix = "rl:"
	}
	return &Limiter{counter: counter, prefix: prefix, max: int64(max), window: window, now: time.Now}
}

// Allow cuenta un hit para key en la ventana actual.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.now().UTC()
	winStart := now.Truncate(l.window)
	resetAt := winStart.Add(l.window)
	k := fmt.Sprintf("%s%s:%d", l.prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	hits, err := l.counter.Incr(ctx, k, resetAt.Sub(now))
	if err != nil {
		return Result{}, fmt.Errorf("rate: incr: %w", err)
	}

	res := Result{
		Allowed:   hits <= l.max,
		Limit:     l.max,
		Remaining: max(l.max-hits, 0),
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = resetAt.Sub(now)
	}
	return res, nil
}
