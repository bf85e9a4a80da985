// Package ratelimit caps how many booking requests one user may make per window.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed-window counter kept in Redis, shared by every API instance
type Limiter struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	now    func() time.Time
}

// New creates a Limiter. window is rounded to whole seconds, at least one,
// so that bucket keys and key expiry agree.
func New(client redis.Cmdable, limit int, window time.Duration) *Limiter {
	window = window.Round(time.Second)
	if window < time.Second {
		window = time.Second
	}
	return &Limiter{client: client, limit: limit, window: window, now: time.Now}
}

func (l *Limiter) key(user string) string {
	return fmt.Sprintf("rate_limit:booking:%s:%d", user, l.now().Unix()/int64(l.window.Seconds()))
}

// Allow counts one request for user and reports whether it is within the limit
func (l *Limiter) Allow(ctx context.Context, user string) (bool, error) {
	key := l.key(user)

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to count request: %w", err)
	}
	return incr.Val() <= int64(l.limit), nil
}

// Middleware rejects requests over the limit with 429. Requests without a user
// are passed through; so is everything while Redis is unreachable.
func (l *Limiter) Middleware(identify func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := identify(r)
			if user == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, err := l.Allow(r.Context(), user)
			if err != nil {
				log.Printf("Warning: rate limiter unavailable, allowing request: %v", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": "Too many booking requests, try again later",
					"details": map[string]interface{}{
						"limit":         l.limit,
						"windowSeconds": int(l.window.Seconds()),
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
