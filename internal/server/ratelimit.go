package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateCounter is the subset of the redis client the limiter needs.
type rateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// RateLimit is a fixed-window limiter keyed by authenticated user.
type RateLimit struct {
	Counter  rateCounter
	Requests int
	Window   time.Duration
	Logger   *log.Logger
}

func NewRateLimit(client *redis.Client, requests int, window time.Duration) *RateLimit {
	return &RateLimit{Counter: client, Requests: requests, Window: window}
}

func (rl *RateLimit) logf(format string, args ...any) {
	if rl.Logger != nil {
		rl.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Middleware must run after authentication. Unauthenticated requests and
// redis failures pass through.
func (rl *RateLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFromContext(r.Context())
		if rl == nil || rl.Counter == nil || rl.Requests <= 0 || !ok || p.UserID == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		key := fmt.Sprintf("ratelimit:api:%s", p.UserID)
		count, err := rl.Counter.Incr(ctx, key).Result()
		if err != nil {
			rl.logf("ratelimit: incr %s: %v", key, err)
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			if err := rl.Counter.Expire(ctx, key, rl.Window).Err(); err != nil {
				rl.logf("ratelimit: expire %s: %v", key, err)
			}
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.Requests))
		if count > int64(rl.Requests) {
			ttl, _ := rl.Counter.TTL(ctx, key).Result()
			if ttl < 0 {
				ttl = rl.Window
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			w.Header().Set("X-RateLimit-Remaining", "0")
			respondStatusError(w, newAPIError(http.StatusTooManyRequests, "rate_limited", "too many requests", nil))
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Requests-int(count)))
		next.ServeHTTP(w, r)
	})
}
