// Package ratelimit provides Redis-backed rate limiting using a fixed window:
// INCR a per-identity counter and set its TTL in the same script. Each action (swipe,
// message, connection) has its own rule.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Rule defines a rate limiting policy: a name for metrics, the Redis key
// prefix, the maximum number of requests in the window and the window.
type Rule struct {
	Name   string
	Key    string        // Redis key prefix (e.g. "rl:swipe:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

var (
	// RuleSwipe allows 60 swipes per minute per user.
	RuleSwipe = Rule{Name: "swipe", Key: "rl:swipe:", Limit: 60, Window: 1 * time.Minute}

	// RuleMessage allows 20 messages per 10 seconds per user.
	RuleMessage = Rule{Name: "message", Key: "rl:msg:", Limit: 20, Window: 10 * time.Second}

	// RuleConnect allows 10 WebSocket connections per minute per IP.
	RuleConnect = Rule{Name: "connect", Key: "rl:conn:", Limit: 10, Window: 1 * time.Minute}
)

// incrLua counts a request and opens the window when the counter has no TTL,
// which also repairs a counter left without one.
//
// KEYS: counter
// ARGV: window in milliseconds
const incrLua = `
local count = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`

var incrScript = redis.NewScript(incrLua)

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client, logger zerolog.Logger) *Limiter {
	return &Limiter{client: client, log: logger}
}

// Allow increments identifier's counter for rule and reports whether it is
// still within the limit.
//
// On Redis errors it fails open (returns true) so that a Redis outage does
// not block legitimate traffic; the error is still returned.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	count, err := incrScript.Run(ctx, l.client, []string{key}, rule.Window.Milliseconds()).Int()
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("redis INCR failed, failing open")
		return true, err
	}

	return count <= rule.Limit, nil
}

// Remaining returns how many requests identifier has left in the current
// window. It returns the full limit when no window is open or Redis fails.
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	key := rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return rule.Limit, nil
	}
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("redis GET failed, failing open")
		return rule.Limit, err
	}

	remaining := rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// RetryAfter returns the time until identifier's window resets, or the full
// window if it cannot be determined.
func (l *Limiter) RetryAfter(ctx context.Context, identifier string, rule Rule) time.Duration {
	ttl, err := l.client.TTL(ctx, rule.Key+identifier).Result()
	if err != nil || ttl <= 0 {
		return rule.Window
	}
	return ttl
}
