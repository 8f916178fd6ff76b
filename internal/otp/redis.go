package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// expiryGrace keeps an expired ticket around long enough to answer "expired"
// instead of "not found". After the grace window Redis drops the key itself.
const expiryGrace = 10 * time.Minute

// verifyScript runs the whole check-and-consume cycle server-side so two
// concurrent verifies cannot both succeed. The attempt counter increments
// before the comparison; a mismatch keeps the ticket, everything else
// deletes it.
var verifyScript = redis.NewScript(`
local key = KEYS[1]
local code = ARGV[1]
local now = tonumber(ARGV[2])
local maxAttempts = tonumber(ARGV[3])

if redis.call("EXISTS", key) == 0 then
  return {"not_found", 0}
end

local expires = tonumber(redis.call("HGET", key, "expires_at"))
if now > expires then
  redis.call("DEL", key)
  return {"expired", 0}
end

local attempts = redis.call("HINCRBY", key, "attempts", 1)
if attempts > maxAttempts then
  redis.call("DEL", key)
  return {"locked", 0}
end

local stored = redis.call("HGET", key, "code")
if stored ~= code then
  return {"mismatch", maxAttempts - attempts}
end

local identifier = redis.call("HGET", key, "identifier")
redis.call("DEL", key)
return {"ok", identifier}
`)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		now:    time.Now,
	}
}

type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func (s *RedisStore) Create(ctx context.Context, requestID, identifier, code string, ttl time.Duration) error {
	key := ticketKey(requestID)
	expiresAt := s.now().Add(ttl).Unix()

	// Replacing an existing ticket resets its attempt counter.
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"identifier", identifier,
		"code", code,
		"attempts", 0,
		"expires_at", expiresAt,
	)
	pipe.Expire(ctx, key, ttl+expiryGrace)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis create ticket failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Verify(ctx context.Context, requestID, code string) (Result, error) {
	raw, err := verifyScript.Run(ctx, s.client,
		[]string{ticketKey(requestID)},
		code, s.now().Unix(), MaxAttempts,
	).Result()
	if err != nil {
		return Result{}, fmt.Errorf("redis verify failed: %w", err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 2 {
		return Result{}, fmt.Errorf("unexpected verify reply: %v", raw)
	}
	status, _ := reply[0].(string)

	switch status {
	case "ok":
		identifier, _ := reply[1].(string)
		return Result{OK: true, Identifier: identifier}, nil
	case "mismatch":
		left, _ := reply[1].(int64)
		return Result{Reason: ReasonMismatch, AttemptsLeft: int(left)}, nil
	case "not_found":
		return Result{Reason: ReasonNotFound}, nil
	case "expired":
		return Result{Reason: ReasonExpired}, nil
	case "locked":
		return Result{Reason: ReasonLocked}, nil
	default:
		return Result{}, fmt.Errorf("unexpected verify status %q", status)
	}
}

func ticketKey(requestID string) string {
	return fmt.Sprintf("otp:%s", requestID)
}
