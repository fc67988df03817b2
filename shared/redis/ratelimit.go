package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// tokenBucketScript refills KEYS[1] at ARGV[1] tokens/s up to ARGV[2] and
// takes ARGV[4] tokens at time ARGV[3].
// Returns { allowed, remaining, reset_after_seconds }.
var tokenBucketScript = goredis.NewScript(`
local tokens_key = KEYS[1]
local ts_key = KEYS[2]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local ttl = math.ceil((capacity / rate) * 2)

local tokens = tonumber(redis.call("get", tokens_key))
if tokens == nil then tokens = capacity end

local last = tonumber(redis.call("get", ts_key))
if last == nil then last = now end

tokens = math.min(capacity, tokens + math.max(0, now - last) * rate)

local allowed = 0
local reset_after = 0
if tokens >= requested then
	allowed = 1
	tokens = tokens - requested
else
	reset_after = (requested - tokens) / rate
end

redis.call("set", tokens_key, tokens, "EX", ttl)
redis.call("set", ts_key, now, "EX", ttl)

return { allowed, tostring(tokens), tostring(reset_after) }
`)

// Decision is the outcome of one TokenBucket.Take.
type Decision struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration
}

// TokenBucket is a rate limiter whose state lives in Redis, shared by every
// API replica.
type TokenBucket struct {
	rdb    goredis.Scripter
	prefix string
}

func NewTokenBucket(rdb goredis.Scripter, prefix string) *TokenBucket {
	return &TokenBucket{rdb: rdb, prefix: prefix}
}

// Take consumes one token from key's bucket.
func (b *TokenBucket) Take(ctx context.Context, key string, perSecond float64, burst int) (Decision, error) {
	base := b.prefix + key
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := tokenBucketScript.Run(ctx, b.rdb,
		[]string{base + ":tokens", base + ":ts"},
		perSecond, burst, now, 1,
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("token bucket script failed: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("unexpected token bucket reply of length %d", len(res))
	}

	allowed, _ := res[0].(int64)
	remaining := parseFloat(res[1])
	resetAfter := parseFloat(res[2])

	return Decision{
		Allowed:    allowed == 1,
		Remaining:  int(remaining),
		ResetAfter: time.Duration(resetAfter * float64(time.Second)),
	}, nil
}

// Lua numbers are truncated to integers on the way out, so fractional
// values come back as strings.
func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		var f float64
		if _, err := fmt.Sscanf(val, "%g", &f); err == nil {
			return f
		}
	case int64:
		return float64(val)
	}
	return 0
}
