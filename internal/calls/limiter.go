package calls

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PlacementLimiter caps how many outbound placements may be in flight at
// once across all API instances. Slots are counted in Redis with a TTL so a
// crashed process cannot leak capacity forever.
type PlacementLimiter struct {
	rdb   *redis.Client
	key   string
	limit int
	ttl   time.Duration
}

func NewPlacementLimiter(rdb *redis.Client, limit int, ttl time.Duration) *PlacementLimiter {
	return &PlacementLimiter{
		rdb:   rdb,
		key:   "calls:placement:active",
		limit: limit,
		ttl:   ttl,
	}
}

var placementAcquireScript = redis.NewScript(`
-- KEYS[1] = counter key
-- ARGV[1] = limit (int)
-- ARGV[2] = ttl_ms (int)
--
-- Returns 1 if a slot was acquired, 0 if the cap is reached.
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
else
  if redis.call('PTTL', KEYS[1]) < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
  end
end

if current > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return 0
end
return 1
`)

var placementReleaseScript = redis.NewScript(`
-- KEYS[1] = counter key
local current = redis.call('DECR', KEYS[1])
if current <= 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// Acquire attempts to take a placement slot. Atomic via Lua.
func (l *PlacementLimiter) Acquire(ctx context.Context) (bool, error) {
	if l.rdb == nil {
		return false, fmt.Errorf("placement limiter: redis client is nil")
	}
	if l.limit <= 0 || l.ttl <= 0 {
		return false, fmt.Errorf("placement limiter: limit and ttl must be > 0")
	}
	res, err := placementAcquireScript.Run(ctx, l.rdb, []string{l.key}, l.limit, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Release returns a previously acquired slot.
func (l *PlacementLimiter) Release(ctx context.Context) error {
	if l.rdb == nil {
		return fmt.Errorf("placement limiter: redis client is nil")
	}
	return placementReleaseScript.Run(ctx, l.rdb, []string{l.key}).Err()
}
