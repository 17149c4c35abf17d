package admission

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// slidingLogScript trims entries older than the window, counts survivors and
// only appends when there is room. Running it as one script keeps two
// concurrent callers from both taking the last slot.
//
// Returns {count, added, oldestScoreMs or -1}.
var slidingLogScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now - window))
local count = redis.call('ZCARD', key)
local added = 0
if count < limit then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
  count = count + 1
  added = 1
end

local oldest = -1
local head = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if head[2] then
  oldest = tonumber(head[2])
end
return {count, added, oldest}
`)

type redisBackend struct {
	rdb    goredis.UniversalClient
	limit  int
	window time.Duration
	token  func() string
}

func newRedisBackend(rdb goredis.UniversalClient, limit int, window time.Duration) *redisBackend {
	return &redisBackend{
		rdb:    rdb,
		limit:  limit,
		window: window,
		token:  func() string { return uuid.NewString() },
	}
}

func (b *redisBackend) name() string { return BackendRedis }

func (b *redisBackend) hit(ctx context.Context, key string, now time.Time) (hitResult, error) {
	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + b.token()

	raw, err := slidingLogScript.Run(ctx, b.rdb, []string{key},
		nowMs, b.window.Milliseconds(), b.limit, member,
	).Int64Slice()
	if err != nil {
		return hitResult{}, fmt.Errorf("sliding log %s: %w", key, err)
	}
	if len(raw) != 3 {
		return hitResult{}, fmt.Errorf("sliding log %s: unexpected reply length %d", key, len(raw))
	}

	resetAt := now.Add(b.window)
	if raw[2] >= 0 {
		resetAt = time.UnixMilli(raw[2]).Add(b.window)
	}
	return hitResult{
		used:    int(raw[0]),
		allowed: raw[1] == 1,
		resetAt: resetAt,
	}, nil
}

func (b *redisBackend) count(ctx context.Context, key string, now time.Time) (int, error) {
	floor := "(" + strconv.FormatInt(now.UnixMilli()-b.window.Milliseconds(), 10)
	n, err := b.rdb.ZCount(ctx, key, floor, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("zcount %s: %w", key, err)
	}
	return int(n), nil
}

func (b *redisBackend) clear(ctx context.Context, key string) error {
	if err := b.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}
