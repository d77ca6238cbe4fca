package quota

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jmehdipour/place-discovery/internal/model"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "discovery:quota"

// mutateScript applies a reservation atomically inside Redis.
// KEYS[1] hash; ARGV: n, ceiling, now_ms, window_ms, force(0|1).
var mutateScript = redis.NewScript(`
local total = tonumber(redis.call('HGET', KEYS[1], 'total') or '0')
local n = tonumber(ARGV[1])
if ARGV[5] ~= '1' and total + n > tonumber(ARGV[2]) then
  return 0
end
local started = tonumber(redis.call('HGET', KEYS[1], 'window_started_at') or '0')
if started + tonumber(ARGV[4]) <= tonumber(ARGV[3]) then
  redis.call('HSET', KEYS[1], 'window_started_at', ARGV[3], 'window_calls', ARGV[1])
else
  redis.call('HINCRBY', KEYS[1], 'window_calls', n)
end
redis.call('HINCRBY', KEYS[1], 'total', n)
redis.call('HSET', KEYS[1], 'last_call_at', ARGV[3])
return 1
`)

// RedisLedger keeps the ledger in one Redis hash. Durability follows the
// server's persistence settings (AOF with appendfsync always for strict
// guarantees).
type RedisLedger struct {
	rdb  redis.UniversalClient
	key  string
	opts Options
}

var _ Ledger = (*RedisLedger)(nil)

func NewRedisLedger(rdb redis.UniversalClient, key string, opts Options) *RedisLedger {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisLedger{rdb: rdb, key: key, opts: opts.normalized()}
}

func (l *RedisLedger) TryReserve(ctx context.Context, n int64) (bool, error) {
	if n <= 0 {
		return false, ErrNonPositive
	}
	ok, err := l.run(ctx, n, false)
	if err != nil {
		return false, fmt.Errorf("reserve quota: %w", err)
	}
	return ok, nil
}

func (l *RedisLedger) RecordUsage(ctx context.Context, n int64) error {
	if n <= 0 {
		return ErrNonPositive
	}
	if _, err := l.run(ctx, n, true); err != nil {
		return fmt.Errorf("record quota usage: %w", err)
	}
	return nil
}

func (l *RedisLedger) Snapshot(ctx context.Context) (model.QuotaSnapshot, error) {
	vals, err := l.rdb.HGetAll(ctx, l.key).Result()
	if err != nil {
		return model.QuotaSnapshot{}, fmt.Errorf("read quota ledger: %w", err)
	}
	num := func(k string) int64 {
		v, _ := strconv.ParseInt(vals[k], 10, 64)
		return v
	}
	st := model.QuotaState{
		Total:           num("total"),
		WindowCalls:     num("window_calls"),
		WindowStartedAt: fromMillis(num("window_started_at")),
		LastCallAt:      fromMillis(num("last_call_at")),
	}
	return model.SnapshotOf(st, l.opts.Ceiling, l.opts.Window, l.opts.Now()), nil
}

func (l *RedisLedger) run(ctx context.Context, n int64, force bool) (bool, error) {
	f := "0"
	if force {
		f = "1"
	}
	res, err := mutateScript.Run(ctx, l.rdb, []string{l.key},
		n, l.opts.Ceiling, l.opts.Now().UnixMilli(), l.opts.Window.Milliseconds(), f,
	).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
