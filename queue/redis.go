package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "salonpro:queue:"

// claimScript removes and returns the earliest member whose score is due.
// Running ZRANGEBYSCORE and ZREM in one script keeps two consumers from
// claiming the same member.
var claimScript = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'WITHSCORES', 'LIMIT', 0, 1)
if #items == 0 then
	return false
end
redis.call('ZREM', KEYS[1], items[1])
return items
`)

// Redis is a delayed queue stored in a sorted set: member is the item ID and
// score is the due time in unix milliseconds. It survives process restarts
// and can be shared by several replicas.
type Redis struct {
	client       redis.UniversalClient
	key          string
	pollInterval time.Duration
	closed       atomic.Bool
	now          func() time.Time
}

func NewRedis(client redis.UniversalClient, name string, pollInterval time.Duration) *Redis {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Redis{
		client:       client,
		key:          keyPrefix + name,
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

func (r *Redis) Push(ctx context.Context, item Item) error {
	if item.ID == "" {
		return ErrEmptyID
	}
	if r.closed.Load() {
		return ErrClosed
	}
	// ZADD overwrites the score of an existing member, which gives the
	// replace-on-repush semantics for free.
	err := r.client.ZAdd(ctx, r.key, redis.Z{
		Score:  float64(item.DueAt.UnixMilli()),
		Member: item.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd %s: %w", r.key, err)
	}
	return nil
}

func (r *Redis) Pop(ctx context.Context) (Item, error) {
	for {
		if r.closed.Load() {
			return Item{}, ErrClosed
		}
		item, ok, err := r.claim(ctx)
		if err != nil {
			return Item{}, err
		}
		if ok {
			return item, nil
		}

		wait, err := r.untilNext(ctx)
		if err != nil {
			return Item{}, err
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return Item{}, ctx.Err()
		case <-t.C:
		}
	}
}

func (r *Redis) Len(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", r.key, err)
	}
	return int(n), nil
}

// Close stops Push and Pop. The redis client is owned by the caller.
func (r *Redis) Close() error {
	r.closed.Store(true)
	return nil
}

func (r *Redis) claim(ctx context.Context) (Item, bool, error) {
	res, err := claimScript.Run(ctx, r.client, []string{r.key}, r.now().UnixMilli()).Slice()
	if errors.Is(err, redis.Nil) {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, fmt.Errorf("claim %s: %w", r.key, err)
	}
	if len(res) != 2 {
		return Item{}, false, fmt.Errorf("claim %s: unexpected reply %v", r.key, res)
	}
	id, _ := res[0].(string)
	scoreStr, _ := res[1].(string)
	ms, err := strconv.ParseFloat(scoreStr, 64)
	if err != nil {
		return Item{}, false, fmt.Errorf("claim %s: bad score %q: %w", r.key, scoreStr, err)
	}
	return Item{ID: id, DueAt: time.UnixMilli(int64(ms))}, true, nil
}

// untilNext returns how long to sleep before the next claim attempt, capped
// by the poll interval so items pushed by other replicas are noticed.
func (r *Redis) untilNext(ctx context.Context) (time.Duration, error) {
	head, err := r.client.ZRangeWithScores(ctx, r.key, 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("zrange %s: %w", r.key, err)
	}
	if len(head) == 0 {
		return r.pollInterval, nil
	}
	due := time.UnixMilli(int64(head[0].Score))
	wait := due.Sub(r.now())
	if wait <= 0 {
		// Lost the race to another consumer; retry right away.
		return time.Millisecond, nil
	}
	if wait > r.pollInterval {
		wait = r.pollInterval
	}
	return wait, nil
}
