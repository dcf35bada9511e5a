package relay

import (
	"context"
	"time"

	"webphone/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// CallCap bounds the number of live calls per client identity.
// Slots are identified by call id so releasing twice is harmless.
type CallCap interface {
	Acquire(ctx context.Context, identity, id string) (bool, error)
	Rename(ctx context.Context, identity, oldID, newID string) error
	Release(ctx context.Context, identity, id string) error
	Busy(ctx context.Context, identity string) (bool, error)
}

// DefaultSlotTTL bounds how long a leaked slot can block an identity.
const DefaultSlotTTL = 4 * time.Hour

// RedisCallCap keeps slots in a Redis set per identity.
type RedisCallCap struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisCallCap(rdb *redis.Client, limit int, ttl time.Duration) *RedisCallCap {
	if limit <= 0 {
		limit = 1
	}
	if ttl <= 0 {
		ttl = DefaultSlotTTL
	}
	return &RedisCallCap{rdb: rdb, limit: limit, ttl: ttl}
}

func slotKey(identity string) string { return "webphone:active:" + identity }

func (c *RedisCallCap) Acquire(ctx context.Context, identity, id string) (bool, error) {
	return utils.AcquireSlot(ctx, c.rdb, slotKey(identity), id, c.limit, c.ttl)
}

func (c *RedisCallCap) Rename(ctx context.Context, identity, oldID, newID string) error {
	_, err := utils.RenameSlot(ctx, c.rdb, slotKey(identity), oldID, newID)
	return err
}

func (c *RedisCallCap) Release(ctx context.Context, identity, id string) error {
	return utils.ReleaseSlot(ctx, c.rdb, slotKey(identity), id)
}

// Busy reports whether identity has used up its slots.
func (c *RedisCallCap) Busy(ctx context.Context, identity string) (bool, error) {
	n, err := utils.CountSlots(ctx, c.rdb, slotKey(identity))
	if err != nil {
		return false, err
	}
	return n >= int64(c.limit), nil
}
