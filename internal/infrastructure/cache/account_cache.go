package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/account-management/internal/domain/entity"
	"github.com/oksasatya/account-management/pkg/helpers"
)

const (
	keyPrefix  = "account:"
	purgeBatch = 100
)

func accountKey(id int64) string {
	return keyPrefix + strconv.FormatInt(id, 10)
}

// AccountCache stores account snapshots in Redis as JSON, keyed by id.
type AccountCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAccountCache(rdb *redis.Client, ttl time.Duration) *AccountCache {
	return &AccountCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached account; found is false on a miss.
func (c *AccountCache) Get(ctx context.Context, id int64) (entity.Account, bool, error) {
	var a entity.Account
	found, err := helpers.RedisGetJSON(ctx, c.rdb, accountKey(id), &a)
	if err != nil {
		return entity.Account{}, false, fmt.Errorf("cache get %d: %w", id, err)
	}
	return a, found, nil
}

func (c *AccountCache) Set(ctx context.Context, a entity.Account) error {
	if err := helpers.RedisSetJSON(ctx, c.rdb, accountKey(a.ID), a, c.ttl); err != nil {
		return fmt.Errorf("cache set %d: %w", a.ID, err)
	}
	return nil
}

func (c *AccountCache) Invalidate(ctx context.Context, id int64) error {
	if err := helpers.RedisDel(ctx, c.rdb, accountKey(id)); err != nil {
		return fmt.Errorf("cache del %d: %w", id, err)
	}
	return nil
}

// Purge drops every cached account.
func (c *AccountCache) Purge(ctx context.Context) error {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", purgeBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan: %w", err)
	}
	for start := 0; start < len(keys); start += purgeBatch {
		end := min(start+purgeBatch, len(keys))
		if err := c.rdb.Del(ctx, keys[start:end]...).Err(); err != nil {
			return fmt.Errorf("cache purge: %w", err)
		}
	}
	return nil
}
