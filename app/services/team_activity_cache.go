package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TeamActivityCache caches the set of recently-active team IDs between
// sweeps so building a sweep context does not hit the database every time.
// A nil redis client degrades to always missing, which callers handle by
// reading the repository directly.
type TeamActivityCache struct {
	rc     *redis.Client
	prefix string
	ttl    time.Duration
}

// NewTeamActivityCache creates a new team activity cache
func NewTeamActivityCache(rc *redis.Client, prefix string, ttl time.Duration) *TeamActivityCache {
	if prefix == "" {
		prefix = "hachiko"
	}
	return &TeamActivityCache{
		rc:     rc,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *TeamActivityCache) key() string {
	return c.prefix + ":active_teams"
}

// Get returns the cached active-team set, or ok=false on miss or when the
// cache is unavailable
func (c *TeamActivityCache) Get(ctx context.Context) ([]uint, bool) {
	if c.rc == nil {
		return nil, false
	}

	members, err := c.rc.SMembers(ctx, c.key()).Result()
	if err != nil || len(members) == 0 {
		return nil, false
	}

	ids := make([]uint, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids, true
}

// Put replaces the cached active-team set
func (c *TeamActivityCache) Put(ctx context.Context, ids []uint) error {
	if c.rc == nil {
		return nil
	}

	members := make([]any, 0, len(ids))
	for _, id := range ids {
		members = append(members, strconv.FormatUint(uint64(id), 10))
	}

	pipe := c.rc.TxPipeline()
	pipe.Del(ctx, c.key())
	if len(members) > 0 {
		pipe.SAdd(ctx, c.key(), members...)
	}
	pipe.Expire(ctx, c.key(), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache active teams: %w", err)
	}
	return nil
}
