// Package cache adds a Redis read-through layer in front of paper search.
// Cache trouble is never fatal: every failure degrades to calling the
// underlying provider directly.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"scholarag/internal/models"
	"scholarag/internal/providers"
	"scholarag/internal/util"
)

// NewRedis connects a client and verifies the server is reachable.
func NewRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// SearchCache wraps a search provider with a keyed result cache. A nil client
// turns it into a passthrough.
type SearchCache struct {
	inner providers.PaperSearchProvider
	rdb   *redis.Client
	ttl   time.Duration
	log   *logrus.Entry
	group singleflight.Group
}

func NewSearchCache(inner providers.PaperSearchProvider, rdb *redis.Client, ttl time.Duration, log *logrus.Entry) *SearchCache {
	return &SearchCache{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func (c *SearchCache) SearchPapers(ctx context.Context, req providers.SearchRequest) ([]models.Paper, providers.ProviderInfo, error) {
	if c.rdb == nil {
		return c.inner.SearchPapers(ctx, req)
	}

	key := searchKey(req)
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var papers []models.Paper
		if err := json.Unmarshal(val, &papers); err == nil {
			return papers, providers.ProviderInfo{Name: "cache", Model: "redis"}, nil
		}
		// Corrupted entry, refresh it below.
	} else if !errors.Is(err, redis.Nil) && c.log != nil {
		c.log.WithError(err).Warn("search cache read failed")
	}

	// Collapse concurrent misses for the same key into one upstream call.
	type loaded struct {
		papers []models.Paper
		info   providers.ProviderInfo
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		papers, info, err := c.inner.SearchPapers(ctx, req)
		if err != nil {
			return nil, err
		}
		if b, err := json.Marshal(papers); err == nil {
			if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil && c.log != nil {
				c.log.WithError(err).Warn("search cache write failed")
			}
		}
		return loaded{papers: papers, info: info}, nil
	})
	if err != nil {
		return nil, providers.ProviderInfo{}, err
	}
	out := v.(loaded)
	return out.papers, out.info, nil
}

func searchKey(req providers.SearchRequest) string {
	normalized := strings.ToLower(strings.TrimSpace(req.Query))
	return fmt.Sprintf("search:%s:%d", util.SHA256Hex([]byte(normalized)), req.Limit)
}
