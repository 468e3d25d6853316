package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wallet-monitor/internal/logging"
	"github.com/wallet-monitor/internal/monitor"
	"github.com/wallet-monitor/internal/types"
)

// DefaultLastObservationTTL bounds staleness of the cached last
// observation. The engine reads it once per check, so a short TTL keeps
// the cache honest without hammering ClickHouse.
const DefaultLastObservationTTL = time.Hour

// CachedHistoryStore fronts a HistoryStore with a Redis cache for the
// last-observation lookup, the one read on the hot path of every check.
// Cache failures degrade to the backing store; they never fail a check.
type CachedHistoryStore struct {
	store  monitor.HistoryStore
	cache  *RedisCache
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedHistoryStore wraps a history store with a Redis last-observation
// cache.
func NewCachedHistoryStore(store monitor.HistoryStore, cache *RedisCache, logger *logging.Logger) *CachedHistoryStore {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &CachedHistoryStore{
		store:  store,
		cache:  cache,
		ttl:    DefaultLastObservationTTL,
		logger: logger.WithField("component", "history-cache"),
	}
}

func lastObservationKey(address string) string {
	return fmt.Sprintf("lastobs:%s", address)
}

// Append writes through: the observation goes to the backing store first,
// then replaces the cached last observation.
func (c *CachedHistoryStore) Append(ctx context.Context, obs *types.BalanceObservation) error {
	if err := c.store.Append(ctx, obs); err != nil {
		return err
	}

	payload, err := json.Marshal(obs)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to encode observation for cache")
		return nil
	}
	if err := c.cache.Set(ctx, lastObservationKey(obs.Address), payload, c.ttl); err != nil {
		c.logger.WithError(err).WithField("address", obs.Address).Warn("Failed to cache last observation")
	}
	return nil
}

// LastObservation reads through the cache.
func (c *CachedHistoryStore) LastObservation(ctx context.Context, address string) (*types.BalanceObservation, error) {
	raw, err := c.cache.Get(ctx, lastObservationKey(address))
	if err == nil {
		var obs types.BalanceObservation
		if err := json.Unmarshal([]byte(raw), &obs); err == nil {
			return &obs, nil
		}
		// Corrupt entry: drop it and fall through to the store.
		_ = c.cache.Del(ctx, lastObservationKey(address))
	} else if !stderrors.Is(err, redis.Nil) {
		c.logger.WithError(err).WithField("address", address).Warn("Cache read failed, falling back to store")
	}

	obs, err := c.store.LastObservation(ctx, address)
	if err != nil {
		return nil, err
	}
	if obs != nil {
		if payload, err := json.Marshal(obs); err == nil {
			_ = c.cache.Set(ctx, lastObservationKey(address), payload, c.ttl)
		}
	}
	return obs, nil
}

// Observations always hits the backing store; history listings are not on
// the hot path.
func (c *CachedHistoryStore) Observations(ctx context.Context, address string, limit int) ([]*types.BalanceObservation, error) {
	return c.store.Observations(ctx, address, limit)
}

// Invalidate drops the cached last observation for an address. Called when
// a wallet is removed.
func (c *CachedHistoryStore) Invalidate(ctx context.Context, address string) error {
	return c.cache.Del(ctx, lastObservationKey(address))
}
