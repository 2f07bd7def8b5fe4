package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"WagerLedger/internal/observability"
	"WagerLedger/internal/query"
)

// MarketCache is a Redis-backed read-through cache for market queries.
// Entries carry a short TTL since resolved markets change state rarely
// but open markets accumulate exposure on every bet. The projection
// worker invalidates on market updates; the TTL is the backstop.
type MarketCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewMarketCache(client *redis.Client, ttl time.Duration) *MarketCache {
	return &MarketCache{
		client: client,
		ttl:    ttl,
		logger: observability.NewLogger("market-cache"),
	}
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func marketKey(seed string) string {
	return "market:" + seed
}

// Get returns a cached market, or (nil, false) on miss or error.
// Cache errors degrade to a miss; the caller falls through to Postgres.
func (mc *MarketCache) Get(ctx context.Context, seed string) (*query.MarketResponse, bool) {
	data, err := mc.client.Get(ctx, marketKey(seed)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		mc.logger.Warn().Err(err).Str("seed", seed).Msg("cache get failed")
		return nil, false
	}

	var m query.MarketResponse
	if err := json.Unmarshal(data, &m); err != nil {
		mc.logger.Warn().Err(err).Str("seed", seed).Msg("cache entry corrupt")
		mc.client.Del(ctx, marketKey(seed))
		return nil, false
	}
	return &m, true
}

// Set stores a market response. Failures are logged and ignored.
func (mc *MarketCache) Set(ctx context.Context, seed string, market *query.MarketResponse) {
	data, err := json.Marshal(market)
	if err != nil {
		return
	}
	if err := mc.client.Set(ctx, marketKey(seed), data, mc.ttl).Err(); err != nil {
		mc.logger.Warn().Err(err).Str("seed", seed).Msg("cache set failed")
	}
}

// Invalidate removes a market from the cache after a state change.
func (mc *MarketCache) Invalidate(ctx context.Context, seed string) {
	if err := mc.client.Del(ctx, marketKey(seed)).Err(); err != nil {
		mc.logger.Warn().Err(err).Str("seed", seed).Msg("cache invalidate failed")
	}
}
