package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/halido/binance-trade-bot/internal/entity"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// SymbolFilterCache resolves lot-size filters for a pair, with a deliberate
// TTL cache layered over the exchange: an in-process map first, redis second
// (shared across workers), the exchange last. A non-positive TTL disables
// caching and every trade fetches fresh filters.
type SymbolFilterCache struct {
	exchange entity.Exchange
	redis    *redis.Client
	ttl      time.Duration

	mu    sync.RWMutex
	local map[string]cachedFilters
}

type cachedFilters struct {
	filters   entity.SymbolFilters
	fetchedAt time.Time
}

func NewSymbolFilterCache(exchange entity.Exchange, redisClient *redis.Client, ttl time.Duration) *SymbolFilterCache {
	return &SymbolFilterCache{
		exchange: exchange,
		redis:    redisClient,
		ttl:      ttl,
		local:    make(map[string]cachedFilters),
	}
}

func (c *SymbolFilterCache) Get(ctx context.Context, pair entity.TradingPair) (entity.SymbolFilters, error) {
	symbol := pair.Symbol()

	if c.ttl > 0 {
		c.mu.RLock()
		cached, ok := c.local[symbol]
		c.mu.RUnlock()
		if ok && time.Since(cached.fetchedAt) < c.ttl {
			return cached.filters, nil
		}

		if filters, ok := c.getRedis(ctx, symbol); ok {
			c.storeLocal(symbol, filters)
			return filters, nil
		}
	}

	filters, err := c.exchange.FetchSymbolFilters(ctx, pair)
	if err != nil {
		return entity.SymbolFilters{}, err
	}

	if c.ttl > 0 {
		c.storeLocal(symbol, filters)
		c.setRedis(ctx, symbol, filters)
	}

	return filters, nil
}

func (c *SymbolFilterCache) storeLocal(symbol string, filters entity.SymbolFilters) {
	c.mu.Lock()
	c.local[symbol] = cachedFilters{filters: filters, fetchedAt: time.Now()}
	c.mu.Unlock()
}

func (c *SymbolFilterCache) getRedis(ctx context.Context, symbol string) (entity.SymbolFilters, bool) {
	if c.redis == nil {
		return entity.SymbolFilters{}, false
	}

	raw, err := c.redis.Get(ctx, filterCacheKey(symbol)).Result()
	if err != nil {
		if err != redis.Nil {
			logrus.WithError(err).WithField("symbol", symbol).Warn("symbol filter cache read failed")
		}
		return entity.SymbolFilters{}, false
	}

	var filters entity.SymbolFilters
	if err := json.Unmarshal([]byte(raw), &filters); err != nil {
		logrus.WithError(err).WithField("symbol", symbol).Warn("symbol filter cache entry is corrupt")
		return entity.SymbolFilters{}, false
	}

	return filters, true
}

func (c *SymbolFilterCache) setRedis(ctx context.Context, symbol string, filters entity.SymbolFilters) {
	if c.redis == nil {
		return
	}

	payload, err := json.Marshal(filters)
	if err != nil {
		logrus.WithError(err).WithField("symbol", symbol).Warn("symbol filter cache marshal failed")
		return
	}

	if err := c.redis.Set(ctx, filterCacheKey(symbol), payload, c.ttl).Err(); err != nil {
		logrus.WithError(err).WithField("symbol", symbol).Warn("symbol filter cache write failed")
	}
}

func filterCacheKey(symbol string) string {
	return fmt.Sprintf("symbol_filters:%s", symbol)
}
