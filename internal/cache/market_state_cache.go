// Package cache provides Redis-based caching of the latest analysis outputs
// so the API can serve reads without waiting on an analysis pass.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gamma-trading-bot/config"
	"gamma-trading-bot/internal/consensus"

	"github.com/redis/go-redis/v9"
)

// Key formats for cached analysis outputs
const (
	stateKeyFormat = "gex:state:%s"
	recKeyFormat   = "gex:recommendation:%s"
)

// DefaultStateTTL bounds how stale a served MarketState can get
const DefaultStateTTL = 10 * time.Minute

// MarketStateCache caches the latest MarketState and recommendation per
// symbol. Redis failures degrade to an in-process copy; readers always get
// the most recent successful analysis.
type MarketStateCache struct {
	client *redis.Client

	mu     sync.RWMutex
	states map[string]*consensus.MarketState
	recs   map[string]*consensus.TradingRecommendation
}

// NewMarketStateCache creates the cache. A nil Redis config or disabled Redis
// yields a memory-only cache.
func NewMarketStateCache(cfg config.RedisConfig) *MarketStateCache {
	var client *redis.Client
	if cfg.Enabled {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Address,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
	}
	return &MarketStateCache{
		client: client,
		states: make(map[string]*consensus.MarketState),
		recs:   make(map[string]*consensus.TradingRecommendation),
	}
}

// PutState stores the latest analysis output for a symbol
func (c *MarketStateCache) PutState(ctx context.Context, state *consensus.MarketState, rec *consensus.TradingRecommendation) {
	c.mu.Lock()
	c.states[state.Symbol] = state
	c.recs[state.Symbol] = rec
	c.mu.Unlock()

	if c.client == nil {
		return
	}
	if payload, err := json.Marshal(state); err == nil {
		c.client.Set(ctx, fmt.Sprintf(stateKeyFormat, state.Symbol), payload, DefaultStateTTL)
	}
	if payload, err := json.Marshal(rec); err == nil {
		c.client.Set(ctx, fmt.Sprintf(recKeyFormat, state.Symbol), payload, DefaultStateTTL)
	}
}

// State returns the latest MarketState for a symbol, or nil when no analysis
// has completed yet
func (c *MarketStateCache) State(ctx context.Context, symbol string) *consensus.MarketState {
	c.mu.RLock()
	state := c.states[symbol]
	c.mu.RUnlock()
	if state != nil {
		return state
	}

	if c.client == nil {
		return nil
	}
	payload, err := c.client.Get(ctx, fmt.Sprintf(stateKeyFormat, symbol)).Bytes()
	if err != nil {
		return nil
	}
	var cached consensus.MarketState
	if err := json.Unmarshal(payload, &cached); err != nil {
		return nil
	}
	return &cached
}

// Recommendation returns the latest recommendation for a symbol, or nil
func (c *MarketStateCache) Recommendation(ctx context.Context, symbol string) *consensus.TradingRecommendation {
	c.mu.RLock()
	rec := c.recs[symbol]
	c.mu.RUnlock()
	if rec != nil {
		return rec
	}

	if c.client == nil {
		return nil
	}
	payload, err := c.client.Get(ctx, fmt.Sprintf(recKeyFormat, symbol)).Bytes()
	if err != nil {
		return nil
	}
	var cached consensus.TradingRecommendation
	if err := json.Unmarshal(payload, &cached); err != nil {
		return nil
	}
	return &cached
}

// Close releases the Redis connection
func (c *MarketStateCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
