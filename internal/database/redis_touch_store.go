// Package database provides the durable stores for touch history: a Postgres
// repository and a Redis store with in-memory fallback. When Redis is
// unavailable the store keeps recording in memory so analysis continues
// without interruption, at the cost of durability until Redis returns.
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gamma-trading-bot/internal/logging"
	"gamma-trading-bot/internal/touch"

	"github.com/redis/go-redis/v9"
)

const (
	// LevelKeyPrefix is the prefix for individual level record keys
	// Format: gex:level:{symbol}:{level}
	LevelKeyPrefix = "gex:level"

	// LevelSetKeyPrefix is the prefix for the per-symbol set of tracked levels
	// Format: gex:levels:{symbol}
	LevelSetKeyPrefix = "gex:levels"

	// LevelRecordTTL keeps intraday level history around long enough to span
	// weekends and holidays
	LevelRecordTTL = 7 * 24 * time.Hour
)

// RedisTouchStore is a touch.Store backed by Redis with an in-memory
// fallback cache when Redis is unavailable.
type RedisTouchStore struct {
	client         *redis.Client
	log            *logging.Logger
	cacheMu        sync.RWMutex
	inMemoryCache  map[string]*touch.LevelRecord
	redisAvailable atomic.Bool
}

// NewRedisTouchStore creates a Redis-backed touch store. If client is nil,
// the store operates in memory-only mode.
func NewRedisTouchStore(client *redis.Client) *RedisTouchStore {
	store := &RedisTouchStore{
		client:        client,
		log:           logging.WithComponent("redis-touch"),
		inMemoryCache: make(map[string]*touch.LevelRecord),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			store.log.Warn("Redis unavailable at startup, using in-memory cache", "error", err)
			store.redisAvailable.Store(false)
		} else {
			store.log.Info("Redis connected")
			store.redisAvailable.Store(true)
		}
	} else {
		store.log.Info("no Redis client provided, using in-memory cache only")
		store.redisAvailable.Store(false)
	}

	return store
}

func (s *RedisTouchStore) recordKey(symbol string, level float64) string {
	return fmt.Sprintf("%s:%s", LevelKeyPrefix, touch.LevelKey(symbol, level))
}

func (s *RedisTouchStore) setKey(symbol string) string {
	return fmt.Sprintf("%s:%s", LevelSetKeyPrefix, symbol)
}

// GetLevel loads one level's record, or nil when the level is unknown
func (s *RedisTouchStore) GetLevel(ctx context.Context, symbol string, level float64) (*touch.LevelRecord, error) {
	if s.redisAvailable.Load() {
		payload, err := s.client.Get(ctx, s.recordKey(symbol, level)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err == nil {
			var record touch.LevelRecord
			if err := json.Unmarshal(payload, &record); err != nil {
				return nil, fmt.Errorf("decode level %s %v: %w", symbol, level, err)
			}
			return &record, nil
		}
		s.markUnavailable(err)
	}

	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	record, ok := s.inMemoryCache[touch.LevelKey(symbol, level)]
	if !ok {
		return nil, nil
	}
	clone := *record
	clone.Touches = append([]touch.TouchEvent(nil), record.Touches...)
	return &clone, nil
}

// PutLevel stores the record. The in-memory cache is always updated so a
// Redis outage mid-session never loses the working set.
func (s *RedisTouchStore) PutLevel(ctx context.Context, record *touch.LevelRecord) error {
	clone := *record
	clone.Touches = append([]touch.TouchEvent(nil), record.Touches...)

	s.cacheMu.Lock()
	s.inMemoryCache[touch.LevelKey(record.Symbol, record.Level)] = &clone
	s.cacheMu.Unlock()

	if !s.redisAvailable.Load() {
		return nil
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode level %s %v: %w", record.Symbol, record.Level, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(record.Symbol, record.Level), payload, LevelRecordTTL)
	pipe.SAdd(ctx, s.setKey(record.Symbol), record.Level)
	pipe.Expire(ctx, s.setKey(record.Symbol), LevelRecordTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.markUnavailable(err)
		return nil // in-memory copy holds; durability resumes on recovery
	}
	return nil
}

// ListLevels returns every tracked level for a symbol
func (s *RedisTouchStore) ListLevels(ctx context.Context, symbol string) ([]float64, error) {
	if s.redisAvailable.Load() {
		members, err := s.client.SMembers(ctx, s.setKey(symbol)).Result()
		if err == nil {
			levels := make([]float64, 0, len(members))
			for _, m := range members {
				var level float64
				if _, err := fmt.Sscanf(m, "%f", &level); err == nil {
					levels = append(levels, level)
				}
			}
			return levels, nil
		}
		s.markUnavailable(err)
	}

	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	var levels []float64
	for _, record := range s.inMemoryCache {
		if record.Symbol == symbol {
			levels = append(levels, record.Level)
		}
	}
	return levels, nil
}

// TryRecover re-checks Redis availability. Called opportunistically by the
// scheduler between analysis passes.
func (s *RedisTouchStore) TryRecover(ctx context.Context) {
	if s.client == nil || s.redisAvailable.Load() {
		return
	}
	if err := s.client.Ping(ctx).Err(); err == nil {
		s.log.Info("Redis recovered, resuming durable writes")
		s.redisAvailable.Store(true)
		s.flushCache(ctx)
	}
}

// flushCache writes the in-memory working set back to Redis after recovery
func (s *RedisTouchStore) flushCache(ctx context.Context) {
	s.cacheMu.RLock()
	records := make([]*touch.LevelRecord, 0, len(s.inMemoryCache))
	for _, record := range s.inMemoryCache {
		records = append(records, record)
	}
	s.cacheMu.RUnlock()

	for _, record := range records {
		if err := s.PutLevel(ctx, record); err != nil {
			s.log.Warn("failed to flush level after recovery", "level", record.Level, "error", err)
		}
	}
}

func (s *RedisTouchStore) markUnavailable(err error) {
	if s.redisAvailable.CompareAndSwap(true, false) {
		s.log.Warn("Redis error, falling back to in-memory cache", "error", err)
	}
}
