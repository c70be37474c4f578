package touch

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Store is the persistence backend for level histories, keyed by
// (symbol, level). Implementations must make GetLevel/PutLevel durable before
// returning; the tracker serializes access per level on top of this.
type Store interface {
	GetLevel(ctx context.Context, symbol string, level float64) (*LevelRecord, error)
	PutLevel(ctx context.Context, record *LevelRecord) error
	ListLevels(ctx context.Context, symbol string) ([]float64, error)
}

// LevelKey renders the canonical store key for a level
func LevelKey(symbol string, level float64) string {
	return fmt.Sprintf("%s:%s", symbol, strconv.FormatFloat(level, 'f', -1, 64))
}

// MemoryStore is an in-memory Store for tests and dry-run mode
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*LevelRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*LevelRecord)}
}

// GetLevel returns a copy of the record, or nil when the level is unknown
func (s *MemoryStore) GetLevel(_ context.Context, symbol string, level float64) (*LevelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[LevelKey(symbol, level)]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

// PutLevel stores a copy of the record
func (s *MemoryStore) PutLevel(_ context.Context, record *LevelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[LevelKey(record.Symbol, record.Level)] = copyRecord(record)
	return nil
}

// ListLevels returns every tracked level for a symbol
func (s *MemoryStore) ListLevels(_ context.Context, symbol string) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var levels []float64
	for _, rec := range s.records {
		if rec.Symbol == symbol {
			levels = append(levels, rec.Level)
		}
	}
	return levels, nil
}

func copyRecord(rec *LevelRecord) *LevelRecord {
	out := *rec
	out.Touches = make([]TouchEvent, len(rec.Touches))
	copy(out.Touches, rec.Touches)
	return &out
}
