package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gamma-trading-bot/internal/touch"

	"github.com/jackc/pgx/v5"
)

// TouchRepository is the Postgres-backed touch.Store. Each level's full
// history lives as one JSONB row keyed by (symbol, level); every touch event
// is additionally journaled into touch_events for offline analysis.
type TouchRepository struct {
	db *DB
}

// NewTouchRepository creates a repository over an open connection pool
func NewTouchRepository(db *DB) *TouchRepository {
	return &TouchRepository{db: db}
}

// GetLevel loads one level's record, or nil when the level is unknown
func (r *TouchRepository) GetLevel(ctx context.Context, symbol string, level float64) (*touch.LevelRecord, error) {
	var payload []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT record FROM level_records WHERE symbol = $1 AND level = $2`,
		symbol, level,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query level %s %v: %w", symbol, level, err)
	}

	var record touch.LevelRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode level %s %v: %w", symbol, level, err)
	}
	return &record, nil
}

// PutLevel upserts the record and journals any new touch events. The upsert
// commits before returning, which is what makes RecordTouch durable.
func (r *TouchRepository) PutLevel(ctx context.Context, record *touch.LevelRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode level %s %v: %w", record.Symbol, record.Level, err)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO level_records (symbol, level, record, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (symbol, level)
		 DO UPDATE SET record = EXCLUDED.record, updated_at = now()`,
		record.Symbol, record.Level, payload,
	)
	if err != nil {
		return fmt.Errorf("upsert level %s %v: %w", record.Symbol, record.Level, err)
	}

	for _, event := range record.Touches {
		eventPayload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode touch %s: %w", event.ID, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO touch_events (id, symbol, level, event)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET event = EXCLUDED.event`,
			event.ID, event.Symbol, event.Level, eventPayload,
		)
		if err != nil {
			return fmt.Errorf("journal touch %s: %w", event.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// ListLevels returns every level with recorded history for a symbol
func (r *TouchRepository) ListLevels(ctx context.Context, symbol string) ([]float64, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT level FROM level_records WHERE symbol = $1 ORDER BY level`, symbol)
	if err != nil {
		return nil, fmt.Errorf("list levels for %s: %w", symbol, err)
	}
	defer rows.Close()

	var levels []float64
	for rows.Next() {
		var level float64
		if err := rows.Scan(&level); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, rows.Err()
}
