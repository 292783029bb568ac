package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/relaypoint/mailadmin/internal/models"
	"github.com/relaypoint/mailadmin/internal/storage"
	"gorm.io/gorm"
)

// PostgresStore performs the bounded increment as one conditional upsert, so
// two callers racing on the last free slot serialize inside the database and
// exactly one of them gets the row back.
type PostgresStore struct {
	db *storage.Postgres
}

func NewPostgresStore(db *storage.Postgres) *PostgresStore {
	return &PostgresStore{db: db}
}

// A stale row is overwritten in place (count restarts at 1 for the new
// window); the WHERE clause evaluates the effective count, so a row from a
// previous window never blocks the first increment of the new one.
const tryIncrementSQL = `
INSERT INTO counter_records (scope, subject_id, window_kind, count, window_start, updated_at)
VALUES (?, ?, ?, 1, ?, ?)
ON CONFLICT (scope, subject_id, window_kind) DO UPDATE
SET count = CASE WHEN counter_records.window_start = EXCLUDED.window_start
                 THEN counter_records.count + 1
                 ELSE 1 END,
    window_start = EXCLUDED.window_start,
    updated_at = EXCLUDED.updated_at
WHERE (CASE WHEN counter_records.window_start = EXCLUDED.window_start
            THEN counter_records.count
            ELSE 0 END) < ?
RETURNING count
`

func (s *PostgresStore) TryIncrement(ctx context.Context, key Key, bound int, now time.Time) (Result, error) {
	if bound <= 0 {
		count, err := s.Peek(ctx, key, now)
		if err != nil {
			return Result{}, err
		}
		return Result{Allowed: false, CountAfter: count}, nil
	}

	ws := WindowStart(key.Kind, now)

	var countAfter int
	res := s.db.DB.WithContext(ctx).
		Raw(tryIncrementSQL, key.Scope, key.SubjectID, key.Kind, ws, now.UTC(), bound).
		Scan(&countAfter)

	if res.Error != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Error)
	}

	if res.RowsAffected == 0 {
		// Bound reached; nothing was written. Report the effective count.
		count, err := s.Peek(ctx, key, now)
		if err != nil {
			return Result{}, err
		}
		return Result{Allowed: false, CountAfter: count}, nil
	}

	return Result{Allowed: true, CountAfter: countAfter}, nil
}

const resetSQL = `
INSERT INTO counter_records (scope, subject_id, window_kind, count, window_start, updated_at)
VALUES (?, ?, ?, 0, ?, ?)
ON CONFLICT (scope, subject_id, window_kind) DO UPDATE
SET count = 0,
    window_start = EXCLUDED.window_start,
    updated_at = EXCLUDED.updated_at
`

func (s *PostgresStore) Reset(ctx context.Context, key Key, now time.Time) error {
	err := s.db.DB.WithContext(ctx).
		Exec(resetSQL, key.Scope, key.SubjectID, key.Kind, WindowStart(key.Kind, now), now.UTC()).Error

	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Peek(ctx context.Context, key Key, now time.Time) (int, error) {
	var record models.CounterRecord
	err := s.db.DB.WithContext(ctx).
		Where("scope = ? AND subject_id = ? AND window_kind = ?", key.Scope, key.SubjectID, key.Kind).
		First(&record).Error

	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if IsStale(record.WindowStart, key.Kind, now) {
		return 0, nil
	}
	return record.Count, nil
}
