package repository

import (
	"context"
	"time"

	"github.com/relaypoint/mailadmin/internal/models"
	"github.com/relaypoint/mailadmin/internal/storage"
)

type SignupAttemptRepository struct {
	db *storage.Postgres
}

func NewSignupAttemptRepository(db *storage.Postgres) *SignupAttemptRepository {
	return &SignupAttemptRepository{db: db}
}

// Inserts one attempt record
func (r *SignupAttemptRepository) Create(ctx context.Context, attempt *models.SignupAttempt) error {
	return r.db.DB.WithContext(ctx).Create(attempt).Error
}

// Retrieves attempts for a specific IP
func (r *SignupAttemptRepository) FindByIP(ctx context.Context, ip string, from, to time.Time, limit, offset int) ([]models.SignupAttempt, error) {
	var attempts []models.SignupAttempt
	err := r.db.DB.WithContext(ctx).
		Where("ip_address = ? AND created_at BETWEEN ? AND ?", ip, from, to).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&attempts).Error

	return attempts, err
}

// Counts attempts grouped by outcome
func (r *SignupAttemptRepository) CountByOutcome(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	rows, err := r.db.DB.WithContext(ctx).
		Model(&models.SignupAttempt{}).
		Select("outcome, COUNT(*) as count").
		Where("created_at BETWEEN ? AND ?", from, to).
		Group("outcome").
		Rows()

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		counts[outcome] = count
	}

	return counts, nil
}

// Deletes attempts older than the cutoff
func (r *SignupAttemptRepository) DeleteOld(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.DB.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.SignupAttempt{})

	return result.RowsAffected, result.Error
}
