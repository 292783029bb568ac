package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/relaypoint/mailadmin/internal/models"
	"github.com/relaypoint/mailadmin/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProfileRepository struct {
	db *storage.Postgres
}

func NewProfileRepository(db *storage.Postgres) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.SendingProfile, error) {
	var profile models.SendingProfile
	err := r.db.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&profile).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &profile, err
}

// CreateIfAbsent provisions a profile with tier defaults on first use.
// Concurrent first sends may race here; the conflict clause keeps the first
// row and the caller re-reads.
func (r *ProfileRepository) CreateIfAbsent(ctx context.Context, profile *models.SendingProfile) error {
	return r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(profile).Error
}

func (r *ProfileRepository) Update(ctx context.Context, userID uuid.UUID, updates map[string]interface{}) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.SendingProfile{}).
		Where("user_id = ?", userID).
		Updates(updates).Error
}

func (r *ProfileRepository) List(ctx context.Context, limit, offset int) ([]models.SendingProfile, error) {
	var profiles []models.SendingProfile
	err := r.db.DB.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&profiles).Error

	return profiles, err
}
