package repository

import (
	"context"

	"github.com/relaypoint/mailadmin/internal/models"
	"github.com/relaypoint/mailadmin/internal/storage"
	"gorm.io/gorm"
)

type OperatorRepository struct {
	db *storage.Postgres
}

func NewOperatorRepository(db *storage.Postgres) *OperatorRepository {
	return &OperatorRepository{db: db}
}

func (r *OperatorRepository) Create(ctx context.Context, operator *models.Operator) error {
	return r.db.DB.WithContext(ctx).Create(operator).Error
}

func (r *OperatorRepository) FindByEmail(ctx context.Context, email string) (*models.Operator, error) {
	var operator models.Operator
	err := r.db.DB.WithContext(ctx).
		Where("email = ?", email).
		First(&operator).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &operator, err
}

func (r *OperatorRepository) FindByID(ctx context.Context, id string) (*models.Operator, error) {
	var operator models.Operator
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&operator).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &operator, err
}

func (r *OperatorRepository) List(ctx context.Context) ([]models.Operator, error) {
	var operators []models.Operator
	err := r.db.DB.WithContext(ctx).
		Order("created_at DESC").
		Find(&operators).Error

	return operators, err
}
