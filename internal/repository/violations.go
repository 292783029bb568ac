package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/relaypoint/mailadmin/internal/models"
	"github.com/relaypoint/mailadmin/internal/storage"
	"gorm.io/gorm"
)

type ViolationRepository struct {
	db *storage.Postgres
}

func NewViolationRepository(db *storage.Postgres) *ViolationRepository {
	return &ViolationRepository{db: db}
}

// Create appends a violation. Existing rows are never updated through this
// path.
func (r *ViolationRepository) Create(ctx context.Context, violation *models.Violation) error {
	return r.db.DB.WithContext(ctx).Create(violation).Error
}

func (r *ViolationRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Violation, error) {
	var violation models.Violation
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&violation).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &violation, err
}

// Resolve sets the resolution fields on an unresolved record. The guard on
// resolved = false makes a second call a no-op, so resolution happens at
// most once no matter how often it is requested.
func (r *ViolationRepository) Resolve(ctx context.Context, id uuid.UUID, resolvedBy, notes string, at time.Time) (int64, error) {
	result := r.db.DB.WithContext(ctx).
		Model(&models.Violation{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_by": resolvedBy,
			"resolved_at": at,
			"notes":       notes,
		})

	return result.RowsAffected, result.Error
}

type ViolationFilter struct {
	Resolved      *bool
	Scope         string
	SubjectID     string
	ViolationType string
	From          time.Time
	To            time.Time
	Limit         int
	Offset        int
}

func (r *ViolationRepository) List(ctx context.Context, filter ViolationFilter) ([]models.Violation, error) {
	query := r.db.DB.WithContext(ctx).Model(&models.Violation{})

	if filter.Resolved != nil {
		query = query.Where("resolved = ?", *filter.Resolved)
	}
	if filter.Scope != "" {
		query = query.Where("scope = ?", filter.Scope)
	}
	if filter.SubjectID != "" {
		query = query.Where("subject_id = ?", filter.SubjectID)
	}
	if filter.ViolationType != "" {
		query = query.Where("violation_type = ?", filter.ViolationType)
	}
	if !filter.From.IsZero() {
		query = query.Where("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("created_at <= ?", filter.To)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var violations []models.Violation
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&violations).Error

	return violations, err
}

// Counts violations grouped by type
func (r *ViolationRepository) CountByType(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	rows, err := r.db.DB.WithContext(ctx).
		Model(&models.Violation{}).
		Select("violation_type, COUNT(*) as count").
		Where("created_at BETWEEN ? AND ?", from, to).
		Group("violation_type").
		Rows()

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var violationType string
		var count int64
		if err := rows.Scan(&violationType, &count); err != nil {
			return nil, err
		}
		counts[violationType] = count
	}

	return counts, nil
}

// Returns the subjects with the most violations in a time range
func (r *ViolationRepository) TopSubjects(ctx context.Context, scope string, from, to time.Time, limit int) ([]map[string]interface{}, error) {
	rows, err := r.db.DB.WithContext(ctx).
		Model(&models.Violation{}).
		Select("subject_id, COUNT(*) as count").
		Where("scope = ? AND created_at BETWEEN ? AND ?", scope, from, to).
		Group("subject_id").
		Order("count DESC").
		Limit(limit).
		Rows()

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []map[string]interface{}
	for rows.Next() {
		var subjectID string
		var count int64
		if err := rows.Scan(&subjectID, &count); err != nil {
			return nil, err
		}
		results = append(results, map[string]interface{}{
			"subject_id": subjectID,
			"count":      count,
		})
	}

	return results, nil
}

// Returns the violation count grouped by hour
func (r *ViolationRepository) HourlySeries(ctx context.Context, from, to time.Time) ([]map[string]interface{}, error) {
	rows, err := r.db.DB.WithContext(ctx).
		Model(&models.Violation{}).
		Select("DATE_TRUNC('hour', created_at) as hour, COUNT(*) as count").
		Where("created_at BETWEEN ? AND ?", from, to).
		Group("hour").
		Order("hour ASC").
		Rows()

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []map[string]interface{}
	for rows.Next() {
		var hour time.Time
		var count int64
		if err := rows.Scan(&hour, &count); err != nil {
			return nil, err
		}
		results = append(results, map[string]interface{}{
			"hour":  hour,
			"count": count,
		})
	}

	return results, nil
}

func (r *ViolationRepository) CountUnresolved(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.Violation{}).
		Where("resolved = ?", false).
		Count(&count).Error

	return count, err
}
