package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/relaypoint/mailadmin/internal/audit"
	"github.com/relaypoint/mailadmin/internal/models"
	"github.com/relaypoint/mailadmin/internal/repository"
)

var ErrViolationNotFound = errors.New("violation not found")

// ViolationStore is the ledger persistence surface. Resolve must set the
// resolution fields only when the record is still unresolved and report how
// many rows it touched.
type ViolationStore interface {
	Create(ctx context.Context, violation *models.Violation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Violation, error)
	Resolve(ctx context.Context, id uuid.UUID, resolvedBy, notes string, at time.Time) (int64, error)
	List(ctx context.Context, filter repository.ViolationFilter) ([]models.Violation, error)
	CountUnresolved(ctx context.Context) (int64, error)
}

// ViolationService drives the operator queue over the ledger.
type ViolationService struct {
	repo    ViolationStore
	auditor audit.Recorder
	now     func() time.Time
}

func NewViolationService(repo ViolationStore, auditor audit.Recorder) *ViolationService {
	if auditor == nil {
		auditor = audit.LogRecorder{}
	}
	return &ViolationService{
		repo:    repo,
		auditor: auditor,
		now:     time.Now,
	}
}

func (s *ViolationService) List(ctx context.Context, filter repository.ViolationFilter) ([]models.Violation, error) {
	return s.repo.List(ctx, filter)
}

func (s *ViolationService) Get(ctx context.Context, id uuid.UUID) (*models.Violation, error) {
	violation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if violation == nil {
		return nil, ErrViolationNotFound
	}
	return violation, nil
}

// Resolve closes a violation. Resolving one that is already resolved is a
// successful no-op: the first resolution's fields stand.
func (s *ViolationService) Resolve(ctx context.Context, id uuid.UUID, resolvedBy, notes string) (*models.Violation, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrViolationNotFound
	}

	affected, err := s.repo.Resolve(ctx, id, resolvedBy, notes, s.now())
	if err != nil {
		return nil, err
	}

	if affected > 0 {
		s.auditor.Record(audit.Event{
			Actor:   resolvedBy,
			Action:  "resolve_violation",
			Subject: id.String(),
			Detail:  notes,
			At:      s.now(),
		})
	}

	return s.repo.FindByID(ctx, id)
}

func (s *ViolationService) CountUnresolved(ctx context.Context) (int64, error) {
	return s.repo.CountUnresolved(ctx)
}
