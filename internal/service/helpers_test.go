package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relaypoint/mailadmin/internal/models"
	"github.com/relaypoint/mailadmin/internal/ratelimit"
	"github.com/relaypoint/mailadmin/internal/repository"
)

type fakeLedger struct {
	mu      sync.Mutex
	records []*models.Violation
}

func (f *fakeLedger) Create(ctx context.Context, violation *models.Violation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if violation.ID == uuid.Nil {
		violation.ID = uuid.New()
	}
	copied := *violation
	f.records = append(f.records, &copied)
	return nil
}

func (f *fakeLedger) last() *models.Violation {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.records) == 0 {
		return nil
	}
	return f.records[len(f.records)-1]
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeAttempts struct {
	mu      sync.Mutex
	entries []*models.SignupAttempt
}

func (f *fakeAttempts) Create(ctx context.Context, attempt *models.SignupAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *attempt
	f.entries = append(f.entries, &copied)
	return nil
}

func (f *fakeAttempts) outcomes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Outcome)
	}
	return out
}

// failingAttempts simulates an unreachable attempt log.
type failingAttempts struct{}

func (failingAttempts) Create(ctx context.Context, attempt *models.SignupAttempt) error {
	return errors.New("attempt log unavailable")
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*models.SendingProfile
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{profiles: make(map[uuid.UUID]*models.SendingProfile)}
}

func (f *fakeProfiles) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.SendingProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profile, ok := f.profiles[userID]
	if !ok {
		return nil, nil
	}
	copied := *profile
	return &copied, nil
}

func (f *fakeProfiles) CreateIfAbsent(ctx context.Context, profile *models.SendingProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[profile.UserID]; ok {
		return nil
	}
	copied := *profile
	f.profiles[profile.UserID] = &copied
	return nil
}

func (f *fakeProfiles) Update(ctx context.Context, userID uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	profile, ok := f.profiles[userID]
	if !ok {
		return ErrProfileNotFound
	}
	for column, value := range updates {
		switch column {
		case "tier":
			profile.Tier = value.(string)
		case "hourly_bound":
			profile.HourlyBound = value.(int)
		case "daily_bound":
			profile.DailyBound = value.(int)
		case "override_reason":
			profile.OverrideReason = value.(string)
		case "is_sending_enabled":
			profile.IsSendingEnabled = value.(bool)
		case "suspension_reason":
			profile.SuspensionReason = value.(string)
		}
	}
	return nil
}

func (f *fakeProfiles) List(ctx context.Context, limit, offset int) ([]models.SendingProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.SendingProfile, 0, len(f.profiles))
	for _, profile := range f.profiles {
		out = append(out, *profile)
	}
	return out, nil
}

// failingStore simulates an unreachable counter backend.
type failingStore struct{}

func (failingStore) TryIncrement(ctx context.Context, key ratelimit.Key, bound int, now time.Time) (ratelimit.Result, error) {
	return ratelimit.Result{}, ratelimit.ErrStoreUnavailable
}

func (failingStore) Reset(ctx context.Context, key ratelimit.Key, now time.Time) error {
	return ratelimit.ErrStoreUnavailable
}

func (failingStore) Peek(ctx context.Context, key ratelimit.Key, now time.Time) (int, error) {
	return 0, ratelimit.ErrStoreUnavailable
}

// fakeViolationStore backs the ledger service tests.
type fakeViolationStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.Violation
}

func newFakeViolationStore() *fakeViolationStore {
	return &fakeViolationStore{records: make(map[uuid.UUID]*models.Violation)}
}

func (f *fakeViolationStore) Create(ctx context.Context, violation *models.Violation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if violation.ID == uuid.Nil {
		violation.ID = uuid.New()
	}
	copied := *violation
	f.records[violation.ID] = &copied
	return nil
}

func (f *fakeViolationStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Violation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	violation, ok := f.records[id]
	if !ok {
		return nil, nil
	}
	copied := *violation
	return &copied, nil
}

func (f *fakeViolationStore) Resolve(ctx context.Context, id uuid.UUID, resolvedBy, notes string, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	violation, ok := f.records[id]
	if !ok || violation.Resolved {
		return 0, nil
	}
	violation.Resolved = true
	violation.ResolvedBy = resolvedBy
	violation.Notes = notes
	resolvedAt := at
	violation.ResolvedAt = &resolvedAt
	return 1, nil
}

func (f *fakeViolationStore) List(ctx context.Context, filter repository.ViolationFilter) ([]models.Violation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Violation
	for _, violation := range f.records {
		if filter.Resolved != nil && violation.Resolved != *filter.Resolved {
			continue
		}
		out = append(out, *violation)
	}
	return out, nil
}

func (f *fakeViolationStore) CountUnresolved(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, violation := range f.records {
		if !violation.Resolved {
			count++
		}
	}
	return count, nil
}
