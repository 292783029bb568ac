package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/relaypoint/mailadmin/internal/audit"
	"github.com/relaypoint/mailadmin/internal/metrics"
	"github.com/relaypoint/mailadmin/internal/models"
	"github.com/relaypoint/mailadmin/internal/ratelimit"
)

var (
	ErrUnknownTier     = errors.New("unknown tier")
	ErrBoundsRequired  = errors.New("custom tier requires explicit bounds")
	ErrProfileNotFound = errors.New("sending profile not found")
)

// ProfileStore is the persistence surface the enforcer needs.
type ProfileStore interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.SendingProfile, error)
	CreateIfAbsent(ctx context.Context, profile *models.SendingProfile) error
	Update(ctx context.Context, userID uuid.UUID, updates map[string]interface{}) error
	List(ctx context.Context, limit, offset int) ([]models.SendingProfile, error)
}

type TierBounds struct {
	Hourly int
	Daily  int
}

// SendingService enforces per-user hourly and daily send quotas and owns
// profile mutation (tier changes, suspend/resume). The suspension switch is
// independent of the counters: flipping it never touches counts.
type SendingService struct {
	counters   ratelimit.Store
	profiles   ProfileStore
	violations ViolationLedger
	auditor    audit.Recorder

	tiers       map[string]TierBounds
	defaultTier string

	now func() time.Time
}

func NewSendingService(counters ratelimit.Store, profiles ProfileStore, violations ViolationLedger, auditor audit.Recorder, tiers map[string]TierBounds) *SendingService {
	if auditor == nil {
		auditor = audit.LogRecorder{}
	}
	return &SendingService{
		counters:    counters,
		profiles:    profiles,
		violations:  violations,
		auditor:     auditor,
		tiers:       tiers,
		defaultTier: models.TierFree,
		now:         time.Now,
	}
}

// CheckSend decides one outbound-email request. Both windows must admit the
// send; a denial on either leaves every counter unchanged for that window
// and produces a violation record.
func (s *SendingService) CheckSend(ctx context.Context, userID uuid.UUID) Decision {
	decision := s.decideSend(ctx, userID)
	metrics.SendDecisions.WithLabelValues(outcome(decision)).Inc()
	return decision
}

func (s *SendingService) decideSend(ctx context.Context, userID uuid.UUID) Decision {
	now := s.now()

	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return s.storeFailure(err)
	}

	if !profile.IsSendingEnabled {
		return deny(ReasonSendingSuspended)
	}

	subject := userID.String()

	hourlyKey := ratelimit.Key{Scope: ratelimit.ScopeUserSending, SubjectID: subject, Kind: ratelimit.WindowHourly}
	hourly, err := s.counters.TryIncrement(ctx, hourlyKey, profile.HourlyBound, now)
	if err != nil {
		return s.storeFailure(err)
	}
	if !hourly.Allowed {
		s.recordViolation(ctx, &models.Violation{
			Scope:          string(hourlyKey.Scope),
			SubjectID:      subject,
			WindowKind:     string(hourlyKey.Kind),
			ViolationType:  models.ViolationHourlyExceeded,
			AttemptedCount: hourly.CountAfter + 1,
			BoundAtTime:    profile.HourlyBound,
			CreatedAt:      now,
		})
		return denyUntil(ReasonHourlyExceeded, ratelimit.NextReset(ratelimit.WindowHourly, now))
	}

	dailyKey := ratelimit.Key{Scope: ratelimit.ScopeUserSending, SubjectID: subject, Kind: ratelimit.WindowDaily}
	daily, err := s.counters.TryIncrement(ctx, dailyKey, profile.DailyBound, now)
	if err != nil {
		return s.storeFailure(err)
	}
	if !daily.Allowed {
		s.recordViolation(ctx, &models.Violation{
			Scope:          string(dailyKey.Scope),
			SubjectID:      subject,
			WindowKind:     string(dailyKey.Kind),
			ViolationType:  models.ViolationDailyExceeded,
			AttemptedCount: daily.CountAfter + 1,
			BoundAtTime:    profile.DailyBound,
			CreatedAt:      now,
		})
		return denyUntil(ReasonDailyExceeded, ratelimit.NextReset(ratelimit.WindowDaily, now))
	}

	remaining := profile.HourlyBound - hourly.CountAfter
	if d := profile.DailyBound - daily.CountAfter; d < remaining {
		remaining = d
	}
	return allow(remaining)
}

// GetProfile returns the user's profile, provisioning one with the default
// tier's bounds on first use.
func (s *SendingService) GetProfile(ctx context.Context, userID uuid.UUID) (*models.SendingProfile, error) {
	profile, err := s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return profile, nil
	}

	bounds := s.tiers[s.defaultTier]
	fresh := &models.SendingProfile{
		UserID:           userID,
		Tier:             s.defaultTier,
		HourlyBound:      bounds.Hourly,
		DailyBound:       bounds.Daily,
		IsSendingEnabled: true,
	}
	if err := s.profiles.CreateIfAbsent(ctx, fresh); err != nil {
		return nil, err
	}

	// Re-read in case a concurrent first send won the insert.
	profile, err = s.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	return profile, nil
}

// ListProfiles pages through provisioned profiles for the admin console.
func (s *SendingService) ListProfiles(ctx context.Context, limit, offset int) ([]models.SendingProfile, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.profiles.List(ctx, limit, offset)
}

// SetTier moves a user to a named tier, or to custom bounds. Already
// consumed counts in the current windows are kept; only the bounds they are
// compared against change.
func (s *SendingService) SetTier(ctx context.Context, userID uuid.UUID, tier string, customHourly, customDaily *int, actor, reason string) (*models.SendingProfile, error) {
	if !models.ValidTier(tier) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}

	if _, err := s.GetProfile(ctx, userID); err != nil {
		return nil, err
	}

	var hourly, daily int
	overrideReason := ""

	if tier == models.TierCustom {
		if customHourly == nil || customDaily == nil {
			return nil, ErrBoundsRequired
		}
		hourly, daily = *customHourly, *customDaily
		overrideReason = reason
	} else {
		bounds, ok := s.tiers[tier]
		if !ok {
			return nil, fmt.Errorf("%w: no bounds configured for %s", ErrUnknownTier, tier)
		}
		hourly, daily = bounds.Hourly, bounds.Daily
	}

	err := s.profiles.Update(ctx, userID, map[string]interface{}{
		"tier":            tier,
		"hourly_bound":    hourly,
		"daily_bound":     daily,
		"override_reason": overrideReason,
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(audit.Event{
		Actor:   actor,
		Action:  "set_tier",
		Subject: userID.String(),
		Detail:  fmt.Sprintf("tier=%s hourly=%d daily=%d reason=%q", tier, hourly, daily, reason),
		At:      s.now(),
	})

	return s.profiles.FindByUserID(ctx, userID)
}

// SetSendingEnabled suspends or resumes a user's sending. Counters are left
// as they are so a resume mid-window continues against the consumed count.
func (s *SendingService) SetSendingEnabled(ctx context.Context, userID uuid.UUID, enabled bool, actor, reason string) error {
	if _, err := s.GetProfile(ctx, userID); err != nil {
		return err
	}

	suspensionReason := ""
	if !enabled {
		suspensionReason = reason
	}

	err := s.profiles.Update(ctx, userID, map[string]interface{}{
		"is_sending_enabled": enabled,
		"suspension_reason":  suspensionReason,
	})
	if err != nil {
		return err
	}

	action := "suspend_sending"
	if enabled {
		action = "resume_sending"
	}
	s.auditor.Record(audit.Event{
		Actor:   actor,
		Action:  action,
		Subject: userID.String(),
		Detail:  reason,
		At:      s.now(),
	})

	return nil
}

// Usage returns the effective counts for both windows, for the admin surface.
func (s *SendingService) Usage(ctx context.Context, userID uuid.UUID) (hourly, daily int, err error) {
	now := s.now()
	subject := userID.String()

	hourly, err = s.counters.Peek(ctx, ratelimit.Key{Scope: ratelimit.ScopeUserSending, SubjectID: subject, Kind: ratelimit.WindowHourly}, now)
	if err != nil {
		return 0, 0, err
	}
	daily, err = s.counters.Peek(ctx, ratelimit.Key{Scope: ratelimit.ScopeUserSending, SubjectID: subject, Kind: ratelimit.WindowDaily}, now)
	if err != nil {
		return 0, 0, err
	}
	return hourly, daily, nil
}

func (s *SendingService) storeFailure(err error) Decision {
	log.Printf("ERROR counter store unavailable, denying send: %v", err)
	metrics.CounterStoreErrors.Inc()
	return deny(ReasonTemporarilyUnavailable)
}

func (s *SendingService) recordViolation(ctx context.Context, violation *models.Violation) {
	if err := s.violations.Create(ctx, violation); err != nil {
		log.Printf("ERROR failed to record violation for %s: %v", violation.SubjectID, err)
		return
	}
	metrics.ViolationsRecorded.WithLabelValues(violation.ViolationType).Inc()
}
