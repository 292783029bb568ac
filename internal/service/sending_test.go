package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/relaypoint/mailadmin/internal/audit"
	"github.com/relaypoint/mailadmin/internal/models"
	"github.com/relaypoint/mailadmin/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTiers = map[string]TierBounds{
	models.TierFree:       {Hourly: 10, Daily: 50},
	models.TierBasic:      {Hourly: 50, Daily: 500},
	models.TierPremium:    {Hourly: 200, Daily: 2000},
	models.TierEnterprise: {Hourly: 1000, Daily: 20000},
}

func newSendingService(store ratelimit.Store) (*SendingService, *fakeProfiles, *fakeLedger) {
	profiles := newFakeProfiles()
	ledger := &fakeLedger{}
	svc := NewSendingService(store, profiles, ledger, audit.LogRecorder{}, testTiers)
	svc.now = func() time.Time {
		return time.Date(2025, 3, 9, 14, 10, 0, 0, time.UTC)
	}
	return svc, profiles, ledger
}

func seedProfile(profiles *fakeProfiles, userID uuid.UUID, tier string, hourly, daily int) {
	profiles.profiles[userID] = &models.SendingProfile{
		UserID:           userID,
		Tier:             tier,
		HourlyBound:      hourly,
		DailyBound:       daily,
		IsSendingEnabled: true,
	}
}

func TestCheckSend_HourlyBound(t *testing.T) {
	// Hourly bound 3: first three sends allowed, fourth denied with a
	// violation carrying attempted_count=4 and bound_at_time=3.
	store := ratelimit.NewMemoryStore()
	svc, profiles, ledger := newSendingService(store)
	userID := uuid.New()
	seedProfile(profiles, userID, models.TierCustom, 3, 100)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		decision := svc.CheckSend(ctx, userID)
		require.True(t, decision.Allowed, "send %d should be allowed", i)
	}

	decision := svc.CheckSend(ctx, userID)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonHourlyExceeded, decision.Reason)

	violation := ledger.last()
	require.NotNil(t, violation)
	assert.Equal(t, models.ViolationHourlyExceeded, violation.ViolationType)
	assert.Equal(t, 4, violation.AttemptedCount)
	assert.Equal(t, 3, violation.BoundAtTime)
	assert.Equal(t, userID.String(), violation.SubjectID)
}

func TestCheckSend_SuspendedSkipsCounters(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	svc, profiles, ledger := newSendingService(store)
	userID := uuid.New()
	seedProfile(profiles, userID, models.TierFree, 10, 50)
	profiles.profiles[userID].IsSendingEnabled = false
	ctx := context.Background()

	decision := svc.CheckSend(ctx, userID)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonSendingSuspended, decision.Reason)

	hourly, daily, err := svc.Usage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, hourly, "suspended denial must not touch counters")
	assert.Equal(t, 0, daily)
	assert.Equal(t, 0, ledger.count())
}

func TestCheckSend_ResetMidWindow(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	svc, profiles, _ := newSendingService(store)
	userID := uuid.New()
	seedProfile(profiles, userID, models.TierCustom, 2, 100)
	ctx := context.Background()

	require.True(t, svc.CheckSend(ctx, userID).Allowed)
	require.True(t, svc.CheckSend(ctx, userID).Allowed)
	require.False(t, svc.CheckSend(ctx, userID).Allowed)

	rem := NewRemediationService(store, audit.LogRecorder{})
	rem.now = svc.now
	key := ratelimit.Key{Scope: ratelimit.ScopeUserSending, SubjectID: userID.String(), Kind: ratelimit.WindowHourly}
	require.NoError(t, rem.ResetCounter(ctx, key, "ops@example.com"))

	decision := svc.CheckSend(ctx, userID)
	assert.True(t, decision.Allowed, "post-reset sends are evaluated against count=0")
}

func TestCheckSend_TierUpgradeKeepsCounts(t *testing.T) {
	// A user who exhausted the free daily bound gets premium: the consumed
	// count stays, but is now measured against the larger bound.
	store := ratelimit.NewMemoryStore()
	svc, profiles, _ := newSendingService(store)
	userID := uuid.New()
	seedProfile(profiles, userID, models.TierFree, 1000, 50)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.True(t, svc.CheckSend(ctx, userID).Allowed)
	}
	require.False(t, svc.CheckSend(ctx, userID).Allowed)

	profile, err := svc.SetTier(ctx, userID, models.TierPremium, nil, nil, "ops@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, 2000, profile.DailyBound)

	decision := svc.CheckSend(ctx, userID)
	assert.True(t, decision.Allowed)

	_, daily, err := svc.Usage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 51, daily, "upgrade re-evaluates bounds, it does not reset counts")
}

func TestGetProfile_ProvisionsDefaults(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	svc, _, _ := newSendingService(store)
	userID := uuid.New()

	profile, err := svc.GetProfile(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, profile.Tier)
	assert.Equal(t, 10, profile.HourlyBound)
	assert.Equal(t, 50, profile.DailyBound)
	assert.True(t, profile.IsSendingEnabled)
}

func TestSetTier(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	svc, profiles, _ := newSendingService(store)
	userID := uuid.New()
	seedProfile(profiles, userID, models.TierFree, 10, 50)
	ctx := context.Background()

	t.Run("rejects unknown tier", func(t *testing.T) {
		_, err := svc.SetTier(ctx, userID, "platinum", nil, nil, "ops", "")
		assert.ErrorIs(t, err, ErrUnknownTier)
	})

	t.Run("custom tier requires bounds", func(t *testing.T) {
		_, err := svc.SetTier(ctx, userID, models.TierCustom, nil, nil, "ops", "big sender")
		assert.ErrorIs(t, err, ErrBoundsRequired)
	})

	t.Run("custom tier records override reason", func(t *testing.T) {
		hourly, daily := 500, 5000
		profile, err := svc.SetTier(ctx, userID, models.TierCustom, &hourly, &daily, "ops", "contractual sender")
		require.NoError(t, err)
		assert.Equal(t, 500, profile.HourlyBound)
		assert.Equal(t, 5000, profile.DailyBound)
		assert.Equal(t, "contractual sender", profile.OverrideReason)
	})

	t.Run("named tier clears override reason", func(t *testing.T) {
		profile, err := svc.SetTier(ctx, userID, models.TierBasic, nil, nil, "ops", "")
		require.NoError(t, err)
		assert.Equal(t, models.TierBasic, profile.Tier)
		assert.Empty(t, profile.OverrideReason)
	})
}

func TestSetSendingEnabled(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	svc, profiles, _ := newSendingService(store)
	userID := uuid.New()
	seedProfile(profiles, userID, models.TierFree, 10, 50)
	ctx := context.Background()

	require.True(t, svc.CheckSend(ctx, userID).Allowed)

	require.NoError(t, svc.SetSendingEnabled(ctx, userID, false, "ops", "spam complaints"))
	profile, err := svc.GetProfile(ctx, userID)
	require.NoError(t, err)
	assert.False(t, profile.IsSendingEnabled)
	assert.Equal(t, "spam complaints", profile.SuspensionReason)

	assert.Equal(t, ReasonSendingSuspended, svc.CheckSend(ctx, userID).Reason)

	require.NoError(t, svc.SetSendingEnabled(ctx, userID, true, "ops", "resolved with customer"))
	profile, err = svc.GetProfile(ctx, userID)
	require.NoError(t, err)
	assert.True(t, profile.IsSendingEnabled)
	assert.Empty(t, profile.SuspensionReason)

	// Counters survived the suspend/resume cycle.
	hourly, _, err := svc.Usage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, hourly)
}

func TestCheckSend_StoreOutageFailsClosed(t *testing.T) {
	svc, profiles, _ := newSendingService(failingStore{})
	userID := uuid.New()
	seedProfile(profiles, userID, models.TierFree, 10, 50)

	decision := svc.CheckSend(context.Background(), userID)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonTemporarilyUnavailable, decision.Reason)
}
