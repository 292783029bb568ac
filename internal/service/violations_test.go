package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/relaypoint/mailadmin/internal/audit"
	"github.com/relaypoint/mailadmin/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Idempotent(t *testing.T) {
	store := newFakeViolationStore()
	svc := NewViolationService(store, audit.LogRecorder{})
	svc.now = func() time.Time {
		return time.Date(2025, 3, 9, 14, 10, 0, 0, time.UTC)
	}
	ctx := context.Background()

	violation := &models.Violation{
		Scope:         "user_sending",
		SubjectID:     uuid.NewString(),
		ViolationType: models.ViolationDailyExceeded,
	}
	require.NoError(t, store.Create(ctx, violation))

	first, err := svc.Resolve(ctx, violation.ID, "alice@example.com", "customer contacted")
	require.NoError(t, err)
	assert.True(t, first.Resolved)
	assert.Equal(t, "alice@example.com", first.ResolvedBy)
	assert.Equal(t, "customer contacted", first.Notes)
	require.NotNil(t, first.ResolvedAt)

	// Second resolution succeeds but changes nothing.
	second, err := svc.Resolve(ctx, violation.ID, "bob@example.com", "different notes")
	require.NoError(t, err)
	assert.True(t, second.Resolved)
	assert.Equal(t, "alice@example.com", second.ResolvedBy)
	assert.Equal(t, "customer contacted", second.Notes)
	assert.Equal(t, first.ResolvedAt.Unix(), second.ResolvedAt.Unix())
}

func TestResolve_UnknownID(t *testing.T) {
	svc := NewViolationService(newFakeViolationStore(), audit.LogRecorder{})

	_, err := svc.Resolve(context.Background(), uuid.New(), "alice@example.com", "")
	assert.ErrorIs(t, err, ErrViolationNotFound)
}

func TestCountUnresolved(t *testing.T) {
	store := newFakeViolationStore()
	svc := NewViolationService(store, audit.LogRecorder{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Create(ctx, &models.Violation{
			Scope:         "signup_ip",
			SubjectID:     "203.0.113.9",
			ViolationType: models.ViolationHourlyExceeded,
		}))
	}

	count, err := svc.CountUnresolved(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
