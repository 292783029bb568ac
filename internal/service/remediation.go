package service

import (
	"context"
	"fmt"
	"time"

	"github.com/relaypoint/mailadmin/internal/audit"
	"github.com/relaypoint/mailadmin/internal/ratelimit"
)

// RemediationService exposes the counter overrides operators use to undo
// false positives. Resets race with in-flight increments on the same key by
// design; last write wins.
type RemediationService struct {
	counters ratelimit.Store
	auditor  audit.Recorder
	now      func() time.Time
}

func NewRemediationService(counters ratelimit.Store, auditor audit.Recorder) *RemediationService {
	if auditor == nil {
		auditor = audit.LogRecorder{}
	}
	return &RemediationService{
		counters: counters,
		auditor:  auditor,
		now:      time.Now,
	}
}

func (s *RemediationService) ResetCounter(ctx context.Context, key ratelimit.Key, actor string) error {
	if err := s.counters.Reset(ctx, key, s.now()); err != nil {
		return fmt.Errorf("failed to reset counter %s: %w", key, err)
	}

	s.auditor.Record(audit.Event{
		Actor:   actor,
		Action:  "reset_counter",
		Subject: key.String(),
		At:      s.now(),
	})

	return nil
}

// CounterValue reads the effective count for the admin surface.
func (s *RemediationService) CounterValue(ctx context.Context, key ratelimit.Key) (int, error) {
	return s.counters.Peek(ctx, key, s.now())
}
