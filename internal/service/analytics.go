package service

import (
	"context"
	"time"

	"github.com/relaypoint/mailadmin/internal/models"
	"github.com/relaypoint/mailadmin/internal/ratelimit"
	"github.com/relaypoint/mailadmin/internal/repository"
)

type AnalyticsService struct {
	violations *repository.ViolationRepository
	attempts   *repository.SignupAttemptRepository
}

func NewAnalyticsService(violations *repository.ViolationRepository, attempts *repository.SignupAttemptRepository) *AnalyticsService {
	return &AnalyticsService{
		violations: violations,
		attempts:   attempts,
	}
}

// Holds abuse summary data for the admin dashboard
type AbuseSummary struct {
	TotalViolations  int64                    `json:"total_violations"`
	Unresolved       int64                    `json:"unresolved"`
	ByType           map[string]int64         `json:"by_type"`
	SignupOutcomes   map[string]int64         `json:"signup_outcomes"`
	TopSignupIPs     []map[string]interface{} `json:"top_signup_ips"`
	TopSendingUsers  []map[string]interface{} `json:"top_sending_users"`
	HourlyViolations []map[string]interface{} `json:"hourly_violations"`
}

// Retrieves an abuse summary for a time range
func (s *AnalyticsService) GetSummary(ctx context.Context, from, to time.Time) (*AbuseSummary, error) {
	summary := &AbuseSummary{}

	byType, err := s.violations.CountByType(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.ByType = byType

	for _, count := range byType {
		summary.TotalViolations += count
	}

	unresolved, err := s.violations.CountUnresolved(ctx)
	if err != nil {
		return nil, err
	}
	summary.Unresolved = unresolved

	outcomes, err := s.attempts.CountByOutcome(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.SignupOutcomes = outcomes

	topIPs, err := s.violations.TopSubjects(ctx, string(ratelimit.ScopeSignupIP), from, to, 10)
	if err != nil {
		return nil, err
	}
	summary.TopSignupIPs = topIPs

	topUsers, err := s.violations.TopSubjects(ctx, string(ratelimit.ScopeUserSending), from, to, 10)
	if err != nil {
		return nil, err
	}
	summary.TopSendingUsers = topUsers

	series, err := s.violations.HourlySeries(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.HourlyViolations = series

	return summary, nil
}

// Retrieves the raw attempt log for one IP
func (s *AnalyticsService) AttemptsForIP(ctx context.Context, ip string, from, to time.Time, limit, offset int) ([]models.SignupAttempt, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.attempts.FindByIP(ctx, ip, from, to, limit, offset)
}
