package service

import (
	"context"
	"log"
	"time"

	"github.com/relaypoint/mailadmin/internal/captcha"
	"github.com/relaypoint/mailadmin/internal/circuitbreaker"
	"github.com/relaypoint/mailadmin/internal/metrics"
	"github.com/relaypoint/mailadmin/internal/models"
	"github.com/relaypoint/mailadmin/internal/ratelimit"
)

// ViolationLedger is the append-only sink for denial records.
type ViolationLedger interface {
	Create(ctx context.Context, violation *models.Violation) error
}

// AttemptLog receives every terminal signup decision, allowed or not.
type AttemptLog interface {
	Create(ctx context.Context, attempt *models.SignupAttempt) error
}

type SignupRequest struct {
	IP           string
	Honeypot     string
	CaptchaToken string
	UserAgent    string
}

// SignupService gates account creation by source IP. Order matters: the
// honeypot is free to check, the counters are consumed before the captcha is
// verified so that captcha guessing burns attempt budget, and only a request
// that clears everything reaches account creation.
type SignupService struct {
	counters   ratelimit.Store
	violations ViolationLedger
	attempts   AttemptLog
	verifier   captcha.Verifier
	breaker    *circuitbreaker.CircuitBreaker

	hourlyBound    int
	dailyBound     int
	captchaEnabled bool

	now func() time.Time
}

type SignupConfig struct {
	HourlyBound    int
	DailyBound     int
	CaptchaEnabled bool
}

func NewSignupService(counters ratelimit.Store, violations ViolationLedger, attempts AttemptLog, verifier captcha.Verifier, cfg SignupConfig) *SignupService {
	return &SignupService{
		counters:   counters,
		violations: violations,
		attempts:   attempts,
		verifier:   verifier,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			MaxFailures: 3,
			Timeout:     30 * time.Second,
		}),
		hourlyBound:    cfg.HourlyBound,
		dailyBound:     cfg.DailyBound,
		captchaEnabled: cfg.CaptchaEnabled,
		now:            time.Now,
	}
}

func (s *SignupService) CheckSignup(ctx context.Context, req SignupRequest) Decision {
	decision := s.decide(ctx, req)
	s.logAttempt(ctx, req, decision)
	metrics.SignupDecisions.WithLabelValues(outcome(decision)).Inc()
	return decision
}

func (s *SignupService) decide(ctx context.Context, req SignupRequest) Decision {
	now := s.now()

	// Bots fill every field; humans never see this one. No counter is
	// consumed for a honeypot hit.
	if req.Honeypot != "" {
		s.recordViolation(ctx, &models.Violation{
			Scope:         models.ScopeBotDefense,
			SubjectID:     req.IP,
			ViolationType: models.ViolationHoneypotFilled,
			Detail:        "honeypot field was non-empty",
			CreatedAt:     now,
		})
		return deny(ReasonHoneypotFilled)
	}

	hourlyKey := ratelimit.Key{Scope: ratelimit.ScopeSignupIP, SubjectID: req.IP, Kind: ratelimit.WindowHourly}
	hourly, err := s.counters.TryIncrement(ctx, hourlyKey, s.hourlyBound, now)
	if err != nil {
		return s.storeFailure(err)
	}
	if !hourly.Allowed {
		s.recordViolation(ctx, &models.Violation{
			Scope:          string(hourlyKey.Scope),
			SubjectID:      req.IP,
			WindowKind:     string(hourlyKey.Kind),
			ViolationType:  models.ViolationHourlyExceeded,
			AttemptedCount: hourly.CountAfter + 1,
			BoundAtTime:    s.hourlyBound,
			CreatedAt:      now,
		})
		return denyUntil(ReasonHourlyExceeded, ratelimit.NextReset(ratelimit.WindowHourly, now))
	}

	dailyKey := ratelimit.Key{Scope: ratelimit.ScopeSignupIP, SubjectID: req.IP, Kind: ratelimit.WindowDaily}
	daily, err := s.counters.TryIncrement(ctx, dailyKey, s.dailyBound, now)
	if err != nil {
		return s.storeFailure(err)
	}
	if !daily.Allowed {
		s.recordViolation(ctx, &models.Violation{
			Scope:          string(dailyKey.Scope),
			SubjectID:      req.IP,
			WindowKind:     string(dailyKey.Kind),
			ViolationType:  models.ViolationDailyExceeded,
			AttemptedCount: daily.CountAfter + 1,
			BoundAtTime:    s.dailyBound,
			CreatedAt:      now,
		})
		return denyUntil(ReasonDailyExceeded, ratelimit.NextReset(ratelimit.WindowDaily, now))
	}

	// Captcha runs after the counters so a failed token still counted
	// against the IP's budget.
	if s.captchaEnabled {
		if ok, reason := s.verifyCaptcha(ctx, req, now); !ok {
			return deny(reason)
		}
	}

	remaining := s.hourlyBound - hourly.CountAfter
	if d := s.dailyBound - daily.CountAfter; d < remaining {
		remaining = d
	}
	return allow(remaining)
}

func (s *SignupService) verifyCaptcha(ctx context.Context, req SignupRequest, now time.Time) (bool, Reason) {
	if req.CaptchaToken == "" {
		s.recordViolation(ctx, &models.Violation{
			Scope:         models.ScopeBotDefense,
			SubjectID:     req.IP,
			ViolationType: models.ViolationCaptchaFailed,
			Detail:        "captcha token missing",
			CreatedAt:     now,
		})
		return false, ReasonCaptchaFailed
	}

	var verified bool
	err := s.breaker.Call(func() error {
		var verifyErr error
		verified, verifyErr = s.verifier.Verify(ctx, req.CaptchaToken, req.IP)
		return verifyErr
	})

	if err != nil {
		// Verifier unreachable or breaker open: fail closed rather than
		// waving bots through.
		log.Printf("ERROR captcha verification unavailable for %s: %v", req.IP, err)
		return false, ReasonTemporarilyUnavailable
	}

	if !verified {
		s.recordViolation(ctx, &models.Violation{
			Scope:         models.ScopeBotDefense,
			SubjectID:     req.IP,
			ViolationType: models.ViolationCaptchaFailed,
			Detail:        "captcha token rejected by verifier",
			CreatedAt:     now,
		})
		return false, ReasonCaptchaFailed
	}

	return true, ReasonNone
}

func (s *SignupService) storeFailure(err error) Decision {
	log.Printf("ERROR counter store unavailable, denying signup: %v", err)
	metrics.CounterStoreErrors.Inc()
	return deny(ReasonTemporarilyUnavailable)
}

func (s *SignupService) recordViolation(ctx context.Context, violation *models.Violation) {
	if err := s.violations.Create(ctx, violation); err != nil {
		log.Printf("ERROR failed to record violation for %s: %v", violation.SubjectID, err)
		return
	}
	metrics.ViolationsRecorded.WithLabelValues(violation.ViolationType).Inc()
}

func (s *SignupService) logAttempt(ctx context.Context, req SignupRequest, decision Decision) {
	out := models.SignupOutcomeAllowed
	if !decision.Allowed {
		out = string(decision.Reason)
	}

	err := s.attempts.Create(ctx, &models.SignupAttempt{
		IPAddress: req.IP,
		Outcome:   out,
		UserAgent: req.UserAgent,
		CreatedAt: s.now(),
	})
	if err != nil {
		log.Printf("ERROR failed to log signup attempt for %s: %v", req.IP, err)
	}
}

func outcome(d Decision) string {
	if d.Allowed {
		return "allowed"
	}
	return string(d.Reason)
}
