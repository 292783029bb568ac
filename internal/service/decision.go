package service

import "time"

type Reason string

const (
	ReasonNone             Reason = ""
	ReasonHourlyExceeded   Reason = "hourly_exceeded"
	ReasonDailyExceeded    Reason = "daily_exceeded"
	ReasonHoneypotFilled   Reason = "honeypot_filled"
	ReasonCaptchaFailed    Reason = "captcha_failed"
	ReasonSendingSuspended Reason = "sending_suspended"

	// ReasonTemporarilyUnavailable is the fail-closed outcome when the
	// counter store or the captcha verifier cannot be reached. Surfaced to
	// callers as a generic temporary denial; the real cause goes to the log
	// and metrics so operators can tell outages from abuse.
	ReasonTemporarilyUnavailable Reason = "temporarily_unavailable"
)

// Decision is the typed outcome of a throttle or quota check. The HTTP layer
// translates it; services never shape wire responses.
type Decision struct {
	Allowed    bool      `json:"allowed"`
	Reason     Reason    `json:"reason,omitempty"`
	Remaining  int       `json:"remaining"`
	RetryAfter time.Time `json:"retry_after,omitempty"`
}

func allow(remaining int) Decision {
	return Decision{Allowed: true, Remaining: remaining}
}

func deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

func denyUntil(reason Reason, retryAfter time.Time) Decision {
	return Decision{Allowed: false, Reason: reason, RetryAfter: retryAfter}
}
