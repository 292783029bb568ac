package ratelimit

import (
	"fmt"
	"time"
)

type Scope string

const (
	ScopeSignupIP    Scope = "signup_ip"
	ScopeUserSending Scope = "user_sending"
)

type WindowKind string

const (
	WindowHourly WindowKind = "hourly"
	WindowDaily  WindowKind = "daily"
)

func (k WindowKind) Duration() time.Duration {
	if k == WindowDaily {
		return 24 * time.Hour
	}
	return time.Hour
}

// Key identifies one throttled subject within one window kind. Immutable;
// identical keys address the same counter.
type Key struct {
	Scope     Scope
	SubjectID string
	Kind      WindowKind
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Scope, k.SubjectID, k.Kind)
}
