package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Violation types form a closed set so the admin surface can match on them
// exhaustively instead of parsing free-form detail blobs.
const (
	ViolationHourlyExceeded = "hourly_exceeded"
	ViolationDailyExceeded  = "daily_exceeded"
	ViolationHoneypotFilled = "honeypot_filled"
	ViolationCaptchaFailed  = "captcha_failed"
)

// Scope recorded for bot-defense violations, which are not tied to a
// counter window.
const ScopeBotDefense = "signup_bot_defense"

// A recorded denial. The record itself is append-only; only the resolution
// fields are ever written after creation, and exactly once.
type Violation struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Scope          string    `gorm:"index;size:32;not null" json:"scope"`
	SubjectID      string    `gorm:"index;size:128;not null" json:"subject_id"`
	WindowKind     string    `gorm:"size:16" json:"window_kind,omitempty"`
	ViolationType  string    `gorm:"index;size:32;not null" json:"violation_type"`
	AttemptedCount int       `json:"attempted_count"`
	BoundAtTime    int       `json:"bound_at_time"`
	Detail         string    `json:"detail,omitempty"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`

	Resolved   bool       `gorm:"index;not null;default:false" json:"resolved"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

func (v *Violation) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

func (Violation) TableName() string {
	return "violations"
}
