package models

import "time"

// Outcomes beyond "allowed" mirror the violation types plus the generic
// storage-outage denial.
const SignupOutcomeAllowed = "allowed"

// Audit trail of every terminal signup decision, allowed or denied.
type SignupAttempt struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	IPAddress string    `gorm:"index;size:64;not null" json:"ip_address"`
	Outcome   string    `gorm:"index;size:32;not null" json:"outcome"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (SignupAttempt) TableName() string {
	return "signup_attempts"
}
