package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TierFree       = "free"
	TierBasic      = "basic"
	TierPremium    = "premium"
	TierEnterprise = "enterprise"
	TierCustom     = "custom"
)

// Per-user sending limits. Created lazily on the first send attempt with the
// tier defaults; soft-deleted only, never removed.
type SendingProfile struct {
	UserID           uuid.UUID      `gorm:"type:uuid;primary_key" json:"user_id"`
	Tier             string         `gorm:"not null;default:'free'" json:"tier"`
	HourlyBound      int            `gorm:"not null" json:"hourly_bound"`
	DailyBound       int            `gorm:"not null" json:"daily_bound"`
	IsSendingEnabled bool           `gorm:"not null;default:true" json:"is_sending_enabled"`
	OverrideReason   string         `json:"override_reason,omitempty"`
	SuspensionReason string         `json:"suspension_reason,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (SendingProfile) TableName() string {
	return "sending_profiles"
}

func ValidTier(tier string) bool {
	switch tier {
	case TierFree, TierBasic, TierPremium, TierEnterprise, TierCustom:
		return true
	}
	return false
}
