package models

import "time"

// One row per (scope, subject, window kind). The count only has meaning
// together with window_start: a row whose window has passed reads as zero.
type CounterRecord struct {
	Scope       string    `gorm:"primaryKey;size:32" json:"scope"`
	SubjectID   string    `gorm:"primaryKey;size:128" json:"subject_id"`
	WindowKind  string    `gorm:"primaryKey;size:16" json:"window_kind"`
	Count       int       `gorm:"not null;default:0" json:"count"`
	WindowStart time.Time `gorm:"not null" json:"window_start"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (CounterRecord) TableName() string {
	return "counter_records"
}
