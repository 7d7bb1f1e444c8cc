package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProgressStatus is the verification lifecycle of a progress record.
type ProgressStatus string

const (
	ProgressStatusInProgress ProgressStatus = "in_progress"
	ProgressStatusPending    ProgressStatus = "pending"
	ProgressStatusApproved   ProgressStatus = "approved"
	ProgressStatusRejected   ProgressStatus = "rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s ProgressStatus) Terminal() bool {
	return s == ProgressStatusApproved || s == ProgressStatusRejected
}

// ProgressRecord tracks one user's accumulated progress on one task within
// one cycle. At most one non-terminal record exists per (user, reward, task).
type ProgressRecord struct {
	ID       string `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   string `gorm:"index:idx_progress_user_task;not null" json:"user_id"`
	RewardID string `gorm:"index;not null" json:"reward_id"`
	TaskID   string `gorm:"index:idx_progress_user_task;not null" json:"task_id"`

	// ProgressTarget snapshots the task target at creation time so later
	// template edits never move the goalposts on an in-flight record.
	ProgressValue  float64 `gorm:"not null;default:0" json:"progress_value"`
	ProgressTarget float64 `gorm:"not null" json:"progress_target"`

	Status        ProgressStatus `gorm:"not null;default:'in_progress';index" json:"status"`
	PointsAwarded *int           `json:"points_awarded,omitempty"` // set once, on approval

	// Opaque audit payload describing the triggering activity (JSON)
	Context string `gorm:"type:jsonb" json:"context,omitempty"`

	RejectionReason *string    `json:"rejection_reason,omitempty"`
	DecidedBy       *string    `json:"decided_by,omitempty"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`

	// Version guards every mutation with a compare-and-swap
	Version int `gorm:"not null;default:0" json:"-"`

	Timestamps
}

// ProcessedActivity records an ingested idempotency key so re-delivery of the
// same activity event is a no-op. The unique index is the dedup guard.
type ProcessedActivity struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         string    `gorm:"not null;uniqueIndex:idx_processed_activity_key" json:"user_id"`
	TaskID         string    `gorm:"not null;uniqueIndex:idx_processed_activity_key" json:"task_id"`
	IdempotencyKey string    `gorm:"not null;uniqueIndex:idx_processed_activity_key" json:"idempotency_key"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (r *ProgressRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func (p *ProcessedActivity) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
