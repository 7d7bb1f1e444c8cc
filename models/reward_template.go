package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RewardType indicates what a completed template pays out
type RewardType string

const (
	RewardTypePoints  RewardType = "points"
	RewardTypeVoucher RewardType = "voucher"
	RewardTypeBadge   RewardType = "badge"
	RewardTypePerk    RewardType = "perk"
)

// ActionType is the closed set of platform activities a task can track.
type ActionType string

const (
	ActionTypeEvent      ActionType = "event"
	ActionTypeDonation   ActionType = "donation"
	ActionTypeMentorship ActionType = "mentorship"
	ActionTypeJob        ActionType = "job"
	ActionTypeReferral   ActionType = "referral"
	ActionTypeEngagement ActionType = "engagement"
	ActionTypeCustom     ActionType = "custom"
)

// KnownActionTypes is the lookup table used by the ingestor — matching is
// by enum membership, not raw string comparison.
var KnownActionTypes = map[ActionType]bool{
	ActionTypeEvent:      true,
	ActionTypeDonation:   true,
	ActionTypeMentorship: true,
	ActionTypeJob:        true,
	ActionTypeReferral:   true,
	ActionTypeEngagement: true,
	ActionTypeCustom:     true,
}

// Metric determines the unit progress accumulates in.
type Metric string

const (
	MetricCount    Metric = "count"    // discrete actions
	MetricAmount   Metric = "amount"   // summed monetary value
	MetricDuration Metric = "duration" // summed minutes
)

var KnownMetrics = map[Metric]bool{
	MetricCount:    true,
	MetricAmount:   true,
	MetricDuration: true,
}

// RewardTemplate defines an earnable reward composed of one or more tasks
type RewardTemplate struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string     `gorm:"not null" json:"name"`
	Description string     `gorm:"type:text" json:"description"`
	Category    string     `gorm:"not null;index" json:"category"`
	RewardType  RewardType `gorm:"not null" json:"reward_type"`
	Points      int        `gorm:"default:0" json:"points"`
	BadgeRef    string     `json:"badge_ref,omitempty"`

	// Voucher payout details (only meaningful when RewardType = voucher)
	VoucherPartner string  `json:"voucher_partner,omitempty"`
	VoucherValue   float64 `json:"voucher_value,omitempty"`

	// Optional schedule window; template is inactive outside it
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`

	IsFeatured bool `gorm:"default:false" json:"is_featured"`
	IsActive   bool `gorm:"default:true;index" json:"is_active"`

	Tasks []RewardTask `gorm:"foreignKey:RewardID;constraint:OnDelete:CASCADE" json:"tasks"`

	Timestamps
}

// InWindow reports whether the template's schedule window contains now.
// Templates with no window are always in-window.
func (t *RewardTemplate) InWindow(now time.Time) bool {
	if t.StartsAt != nil && now.Before(*t.StartsAt) {
		return false
	}
	if t.EndsAt != nil && now.After(*t.EndsAt) {
		return false
	}
	return true
}

// RewardTask is a single measurable unit of work within a template
type RewardTask struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	RewardID    string     `gorm:"index;not null" json:"reward_id"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	ActionType  ActionType `gorm:"not null;index" json:"action_type"`
	Metric      Metric     `gorm:"not null" json:"metric"`
	TargetValue float64    `gorm:"not null" json:"target_value"`
	Points      int        `gorm:"default:0" json:"points"` // task-level bonus
	BadgeRef    string     `json:"badge_ref,omitempty"`

	// Both flags are independent: an automated task may still need sign-off
	IsAutomated          bool `gorm:"default:false" json:"is_automated"`
	RequiresVerification bool `gorm:"default:true" json:"requires_verification"`

	// Cycle policy: whether a fresh ProgressRecord may start after a
	// terminal approval / rejection
	IsRepeatable  bool `gorm:"default:false" json:"is_repeatable"`
	RetryOnReject bool `gorm:"default:true" json:"retry_on_reject"`

	Timestamps
}

func (t *RewardTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

func (t *RewardTask) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
