package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AwardGrant is an append-only ledger entry recording what was issued for an
// approved cycle. Never mutated after the badge/voucher refs are recorded;
// never deleted. A user's point balance is the sum of their grants.
type AwardGrant struct {
	ID       string `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   string `gorm:"index;not null" json:"user_id"`
	RewardID string `gorm:"index;not null" json:"reward_id"`
	TaskID   string `gorm:"index;not null" json:"task_id"`

	// One grant per approval cycle — the unique index is the ledger guard
	ProgressRecordID string `gorm:"uniqueIndex;not null" json:"progress_record_id"`

	PointsGranted int    `gorm:"not null" json:"points_granted"`
	BadgeGranted  string `json:"badge_granted,omitempty"`
	VoucherIssued string `json:"voucher_issued,omitempty"`

	GrantedAt time.Time `gorm:"autoCreateTime" json:"granted_at"`
}

func (g *AwardGrant) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}
