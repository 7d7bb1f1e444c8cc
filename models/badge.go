package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BadgeType: static config (loaded from DB or JSON)
type BadgeType struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Code        string `gorm:"uniqueIndex;not null"` // e.g., "COMMUNITY_CHAMPION"
	Name        string `gorm:"not null"`
	Description string
	IconURL     string    `gorm:"type:text"`
	Rarity      string    `gorm:"type:varchar(16);default:'common'"` // common, rare, epic, legendary
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// UserBadge: awarded instance. The composite unique index makes re-issuing
// an already-held badge a no-op rather than an error.
type UserBadge struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_user_badge_once" json:"user_id"`
	BadgeRef  string    `gorm:"not null;uniqueIndex:idx_user_badge_once" json:"badge_ref"`
	AwardedAt time.Time `gorm:"autoCreateTime" json:"awarded_at"`
	Metadata  string    `gorm:"type:jsonb" json:"metadata,omitempty"` // e.g., {"reward_id": "...", "task_id": "..."}
}

func (b *BadgeType) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

func (ub *UserBadge) BeforeCreate(tx *gorm.DB) error {
	if ub.ID == "" {
		ub.ID = uuid.NewString()
	}
	return nil
}
