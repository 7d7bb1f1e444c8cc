// models/balance_mirror.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BalanceMirror caches a user's point balance as a projection of the
// AwardGrant ledger. The ledger stays the source of truth; the reconciler
// recomputes this table periodically so reads never aggregate on the hot path.
// Table name: balance_mirrors
type BalanceMirror struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string    `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Points       int64     `gorm:"not null;default:0" json:"points"`
	GrantCount   int64     `gorm:"not null;default:0" json:"grant_count"`
	ReconciledAt time.Time `gorm:"not null" json:"reconciled_at"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (m *BalanceMirror) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
