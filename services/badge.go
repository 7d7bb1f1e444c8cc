package services

import (
	"encoding/json"
	"fmt"

	"rewards-engine/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BadgeService struct {
	DB *gorm.DB
}

func NewBadgeService(db *gorm.DB) *BadgeService {
	return &BadgeService{DB: db}
}

// Issue awards a badge to a user. Idempotent: the composite unique index on
// (user_id, badge_ref) turns a re-issue into a no-op insert.
func (s *BadgeService) Issue(userID, badgeRef string, metadata map[string]interface{}) error {
	encoded := ""
	if len(metadata) > 0 {
		if raw, err := json.Marshal(metadata); err == nil {
			encoded = string(raw)
		}
	}

	userBadge := models.UserBadge{
		UserID:   userID,
		BadgeRef: badgeRef,
		Metadata: encoded,
	}
	result := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_ref"}},
		DoNothing: true,
	}).Create(&userBadge)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		fmt.Printf("🎖️ Badge awarded: %s → %s\n", badgeRef, userID)
	}
	return nil
}

// HeldBadges lists the badges a user currently holds.
func (s *BadgeService) HeldBadges(userID string) ([]models.UserBadge, error) {
	var badges []models.UserBadge
	err := s.DB.Where("user_id = ?", userID).
		Order("awarded_at DESC").
		Find(&badges).Error
	return badges, err
}
