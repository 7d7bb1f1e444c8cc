// services/award_service.go
package services

import (
	"encoding/json"
	"log"
	"strings"

	"rewards-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BadgeIssuer hands badge issuance to the badge collaborator.
// Re-issuing an already-held badge must be a no-op.
type BadgeIssuer interface {
	Issue(userID, badgeRef string, metadata map[string]interface{}) error
}

// VoucherIssuer delegates code generation to the voucher collaborator and
// returns the reference this engine records.
type VoucherIssuer interface {
	Issue(userID, partner string, value float64) (string, error)
}

type AwardService struct {
	DB       *gorm.DB
	Badges   BadgeIssuer
	Vouchers VoucherIssuer
}

func NewAwardService(db *gorm.DB, badges BadgeIssuer, vouchers VoucherIssuer) *AwardService {
	return &AwardService{DB: db, Badges: badges, Vouchers: vouchers}
}

// PointsFor computes the points a single approved cycle pays out:
// the task bonus plus the template points when the template pays points.
func PointsFor(template *models.RewardTemplate, task *models.RewardTask) int {
	points := task.Points
	if template.RewardType == models.RewardTypePoints {
		points += template.Points
	}
	return points
}

// createGrantTx writes the ledger entry inside the same transaction that
// flips the record to approved. The unique index on progress_record_id is
// the backstop: a second grant for the same cycle can never be committed.
func (s *AwardService) createGrantTx(tx *gorm.DB, record *models.ProgressRecord, template *models.RewardTemplate, task *models.RewardTask) (*models.AwardGrant, error) {
	grant := &models.AwardGrant{
		ID:               uuid.NewString(),
		UserID:           record.UserID,
		RewardID:         record.RewardID,
		TaskID:           record.TaskID,
		ProgressRecordID: record.ID,
		PointsGranted:    PointsFor(template, task),
	}
	if err := tx.Create(grant).Error; err != nil {
		return nil, err
	}
	return grant, nil
}

// IssueSubGrants runs the best-effort second step of the award: badge and
// voucher issuance through their collaborators, after points are committed.
// Failures are returned as a warning string, never as an error — the points
// grant stands and operators can retry issuance.
func (s *AwardService) IssueSubGrants(grant *models.AwardGrant, template *models.RewardTemplate, task *models.RewardTask) string {
	var warnings []string
	metadata := map[string]interface{}{
		"reward_id": grant.RewardID,
		"task_id":   grant.TaskID,
	}

	badgeRef := task.BadgeRef
	if badgeRef == "" && (template.RewardType == models.RewardTypeBadge || template.BadgeRef != "") {
		badgeRef = template.BadgeRef
	}
	if badgeRef != "" {
		if err := s.Badges.Issue(grant.UserID, badgeRef, metadata); err != nil {
			depErr := &DependencyFailure{Dependency: "badge", Err: err}
			log.Printf("⚠️ [AWARD] %v (user=%s, grant=%s)", depErr, grant.UserID, grant.ID)
			warnings = append(warnings, depErr.Error())
		} else {
			grant.BadgeGranted = badgeRef
		}
	}

	if template.RewardType == models.RewardTypeVoucher && template.VoucherPartner != "" {
		code, err := s.Vouchers.Issue(grant.UserID, template.VoucherPartner, template.VoucherValue)
		if err != nil {
			depErr := &DependencyFailure{Dependency: "voucher", Err: err}
			log.Printf("⚠️ [AWARD] %v (user=%s, grant=%s)", depErr, grant.UserID, grant.ID)
			warnings = append(warnings, depErr.Error())
		} else {
			grant.VoucherIssued = code
		}
	}

	if grant.BadgeGranted != "" || grant.VoucherIssued != "" {
		if err := s.DB.Model(&models.AwardGrant{}).Where("id = ?", grant.ID).
			Updates(map[string]interface{}{
				"badge_granted":  grant.BadgeGranted,
				"voucher_issued": grant.VoucherIssued,
			}).Error; err != nil {
			log.Printf("⚠️ [AWARD] failed to record sub-grant refs on %s: %v", grant.ID, err)
			warnings = append(warnings, "failed to record issued badge/voucher references")
		}
	}

	return strings.Join(warnings, "; ")
}

// Balance aggregates the ledger for one user. The grants themselves are the
// source of truth; BalanceMirror is only a cache of this sum.
func (s *AwardService) Balance(userID string) (int64, []models.AwardGrant, error) {
	var total int64
	err := s.DB.Model(&models.AwardGrant{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points_granted), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, nil, err
	}

	var grants []models.AwardGrant
	if err := s.DB.Where("user_id = ?", userID).
		Order("granted_at DESC").
		Find(&grants).Error; err != nil {
		return 0, nil, err
	}
	return total, grants, nil
}

func encodeContext(context map[string]interface{}) string {
	if len(context) == 0 {
		return ""
	}
	raw, err := json.Marshal(context)
	if err != nil {
		return ""
	}
	return string(raw)
}
