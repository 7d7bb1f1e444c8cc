// services/verification_service.go
package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"rewards-engine/models"

	"gorm.io/gorm"
)

// transitionFrom is the single source of truth for the status state machine:
// each target status lists its valid predecessors. Nothing leaves a terminal
// status.
var transitionFrom = map[models.ProgressStatus][]models.ProgressStatus{
	models.ProgressStatusPending:  {models.ProgressStatusInProgress},
	models.ProgressStatusApproved: {models.ProgressStatusPending},
	models.ProgressStatusRejected: {models.ProgressStatusPending},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to models.ProgressStatus) bool {
	for _, allowed := range transitionFrom[to] {
		if allowed == from {
			return true
		}
	}
	return false
}

type VerificationService struct {
	DB     *gorm.DB
	Awards *AwardService
}

func NewVerificationService(db *gorm.DB, awards *AwardService) *VerificationService {
	return &VerificationService{DB: db, Awards: awards}
}

// Approve flips a pending record to approved and writes the ledger grant in
// the same transaction — either both happen or neither. The compare-and-swap
// on (status, version) guarantees exactly one winner between concurrent
// approvals. Sub-grant issuance runs after commit; its warning is non-fatal.
func (s *VerificationService) Approve(recordID, staffID string) (*models.ProgressRecord, string, error) {
	var record models.ProgressRecord
	var grant *models.AwardGrant
	var template *models.RewardTemplate
	var task *models.RewardTask

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&record, "id = ?", recordID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "progress record", ID: recordID}
			}
			return err
		}
		if !CanTransition(record.Status, models.ProgressStatusApproved) {
			return &InvalidStateError{Current: record.Status, Attempted: "approve"}
		}

		// Unscoped: a template edit or deletion after the record went pending
		// must not make the decision fail — the record's rows still exist
		// soft-deleted and carry the values the user earned against.
		var err error
		template, task, err = loadTaskAndTemplateUnscoped(tx, record.RewardID, record.TaskID)
		if err != nil {
			return err
		}

		now := time.Now()
		points := PointsFor(template, task)
		result := tx.Model(&models.ProgressRecord{}).
			Where("id = ? AND status = ? AND version = ? AND points_awarded IS NULL",
				record.ID, models.ProgressStatusPending, record.Version).
			Updates(map[string]interface{}{
				"status":         models.ProgressStatusApproved,
				"points_awarded": points,
				"decided_by":     staffID,
				"decided_at":     now,
				"version":        record.Version + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// a concurrent decision won the swap — report the status it left
			current := record
			tx.First(&current, "id = ?", record.ID)
			return &InvalidStateError{Current: current.Status, Attempted: "approve"}
		}

		record.Status = models.ProgressStatusApproved
		record.PointsAwarded = &points
		record.DecidedBy = &staffID
		record.DecidedAt = &now
		record.Version++

		grant, err = s.Awards.createGrantTx(tx, &record, template, task)
		return err
	})
	if err != nil {
		return nil, "", err
	}

	warning := s.Awards.IssueSubGrants(grant, template, task)
	log.Printf("✅ [VERIFY] approved record %s (user=%s, staff=%s, points=%d)",
		record.ID, record.UserID, staffID, grant.PointsGranted)
	return &record, warning, nil
}

// Reject flips a pending record to rejected. The reason is mandatory and the
// record becomes terminal; no grant is ever written.
func (s *VerificationService) Reject(recordID, staffID, reason string) (*models.ProgressRecord, error) {
	if strings.TrimSpace(reason) == "" {
		verr := &ValidationError{}
		verr.add("reason", "is required when rejecting")
		return nil, verr
	}

	var record models.ProgressRecord
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&record, "id = ?", recordID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "progress record", ID: recordID}
			}
			return err
		}
		if !CanTransition(record.Status, models.ProgressStatusRejected) {
			return &InvalidStateError{Current: record.Status, Attempted: "reject"}
		}

		now := time.Now()
		result := tx.Model(&models.ProgressRecord{}).
			Where("id = ? AND status = ? AND version = ?",
				record.ID, models.ProgressStatusPending, record.Version).
			Updates(map[string]interface{}{
				"status":           models.ProgressStatusRejected,
				"rejection_reason": reason,
				"decided_by":       staffID,
				"decided_at":       now,
				"version":          record.Version + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			current := record
			tx.First(&current, "id = ?", record.ID)
			return &InvalidStateError{Current: current.Status, Attempted: "reject"}
		}

		record.Status = models.ProgressStatusRejected
		record.RejectionReason = &reason
		record.DecidedBy = &staffID
		record.DecidedAt = &now
		record.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🚫 [VERIFY] rejected record %s (user=%s, staff=%s): %s",
		record.ID, record.UserID, staffID, reason)
	return &record, nil
}

// VerificationQuery filters the staff queue.
type VerificationQuery struct {
	Status string
	Search string
	Page   int
	Limit  int
}

// VerificationItem joins a record with the user/reward/task summary the
// queue dashboard renders.
type VerificationItem struct {
	models.ProgressRecord
	RewardName string `json:"reward_name"`
	TaskTitle  string `json:"task_title"`
}

type VerificationStats struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
	Total    int64 `json:"total"`
}

type VerificationPage struct {
	Items      []VerificationItem `json:"items"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
	TotalItems int64              `json:"total_items"`
	TotalPages int                `json:"total_pages"`
	Stats      VerificationStats  `json:"stats"`
}

// ListVerifications returns the paginated queue plus aggregate counts.
func (s *VerificationService) ListVerifications(q VerificationQuery) (*VerificationPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}
	offset := (q.Page - 1) * q.Limit

	base := s.DB.Table("progress_records").
		Joins("INNER JOIN reward_templates ON reward_templates.id = progress_records.reward_id").
		Joins("INNER JOIN reward_tasks ON reward_tasks.id = progress_records.task_id").
		Where("progress_records.deleted_at IS NULL")
	if q.Status != "" {
		base = base.Where("progress_records.status = ?", q.Status)
	}
	if q.Search != "" {
		like := "%" + q.Search + "%"
		base = base.Where("progress_records.user_id LIKE ? OR reward_templates.name LIKE ? OR reward_tasks.title LIKE ?",
			like, like, like)
	}

	var totalItems int64
	if err := base.Session(&gorm.Session{}).Count(&totalItems).Error; err != nil {
		return nil, err
	}

	var items []VerificationItem
	if err := base.Session(&gorm.Session{}).
		Select("progress_records.*, reward_templates.name AS reward_name, reward_tasks.title AS task_title").
		Order("progress_records.created_at DESC").
		Limit(q.Limit).Offset(offset).
		Scan(&items).Error; err != nil {
		log.Printf("DB Error listing verifications: %v", err)
		return nil, err
	}

	stats := VerificationStats{}
	statusCounts := []struct {
		Status models.ProgressStatus
		N      int64
	}{}
	if err := s.DB.Model(&models.ProgressRecord{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}
	for _, row := range statusCounts {
		switch row.Status {
		case models.ProgressStatusPending:
			stats.Pending = row.N
		case models.ProgressStatusApproved:
			stats.Approved = row.N
		case models.ProgressStatusRejected:
			stats.Rejected = row.N
		}
		stats.Total += row.N
	}

	totalPages := int((totalItems + int64(q.Limit) - 1) / int64(q.Limit))
	return &VerificationPage{
		Items:      items,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalItems: totalItems,
		TotalPages: totalPages,
		Stats:      stats,
	}, nil
}
