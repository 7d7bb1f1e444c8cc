// services/progress_service.go
package services

import (
	"errors"
	"time"

	"rewards-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProgressService is the shared mutation surface for progress records. Both
// the activity ingestor and manual claims go through here, so the invariants
// (monotonic progress, forward-only transitions, one non-terminal record per
// user/reward/task, terminal immutability) live in one place.
type ProgressService struct {
	DB     *gorm.DB
	Awards *AwardService
}

func NewProgressService(db *gorm.DB, awards *AwardService) *ProgressService {
	return &ProgressService{DB: db, Awards: awards}
}

func loadTaskAndTemplate(db *gorm.DB, rewardID, taskID string) (*models.RewardTemplate, *models.RewardTask, error) {
	var template models.RewardTemplate
	if err := db.First(&template, "id = ?", rewardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, &NotFoundError{Resource: "reward template", ID: rewardID}
		}
		return nil, nil, err
	}
	var task models.RewardTask
	if err := db.First(&task, "id = ? AND reward_id = ?", taskID, rewardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, &NotFoundError{Resource: "reward task", ID: taskID}
		}
		return nil, nil, err
	}
	return &template, &task, nil
}

// loadTaskAndTemplateUnscoped resolves the pair even when the rows were
// soft-deleted by a later template edit or deletion. Decision paths use this:
// an existing pending record must stay decidable, and what gets paid is the
// soft-deleted snapshot the record points at, not the live catalog.
func loadTaskAndTemplateUnscoped(db *gorm.DB, rewardID, taskID string) (*models.RewardTemplate, *models.RewardTask, error) {
	var template models.RewardTemplate
	if err := db.Unscoped().First(&template, "id = ?", rewardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, &NotFoundError{Resource: "reward template", ID: rewardID}
		}
		return nil, nil, err
	}
	var task models.RewardTask
	if err := db.Unscoped().First(&task, "id = ? AND reward_id = ?", taskID, rewardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, &NotFoundError{Resource: "reward task", ID: taskID}
		}
		return nil, nil, err
	}
	return &template, &task, nil
}

// openCycle returns the user's non-terminal record for the task, creating a
// fresh one when the cycle policy allows it. Returns (nil, nil) when the
// latest cycle is terminal and the task configuration forbids a new one.
func openCycle(tx *gorm.DB, userID string, task *models.RewardTask) (*models.ProgressRecord, error) {
	var record models.ProgressRecord
	err := tx.Where("user_id = ? AND task_id = ? AND status IN ?",
		userID, task.ID,
		[]models.ProgressStatus{models.ProgressStatusInProgress, models.ProgressStatusPending}).
		First(&record).Error
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var last models.ProgressRecord
	err = tx.Where("user_id = ? AND task_id = ?", userID, task.ID).
		Order("created_at DESC").
		First(&last).Error
	if err == nil {
		if last.Status == models.ProgressStatusApproved && !task.IsRepeatable {
			return nil, nil
		}
		if last.Status == models.ProgressStatusRejected && !task.RetryOnReject {
			return nil, nil
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	record = models.ProgressRecord{
		ID:             uuid.NewString(),
		UserID:         userID,
		RewardID:       task.RewardID,
		TaskID:         task.ID,
		ProgressValue:  0,
		ProgressTarget: task.TargetValue, // snapshot; later edits don't apply
		Status:         models.ProgressStatusInProgress,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// advanceTx applies a positive delta to the user's open cycle inside tx.
// Progress is clamped at the snapshotted target. When the target is reached
// the record either goes pending (verification required) or is approved and
// granted in the same transaction. Returns the grant when one was created.
func (s *ProgressService) advanceTx(tx *gorm.DB, userID string, template *models.RewardTemplate, task *models.RewardTask, delta float64, context map[string]interface{}) (*models.ProgressRecord, *models.AwardGrant, error) {
	record, err := openCycle(tx, userID, task)
	if err != nil || record == nil {
		return nil, nil, err
	}
	if record.Status == models.ProgressStatusPending {
		// already at target, awaiting decision — surplus is discarded
		return record, nil, nil
	}

	newValue := record.ProgressValue + delta
	if newValue > record.ProgressTarget {
		newValue = record.ProgressTarget
	}
	if newValue < record.ProgressValue {
		newValue = record.ProgressValue
	}

	updates := map[string]interface{}{
		"progress_value": newValue,
		"version":        record.Version + 1,
	}
	if encoded := encodeContext(context); encoded != "" {
		updates["context"] = encoded
	}

	var grant *models.AwardGrant
	if newValue >= record.ProgressTarget {
		if task.RequiresVerification {
			updates["status"] = models.ProgressStatusPending
		} else {
			now := time.Now()
			points := PointsFor(template, task)
			updates["status"] = models.ProgressStatusApproved
			updates["points_awarded"] = points
			updates["decided_at"] = now
		}
	}

	result := tx.Model(&models.ProgressRecord{}).
		Where("id = ? AND version = ? AND status = ?", record.ID, record.Version, models.ProgressStatusInProgress).
		Updates(updates)
	if result.Error != nil {
		return nil, nil, result.Error
	}
	if result.RowsAffected == 0 {
		// lost the per-record compare-and-swap to a concurrent writer
		return nil, nil, &InvalidStateError{Current: record.Status, Attempted: "advance"}
	}

	record.ProgressValue = newValue
	record.Version++
	if status, ok := updates["status"]; ok {
		record.Status = status.(models.ProgressStatus)
	}
	if points, ok := updates["points_awarded"]; ok {
		p := points.(int)
		record.PointsAwarded = &p
	}
	if decidedAt, ok := updates["decided_at"]; ok {
		t := decidedAt.(time.Time)
		record.DecidedAt = &t
	}

	if record.Status == models.ProgressStatusApproved {
		grant, err = s.Awards.createGrantTx(tx, record, template, task)
		if err != nil {
			return nil, nil, err
		}
	}
	return record, grant, nil
}

// Advance is the generic progress bump used by trusted callers. Badge and
// voucher sub-grants for auto-approved records are issued after commit; the
// returned warning is non-fatal per the partial-success policy.
func (s *ProgressService) Advance(userID, rewardID, taskID string, delta float64, context map[string]interface{}) (*models.ProgressRecord, string, error) {
	if delta <= 0 {
		verr := &ValidationError{}
		verr.add("delta", "must be > 0")
		return nil, "", verr
	}

	template, task, err := loadTaskAndTemplate(s.DB, rewardID, taskID)
	if err != nil {
		return nil, "", err
	}

	var record *models.ProgressRecord
	var grant *models.AwardGrant
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		record, grant, txErr = s.advanceTx(tx, userID, template, task, delta, context)
		return txErr
	})
	if err != nil {
		return nil, "", err
	}
	if record == nil {
		// latest cycle is terminal and the task forbids a new one
		status := models.ProgressStatusApproved
		var last models.ProgressRecord
		if lookupErr := s.DB.Where("user_id = ? AND task_id = ?", userID, taskID).
			Order("created_at DESC").First(&last).Error; lookupErr == nil {
			status = last.Status
		}
		return nil, "", &InvalidStateError{Current: status, Attempted: "restart"}
	}

	warning := ""
	if grant != nil {
		warning = s.Awards.IssueSubGrants(grant, template, task)
	}
	return record, warning, nil
}

// ClaimManual asserts completion of a non-automated task. The record jumps
// straight to the target and routes to pending — manual work always needs a
// staff decision.
func (s *ProgressService) ClaimManual(userID, rewardID, taskID string, evidence map[string]interface{}) (*models.ProgressRecord, error) {
	template, task, err := loadTaskAndTemplate(s.DB, rewardID, taskID)
	if err != nil {
		return nil, err
	}
	if task.IsAutomated {
		verr := &ValidationError{}
		verr.add("task_id", "progress on this task is detected automatically and cannot be claimed")
		return nil, verr
	}
	if !template.IsActive || !template.InWindow(time.Now()) {
		verr := &ValidationError{}
		verr.add("reward_id", "reward template is not currently active")
		return nil, verr
	}

	var record *models.ProgressRecord
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		record, txErr = openCycle(tx, userID, task)
		if txErr != nil {
			return txErr
		}
		if record == nil {
			return &InvalidStateError{Current: models.ProgressStatusApproved, Attempted: "claim"}
		}
		if record.Status == models.ProgressStatusPending {
			return &InvalidStateError{Current: record.Status, Attempted: "claim"}
		}

		updates := map[string]interface{}{
			"progress_value": record.ProgressTarget,
			"status":         models.ProgressStatusPending,
			"version":        record.Version + 1,
		}
		if encoded := encodeContext(evidence); encoded != "" {
			updates["context"] = encoded
		}

		result := tx.Model(&models.ProgressRecord{}).
			Where("id = ? AND version = ? AND status = ?", record.ID, record.Version, models.ProgressStatusInProgress).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &InvalidStateError{Current: record.Status, Attempted: "claim"}
		}

		record.ProgressValue = record.ProgressTarget
		record.Status = models.ProgressStatusPending
		record.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
