// services/ingest_service.go
package services

import (
	"log"
	"time"

	"rewards-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActivityEvent is the inbound shape pushed by the event/donation/mentorship/
// job subsystems whenever a countable action occurs.
type ActivityEvent struct {
	UserID         string                 `json:"user_id"`
	ActionType     models.ActionType      `json:"action_type"`
	Metric         models.Metric          `json:"metric"`
	Value          float64                `json:"value"`
	Context        map[string]interface{} `json:"context"`
	IdempotencyKey string                 `json:"idempotency_key"`
}

// IngestResult pairs an affected record with the sub-grant warning (if any)
// from a direct auto-approval.
type IngestResult struct {
	Record  *models.ProgressRecord `json:"record"`
	Warning string                 `json:"warning,omitempty"`
}

type IngestService struct {
	DB       *gorm.DB
	Progress *ProgressService
}

func NewIngestService(db *gorm.DB, progress *ProgressService) *IngestService {
	return &IngestService{DB: db, Progress: progress}
}

// deltaFor interprets the event value in the task's unit: count tasks get one
// tick per event (or the conveyed count), amount/duration tasks sum the value.
func deltaFor(task *models.RewardTask, event ActivityEvent) float64 {
	if task.Metric == models.MetricCount {
		if event.Metric == models.MetricCount && event.Value > 0 {
			return event.Value
		}
		return 1
	}
	return event.Value
}

// Ingest matches the event against every active template's automated tasks
// and advances the affected progress records. Re-delivery of an event that
// carries an already-processed idempotency key is a no-op. Side effects stay
// confined to progress records and, on direct completion, the award ledger.
func (s *IngestService) Ingest(event ActivityEvent) ([]IngestResult, error) {
	verr := &ValidationError{}
	if event.UserID == "" {
		verr.add("user_id", "is required")
	}
	if !models.KnownActionTypes[event.ActionType] {
		verr.add("action_type", "must be a known action type")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	now := time.Now()
	var templates []models.RewardTemplate
	if err := s.DB.Preload("Tasks", "is_automated = ? AND action_type = ?", true, event.ActionType).
		Where("is_active = ?", true).
		Where("(starts_at IS NULL OR starts_at <= ?)", now).
		Where("(ends_at IS NULL OR ends_at >= ?)", now).
		Find(&templates).Error; err != nil {
		log.Printf("DB Error matching templates for activity: %v", err)
		return nil, err
	}

	var results []IngestResult
	for ti := range templates {
		template := &templates[ti]
		for wi := range template.Tasks {
			task := &template.Tasks[wi]

			var record *models.ProgressRecord
			var grant *models.AwardGrant
			err := s.DB.Transaction(func(tx *gorm.DB) error {
				if event.IdempotencyKey != "" {
					seen := models.ProcessedActivity{
						ID:             uuid.NewString(),
						UserID:         event.UserID,
						TaskID:         task.ID,
						IdempotencyKey: event.IdempotencyKey,
					}
					result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seen)
					if result.Error != nil {
						return result.Error
					}
					if result.RowsAffected == 0 {
						// duplicate delivery — already credited
						return nil
					}
				}

				var txErr error
				record, grant, txErr = s.Progress.advanceTx(tx, event.UserID, template, task, deltaFor(task, event), event.Context)
				return txErr
			})
			if err != nil {
				log.Printf("❌ [INGEST] advance failed (user=%s, task=%s): %v", event.UserID, task.ID, err)
				return results, err
			}
			if record == nil {
				continue
			}

			warning := ""
			if grant != nil {
				warning = s.Progress.Awards.IssueSubGrants(grant, template, task)
			}
			results = append(results, IngestResult{Record: record, Warning: warning})
		}
	}
	return results, nil
}
