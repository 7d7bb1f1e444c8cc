// services/catalog_service.go
package services

import (
	"errors"
	"log"
	"regexp"
	"strconv"
	"time"

	"rewards-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CatalogService struct {
	DB *gorm.DB
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{DB: db}
}

// TemplateSpec is the write-side shape for create/update.
type TemplateSpec struct {
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Category       string            `json:"category"`
	RewardType     models.RewardType `json:"reward_type"`
	Points         int               `json:"points"`
	BadgeRef       string            `json:"badge_ref"`
	VoucherPartner string            `json:"voucher_partner"`
	VoucherValue   float64           `json:"voucher_value"`
	StartsAt       *time.Time        `json:"starts_at"`
	EndsAt         *time.Time        `json:"ends_at"`
	IsFeatured     bool              `json:"is_featured"`
	IsActive       *bool             `json:"is_active"`
	Tasks          []TaskSpec        `json:"tasks"`
}

type TaskSpec struct {
	Title                string            `json:"title"`
	Description          string            `json:"description"`
	ActionType           models.ActionType `json:"action_type"`
	Metric               models.Metric     `json:"metric"`
	TargetValue          float64           `json:"target_value"`
	Points               int               `json:"points"`
	BadgeRef             string            `json:"badge_ref"`
	IsAutomated          bool              `json:"is_automated"`
	RequiresVerification *bool             `json:"requires_verification"`
	IsRepeatable         bool              `json:"is_repeatable"`
	RetryOnReject        *bool             `json:"retry_on_reject"`
}

// Badge/voucher refs are validated for shape only; existence is the badge
// collaborator's problem.
var refPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

func validateTemplateSpec(spec *TemplateSpec) error {
	verr := &ValidationError{}

	if spec.Name == "" {
		verr.add("name", "is required")
	}
	if spec.Category == "" {
		verr.add("category", "is required")
	}
	switch spec.RewardType {
	case models.RewardTypePoints:
		if spec.Points <= 0 {
			verr.add("points", "must be > 0 when reward_type is points")
		}
	case models.RewardTypeVoucher:
		if spec.VoucherPartner == "" {
			verr.add("voucher_partner", "is required when reward_type is voucher")
		}
	case models.RewardTypeBadge, models.RewardTypePerk:
	case "":
		verr.add("reward_type", "is required")
	default:
		verr.add("reward_type", "must be one of points, voucher, badge, perk")
	}
	if spec.Points < 0 {
		verr.add("points", "must be >= 0")
	}
	if spec.BadgeRef != "" && !refPattern.MatchString(spec.BadgeRef) {
		verr.add("badge_ref", "is not a well-formed identifier")
	}
	if spec.StartsAt != nil && spec.EndsAt != nil && spec.EndsAt.Before(*spec.StartsAt) {
		verr.add("ends_at", "must be after starts_at")
	}

	if len(spec.Tasks) == 0 {
		verr.add("tasks", "at least one task is required")
	}
	for i, task := range spec.Tasks {
		field := func(name string) string {
			return "tasks[" + strconv.Itoa(i) + "]." + name
		}
		if task.Title == "" {
			verr.add(field("title"), "is required")
		}
		if !models.KnownActionTypes[task.ActionType] {
			verr.add(field("action_type"), "must be a known action type")
		}
		if !models.KnownMetrics[task.Metric] {
			verr.add(field("metric"), "must be one of count, amount, duration")
		}
		if task.TargetValue <= 0 {
			verr.add(field("target_value"), "must be > 0")
		}
		if task.Points < 0 {
			verr.add(field("points"), "must be >= 0")
		}
		if task.BadgeRef != "" && !refPattern.MatchString(task.BadgeRef) {
			verr.add(field("badge_ref"), "is not a well-formed identifier")
		}
	}

	return verr.orNil()
}

func buildTask(rewardID string, spec TaskSpec) models.RewardTask {
	task := models.RewardTask{
		ID:           uuid.NewString(),
		RewardID:     rewardID,
		Title:        spec.Title,
		Description:  spec.Description,
		ActionType:   spec.ActionType,
		Metric:       spec.Metric,
		TargetValue:  spec.TargetValue,
		Points:       spec.Points,
		BadgeRef:     spec.BadgeRef,
		IsAutomated:  spec.IsAutomated,
		IsRepeatable: spec.IsRepeatable,
		// Manual tasks always require verification; automated tasks may
		// opt out explicitly.
		RequiresVerification: true,
		RetryOnReject:        true,
	}
	if spec.RequiresVerification != nil {
		task.RequiresVerification = *spec.RequiresVerification
	}
	if !spec.IsAutomated {
		// manual progress always needs sign-off
		task.RequiresVerification = true
	}
	if spec.RetryOnReject != nil {
		task.RetryOnReject = *spec.RetryOnReject
	}
	return task
}

// CreateTemplate validates and persists a new template with its tasks.
func (s *CatalogService) CreateTemplate(spec TemplateSpec) (*models.RewardTemplate, error) {
	if err := validateTemplateSpec(&spec); err != nil {
		return nil, err
	}

	template := &models.RewardTemplate{
		ID:             uuid.NewString(),
		Name:           spec.Name,
		Description:    spec.Description,
		Category:       spec.Category,
		RewardType:     spec.RewardType,
		Points:         spec.Points,
		BadgeRef:       spec.BadgeRef,
		VoucherPartner: spec.VoucherPartner,
		VoucherValue:   spec.VoucherValue,
		StartsAt:       spec.StartsAt,
		EndsAt:         spec.EndsAt,
		IsFeatured:     spec.IsFeatured,
		IsActive:       true,
	}
	if spec.IsActive != nil {
		template.IsActive = *spec.IsActive
	}
	for _, taskSpec := range spec.Tasks {
		template.Tasks = append(template.Tasks, buildTask(template.ID, taskSpec))
	}

	if err := s.DB.Create(template).Error; err != nil {
		log.Printf("DB Error creating reward template: %v", err)
		return nil, err
	}
	return template, nil
}

// UpdateTemplate replaces the template definition. Existing ProgressRecords
// keep their snapshotted targets — edits are never retroactive.
func (s *CatalogService) UpdateTemplate(id string, spec TemplateSpec) (*models.RewardTemplate, error) {
	if err := validateTemplateSpec(&spec); err != nil {
		return nil, err
	}

	var template models.RewardTemplate
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&template, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "reward template", ID: id}
			}
			return err
		}

		template.Name = spec.Name
		template.Description = spec.Description
		template.Category = spec.Category
		template.RewardType = spec.RewardType
		template.Points = spec.Points
		template.BadgeRef = spec.BadgeRef
		template.VoucherPartner = spec.VoucherPartner
		template.VoucherValue = spec.VoucherValue
		template.StartsAt = spec.StartsAt
		template.EndsAt = spec.EndsAt
		template.IsFeatured = spec.IsFeatured
		if spec.IsActive != nil {
			template.IsActive = *spec.IsActive
		}

		if err := tx.Where("reward_id = ?", template.ID).Delete(&models.RewardTask{}).Error; err != nil {
			return err
		}
		template.Tasks = nil
		for _, taskSpec := range spec.Tasks {
			template.Tasks = append(template.Tasks, buildTask(template.ID, taskSpec))
		}
		if err := tx.Create(&template.Tasks).Error; err != nil {
			return err
		}

		return tx.Omit("Tasks").Save(&template).Error
	})
	if err != nil {
		return nil, err
	}
	return &template, nil
}

// DeleteTemplate soft-deletes a template and its tasks.
func (s *CatalogService) DeleteTemplate(id string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var template models.RewardTemplate
		if err := tx.First(&template, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "reward template", ID: id}
			}
			return err
		}
		if err := tx.Where("reward_id = ?", id).Delete(&models.RewardTask{}).Error; err != nil {
			return err
		}
		return tx.Delete(&template).Error
	})
}

// GetTemplate fetches one template with its tasks.
func (s *CatalogService) GetTemplate(id string) (*models.RewardTemplate, error) {
	var template models.RewardTemplate
	if err := s.DB.Preload("Tasks").First(&template, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "reward template", ID: id}
		}
		return nil, err
	}
	return &template, nil
}

// ListTemplates returns the catalog. scope=admin includes inactive and
// out-of-window templates; the default view is what end users can earn now.
func (s *CatalogService) ListTemplates(scope string) ([]models.RewardTemplate, error) {
	query := s.DB.Preload("Tasks").Order("is_featured DESC, created_at DESC")
	if scope != "admin" {
		now := time.Now()
		query = query.Where("is_active = ?", true).
			Where("(starts_at IS NULL OR starts_at <= ?)", now).
			Where("(ends_at IS NULL OR ends_at >= ?)", now)
	}

	var templates []models.RewardTemplate
	if err := query.Find(&templates).Error; err != nil {
		log.Printf("DB Error listing reward templates: %v", err)
		return nil, err
	}
	return templates, nil
}
