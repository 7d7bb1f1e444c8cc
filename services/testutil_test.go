package services

import (
	"errors"
	"fmt"
	"testing"

	"rewards-engine/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.RewardTemplate{},
		&models.RewardTask{},
		&models.ProgressRecord{},
		&models.ProcessedActivity{},
		&models.AwardGrant{},
		&models.BadgeType{},
		&models.UserBadge{},
		&models.BalanceMirror{},
	))
	return db
}

type testEngine struct {
	db           *gorm.DB
	badges       *BadgeService
	awards       *AwardService
	catalog      *CatalogService
	progress     *ProgressService
	ingest       *IngestService
	verification *VerificationService
}

func newTestEngine(t *testing.T) *testEngine {
	return newTestEngineWithIssuers(t, nil, nil)
}

func newTestEngineWithIssuers(t *testing.T, badges BadgeIssuer, vouchers VoucherIssuer) *testEngine {
	t.Helper()
	db := newTestDB(t)
	badgeService := NewBadgeService(db)
	if badges == nil {
		badges = badgeService
	}
	if vouchers == nil {
		vouchers = NewVoucherService()
	}
	awards := NewAwardService(db, badges, vouchers)
	progress := NewProgressService(db, awards)
	return &testEngine{
		db:           db,
		badges:       badgeService,
		awards:       awards,
		catalog:      NewCatalogService(db),
		progress:     progress,
		ingest:       NewIngestService(db, progress),
		verification: NewVerificationService(db, awards),
	}
}

type failingBadgeIssuer struct{}

func (failingBadgeIssuer) Issue(userID, badgeRef string, metadata map[string]interface{}) error {
	return errors.New("badge service unavailable")
}

func boolPtr(b bool) *bool { return &b }

// donationTemplate is the "Community Champion" shape used across scenarios:
// one automated donation task with an amount target of 1000.
func donationTemplate(t *testing.T, e *testEngine, requiresVerification bool) (*models.RewardTemplate, *models.RewardTask) {
	t.Helper()
	template, err := e.catalog.CreateTemplate(TemplateSpec{
		Name:       "Community Champion",
		Category:   "community",
		RewardType: models.RewardTypePoints,
		Points:     100,
		Tasks: []TaskSpec{{
			Title:                "Donate 1000 to the fund",
			ActionType:           models.ActionTypeDonation,
			Metric:               models.MetricAmount,
			TargetValue:          1000,
			Points:               25,
			IsAutomated:          true,
			RequiresVerification: boolPtr(requiresVerification),
		}},
	})
	require.NoError(t, err)
	require.Len(t, template.Tasks, 1)
	return template, &template.Tasks[0]
}

// countTemplate builds a simple automated count task.
func countTemplate(t *testing.T, e *testEngine, target float64, requiresVerification bool) (*models.RewardTemplate, *models.RewardTask) {
	t.Helper()
	template, err := e.catalog.CreateTemplate(TemplateSpec{
		Name:       "Event Regular",
		Category:   "events",
		RewardType: models.RewardTypePoints,
		Points:     50,
		Tasks: []TaskSpec{{
			Title:                "Attend events",
			ActionType:           models.ActionTypeEvent,
			Metric:               models.MetricCount,
			TargetValue:          target,
			Points:               10,
			IsAutomated:          true,
			RequiresVerification: boolPtr(requiresVerification),
		}},
	})
	require.NoError(t, err)
	return template, &template.Tasks[0]
}

func fetchRecord(t *testing.T, db *gorm.DB, id string) *models.ProgressRecord {
	t.Helper()
	var record models.ProgressRecord
	require.NoError(t, db.First(&record, "id = ?", id).Error)
	return &record
}

func grantCount(t *testing.T, db *gorm.DB, recordID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.AwardGrant{}).
		Where("progress_record_id = ?", recordID).
		Count(&n).Error)
	return n
}
