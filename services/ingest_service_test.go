package services

import (
	"testing"
	"time"

	"rewards-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestRejectsUnknownActionType(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.ingest.Ingest(ActivityEvent{UserID: "user-1", ActionType: "teleport"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestIngestCreatesRecordLazily(t *testing.T) {
	e := newTestEngine(t)
	template, task := countTemplate(t, e, 3, true)

	var before int64
	require.NoError(t, e.db.Model(&models.ProgressRecord{}).Count(&before).Error)
	assert.Zero(t, before)

	results, err := e.ingest.Ingest(ActivityEvent{
		UserID:     "user-1",
		ActionType: models.ActionTypeEvent,
		Metric:     models.MetricCount,
		Value:      1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	record := results[0].Record
	assert.Equal(t, template.ID, record.RewardID)
	assert.Equal(t, task.ID, record.TaskID)
	assert.Equal(t, float64(1), record.ProgressValue)
	assert.Equal(t, models.ProgressStatusInProgress, record.Status)
}

func TestIngestIgnoresManualTasks(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.catalog.CreateTemplate(TemplateSpec{
		Name:       "Mentor someone",
		Category:   "mentorship",
		RewardType: models.RewardTypePerk,
		Tasks: []TaskSpec{{
			Title:       "Complete a mentorship session",
			ActionType:  models.ActionTypeMentorship,
			Metric:      models.MetricCount,
			TargetValue: 1,
			IsAutomated: false,
		}},
	})
	require.NoError(t, err)

	results, err := e.ingest.Ingest(ActivityEvent{
		UserID:     "user-1",
		ActionType: models.ActionTypeMentorship,
		Metric:     models.MetricCount,
		Value:      1,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

// Target 5, five count events one at a time: the record ends at exactly 5 and
// a sixth event cannot push it past the target.
func TestIngestCountRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	countTemplate(t, e, 5, true)

	var recordID string
	for i := 0; i < 5; i++ {
		results, err := e.ingest.Ingest(ActivityEvent{
			UserID:     "user-1",
			ActionType: models.ActionTypeEvent,
			Metric:     models.MetricCount,
			Value:      1,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		recordID = results[0].Record.ID
	}

	record := fetchRecord(t, e.db, recordID)
	assert.Equal(t, float64(5), record.ProgressValue)
	assert.Equal(t, models.ProgressStatusPending, record.Status)

	// surplus event after the target is discarded
	_, err := e.ingest.Ingest(ActivityEvent{
		UserID:     "user-1",
		ActionType: models.ActionTypeEvent,
		Metric:     models.MetricCount,
		Value:      1,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(5), fetchRecord(t, e.db, recordID).ProgressValue)
}

func TestIngestIdempotencyKeyDedup(t *testing.T) {
	e := newTestEngine(t)
	countTemplate(t, e, 3, true)

	event := ActivityEvent{
		UserID:         "user-1",
		ActionType:     models.ActionTypeEvent,
		Metric:         models.MetricCount,
		Value:          1,
		IdempotencyKey: "evt-123",
	}

	results, err := e.ingest.Ingest(event)
	require.NoError(t, err)
	require.Len(t, results, 1)
	recordID := results[0].Record.ID

	// re-delivery of the same key is a no-op
	results, err = e.ingest.Ingest(event)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, float64(1), fetchRecord(t, e.db, recordID).ProgressValue)
}

func TestIngestAutoApprovesWithoutVerification(t *testing.T) {
	e := newTestEngine(t)
	template, task := countTemplate(t, e, 1, false)

	results, err := e.ingest.Ingest(ActivityEvent{
		UserID:     "user-1",
		ActionType: models.ActionTypeEvent,
		Metric:     models.MetricCount,
		Value:      1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	record := fetchRecord(t, e.db, results[0].Record.ID)
	assert.Equal(t, models.ProgressStatusApproved, record.Status)
	require.NotNil(t, record.PointsAwarded)
	assert.Equal(t, task.Points+template.Points, *record.PointsAwarded)
	assert.Equal(t, int64(1), grantCount(t, e.db, record.ID))

	total, grants, err := e.awards.Balance("user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(task.Points+template.Points), total)
	assert.Len(t, grants, 1)
}

// Donation of 600 then 500 against an amount target of 1000: the second
// event clamps at the target and the record goes pending.
func TestIngestAmountClampToPending(t *testing.T) {
	e := newTestEngine(t)
	donationTemplate(t, e, true)

	results, err := e.ingest.Ingest(ActivityEvent{
		UserID:     "donor-1",
		ActionType: models.ActionTypeDonation,
		Metric:     models.MetricAmount,
		Value:      600,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	recordID := results[0].Record.ID

	record := fetchRecord(t, e.db, recordID)
	assert.Equal(t, float64(600), record.ProgressValue)
	assert.Equal(t, models.ProgressStatusInProgress, record.Status)

	_, err = e.ingest.Ingest(ActivityEvent{
		UserID:     "donor-1",
		ActionType: models.ActionTypeDonation,
		Metric:     models.MetricAmount,
		Value:      500,
	})
	require.NoError(t, err)

	record = fetchRecord(t, e.db, recordID)
	assert.Equal(t, float64(1000), record.ProgressValue)
	assert.Equal(t, models.ProgressStatusPending, record.Status)
	assert.Nil(t, record.PointsAwarded)
}

func TestIngestSkipsOutOfWindowTemplates(t *testing.T) {
	e := newTestEngine(t)
	template, _ := countTemplate(t, e, 3, true)

	// push the window into the past
	require.NoError(t, e.db.Model(&models.RewardTemplate{}).
		Where("id = ?", template.ID).
		Update("ends_at", time.Now().Add(-time.Hour)).Error)

	results, err := e.ingest.Ingest(ActivityEvent{
		UserID:     "user-1",
		ActionType: models.ActionTypeEvent,
		Metric:     models.MetricCount,
		Value:      1,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}
