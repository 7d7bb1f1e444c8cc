package workers

import (
	"context"
	"log"
	"time"

	"rewards-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BalanceReconciler recomputes the cached per-user point balance from the
// award ledger. The ledger is the source of truth; the mirror only exists so
// balance reads never aggregate on the hot path, and drift self-heals on the
// next pass.
type BalanceReconciler struct {
	DB *gorm.DB
}

func NewBalanceReconciler(db *gorm.DB) *BalanceReconciler {
	return &BalanceReconciler{DB: db}
}

type ledgerSum struct {
	UserID     string
	Points     int64
	GrantCount int64
}

// ReconcileOnce aggregates the ledger and upserts the mirror rows.
// Returns the number of users touched.
func (r *BalanceReconciler) ReconcileOnce(ctx context.Context) (int, error) {
	var sums []ledgerSum
	err := r.DB.WithContext(ctx).
		Model(&models.AwardGrant{}).
		Select("user_id, SUM(points_granted) AS points, COUNT(*) AS grant_count").
		Group("user_id").
		Scan(&sums).Error
	if err != nil {
		return 0, err
	}
	if len(sums) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	mirrors := make([]models.BalanceMirror, 0, len(sums))
	for _, sum := range sums {
		mirrors = append(mirrors, models.BalanceMirror{
			ID:           uuid.NewString(),
			UserID:       sum.UserID,
			Points:       sum.Points,
			GrantCount:   sum.GrantCount,
			ReconciledAt: now,
		})
	}

	// Batch upsert keyed on user_id — one statement, atomic per row
	if err := r.DB.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"points",
				"grant_count",
				"reconciled_at",
				"updated_at",
			}),
		},
	).Create(&mirrors).Error; err != nil {
		return 0, err
	}
	return len(mirrors), nil
}

// PollBalances runs the reconciler on a fixed interval until ctx is done.
func PollBalances(ctx context.Context, reconciler *BalanceReconciler, pollInterval time.Duration) {
	log.Println("Starting balance reconciliation loop...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Balance reconciliation stopped.")
			return
		case <-ticker.C:
			count, err := reconciler.ReconcileOnce(ctx)
			if err != nil {
				log.Printf("❌ Balance reconciliation failed: %v", err)
				continue
			}
			if count > 0 {
				log.Printf("✅ Reconciled %d balance mirror(s) from award ledger.", count)
			}
		}
	}
}

// GetCachedBalance reads the mirror; missing row means zero balance.
func GetCachedBalance(db *gorm.DB, userID string) (models.BalanceMirror, bool, error) {
	var mirror models.BalanceMirror
	if err := db.Where("user_id = ?", userID).First(&mirror).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return mirror, false, nil
		}
		return mirror, false, err
	}
	return mirror, true, nil
}
