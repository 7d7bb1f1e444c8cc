// services/scheduler.go
package services

import (
	"log"
	"time"

	"rewards-engine/models"

	"github.com/go-co-op/gocron/v2"
)

func (s *CatalogService) StartScheduleSweep() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: deactivate templates whose schedule window has ended
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var templates []models.RewardTemplate
			now := time.Now()
			err := s.DB.Where("is_active = ? AND ends_at IS NOT NULL AND ends_at <= ?", true, now).
				Find(&templates).Error
			if err != nil {
				log.Printf("[Scheduler] DB error: %v", err)
				return
			}

			for _, t := range templates {
				t.IsActive = false
				if err := s.DB.Save(&t).Error; err != nil {
					log.Printf("[Scheduler] Failed to deactivate template %s: %v", t.ID, err)
				} else {
					log.Printf("✅ Schedule window ended, deactivated template: %s", t.Name)
				}
			}
		}),
	)
}
