package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/taskline/internal/intent"
	"github.com/zulandar/taskline/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrReminderOffset is returned for a lead time beyond
// intent.MaxReminderOffsetMinutes.
var ErrReminderOffset = errors.New("task: reminder offset out of range")

// ScheduleReminder creates a reminder offsetMinutes before t is due. It
// returns (nil, nil) when t has no due instant or the offset is not
// positive.
func ScheduleReminder(db *gorm.DB, t *models.Task, offsetMinutes int) (*models.Reminder, error) {
	if t == nil || t.DueAt == nil || offsetMinutes <= 0 {
		return nil, nil
	}
	if offsetMinutes > intent.MaxReminderOffsetMinutes {
		return nil, fmt.Errorf("%w: %d minutes", ErrReminderOffset, offsetMinutes)
	}
	r := models.Reminder{
		ID:     uuid.NewString(),
		TaskID: t.ID,
		UserID: t.AssigneeID,
		FireAt: t.DueAt.Add(-time.Duration(offsetMinutes) * time.Minute).UTC(),
	}
	if err := db.Omit(clause.Associations).Create(&r).Error; err != nil {
		return nil, fmt.Errorf("task: schedule reminder for %s: %w", t.ID, err)
	}
	return &r, nil
}

// DueReminders returns unsent, unclaimed reminders firing at or before
// until, with their task and user loaded.
func DueReminders(db *gorm.DB, until time.Time) ([]models.Reminder, error) {
	var rs []models.Reminder
	err := db.Preload("Task").Preload("User").
		Where("sent = ? AND attempted_at IS NULL AND fire_at <= ?", false, until.UTC()).
		Order("fire_at ASC").
		Find(&rs).Error
	if err != nil {
		return nil, fmt.Errorf("task: due reminders: %w", err)
	}
	return rs, nil
}

// ClaimReminder marks a reminder as being delivered. It reports false when
// another sweep already claimed or sent it.
func ClaimReminder(db *gorm.DB, id string, now time.Time) (bool, error) {
	res := db.Model(&models.Reminder{}).
		Where("id = ? AND sent = ? AND attempted_at IS NULL", id, false).
		Update("attempted_at", now.UTC())
	if res.Error != nil {
		return false, fmt.Errorf("task: claim reminder %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkReminderSent records a successful delivery.
func MarkReminderSent(db *gorm.DB, id string, now time.Time) error {
	err := db.Model(&models.Reminder{}).Where("id = ?", id).
		Updates(map[string]interface{}{"sent": true, "sent_at": now.UTC()}).Error
	if err != nil {
		return fmt.Errorf("task: mark reminder %s sent: %w", id, err)
	}
	return nil
}

// ReleaseReminder drops a claim so the next sweep retries delivery.
func ReleaseReminder(db *gorm.DB, id string) error {
	err := db.Model(&models.Reminder{}).Where("id = ? AND sent = ?", id, false).
		Update("attempted_at", nil).Error
	if err != nil {
		return fmt.Errorf("task: release reminder %s: %w", id, err)
	}
	return nil
}
