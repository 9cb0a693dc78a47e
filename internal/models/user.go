package models

import "time"

// User is a person reachable through a messaging handle (phone number,
// Discord user ID or Slack member ID).
type User struct {
	ID               string  `gorm:"primaryKey;size:36"`
	Name             string  `gorm:"size:128;not null"`
	Handle           string  `gorm:"size:64;not null;uniqueIndex"`
	Timezone         string  `gorm:"size:64"`
	DailySummaryTime *string `gorm:"size:5"` // "HH:mm" local, nil when disabled
	LastSummaryDate  string  `gorm:"size:10"` // "YYYY-MM-DD" local date of the last digest
	Persona          string  `gorm:"size:32"`
	Role             string  `gorm:"size:16;default:member"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
