package models

import "time"

// Task statuses.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskDone       = "done"
)

// Task is a unit of work created from chat, audio or an image suggestion.
type Task struct {
	ID                 string     `gorm:"primaryKey;size:36"`
	Title              string     `gorm:"not null"`
	Description        string     `gorm:"type:text"`
	Priority           string     `gorm:"size:8;default:MEDIA"`
	Category           string     `gorm:"size:16"`
	Status             string     `gorm:"size:16;default:pending;index"`
	DueAt              *time.Time `gorm:"index"`
	CreatorID          string     `gorm:"size:36;not null;index"`
	AssigneeID         string     `gorm:"size:36;not null;index"`
	Recurring          bool       `gorm:"default:false"`
	RecurrenceInterval string     `gorm:"size:16"`
	Source             string     `gorm:"size:16"` // "chat", "audio", "image"
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        *time.Time

	Creator  User `gorm:"foreignKey:CreatorID"`
	Assignee User `gorm:"foreignKey:AssigneeID"`
}

// Reminder fires a message to a user ahead of a task's due instant.
type Reminder struct {
	ID          string    `gorm:"primaryKey;size:36"`
	TaskID      string    `gorm:"size:36;not null;index"`
	UserID      string    `gorm:"size:36;not null;index"`
	FireAt      time.Time `gorm:"not null;index"`
	Sent        bool      `gorm:"default:false;index"`
	AttemptedAt *time.Time
	SentAt      *time.Time
	CreatedAt   time.Time

	Task Task `gorm:"foreignKey:TaskID"`
	User User `gorm:"foreignKey:UserID"`
}
