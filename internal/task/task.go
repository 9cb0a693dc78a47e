// Package task is the only writer of tasks and reminders.
package task

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/taskline/internal/intent"
	"github.com/zulandar/taskline/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTitleRequired is returned by Create for a blank title.
var ErrTitleRequired = errors.New("task: title is required")

// Task sources.
const (
	SourceChat  = "chat"
	SourceAudio = "audio"
	SourceImage = "image"
)

// CreateOpts holds parameters for creating a task.
type CreateOpts struct {
	Title              string
	Description        string
	Priority           string // ALTA, MEDIA, BAIXA
	Category           string
	DueAt              *time.Time
	CreatorID          string
	AssigneeID         string // defaults to CreatorID
	Recurring          bool
	RecurrenceInterval string
	Source             string
}

// ValidTransitions maps each status to its valid next statuses.
var ValidTransitions = map[string][]string{
	models.TaskPending:    {models.TaskInProgress, models.TaskDone},
	models.TaskInProgress: {models.TaskDone, models.TaskPending},
	models.TaskDone:       {models.TaskPending},
}

// Create persists a new task.
func Create(db *gorm.DB, opts CreateOpts) (*models.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if opts.CreatorID == "" {
		return nil, fmt.Errorf("task: creator is required")
	}
	if opts.AssigneeID == "" {
		opts.AssigneeID = opts.CreatorID
	}
	if opts.Priority == "" {
		opts.Priority = string(intent.PriorityMedium)
	}
	if opts.Source == "" {
		opts.Source = SourceChat
	}
	// Instants are stored in UTC so range queries compare like with like.
	var due *time.Time
	if opts.DueAt != nil {
		d := opts.DueAt.UTC()
		due = &d
	}

	t := models.Task{
		ID:                 uuid.NewString(),
		Title:              title,
		Description:        opts.Description,
		Priority:           opts.Priority,
		Category:           opts.Category,
		Status:             models.TaskPending,
		DueAt:              due,
		CreatorID:          opts.CreatorID,
		AssigneeID:         opts.AssigneeID,
		Recurring:          opts.Recurring,
		RecurrenceInterval: opts.RecurrenceInterval,
		Source:             opts.Source,
	}
	if err := db.Omit(clause.Associations).Create(&t).Error; err != nil {
		return nil, fmt.Errorf("task: create: %w", err)
	}
	return &t, nil
}

// CreateFromIntent persists a fully specified intent for creatorID.
func CreateFromIntent(db *gorm.DB, ti intent.TaskIntent, creatorID, source string) (*models.Task, error) {
	if ti.DateMissing || ti.Due == nil {
		return nil, fmt.Errorf("task: intent %q has no due date", ti.Title)
	}
	due := *ti.Due
	return Create(db, CreateOpts{
		Title:              ti.Title,
		Description:        ti.Description,
		Priority:           string(ti.Priority),
		Category:           string(ti.Category),
		DueAt:              &due,
		CreatorID:          creatorID,
		Recurring:          ti.Recurring,
		RecurrenceInterval: string(ti.Recurrence),
		Source:             source,
	})
}

// Get retrieves a task by ID.
func Get(db *gorm.DB, id string) (*models.Task, error) {
	var t models.Task
	if err := db.Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task: not found: %s", id)
		}
		return nil, fmt.Errorf("task: get %s: %w", id, err)
	}
	return &t, nil
}

// DueBetween returns assigneeID's unfinished tasks due in [start, end),
// earliest first.
func DueBetween(db *gorm.DB, assigneeID string, start, end time.Time) ([]models.Task, error) {
	var tasks []models.Task
	err := db.Where("assignee_id = ? AND status <> ? AND due_at >= ? AND due_at < ?",
		assigneeID, models.TaskDone, start.UTC(), end.UTC()).
		Order("due_at ASC, created_at ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("task: due between: %w", err)
	}
	return tasks, nil
}

// Open returns unfinished tasks assigned to or created by userID, dated
// tasks first by due instant, undated ones last.
func Open(db *gorm.DB, userID string) ([]models.Task, error) {
	var tasks []models.Task
	err := db.Where("(assignee_id = ? OR creator_id = ?) AND status <> ?", userID, userID, models.TaskDone).
		Order("CASE WHEN due_at IS NULL THEN 1 ELSE 0 END, due_at ASC, created_at ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("task: open: %w", err)
	}
	return tasks, nil
}

// UpdateStatus moves a task to status, validated against ValidTransitions.
func UpdateStatus(db *gorm.DB, id, status string) error {
	t, err := Get(db, id)
	if err != nil {
		return err
	}
	if !isValidTransition(t.Status, status) {
		return fmt.Errorf("task: invalid status transition from %q to %q; valid transitions: %v",
			t.Status, status, ValidTransitions[t.Status])
	}

	updates := map[string]interface{}{"status": status}
	if status == models.TaskDone {
		updates["completed_at"] = time.Now()
	} else {
		updates["completed_at"] = nil
	}
	if err := db.Model(&models.Task{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("task: update %s: %w", id, err)
	}
	return nil
}

func isValidTransition(from, to string) bool {
	for _, v := range ValidTransitions[from] {
		if v == to {
			return true
		}
	}
	return false
}
