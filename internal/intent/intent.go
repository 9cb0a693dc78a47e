// Package intent turns a conversation into structured task intents by
// calling a language model and validating what it returns.
package intent

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrMalformed means the model output could not be used. Callers must not
// apply any part of a malformed result.
var ErrMalformed = errors.New("intent: malformed model output")

// MaxReminderOffsetMinutes bounds how far ahead of the due instant a
// reminder may fire (one year).
const MaxReminderOffsetMinutes = 365 * 24 * 60

// Priority is the three-level task priority.
type Priority string

const (
	PriorityHigh   Priority = "ALTA"
	PriorityMedium Priority = "MEDIA"
	PriorityLow    Priority = "BAIXA"
)

// ParsePriority normalizes a model-supplied priority, defaulting to MEDIA.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToUpper(strings.TrimSpace(s))) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Category tags a task.
type Category string

const (
	CategoryWork     Category = "TRABALHO"
	CategoryPersonal Category = "PESSOAL"
	CategoryStudy    Category = "ESTUDO"
	CategoryHealth   Category = "SAUDE"
	CategoryGeneral  Category = "GERAL"
)

var categoryLabels = map[Category]string{
	CategoryWork:     "Trabalho",
	CategoryPersonal: "Pessoal",
	CategoryStudy:    "Estudo",
	CategoryHealth:   "Saúde",
	CategoryGeneral:  "Geral",
}

// ParseCategory normalizes a model-supplied category, defaulting to GERAL.
func ParseCategory(s string) Category {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("Ú", "U", "ú", "U").Replace(s)
	c := Category(s)
	if _, ok := categoryLabels[c]; ok {
		return c
	}
	return CategoryGeneral
}

// Label is the human-readable Portuguese name of the category.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return categoryLabels[CategoryGeneral]
}

// Recurrence is the repeat interval of a recurring task.
type Recurrence string

const (
	RecurrenceNone    Recurrence = ""
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// ParseRecurrence returns the interval or RecurrenceNone.
func ParseRecurrence(s string) Recurrence {
	switch r := Recurrence(strings.ToLower(strings.TrimSpace(s))); r {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return r
	default:
		return RecurrenceNone
	}
}

// TaskIntent is one task the user asked for. When DateMissing is set, Due
// is nil and the task must not be created until a date is supplied.
type TaskIntent struct {
	Title                 string
	Description           string
	Priority              Priority
	Category              Category
	Due                   *time.Time
	DateMissing           bool
	Recurring             bool
	Recurrence            Recurrence
	ReminderOffsetMinutes *int
}

// Result is the validated outcome of one extraction call. Tasks may be
// empty, in which case Reply carries the conversational answer.
type Result struct {
	Tasks []TaskIntent
	Reply string
}

// Conversation roles as the model sees them.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of conversation context.
type Turn struct {
	Role    string
	Content string
}

// Completer sends a system instruction plus ordered history to a language
// model and returns its raw text answer.
type Completer interface {
	Complete(ctx context.Context, system string, history []Turn) (string, error)
}
