// Package user resolves messaging handles to users and applies settings
// changes.
package user

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/zulandar/taskline/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("user: not found")
	// ErrInvalidPhone is returned for phone numbers with fewer than 10 digits.
	ErrInvalidPhone = errors.New("user: invalid phone number")
	// ErrDuplicateHandle is returned when the handle is already registered.
	ErrDuplicateHandle = errors.New("user: handle already registered")
	// ErrHasTasks is returned when removing a user still linked to tasks.
	ErrHasTasks = errors.New("user: user has linked tasks")
)

// DefaultName is used when the transport supplies no display name.
const DefaultName = "Novo Usuário"

// NormalizeHandle strips transport suffixes such as "@c.us" and reduces
// phone-like handles to digits. Non-phone handles (Discord, Slack IDs) are
// returned trimmed.
func NormalizeHandle(h string) string {
	h = strings.TrimSpace(h)
	if i := strings.IndexByte(h, '@'); i >= 0 {
		h = h[:i]
	}
	phoneLike := h != ""
	for _, r := range h {
		if !unicode.IsDigit(r) && !strings.ContainsRune("+-() .", r) {
			phoneLike = false
			break
		}
	}
	if !phoneLike {
		return h
	}
	return digits(h)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FindByHandle returns the user registered under handle.
func FindByHandle(db *gorm.DB, handle string) (*models.User, error) {
	var u models.User
	if err := db.Where("handle = ?", NormalizeHandle(handle)).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user: find %s: %w", handle, err)
	}
	return &u, nil
}

// Get returns the user with id.
func Get(db *gorm.DB, id string) (*models.User, error) {
	var u models.User
	if err := db.Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user: get %s: %w", id, err)
	}
	return &u, nil
}

// Register creates a user for handle.
func Register(db *gorm.DB, handle, name, timezone string) (*models.User, error) {
	handle = NormalizeHandle(handle)
	if handle == "" {
		return nil, fmt.Errorf("user: handle is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}

	var count int64
	if err := db.Model(&models.User{}).Where("handle = ?", handle).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("user: check handle: %w", err)
	}
	if count > 0 {
		return nil, ErrDuplicateHandle
	}

	u := models.User{
		ID:       uuid.NewString(),
		Name:     name,
		Handle:   handle,
		Timezone: timezone,
		Role:     "member",
	}
	if err := db.Create(&u).Error; err != nil {
		return nil, fmt.Errorf("user: register %s: %w", handle, err)
	}
	return &u, nil
}

// FindOrCreate resolves handle, registering a new user on first contact.
// created reports whether the user was just registered.
func FindOrCreate(db *gorm.DB, handle, name, timezone string) (u *models.User, created bool, err error) {
	u, err = FindByHandle(db, handle)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	u, err = Register(db, handle, name, timezone)
	if errors.Is(err, ErrDuplicateHandle) {
		// Lost a race with another registration of the same handle.
		u, err = FindByHandle(db, handle)
		return u, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// AddMember registers a teammate by phone number.
func AddMember(db *gorm.DB, name, phone, timezone string) (*models.User, error) {
	p := digits(phone)
	if len(p) < 10 {
		return nil, ErrInvalidPhone
	}
	return Register(db, p, name, timezone)
}

// List returns every user ordered by name.
func List(db *gorm.DB) ([]models.User, error) {
	var users []models.User
	if err := db.Order("name ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("user: list: %w", err)
	}
	return users, nil
}

// FindMember matches term against handles and names, case-insensitively.
func FindMember(db *gorm.DB, term string) (*models.User, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, ErrNotFound
	}
	like := "%" + strings.ToLower(term) + "%"
	q := db.Where("LOWER(name) LIKE ?", like)
	if d := digits(term); d != "" {
		q = q.Or("handle LIKE ?", "%"+d+"%")
	}

	var u models.User
	if err := q.Order("name ASC").First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user: find member %q: %w", term, err)
	}
	return &u, nil
}

// Remove deletes a user that has no linked tasks.
func Remove(db *gorm.DB, id string) error {
	var count int64
	if err := db.Model(&models.Task{}).Where("creator_id = ? OR assignee_id = ?", id, id).Count(&count).Error; err != nil {
		return fmt.Errorf("user: count tasks of %s: %w", id, err)
	}
	if count > 0 {
		return ErrHasTasks
	}
	if err := db.Where("user_id = ?", id).Delete(&models.ConversationTurn{}).Error; err != nil {
		return fmt.Errorf("user: delete history of %s: %w", id, err)
	}
	if err := db.Where("id = ?", id).Delete(&models.User{}).Error; err != nil {
		return fmt.Errorf("user: remove %s: %w", id, err)
	}
	return nil
}

// SetPersona stores the persona key for a user.
func SetPersona(db *gorm.DB, id, key string) error {
	return update(db, id, "persona", key)
}

// SetTimezone stores the IANA timezone for a user.
func SetTimezone(db *gorm.DB, id, tz string) error {
	return update(db, id, "timezone", tz)
}

// SetSummaryTime stores the daily summary clock; nil disables it.
func SetSummaryTime(db *gorm.DB, id string, clock *string) error {
	return update(db, id, "daily_summary_time", clock)
}

// MarkSummarySent records the local date of the last daily summary.
func MarkSummarySent(db *gorm.DB, id, localDate string) error {
	return update(db, id, "last_summary_date", localDate)
}

// WithSummary returns users that configured a daily summary time.
func WithSummary(db *gorm.DB) ([]models.User, error) {
	var users []models.User
	if err := db.Where("daily_summary_time IS NOT NULL AND daily_summary_time <> ''").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("user: with summary: %w", err)
	}
	return users, nil
}

func update(db *gorm.DB, id, column string, value interface{}) error {
	res := db.Model(&models.User{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("user: update %s of %s: %w", column, id, res.Error)
	}
	return nil
}
