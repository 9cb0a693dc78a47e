package telegraph

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/taskline/internal/intent"
	"github.com/zulandar/taskline/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultHistoryLimit is the number of turns supplied as model context.
const DefaultHistoryLimit = 30

// ConversationStore persists the per-user conversation log that is replayed
// to the extraction model on every call. Turns are append-only and are read
// back in insertion order, so the window survives restarts.
type ConversationStore struct {
	db     *gorm.DB
	limit  int
	logger *zap.Logger
	now    func() time.Time
}

// ConversationStoreOpts holds parameters for creating a ConversationStore.
type ConversationStoreOpts struct {
	DB     *gorm.DB
	Limit  int // defaults to DefaultHistoryLimit
	Logger *zap.Logger
	Now    func() time.Time // defaults to time.Now
}

// NewConversationStore creates a ConversationStore.
func NewConversationStore(opts ConversationStoreOpts) (*ConversationStore, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("telegraph: conversation store: db is required")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ConversationStore{db: opts.DB, limit: limit, logger: logger, now: now}, nil
}

// Limit returns the configured context window size.
func (cs *ConversationStore) Limit() int { return cs.limit }

// Append records one turn. Failures are logged and swallowed: losing one
// history line must never block a reply.
func (cs *ConversationStore) Append(ctx context.Context, userID, role, content string) {
	turn := models.ConversationTurn{
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: cs.now().UTC(),
	}
	if err := cs.db.WithContext(ctx).Create(&turn).Error; err != nil {
		cs.logger.Warn("append conversation turn",
			zap.String("user_id", userID), zap.String("role", role), zap.Error(err))
	}
}

// Recent returns the last limit turns for userID, oldest first. A limit of
// zero or less uses the store's configured window.
func (cs *ConversationStore) Recent(ctx context.Context, userID string, limit int) ([]intent.Turn, error) {
	if limit <= 0 {
		limit = cs.limit
	}
	var rows []models.ConversationTurn
	err := cs.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("telegraph: recent turns for %s: %w", userID, err)
	}

	turns := make([]intent.Turn, len(rows))
	for i, r := range rows {
		turns[len(rows)-1-i] = intent.Turn{Role: r.Role, Content: r.Content}
	}
	return turns, nil
}

// Prune deletes all but the newest keep turns for userID. keep <= 0 is a
// no-op.
func (cs *ConversationStore) Prune(ctx context.Context, userID string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	if n, err := cs.Count(ctx, userID); err != nil || n <= int64(keep) {
		return 0, err
	}
	var cutoff []uint
	err := cs.db.WithContext(ctx).Model(&models.ConversationTurn{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(keep).
		Pluck("id", &cutoff).Error
	if err != nil {
		return 0, fmt.Errorf("telegraph: prune turns for %s: %w", userID, err)
	}
	if len(cutoff) < keep {
		return 0, nil
	}

	res := cs.db.WithContext(ctx).
		Where("user_id = ? AND id NOT IN ?", userID, cutoff).
		Delete(&models.ConversationTurn{})
	if res.Error != nil {
		return 0, fmt.Errorf("telegraph: prune turns for %s: %w", userID, res.Error)
	}
	return res.RowsAffected, nil
}

// Count returns the number of stored turns for userID.
func (cs *ConversationStore) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := cs.db.WithContext(ctx).Model(&models.ConversationTurn{}).
		Where("user_id = ?", userID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("telegraph: count turns for %s: %w", userID, err)
	}
	return n, nil
}
