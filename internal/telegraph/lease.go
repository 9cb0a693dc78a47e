package telegraph

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/taskline/internal/models"
	"gorm.io/gorm"
)

// DefaultLeaseTimeout is the duration after which a lease heartbeat is
// considered stale and another process may take the lease over.
const DefaultLeaseTimeout = 90 * time.Second

// ErrLeaseHeld is returned when another live process holds the lease.
var ErrLeaseHeld = errors.New("telegraph: lease held by another process")

// AcquireLease takes or renews the named lease for holder. A lease held by
// holder is renewed, a stale one is taken over, and a live one held by
// someone else fails with ErrLeaseHeld.
func AcquireLease(db *gorm.DB, name, holder string, timeout time.Duration, now time.Time) (*models.SchedulerLease, error) {
	if holder == "" {
		return nil, fmt.Errorf("telegraph: acquire lease: holder is required")
	}
	if timeout <= 0 {
		timeout = DefaultLeaseTimeout
	}
	now = now.UTC()

	var lease models.SchedulerLease
	err := db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("name = ?", name).First(&lease)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			lease = models.SchedulerLease{Name: name, Holder: holder, LastHeartbeat: now, AcquiredAt: now}
			if err := tx.Create(&lease).Error; err != nil {
				return fmt.Errorf("create lease: %w", err)
			}
			return nil
		}
		if result.Error != nil {
			return fmt.Errorf("load lease: %w", result.Error)
		}

		stale := lease.LastHeartbeat.Before(now.Add(-timeout))
		if lease.Holder != holder && !stale {
			return fmt.Errorf("%w (%s)", ErrLeaseHeld, lease.Holder)
		}
		updates := map[string]interface{}{"holder": holder, "last_heartbeat": now}
		if lease.Holder != holder {
			updates["acquired_at"] = now
			lease.AcquiredAt = now
		}
		if err := tx.Model(&models.SchedulerLease{}).Where("name = ?", name).Updates(updates).Error; err != nil {
			return fmt.Errorf("renew lease: %w", err)
		}
		lease.Holder = holder
		lease.LastHeartbeat = now
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLeaseHeld) {
			return nil, err
		}
		return nil, fmt.Errorf("telegraph: acquire lease: %w", err)
	}
	return &lease, nil
}

// ReleaseLease gives up the named lease if holder still owns it.
func ReleaseLease(db *gorm.DB, name, holder string) error {
	if err := db.Where("name = ? AND holder = ?", name, holder).Delete(&models.SchedulerLease{}).Error; err != nil {
		return fmt.Errorf("telegraph: release lease: %w", err)
	}
	return nil
}
