package models

import "time"

// SchedulerLease records which process currently runs the scheduled sweeps.
// A lease whose heartbeat is older than the timeout may be taken over.
type SchedulerLease struct {
	Name          string    `gorm:"primaryKey;size:64"`
	Holder        string    `gorm:"size:128;not null"`
	LastHeartbeat time.Time `gorm:"index"`
	AcquiredAt    time.Time
}
