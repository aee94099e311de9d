package model

import (
	"time"
)

const (
	TableJobMutex = "job_mutex"
)

// DB-backed lease guarding one (jobType, providerAddress) execution at a time.
// At most one live row per provider. A row whose UpdatedAt is older than the
// liveness timeout is presumed abandoned and may be claimed by another replica.
type JobMutex struct {
	ProviderAddress string `gorm:"primaryKey"`

	JobType string

	// Random token proving ownership, checked on release
	JobID string

	// Host that acquired the lease
	Hostname string

	AcquiredAt time.Time

	// Refreshed by the holder while the job runs
	UpdatedAt time.Time
}

func (JobMutex) TableName() string {
	return TableJobMutex
}
