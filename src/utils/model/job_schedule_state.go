package model

import (
	"database/sql"
	"time"
)

const (
	TableJobScheduleState = "job_schedule_state"
)

// Job types coordinated through the schedule and the mutex
const (
	JobTypeStorage   = "storage"
	JobTypeRetrieval = "retrieval"
)

// Durable anchor for the self-rearming job timers.
// One row per (jobType, providerAddress), upserted after every run.
type JobScheduleState struct {
	JobType         string `gorm:"primaryKey"`
	ProviderAddress string `gorm:"primaryKey"`

	// Cadence of the job
	IntervalSeconds int64

	// When the job is expected to fire next
	NextRunAt sql.NullTime

	// Last recorded completion, across all replicas
	LastRunAt sql.NullTime

	// Paused jobs are never fired
	Paused bool

	UpdatedAt time.Time
}

func (JobScheduleState) TableName() string {
	return TableJobScheduleState
}
