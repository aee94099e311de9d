package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/filstation/spprobe/src/utils/logger"
	"github.com/filstation/spprobe/src/utils/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Persistence for the per-job schedule anchors
type ScheduleStore struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewScheduleStore(db *gorm.DB) (self *ScheduleStore) {
	self = new(ScheduleStore)
	self.db = db
	self.log = logger.NewSublogger("schedule-store")
	return
}

// Last recorded completion for the job, across all replicas.
// ok is false when no run was recorded yet.
func (self *ScheduleStore) GetLastRunAt(ctx context.Context, jobType, providerAddress string) (lastRunAt time.Time, ok bool, err error) {
	var state model.JobScheduleState
	err = self.db.WithContext(ctx).
		Where("job_type = ? AND provider_address = ?", jobType, providerAddress).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = nil
		return
	}
	if err != nil {
		return
	}

	if state.LastRunAt.Valid {
		lastRunAt = state.LastRunAt.Time
		ok = true
	}
	return
}

func (self *ScheduleStore) IsPaused(ctx context.Context, jobType, providerAddress string) (paused bool, err error) {
	var state model.JobScheduleState
	err = self.db.WithContext(ctx).
		Where("job_type = ? AND provider_address = ?", jobType, providerAddress).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = nil
		return
	}
	if err != nil {
		return
	}

	paused = state.Paused
	return
}

// Upserts the schedule row after a run. A completion recorded by another
// replica in the meantime is kept if it's the later one.
func (self *ScheduleStore) RecordRun(ctx context.Context, jobType, providerAddress string, interval time.Duration, lastRunAt, nextRunAt time.Time) (err error) {
	return self.db.WithContext(ctx).Exec(`
		INSERT INTO job_schedule_state (job_type, provider_address, interval_seconds, next_run_at, last_run_at, paused, updated_at)
		VALUES (?, ?, ?, ?, ?, false, NOW())
		ON CONFLICT (job_type, provider_address) DO UPDATE
		SET interval_seconds = EXCLUDED.interval_seconds,
			next_run_at = EXCLUDED.next_run_at,
			last_run_at = GREATEST(job_schedule_state.last_run_at, EXCLUDED.last_run_at),
			updated_at = NOW()`,
		jobType, providerAddress, int64(interval.Seconds()), nextRunAt, lastRunAt).Error
}
