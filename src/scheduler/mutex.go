package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/logger"
	"github.com/filstation/spprobe/src/utils/model"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// Another replica holds a live lease, skip this cycle
	ErrMutexHeld = errors.New("job mutex already held")

	// The lease was reclaimed while we held it
	ErrLeaseLost = errors.New("job mutex lease lost")
)

// DB-backed lock preventing duplicate concurrent execution of the same
// (jobType, providerAddress) pair across replicas. One atomic insert-or-claim,
// no external lock manager, no blocking.
type Mutex struct {
	db       *gorm.DB
	config   *config.Config
	log      *logrus.Entry
	hostname string
}

func NewMutex(config *config.Config, db *gorm.DB) (self *Mutex) {
	self = new(Mutex)
	self.config = config
	self.db = db
	self.log = logger.NewSublogger("job-mutex")

	self.hostname, _ = os.Hostname()
	if self.hostname == "" {
		self.hostname = "unknown"
	}
	return
}

// Claims the per-provider lease. Succeeds when no row exists or the existing
// one went stale, meaning its owner stopped renewing for longer than the
// liveness timeout. Returns ErrMutexHeld otherwise.
func (self *Mutex) Acquire(ctx context.Context, jobType, providerAddress string) (lease *Lease, err error) {
	jobId := xid.New().String()

	var claimed []model.JobMutex
	err = self.db.WithContext(ctx).Raw(`
		INSERT INTO job_mutex (provider_address, job_type, job_id, hostname, acquired_at, updated_at)
		VALUES (?, ?, ?, ?, NOW(), NOW())
		ON CONFLICT (provider_address) DO UPDATE
		SET job_type = EXCLUDED.job_type,
			job_id = EXCLUDED.job_id,
			hostname = EXCLUDED.hostname,
			acquired_at = NOW(),
			updated_at = NOW()
		WHERE job_mutex.updated_at < NOW() - ?::interval
		RETURNING *`,
		providerAddress, jobType, jobId, self.hostname,
		fmt.Sprintf("%d seconds", int(self.config.Mutex.LivenessTimeout.Seconds()))).
		Scan(&claimed).Error
	if err != nil {
		return
	}

	if len(claimed) == 0 {
		err = ErrMutexHeld
		return
	}

	lease = &Lease{
		mutex:           self,
		JobId:           jobId,
		JobType:         jobType,
		ProviderAddress: providerAddress,
		log: self.log.WithField("job", jobType).
			WithField("provider", providerAddress).
			WithField("job_id", jobId),
	}
	return
}

// Owned claim on a (jobType, providerAddress) pair
type Lease struct {
	mutex *Mutex
	log   *logrus.Entry

	JobId           string
	JobType         string
	ProviderAddress string
}

// Deletes the row only when the stored token still matches, so a slow caller
// can't release a lock already reclaimed through the liveness timeout
func (self *Lease) Release(ctx context.Context) (err error) {
	res := self.mutex.db.WithContext(ctx).
		Where("provider_address = ? AND job_id = ?", self.ProviderAddress, self.JobId).
		Delete(&model.JobMutex{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		self.log.Warn("Lease was already reclaimed, nothing to release")
	}
	return nil
}

// Refreshes the liveness timestamp. Returns ErrLeaseLost when the row
// was reclaimed by another replica.
func (self *Lease) Renew(ctx context.Context) (err error) {
	res := self.mutex.db.WithContext(ctx).
		Model(&model.JobMutex{}).
		Where("provider_address = ? AND job_id = ?", self.ProviderAddress, self.JobId).
		Update("updated_at", gorm.Expr("NOW()"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Renews the lease on a cadence strictly shorter than the liveness timeout,
// until the context is done. Run in its own goroutine for jobs that outlive
// one renew interval.
func (self *Lease) KeepAlive(ctx context.Context) {
	ticker := time.NewTicker(self.mutex.config.Mutex.RenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := self.Renew(ctx)
		if errors.Is(err, ErrLeaseLost) {
			self.log.Error("Lease lost while running")
			return
		}
		if err != nil && ctx.Err() == nil {
			self.log.WithError(err).Error("Failed to renew lease")
		}
	}
}
