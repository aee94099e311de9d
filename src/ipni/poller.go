package ipni

import (
	"context"
	"fmt"
	"time"

	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/model"
	"github.com/filstation/spprobe/src/utils/monitoring"
	"github.com/filstation/spprobe/src/utils/task"

	"gorm.io/gorm"
)

// Periodically claims content-addressed deals that are due a verification
// check and feeds them to the checker
type Poller struct {
	*task.Task
	db      *gorm.DB
	monitor monitoring.Monitor

	Output chan *model.Deal
}

func NewPoller(config *config.Config) (self *Poller) {
	self = new(Poller)

	self.Output = make(chan *model.Deal)

	self.Task = task.NewTask(config, "ipni-poller").
		WithRepeatedSubtaskFunc(config.Ipni.PollerInterval, self.handleDue).
		WithOnAfterStop(func() {
			close(self.Output)
		})

	return
}

func (self *Poller) WithDB(db *gorm.DB) *Poller {
	self.db = db
	return self
}

func (self *Poller) WithMonitor(monitor monitoring.Monitor) *Poller {
	self.monitor = monitor
	return self
}

// Claims one batch. Stamping ipni_checked_at in the claiming statement
// keeps other replicas and the next cycle off these rows for the
// retry-after window.
func (self *Poller) handleDue() (repeat bool, err error) {
	// Interrupts longer queries
	ctx, cancel := context.WithTimeout(self.Ctx, 5*time.Minute)
	defer cancel()

	deals := make([]model.Deal, 0, self.Config.Ipni.PollerMaxBatchSize)

	err = self.db.WithContext(ctx).
		Raw(`UPDATE deals
			SET ipni_checked_at = NOW(), updated_at = NOW()
			WHERE id IN (
				SELECT id
				FROM deals
				WHERE ipni_state IN ('PENDING', 'SP_INDEXED', 'SP_ADVERTISED')
					AND 'car' = ANY(service_types)
					AND status IN ('STORED', 'COMPLETE')
					AND (ipni_checked_at IS NULL OR ipni_checked_at < NOW() - ?::interval)
				ORDER BY created_at ASC, id ASC
				LIMIT ?
				FOR UPDATE SKIP LOCKED)
			RETURNING *`,
			fmt.Sprintf("%d seconds", int(self.Config.Ipni.PollerRetryAfter.Seconds())),
			self.Config.Ipni.PollerMaxBatchSize).
		Scan(&deals).
		Error
	if err != nil {
		self.Log.WithError(err).Error("Failed to claim deals for verification")
		return
	}

	if len(deals) > 0 {
		self.Log.WithField("len", len(deals)).Debug("Claimed deals for verification")
	}

	for i := range deals {
		select {
		case <-self.Ctx.Done():
			return
		case self.Output <- &deals[i]:
		}
	}

	// Update monitoring
	self.monitor.GetReport().Ipni.State.DealsTakenFromDb.Add(uint64(len(deals)))

	// A full batch means there may be more waiting
	repeat = len(deals) == self.Config.Ipni.PollerMaxBatchSize
	return
}
