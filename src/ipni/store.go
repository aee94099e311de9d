package ipni

import (
	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/model"
	"github.com/filstation/spprobe/src/utils/monitoring"
	"github.com/filstation/spprobe/src/utils/task"

	"github.com/jackc/pgtype"
	"gorm.io/gorm"
)

// Persists verification state transitions.
// SinkTask handles caching data and periodically calling flush
type Store struct {
	*task.SinkTask[*StateUpdate]

	db      *gorm.DB
	monitor monitoring.Monitor
}

func NewStore(config *config.Config) (self *Store) {
	self = new(Store)

	self.SinkTask = task.NewSinkTask[*StateUpdate](config, "ipni-store").
		WithBatchSize(config.Ipni.StoreBatchSize).
		WithOnFlush(config.Ipni.StoreFlushInterval, self.flush)

	return
}

func (self *Store) WithDB(db *gorm.DB) *Store {
	self.db = db
	return self
}

func (self *Store) WithInputChannel(input chan *StateUpdate) *Store {
	self.SinkTask = self.SinkTask.WithInputChannel(input)
	return self
}

func (self *Store) WithMonitor(monitor monitoring.Monitor) *Store {
	self.monitor = monitor
	return self
}

func (self *Store) flush(updates []*StateUpdate) (err error) {
	if len(updates) == 0 {
		return nil
	}

	self.Log.WithField("len", len(updates)).Debug("Saving verification states")

	err = task.NewRetry().
		WithContext(self.Ctx).
		WithMaxElapsedTime(self.Config.Ipni.StoreMaxElapsedTime).
		WithMaxInterval(self.Config.Ipni.StoreMaxInterval).
		WithOnError(func(err error, isDurationAcceptable bool) error {
			self.Log.WithError(err).Warn("Failed to save verification states, retrying")

			// Update monitoring
			self.monitor.GetReport().Ipni.Errors.DbStateUpdateError.Inc()

			return err
		}).
		Run(func() error {
			return self.db.Transaction(func(tx *gorm.DB) (err error) {
				for _, update := range updates {
					err = self.save(tx, update)
					if err != nil {
						return
					}
				}
				return
			})
		})
	if err != nil {
		self.Log.WithError(err).Error("Failed to save verification states, giving up")
		return
	}

	// Update monitoring
	self.monitor.GetReport().Ipni.State.DbStateUpdated.Add(uint64(len(updates)))

	return
}

func (self *Store) save(tx *gorm.DB, update *StateUpdate) (err error) {
	changes := map[string]interface{}{
		"ipni_state": update.State,
		"ipni_polls": gorm.Expr("ipni_polls + ?", update.Polls),
		"updated_at": gorm.Expr("NOW()"),
	}

	if update.Report != nil {
		var report pgtype.JSONB
		err = report.Set(update.Report)
		if err != nil {
			return
		}
		changes["ipni_verified_cids"] = update.Verified
		changes["ipni_unverified_cids"] = update.Unverified
		changes["ipni_report"] = report
	}

	// Another replica may have finished this deal in the meantime,
	// terminal states are never overwritten
	return tx.Model(&model.Deal{}).
		Where("id = ?", update.DealId).
		Where("ipni_state NOT IN ?", []model.IpniState{model.IpniStateVerified, model.IpniStateFailed}).
		Updates(changes).
		Error
}
