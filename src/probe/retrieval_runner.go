package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/filstation/spprobe/src/retrieval"
	"github.com/filstation/spprobe/src/scheduler"
	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/logger"
	"github.com/filstation/spprobe/src/utils/model"
	"github.com/filstation/spprobe/src/utils/monitoring"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

// One retrieval probe: pick the freshest stored deal and race the
// retrieval strategies against it
type RetrievalRunner struct {
	config  *config.Config
	db      *gorm.DB
	monitor monitoring.Monitor
	log     *logrus.Entry

	mutex    *scheduler.Mutex
	executor *retrieval.Executor
}

func NewRetrievalRunner(config *config.Config) (self *RetrievalRunner) {
	self = new(RetrievalRunner)
	self.config = config
	self.log = logger.NewSublogger("retrieval-runner")
	return
}

func (self *RetrievalRunner) WithDB(db *gorm.DB) *RetrievalRunner {
	self.db = db
	return self
}

func (self *RetrievalRunner) WithMonitor(monitor monitoring.Monitor) *RetrievalRunner {
	self.monitor = monitor
	return self
}

func (self *RetrievalRunner) WithMutex(mutex *scheduler.Mutex) *RetrievalRunner {
	self.mutex = mutex
	return self
}

func (self *RetrievalRunner) WithExecutor(executor *retrieval.Executor) *RetrievalRunner {
	self.executor = executor
	return self
}

func (self *RetrievalRunner) Run(ctx context.Context, sp *config.Provider) (err error) {
	// Update monitoring
	self.monitor.GetReport().Probe.State.RetrievalJobsStarted.Inc()
	defer self.monitor.GetReport().Probe.State.RetrievalJobsFinished.Inc()

	lease, err := self.mutex.Acquire(ctx, JobTypeRetrieval, sp.Address)
	if errors.Is(err, scheduler.ErrMutexHeld) {
		self.log.WithField("provider", sp.Address).Debug("Another replica is probing this provider, skipping")
		self.monitor.GetReport().Probe.State.MutexSkips.Inc()
		return nil
	}
	if err != nil {
		self.monitor.GetReport().Probe.Errors.DbError.Inc()
		return
	}

	keepAliveCtx, cancelKeepAlive := context.WithCancel(ctx)
	go lease.KeepAlive(keepAliveCtx)
	defer func() {
		cancelKeepAlive()

		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if rerr := lease.Release(releaseCtx); rerr != nil {
			self.log.WithError(rerr).WithField("provider", sp.Address).Error("Failed to release job mutex")
		}
	}()

	return self.probe(ctx, sp)
}

func (self *RetrievalRunner) probe(ctx context.Context, sp *config.Provider) (err error) {
	deal, ok, err := self.pickDeal(ctx, sp)
	if err != nil {
		self.monitor.GetReport().Probe.Errors.DbError.Inc()
		return
	}
	if !ok {
		self.log.WithField("provider", sp.Address).Debug("No stored deals fresh enough to probe")
		return nil
	}

	metadata, err := deal.GetMetadata()
	if err != nil {
		return xerrors.Errorf("failed to decode deal metadata: %w", err)
	}

	summary := self.executor.Run(ctx, &retrieval.Target{
		Deal:     deal,
		Provider: sp,
		Metadata: metadata,
	})

	err = self.saveAttempts(ctx, summary.Attempts)
	if err != nil {
		self.monitor.GetReport().Probe.Errors.DbError.Inc()
		return
	}

	// Update monitoring
	report := self.monitor.GetReport().Probe
	report.State.RetrievalAttempts.Add(uint64(summary.TotalMethods))
	report.State.RetrievalSuccesses.Add(uint64(summary.SuccessfulMethods))
	report.State.RetrievalFailures.Add(uint64(summary.FailedMethods))
	for _, attempt := range summary.Attempts {
		report.State.BytesRetrieved.Add(uint64(attempt.BytesRetrieved))
	}
	report.Errors.ValidationError.Add(uint64(summary.ValidationFailures))
	report.Errors.RetrievalError.Add(uint64(summary.FailedMethods - summary.ValidationFailures))

	return nil
}

// Freshest deal the provider confirmed, within the configured age window
func (self *RetrievalRunner) pickDeal(ctx context.Context, sp *config.Provider) (deal *model.Deal, ok bool, err error) {
	var deals []model.Deal
	err = self.db.WithContext(ctx).
		Where("provider_address = ?", sp.Address).
		Where("status IN ?", []model.DealStatus{model.DealStatusStored, model.DealStatusComplete}).
		Where("created_at > NOW() - ?::interval", fmt.Sprintf("%d seconds", int(self.config.Probe.MaxDealAge.Seconds()))).
		Order("created_at DESC").
		Limit(1).
		Find(&deals).
		Error
	if err != nil || len(deals) == 0 {
		return
	}

	deal = &deals[0]
	ok = true
	return
}

func (self *RetrievalRunner) saveAttempts(ctx context.Context, attempts []*model.Retrieval) (err error) {
	if len(attempts) == 0 {
		return nil
	}
	return self.db.WithContext(ctx).Create(&attempts).Error
}
