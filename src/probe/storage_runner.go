package probe

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/filstation/spprobe/src/scheduler"
	"github.com/filstation/spprobe/src/storage"
	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/logger"
	"github.com/filstation/spprobe/src/utils/model"
	"github.com/filstation/spprobe/src/utils/monitoring"
	"github.com/filstation/spprobe/src/utils/provider"
	"github.com/filstation/spprobe/src/utils/task"
	"github.com/filstation/spprobe/src/utils/wallet"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

// Job types partitioned per provider
const (
	JobTypeStorage   = "storage"
	JobTypeRetrieval = "retrieval"
)

// One full storage probe: payload, strategies, deal, upload, confirmation
type StorageRunner struct {
	config  *config.Config
	db      *gorm.DB
	monitor monitoring.Monitor
	log     *logrus.Entry

	mutex          *scheduler.Mutex
	wallet         *wallet.Client
	registry       *storage.Registry
	providerClient *provider.Client
}

func NewStorageRunner(config *config.Config) (self *StorageRunner) {
	self = new(StorageRunner)
	self.config = config
	self.log = logger.NewSublogger("storage-runner")
	return
}

func (self *StorageRunner) WithDB(db *gorm.DB) *StorageRunner {
	self.db = db
	return self
}

func (self *StorageRunner) WithMonitor(monitor monitoring.Monitor) *StorageRunner {
	self.monitor = monitor
	return self
}

func (self *StorageRunner) WithMutex(mutex *scheduler.Mutex) *StorageRunner {
	self.mutex = mutex
	return self
}

func (self *StorageRunner) WithWallet(wallet *wallet.Client) *StorageRunner {
	self.wallet = wallet
	return self
}

func (self *StorageRunner) WithRegistry(registry *storage.Registry) *StorageRunner {
	self.registry = registry
	return self
}

func (self *StorageRunner) WithProviderClient(client *provider.Client) *StorageRunner {
	self.providerClient = client
	return self
}

func (self *StorageRunner) Run(ctx context.Context, sp *config.Provider) (err error) {
	// Update monitoring
	self.monitor.GetReport().Probe.State.StorageJobsStarted.Inc()
	defer self.monitor.GetReport().Probe.State.StorageJobsFinished.Inc()

	lease, err := self.mutex.Acquire(ctx, JobTypeStorage, sp.Address)
	if errors.Is(err, scheduler.ErrMutexHeld) {
		self.log.WithField("provider", sp.Address).Debug("Another replica is probing this provider, skipping")
		self.monitor.GetReport().Probe.State.MutexSkips.Inc()
		return nil
	}
	if err != nil {
		self.monitor.GetReport().Probe.Errors.DbError.Inc()
		return
	}

	// A probe outlives the renew interval, keep the lease fresh
	keepAliveCtx, cancelKeepAlive := context.WithCancel(ctx)
	go lease.KeepAlive(keepAliveCtx)
	defer func() {
		cancelKeepAlive()

		// Release even when the job ctx is already cancelled,
		// the liveness timeout remains the backstop
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if rerr := lease.Release(releaseCtx); rerr != nil {
			self.log.WithError(rerr).WithField("provider", sp.Address).Error("Failed to release job mutex")
		}
	}()

	return self.probe(ctx, sp)
}

func (self *StorageRunner) probe(ctx context.Context, sp *config.Provider) (err error) {
	// Top up before the deal creation burst. A failing allowance service
	// doesn't block probing, deal creation surfaces real fund problems.
	err = self.wallet.EnsureAllowance(ctx)
	if err != nil {
		self.log.WithError(err).Warn("Failed to ensure wallet allowance")
		self.monitor.GetReport().Probe.Errors.WalletError.Inc()
	}

	payload := make([]byte, self.config.Probe.PayloadSize)
	_, err = rand.Read(payload)
	if err != nil {
		return xerrors.Errorf("failed to generate payload: %w", err)
	}
	fileName := fmt.Sprintf("spprobe-%d-%s.bin", time.Now().UnixMilli(), xid.New().String())

	deal := model.NewDeal(sp.Address, fileName, int64(len(payload)))
	err = self.db.WithContext(ctx).Create(deal).Error
	if err != nil {
		self.monitor.GetReport().Probe.Errors.DbError.Inc()
		return xerrors.Errorf("failed to insert deal: %w", err)
	}

	// Update monitoring
	self.monitor.GetReport().Probe.State.DealsCreated.Inc()

	log := self.log.WithField("deal_id", deal.ID).WithField("provider", sp.Address)
	log.WithField("file", fileName).Info("Storage probe started")

	job := storage.NewJob(sp, fileName, payload)
	err = self.registry.Run(ctx, job)
	if err != nil {
		// Structural, retrying the same bytes cannot help
		self.monitor.GetReport().Probe.Errors.PackagingError.Inc()
		self.fail(ctx, deal, err)
		return
	}

	err = deal.SetMetadata(job.Metadata)
	if err != nil {
		self.fail(ctx, deal, err)
		return
	}
	deal.ServiceTypes = job.ServiceTypes
	err = self.advance(ctx, deal, model.DealStatusPreprocessed, map[string]interface{}{
		"metadata":        deal.Metadata,
		"service_types":   deal.ServiceTypes,
		"preprocessed_at": gorm.Expr("NOW()"),
	})
	if err != nil {
		return
	}

	response, err := self.createRemoteDeal(ctx, sp, deal, job)
	if err != nil {
		self.monitor.GetReport().Probe.Errors.DealCreationError.Inc()
		self.fail(ctx, deal, err)
		return
	}
	err = self.advance(ctx, deal, model.DealStatusSubmitted, map[string]interface{}{
		"submitted_at": gorm.Expr("NOW()"),
		"retry_count":  deal.RetryCount,
	})
	if err != nil {
		return
	}

	// Providers usually echo the id from the request
	remoteId := response.DealId
	if remoteId == "" {
		remoteId = deal.ID.String()
	}

	contentType := provider.ContentTypeOctetStream
	if job.Metadata.Car != nil {
		contentType = provider.ContentTypeCar
	}
	err = self.providerClient.UploadPayload(ctx, sp, remoteId, contentType, job.Payload)
	if err != nil {
		self.monitor.GetReport().Probe.Errors.UploadError.Inc()
		self.fail(ctx, deal, xerrors.Errorf("upload failed: %w", err))
		return
	}

	// Update monitoring
	self.monitor.GetReport().Probe.State.BytesUploaded.Add(uint64(len(job.Payload)))

	err = self.awaitStored(ctx, sp, remoteId)
	if err != nil {
		self.fail(ctx, deal, err)
		return
	}

	// Strategy hooks stamp derived columns, car sets the piece cid
	// and queues the deal for verification
	err = self.registry.PostProcess(ctx, job, deal)
	if err != nil {
		self.fail(ctx, deal, err)
		return
	}
	changes := map[string]interface{}{"stored_at": gorm.Expr("NOW()")}
	if deal.PieceCid.String != "" {
		changes["piece_cid"] = deal.PieceCid
	}
	if deal.IpniState != "" {
		changes["ipni_state"] = deal.IpniState
	}
	err = self.advance(ctx, deal, model.DealStatusStored, changes)
	if err != nil {
		return
	}

	// Update monitoring
	self.monitor.GetReport().Probe.State.DealsStored.Inc()

	err = self.advance(ctx, deal, model.DealStatusComplete, map[string]interface{}{
		"completed_at": gorm.Expr("NOW()"),
	})
	if err != nil {
		return
	}

	// Update monitoring
	self.monitor.GetReport().Probe.State.DealsComplete.Inc()

	log.WithField("service_types", []string(deal.ServiceTypes)).Info("Storage probe finished")
	return nil
}

// Asks the provider to accept the deal, with bounded retries.
// Every retry is counted on the deal row.
func (self *StorageRunner) createRemoteDeal(ctx context.Context, sp *config.Provider, deal *model.Deal, job *storage.Job) (response *provider.CreateDealResponse, err error) {
	request := &provider.CreateDealRequest{
		DealId:       deal.ID.String(),
		FileName:     deal.FileName,
		FileSize:     deal.FileSize,
		ServiceTypes: job.ServiceTypes,
		Flags:        job.Flags,
	}
	if job.Metadata.Car != nil {
		request.PieceCid = job.Metadata.Car.PieceCid
		request.RootCid = job.Metadata.Car.RootCid
		request.CarSize = job.Metadata.Car.CarSize
	}

	err = task.NewRetry().
		WithContext(ctx).
		WithMaxElapsedTime(self.config.Probe.CreateMaxElapsedTime).
		WithMaxInterval(self.config.Probe.CreateMaxInterval).
		WithOnError(func(err error, isDurationAcceptable bool) error {
			self.log.WithError(err).WithField("provider", sp.Address).Warn("Deal creation failed, retrying")
			deal.RetryCount += 1
			return err
		}).
		Run(func() (err error) {
			response, err = self.providerClient.CreateDeal(ctx, sp, request)
			return
		})
	return
}

// Polls the provider until it confirms the payload is stored
func (self *StorageRunner) awaitStored(ctx context.Context, sp *config.Provider, remoteId string) (err error) {
	ctx, cancel := context.WithTimeout(ctx, self.config.Probe.StoreTimeout)
	defer cancel()

	for {
		status, serr := self.providerClient.GetDeal(ctx, sp, remoteId)
		if serr == nil {
			switch status.Status {
			case provider.DealStateStored:
				return nil
			case provider.DealStateFailed:
				return xerrors.Errorf("provider reported deal failure: %s", status.ErrorMessage)
			}
		} else {
			self.log.WithError(serr).WithField("provider", sp.Address).Debug("Deal status poll failed")
		}

		select {
		case <-ctx.Done():
			return xerrors.Errorf("deal not stored in time: %w", ctx.Err())
		case <-time.After(self.config.Probe.StorePollInterval):
		}
	}
}

func (self *StorageRunner) advance(ctx context.Context, deal *model.Deal, next model.DealStatus, changes map[string]interface{}) (err error) {
	if !deal.Status.CanAdvance(next) {
		return xerrors.Errorf("deal %s cannot advance %s -> %s", deal.ID, deal.Status, next)
	}

	changes["status"] = next
	changes["updated_at"] = gorm.Expr("NOW()")
	err = self.db.WithContext(ctx).
		Model(&model.Deal{}).
		Where("id = ?", deal.ID).
		Updates(changes).
		Error
	if err != nil {
		self.monitor.GetReport().Probe.Errors.DbError.Inc()
		return xerrors.Errorf("failed to advance deal to %s: %w", next, err)
	}

	deal.Status = next
	return
}

// Terminal failure, keeps the cause on the row
func (self *StorageRunner) fail(ctx context.Context, deal *model.Deal, cause error) {
	self.log.WithError(cause).WithField("deal_id", deal.ID).Error("Storage probe failed")

	// Update monitoring
	self.monitor.GetReport().Probe.State.DealsFailed.Inc()

	if !deal.Status.CanAdvance(model.DealStatusFailed) {
		return
	}
	deal.Status = model.DealStatusFailed
	_ = deal.ErrorMessage.Set(cause.Error())

	err := self.db.WithContext(ctx).
		Model(&model.Deal{}).
		Where("id = ?", deal.ID).
		Updates(map[string]interface{}{
			"status":        model.DealStatusFailed,
			"error_message": deal.ErrorMessage,
			"retry_count":   deal.RetryCount,
			"completed_at":  gorm.Expr("NOW()"),
			"updated_at":    gorm.Expr("NOW()"),
		}).
		Error
	if err != nil {
		self.monitor.GetReport().Probe.Errors.DbError.Inc()
		self.log.WithError(err).WithField("deal_id", deal.ID).Error("Failed to mark deal failed")
	}
}
