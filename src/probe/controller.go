package probe

import (
	"context"
	"time"

	"github.com/filstation/spprobe/src/ipni"
	"github.com/filstation/spprobe/src/retrieval"
	"github.com/filstation/spprobe/src/scheduler"
	"github.com/filstation/spprobe/src/storage"
	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/indexer"
	"github.com/filstation/spprobe/src/utils/model"
	"github.com/filstation/spprobe/src/utils/monitoring"
	monitor_probe "github.com/filstation/spprobe/src/utils/monitoring/probe"
	"github.com/filstation/spprobe/src/utils/packager"
	"github.com/filstation/spprobe/src/utils/provider"
	"github.com/filstation/spprobe/src/utils/proxy"
	"github.com/filstation/spprobe/src/utils/task"
	"github.com/filstation/spprobe/src/utils/wallet"
)

// Main task of the probe service. Composes the schedulers, the runners
// and the verification pipeline
type Controller struct {
	*task.Task
}

func NewController(config *config.Config) (self *Controller, err error) {
	self = new(Controller)
	self.Task = task.NewTask(config, "probe-controller")

	// SQL database
	db, err := model.NewConnection(self.Ctx, config, "probe")
	if err != nil {
		return
	}

	// Monitoring
	monitor := monitor_probe.NewMonitor()
	server := monitoring.NewServer(config).
		WithMonitor(monitor)

	// Clients
	providerClient := provider.NewClient(config)
	walletClient := wallet.NewClient(config)
	indexerClient := indexer.NewClient(config)

	// Content packaging and storage strategies
	contentPackager := packager.NewPackager(config)
	registry, err := storage.NewRegistry(config, contentPackager)
	if err != nil {
		return
	}

	// Retrieval strategies
	proxies := proxy.NewPool(config)
	executor := retrieval.NewExecutor(config, proxies)

	// Cross-replica coordination
	mutex := scheduler.NewMutex(config, db)
	scheduleStore := scheduler.NewScheduleStore(db)

	storageRunner := NewStorageRunner(config).
		WithDB(db).
		WithMonitor(monitor).
		WithMutex(mutex).
		WithWallet(walletClient).
		WithRegistry(registry).
		WithProviderClient(providerClient)

	retrievalRunner := NewRetrievalRunner(config).
		WithDB(db).
		WithMonitor(monitor).
		WithMutex(mutex).
		WithExecutor(executor)

	probeScheduler := scheduler.NewScheduler(config).
		WithStore(scheduleStore)
	for i := range config.Providers {
		sp := &config.Providers[i]
		offset := time.Duration(i) * config.Probe.StartOffsetStep

		probeScheduler.
			WithJob(scheduler.Job{
				Type:            JobTypeStorage,
				ProviderAddress: sp.Address,
				Interval:        config.Probe.StorageInterval,
				StartOffset:     offset,
				Run: func(ctx context.Context) error {
					return storageRunner.Run(ctx, sp)
				},
			}).
			WithJob(scheduler.Job{
				Type:            JobTypeRetrieval,
				ProviderAddress: sp.Address,
				Interval:        config.Probe.RetrievalInterval,
				StartOffset:     offset,
				Run: func(ctx context.Context) error {
					return retrievalRunner.Run(ctx, sp)
				},
			})
	}

	// Verification pipeline, same shape as the standalone verifier
	ipniPoller := ipni.NewPoller(config).
		WithDB(db).
		WithMonitor(monitor)
	ipniChecker := ipni.NewChecker(config).
		WithProviderClient(providerClient).
		WithIndexerClient(indexerClient).
		WithInputChannel(ipniPoller.Output).
		WithMonitor(monitor)
	ipniStore := ipni.NewStore(config).
		WithDB(db).
		WithInputChannel(ipniChecker.Output).
		WithMonitor(monitor)

	// Setup everything
	self.Task.
		WithSubtask(server.Task).
		WithSubtask(ipniStore.Task).
		WithSubtask(monitor.Task).
		WithSubtask(ipniPoller.Task).
		WithSubtask(ipniChecker.Task).
		WithSubtask(probeScheduler.Task)

	return
}
