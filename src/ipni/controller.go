package ipni

import (
	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/indexer"
	"github.com/filstation/spprobe/src/utils/model"
	"github.com/filstation/spprobe/src/utils/monitoring"
	monitor_ipni "github.com/filstation/spprobe/src/utils/monitoring/ipni"
	"github.com/filstation/spprobe/src/utils/provider"
	"github.com/filstation/spprobe/src/utils/task"
)

// Standalone verification pipeline, used by the check command.
// The probe service wires the same components into its own controller.
type Controller struct {
	*task.Task
}

func NewController(config *config.Config) (self *Controller, err error) {
	self = new(Controller)
	self.Task = task.NewTask(config, "ipni-controller")

	// SQL database
	db, err := model.NewConnection(self.Ctx, config, "ipni-verifier")
	if err != nil {
		return
	}

	// Monitoring
	monitor := monitor_ipni.NewMonitor()
	server := monitoring.NewServer(config).
		WithMonitor(monitor)

	// Clients
	providerClient := provider.NewClient(config)
	indexerClient := indexer.NewClient(config)

	// Claims deals awaiting verification
	poller := NewPoller(config).
		WithDB(db).
		WithMonitor(monitor)

	// Polls providers and looks up CIDs in the index network
	checker := NewChecker(config).
		WithProviderClient(providerClient).
		WithIndexerClient(indexerClient).
		WithInputChannel(poller.Output).
		WithMonitor(monitor)

	// Persists state transitions
	store := NewStore(config).
		WithDB(db).
		WithInputChannel(checker.Output).
		WithMonitor(monitor)

	// Setup everything
	self.Task.
		WithSubtask(server.Task).
		WithSubtask(store.Task).
		WithSubtask(monitor.Task).
		WithSubtask(poller.Task).
		WithSubtask(checker.Task)

	return
}
