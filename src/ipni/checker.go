package ipni

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/indexer"
	"github.com/filstation/spprobe/src/utils/model"
	"github.com/filstation/spprobe/src/utils/monitoring"
	"github.com/filstation/spprobe/src/utils/provider"
	"github.com/filstation/spprobe/src/utils/task"

	"golang.org/x/exp/slices"
)

// Advances claimed deals through the verification state machine:
// polls the provider's piece status, then confirms every declared CID
// in the index network
type Checker struct {
	*task.Task
	monitor monitoring.Monitor

	providerClient *provider.Client
	indexerClient  *indexer.Client

	// Deals claimed by the poller
	input chan *model.Deal

	// State transitions for the store
	Output chan *StateUpdate
}

func NewChecker(config *config.Config) (self *Checker) {
	self = new(Checker)

	self.Output = make(chan *StateUpdate)

	self.Task = task.NewTask(config, "ipni-checker").
		WithSubtaskFunc(self.run).
		WithWorkerPool(config.Ipni.WorkerPoolSize, config.Ipni.WorkerQueueSize).
		WithOnAfterStop(func() {
			close(self.Output)
		})

	return
}

func (self *Checker) WithProviderClient(client *provider.Client) *Checker {
	self.providerClient = client
	return self
}

func (self *Checker) WithIndexerClient(client *indexer.Client) *Checker {
	self.indexerClient = client
	return self
}

func (self *Checker) WithInputChannel(input chan *model.Deal) *Checker {
	self.input = input
	return self
}

func (self *Checker) WithMonitor(monitor monitoring.Monitor) *Checker {
	self.monitor = monitor
	return self
}

func (self *Checker) run() error {
	// Blocks waiting for claimed deals.
	// Quits when the channel is closed.
	for deal := range self.input {
		deal := deal

		self.SubmitToWorker(func() {
			update := self.check(deal)
			if update == nil {
				return
			}

			select {
			case <-self.Ctx.Done():
			case self.Output <- update:
			}
		})
	}

	return nil
}

// One verification round for one deal. Returns the resulting state
// transition, nil when there is nothing to record.
func (self *Checker) check(deal *model.Deal) (update *StateUpdate) {
	log := self.Log.WithField("deal_id", deal.ID).WithField("provider", deal.ProviderAddress)

	if time.Since(deal.CreatedAt) > self.Config.Ipni.VerificationDeadline {
		log.Warn("Deal missed the verification deadline")

		// Update monitoring
		self.monitor.GetReport().Ipni.State.DealsFailed.Inc()

		return &StateUpdate{
			DealId: deal.ID,
			State:  model.IpniStateFailed,
			Report: &VerificationReport{Error: "verification deadline exceeded"},
		}
	}

	sp := self.Config.ProviderByAddress(deal.ProviderAddress)
	if sp == nil {
		log.Error("Deal's provider is no longer on the roster")
		self.monitor.GetReport().Ipni.State.DealsFailed.Inc()
		return &StateUpdate{
			DealId: deal.ID,
			State:  model.IpniStateFailed,
			Report: &VerificationReport{Error: "provider not on the roster"},
		}
	}

	metadata, err := deal.GetMetadata()
	if err != nil || metadata.Car == nil || metadata.Car.PieceCid == "" {
		log.Error("Deal has no usable car metadata")
		self.monitor.GetReport().Ipni.State.DealsFailed.Inc()
		return &StateUpdate{
			DealId: deal.ID,
			State:  model.IpniStateFailed,
			Report: &VerificationReport{Error: "deal has no car metadata"},
		}
	}

	state := deal.IpniState
	polls := 0

	if state == model.IpniStatePending || state == model.IpniStateSpIndexed {
		pollCtx, cancel := context.WithTimeout(self.Ctx, self.Config.Ipni.StatusPollTimeout)
		result, err := self.PollPieceStatus(pollCtx, sp, metadata.Car.PieceCid)
		cancel()

		polls = result.Polls

		// Update monitoring
		self.monitor.GetReport().Ipni.State.StatusPolls.Add(uint64(result.Polls))

		if err != nil {
			// Update monitoring
			self.monitor.GetReport().Ipni.Errors.ProviderStatusError.Inc()

			log.WithError(err).Error("Failed to get piece status from the provider")
			return &StateUpdate{DealId: deal.ID, State: state, Polls: polls}
		}

		if result.Rejected {
			log.WithField("reason", result.Error).Warn("Provider rejected the piece")
			self.monitor.GetReport().Ipni.State.DealsFailed.Inc()
			return &StateUpdate{
				DealId: deal.ID,
				State:  model.IpniStateFailed,
				Polls:  polls,
				Report: &VerificationReport{Error: "provider rejected the piece: " + result.Error},
			}
		}

		next := state
		switch {
		case result.Advertised:
			next = model.IpniStateSpAdvertised
		case result.Indexed:
			next = model.IpniStateSpIndexed
		}
		if next != state && state.CanTransition(next) {
			log.WithField("from", state).WithField("to", next).Debug("Deal advanced")
			state = next

			// Update monitoring
			self.monitor.GetReport().Ipni.State.DealsAdvanced.Inc()
		}
	}

	if state != model.IpniStateSpAdvertised {
		// Not there yet, the next claim cycle picks it up again
		return &StateUpdate{DealId: deal.ID, State: state, Polls: polls}
	}

	report := self.VerifyAllCids(self.Ctx, metadata.Car.BlockCids, metadata.Car.RootCid)

	// Update monitoring
	self.monitor.GetReport().Ipni.State.CidsVerified.Add(uint64(report.Verified))
	self.monitor.GetReport().Ipni.State.CidsUnverified.Add(uint64(report.Unverified))

	if report.Unverified == 0 && report.RootVerified && state.CanTransition(model.IpniStateVerified) {
		log.WithField("cids", report.Verified).Info("Deal fully verified in the index network")
		state = model.IpniStateVerified

		// Update monitoring
		self.monitor.GetReport().Ipni.State.DealsVerified.Inc()
	}

	return &StateUpdate{
		DealId:     deal.ID,
		State:      state,
		Polls:      polls,
		Verified:   report.Verified,
		Unverified: report.Unverified,
		Report:     report,
	}
}

// Flags and counters of one status-polling round
type PollResult struct {
	Polls      int
	Elapsed    time.Duration
	Indexed    bool
	Advertised bool
	Rejected   bool
	Error      string
}

// Polls the provider's piece status until the piece is advertised, the
// provider rejects it, or ctx runs out. Partial progress is not an error,
// the deal gets re-claimed later.
func (self *Checker) PollPieceStatus(ctx context.Context, sp *config.Provider, pieceCid string) (result *PollResult, err error) {
	result = new(PollResult)

	started := time.Now()
	defer func() { result.Elapsed = time.Since(started) }()

	for {
		status, serr := self.providerClient.GetPieceStatus(ctx, sp, pieceCid)
		if serr != nil {
			err = serr
			return
		}

		result.Polls += 1
		result.Indexed = status.Indexed
		result.Advertised = status.Advertised

		if status.Error != "" || strings.EqualFold(status.Status, "failed") {
			result.Rejected = true
			result.Error = status.Error
			return
		}
		if status.Advertised {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(self.Config.Ipni.StatusPollInterval):
		}
	}
}

// Looks up every declared CID in the index network with bounded
// parallelism. The root gets its own flag, a provider advertising just
// the root is a common failure shape.
func (self *Checker) VerifyAllCids(ctx context.Context, blockCids []string, rootCid string) (report *VerificationReport) {
	report = &VerificationReport{Total: len(blockCids)}

	parallel := self.Config.Indexer.MaxParallelLookups
	if parallel < 1 {
		parallel = 1
	}

	var mtx sync.Mutex
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, parallel)

	for _, blockCid := range blockCids {
		blockCid := blockCid

		wg.Add(1)
		semaphore <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-semaphore }()

			result, err := self.indexerClient.Lookup(ctx, blockCid)

			mtx.Lock()
			defer mtx.Unlock()
			switch {
			case err != nil:
				// Update monitoring
				self.monitor.GetReport().Ipni.Errors.IndexerLookupError.Inc()

				report.Unverified += 1
				report.Failures = append(report.Failures, VerificationFailure{
					Cid:    blockCid,
					Reason: "lookup failed: " + err.Error(),
				})
			case !result.Found:
				report.Unverified += 1
				report.Failures = append(report.Failures, VerificationFailure{
					Cid:            blockCid,
					Reason:         "not found in index",
					KnownAddresses: result.KnownAddresses,
				})
			default:
				report.Verified += 1
				if blockCid == rootCid {
					report.RootVerified = true
				}
			}
		}()
	}
	wg.Wait()

	// Keep the report stable for comparison between passes
	slices.SortFunc(report.Failures, func(a, b VerificationFailure) int {
		return strings.Compare(a.Cid, b.Cid)
	})
	return
}
