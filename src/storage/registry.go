package storage

import (
	"context"

	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/logger"
	"github.com/filstation/spprobe/src/utils/model"
	"github.com/filstation/spprobe/src/utils/packager"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"
)

// Applicable strategies in execution order, built once at startup
type Registry struct {
	config     *config.Config
	log        *logrus.Entry
	strategies []Strategy
}

func NewRegistry(config *config.Config, packager *packager.Packager) (self *Registry, err error) {
	self = new(Registry)
	self.config = config
	self.log = logger.NewSublogger("storage-registry")

	all := []Strategy{
		NewCarStrategy(config, packager),
		NewDirectStrategy(),
	}
	for _, strategy := range all {
		if !strategy.IsApplicable(config) {
			self.log.WithField("strategy", strategy.Name()).Debug("Storage strategy disabled")
			continue
		}
		self.strategies = append(self.strategies, strategy)
	}
	if len(self.strategies) == 0 {
		err = xerrors.New("no storage strategy enabled")
		return
	}

	slices.SortStableFunc(self.strategies, func(a, b Strategy) int {
		return a.Priority() - b.Priority()
	})
	return
}

func (self *Registry) Strategies() []Strategy {
	return self.strategies
}

// Threads the payload through every strategy in priority order, merging
// metadata and provider flags. Any failure aborts the whole chain, a deal
// built on a half-transformed payload is worse than no deal.
func (self *Registry) Run(ctx context.Context, job *Job) (err error) {
	for _, strategy := range self.strategies {
		err = strategy.PreprocessData(ctx, job)
		if err != nil {
			return xerrors.Errorf("strategy %s failed: %w", strategy.Name(), err)
		}

		if validator, ok := strategy.(ResultValidator); ok {
			err = validator.ValidateResult(ctx, job)
			if err != nil {
				return xerrors.Errorf("strategy %s produced an invalid result: %w", strategy.Name(), err)
			}
		}

		for key, value := range strategy.ProviderConfig() {
			job.Flags[key] = value
		}
		job.ServiceTypes = append(job.ServiceTypes, strategy.Name())
	}
	return nil
}

// Runs the post-deal hooks of strategies that have one
func (self *Registry) PostProcess(ctx context.Context, job *Job, deal *model.Deal) (err error) {
	for _, strategy := range self.strategies {
		postProcessor, ok := strategy.(PostProcessor)
		if !ok {
			continue
		}
		err = postProcessor.PostProcess(ctx, job, deal)
		if err != nil {
			return xerrors.Errorf("strategy %s post-processing failed: %w", strategy.Name(), err)
		}
	}
	return nil
}
