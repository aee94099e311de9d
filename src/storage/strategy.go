package storage

import (
	"context"

	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/model"
	"github.com/filstation/spprobe/src/utils/packager"
)

// One way of preparing a payload before it is offered to a provider.
// Strategies run in ascending Priority order, each seeing the payload
// left behind by the previous one.
type Strategy interface {
	// Matches the service type recorded on the deal
	Name() string

	// Lower runs first
	Priority() int

	IsApplicable(config *config.Config) bool

	// Transforms the payload in place and merges this strategy's
	// metadata contribution
	PreprocessData(ctx context.Context, job *Job) error

	// Flags merged into the create-deal request
	ProviderConfig() map[string]interface{}
}

// Optional check of a strategy's own output, run right after PreprocessData
type ResultValidator interface {
	ValidateResult(ctx context.Context, job *Job) error
}

// Optional hook run once the deal row exists
type PostProcessor interface {
	PostProcess(ctx context.Context, job *Job, deal *model.Deal) error
}

// Threaded through the applicable strategies. Payload is what ultimately
// gets uploaded, Metadata and Flags accumulate contributions.
type Job struct {
	Provider *config.Provider

	FileName string
	Payload  []byte

	ServiceTypes []string
	Metadata     model.DealMetadata
	Flags        map[string]interface{}

	// Set by the car strategy for downstream verification
	Package *packager.ContentPackage
}

func NewJob(provider *config.Provider, fileName string, payload []byte) (self *Job) {
	self = new(Job)
	self.Provider = provider
	self.FileName = fileName
	self.Payload = payload
	self.Flags = make(map[string]interface{})
	return
}
