package retrieval

import (
	"context"
	"time"

	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/model"
)

// HTTP protocol version a request is pinned to. They carry different
// timeout models, a multiplexed connection gets a short header budget
// plus a long transfer budget, a plain one gets a single inactivity
// timeout.
type Protocol int

const (
	ProtocolHttp11 Protocol = iota + 1
	ProtocolHttp2
)

// One deal to fetch back from its provider
type Target struct {
	Deal     *model.Deal
	Provider *config.Provider
	Metadata model.DealMetadata
}

// Retrievals go to the dedicated endpoint when the provider has one
func (self *Target) BaseUrl() string {
	if self.Provider.RetrievalUrl != "" {
		return self.Provider.RetrievalUrl
	}
	return self.Provider.ServiceUrl
}

// One URL fetched within an attempt
type Request struct {
	Url      string
	Headers  map[string]string
	Protocol Protocol
}

// One way of getting the content back. Strategies run in ascending
// Priority order and fail independently of each other.
type Strategy interface {
	// Matches the service type recorded on the retrieval row
	Name() string

	// Lower is preferred
	Priority() int

	// Whether this strategy applies to the deal, based on its recorded
	// service types and the provider's probed capability
	CanHandle(ctx context.Context, target *Target) bool

	// All URLs fetched within a single attempt, in order.
	// Single-request strategies return one element.
	ConstructRequests(target *Target) ([]*Request, error)
}

// Optional check of a fetched body, index aligned with the requests slice.
// A failed check is structural, the attempt is not retried.
type DataValidator interface {
	ValidateData(index int, data []byte, target *Target) error
}

// Optional override of the executor-wide attempt budget
type RetryConfigurer interface {
	RetryConfig() RetryConfig
}

type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}
