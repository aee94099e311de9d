package retrieval

import (
	"context"

	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/logger"
	"github.com/filstation/spprobe/src/utils/model"
	"github.com/filstation/spprobe/src/utils/provider"

	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"
)

// Fetches the declared blocks one by one through the trustless gateway
// surface and re-hashes each body against its CID. Proves the provider
// serves the content block-addressed, not just as a blob.
type BlockFetchStrategy struct {
	config       *config.Config
	capabilities *Capabilities
	log          *logrus.Entry
}

func NewBlockFetchStrategy(config *config.Config, capabilities *Capabilities) (self *BlockFetchStrategy) {
	self = new(BlockFetchStrategy)
	self.config = config
	self.capabilities = capabilities
	self.log = logger.NewSublogger("retrieval-block")
	return
}

func (self *BlockFetchStrategy) Name() string {
	return "block-fetch"
}

func (self *BlockFetchStrategy) Priority() int {
	return 5
}

func (self *BlockFetchStrategy) CanHandle(ctx context.Context, target *Target) bool {
	if !target.Deal.HasServiceType(model.ServiceTypeCar) {
		return false
	}
	car := target.Metadata.Car
	if car == nil || car.RootCid == "" || len(car.BlockCids) == 0 {
		return false
	}
	return self.capabilities.Supports(ctx,
		self.Name()+"|"+target.BaseUrl(),
		self.blockUrl(target, car.RootCid),
		map[string]string{"Accept": provider.ContentTypeIpldRaw})
}

func (self *BlockFetchStrategy) ConstructRequests(target *Target) (requests []*Request, err error) {
	cids, err := self.requestCids(target)
	if err != nil {
		return
	}

	requests = make([]*Request, 0, len(cids))
	for _, blockCid := range cids {
		requests = append(requests, &Request{
			Url:      self.blockUrl(target, blockCid),
			Headers:  map[string]string{"Accept": provider.ContentTypeIpldRaw},
			Protocol: ProtocolHttp11,
		})
	}
	return
}

// Re-hashes the body with the CID's own prefix and compares
func (self *BlockFetchStrategy) ValidateData(index int, data []byte, target *Target) (err error) {
	cids, err := self.requestCids(target)
	if err != nil {
		return
	}
	if index >= len(cids) {
		return xerrors.Errorf("no declared cid at index %d", index)
	}

	expected, err := cid.Parse(cids[index])
	if err != nil {
		return xerrors.Errorf("failed to parse declared cid: %w", err)
	}
	actual, err := expected.Prefix().Sum(data)
	if err != nil {
		return xerrors.Errorf("failed to hash block body: %w", err)
	}
	if !actual.Equals(expected) {
		return xerrors.Errorf("block %s digest mismatch", expected)
	}
	return nil
}

// Walking a big DAG block by block is slow, one extra attempt is plenty
func (self *BlockFetchStrategy) RetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 2,
		Backoff:     self.config.Retrieval.AttemptBackoff,
	}
}

// Declared blocks capped at MaxBlockFetch, with the root always kept in
func (self *BlockFetchStrategy) requestCids(target *Target) (cids []string, err error) {
	car := target.Metadata.Car
	if car == nil || len(car.BlockCids) == 0 {
		err = xerrors.New("deal has no declared block cids")
		return
	}

	cids = car.BlockCids
	max := self.config.Retrieval.MaxBlockFetch
	if max > 0 && len(cids) > max {
		trimmed := make([]string, max)
		copy(trimmed, cids[:max])
		if car.RootCid != "" && !slices.Contains(trimmed, car.RootCid) {
			trimmed[max-1] = car.RootCid
		}
		cids = trimmed
	}
	return
}

func (self *BlockFetchStrategy) blockUrl(target *Target, blockCid string) string {
	return target.BaseUrl() + "/ipfs/" + blockCid
}
