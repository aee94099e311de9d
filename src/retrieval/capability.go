package retrieval

import (
	"context"
	"net/http"

	"github.com/filstation/spprobe/src/utils/build_info"
	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/logger"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Remembers which retrieval surfaces a provider actually serves, so
// canHandle checks don't hammer the provider on every probe cycle
type Capabilities struct {
	client          *resty.Client
	capabilityCache *cache.Cache
	log             *logrus.Entry
}

func NewCapabilities(config *config.Config) (self *Capabilities) {
	self = new(Capabilities)
	self.log = logger.NewSublogger("retrieval-capabilities")
	self.capabilityCache = cache.New(config.Retrieval.CapabilityCacheTTL, 2*config.Retrieval.CapabilityCacheTTL)
	self.client = resty.New().
		SetTimeout(config.ProviderClient.RequestTimeout).
		SetHeader("User-Agent", "filstation.io/spprobe/"+build_info.Version)
	return
}

// Answers whether the endpoint behind url exists, from cache when fresh.
// Transport errors are treated as unsupported but not cached, the provider
// may just be having a bad minute.
func (self *Capabilities) Supports(ctx context.Context, key, url string, headers map[string]string) bool {
	if supported, found := self.capabilityCache.Get(key); found {
		return supported.(bool)
	}

	resp, err := self.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		Head(url)
	if err != nil {
		self.log.WithError(err).WithField("url", url).Debug("Capability check failed")
		return false
	}

	supported := resp.StatusCode() != http.StatusNotFound &&
		resp.StatusCode() != http.StatusMethodNotAllowed &&
		resp.StatusCode() != http.StatusNotImplemented
	self.capabilityCache.Set(key, supported, cache.DefaultExpiration)
	return supported
}
