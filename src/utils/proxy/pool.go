package proxy

import (
	"net/url"

	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/logger"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Round-robin pool of upstream proxies for retrieval attempts.
// Every attempt gets a fresh pick, a retry never reuses the previous one.
type Pool struct {
	urls    []string
	counter atomic.Uint64
	log     *logrus.Entry
}

func NewPool(config *config.Config) (self *Pool) {
	self = new(Pool)
	self.log = logger.NewSublogger("proxy-pool")

	for _, raw := range config.Proxy.Urls {
		_, err := url.Parse(raw)
		if err != nil {
			self.log.WithField("url", raw).WithError(err).Warn("Skipping malformed proxy url")
			continue
		}
		self.urls = append(self.urls, raw)
	}

	return
}

// Returns the next proxy url. ok is false when the pool is empty,
// meaning the attempt goes out directly.
func (self *Pool) Next() (proxyUrl string, ok bool) {
	if len(self.urls) == 0 {
		return "", false
	}
	i := self.counter.Inc() - 1
	return self.urls[i%uint64(len(self.urls))], true
}

func (self *Pool) Size() int {
	return len(self.urls)
}
