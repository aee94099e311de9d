package provider

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/filstation/spprobe/src/utils/build_info"
	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/logger"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type BaseClient struct {
	client *resty.Client

	// Separate client for payload uploads, they take much longer
	uploadClient *resty.Client

	config *config.Config
	log    *logrus.Entry

	// State
	mtx      sync.RWMutex
	limiters map[string]*rate.Limiter
}

func newBaseClient(config *config.Config) (self *BaseClient) {
	self = new(BaseClient)
	self.config = config
	self.log = logger.NewSublogger("provider-client")

	self.limiters = make(map[string]*rate.Limiter)

	self.client =
		resty.New().
			SetTimeout(self.config.ProviderClient.RequestTimeout).
			SetHeader("User-Agent", "filstation.io/spprobe/"+build_info.Version).
			SetRetryCount(1).
			SetTransport(self.createTransport()).
			AddRetryCondition(self.onRetryCondition).
			AddRetryAfterErrorCondition().
			OnBeforeRequest(self.onRateLimit).
			OnAfterResponse(self.onStatusToError)

	// No automatic retries here, re-sending a large body is the caller's call
	self.uploadClient =
		resty.New().
			SetTimeout(self.config.Probe.UploadTimeout).
			SetHeader("User-Agent", "filstation.io/spprobe/"+build_info.Version).
			SetTransport(self.createTransport()).
			OnBeforeRequest(self.onRateLimit).
			OnAfterResponse(self.onStatusToError)

	return
}

func (self *BaseClient) createTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   self.config.ProviderClient.DialerTimeout,
		KeepAlive: self.config.ProviderClient.DialerKeepAlive,
		DualStack: true,
	}

	return &http.Transport{
		// Some config options disable http2, try it anyway
		ForceAttemptHTTP2: true,

		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   self.config.ProviderClient.TLSHandshakeTimeout,
		ExpectContinueTimeout: 1 * time.Second,

		// Providers may stop responding on idle connections,
		// resulting in error: context deadline exceeded (Client.Timeout exceeded while awaiting headers)
		IdleConnTimeout:     self.config.ProviderClient.IdleConnTimeout,
		MaxIdleConns:        1,
		MaxIdleConnsPerHost: 1,
		MaxConnsPerHost:     1,
	}
}

func (self *BaseClient) onStatusToError(c *resty.Client, resp *resty.Response) error {
	// Non-success status code turns into an error
	if resp.IsSuccess() {
		return nil
	}
	if resp.StatusCode() > 399 && resp.StatusCode() < 500 {
		self.log.WithField("status", resp.StatusCode()).
			WithField("resp", string(resp.Body())).
			WithField("url", resp.Request.URL).
			Debug("Bad request")
	}
	return fmt.Errorf("unexpected status: %s", resp.Status())
}

// Returns true if request should be retried
func (self *BaseClient) onRetryCondition(resp *resty.Response, err error) bool {
	if err != nil {
		// There was an error
		return false
	}

	// No error
	if resp.IsSuccess() || !resp.IsError() {
		// OK response or redirect, skip retrying
		return false
	}

	// Error status code
	if resp.StatusCode() == http.StatusTooManyRequests {
		// Remote host receives too much requests, adjust rate limit
		url, err := url.ParseRequestURI(resp.Request.URL)
		if err == nil {
			self.decrementLimit(url.Host)
		}
		return false
	}

	// Server side errors may be retried
	return resp.StatusCode() >= 500
}

func (self *BaseClient) decrementLimit(host string) {
	var (
		limiter *rate.Limiter
		ok      bool
	)

	self.mtx.Lock()
	defer self.mtx.Unlock()
	limiter, ok = self.limiters[host]
	if !ok {
		return
	}

	self.log.WithField("host", host).Debug("Decreasing limit")

	limiter.SetLimit(limiter.Limit() * 0.999)
}

func (self *BaseClient) onRateLimit(c *resty.Client, req *resty.Request) (err error) {
	// Get the limiter, create it if needed
	var (
		limiter *rate.Limiter
		ok      bool
	)

	url, err := url.ParseRequestURI(req.URL)
	if err != nil {
		return
	}

	self.mtx.Lock()
	limiter, ok = self.limiters[url.Host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(self.config.ProviderClient.RateLimit), 1)
		self.limiters[url.Host] = limiter
	}
	self.mtx.Unlock()

	// Blocks till the request is possible
	// Or ctx gets canceled
	err = limiter.Wait(req.Context())
	if err != nil {
		self.log.WithField("host", url.Host).WithError(err).Error("Rate limiting failed")
	}
	return
}
