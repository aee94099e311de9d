package retrieval

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"time"

	"github.com/filstation/spprobe/src/utils/build_info"
	"github.com/filstation/spprobe/src/utils/config"

	"go.uber.org/atomic"
	"golang.org/x/xerrors"
)

// Raw numbers of one attempt
type fetchStats struct {
	BytesRetrieved int64
	StatusCode     int
	Ttfb           time.Duration
	Latency        time.Duration
}

// Non-2xx answer. Unlike transport errors these are only worth
// retrying when the provider itself broke.
type statusError struct {
	code int
}

func (self *statusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", self.code)
}

// Does the HTTP work of a single request. Built on the plain transport
// because every attempt needs its own proxy, a pinned protocol version
// and tracing hooks, none of which survive a shared pooled client.
type fetcher struct {
	config *config.Config
}

func (self *fetcher) fetch(parentCtx context.Context, request *Request, proxyUrl string) (data []byte, statusCode int, ttfb time.Duration, err error) {
	var ctx context.Context
	var cancel context.CancelFunc
	if request.Protocol == ProtocolHttp2 {
		// Header budget sits on the transport, this is the full-transfer one
		ctx, cancel = context.WithTimeout(parentCtx, self.config.Retrieval.TransferTimeout)
	} else {
		ctx, cancel = context.WithCancel(parentCtx)
	}
	defer cancel()

	started := time.Now()
	var firstByteNs atomic.Int64
	ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			firstByteNs.CompareAndSwap(0, time.Since(started).Nanoseconds())
		},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, request.Url, nil)
	if err != nil {
		err = xerrors.Errorf("failed to create request: %w", err)
		return
	}
	req.Header.Set("User-Agent", "filstation.io/spprobe/"+build_info.Version)
	for key, value := range request.Headers {
		req.Header.Set(key, value)
	}

	client := &http.Client{Transport: self.newTransport(request.Protocol, proxyUrl)}
	defer client.CloseIdleConnections()

	// The watchdog cancels the request once the stream stalls, every
	// read further down pushes it forward
	var watchdog *time.Timer
	if request.Protocol != ProtocolHttp2 {
		watchdog = time.AfterFunc(self.config.Retrieval.InactivityTimeout, cancel)
		defer watchdog.Stop()
	}

	resp, err := client.Do(req)
	if err != nil {
		err = xerrors.Errorf("request failed: %w", err)
		return
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	var reader io.Reader = resp.Body
	if watchdog != nil {
		reader = &inactivityReader{
			reader:   resp.Body,
			watchdog: watchdog,
			timeout:  self.config.Retrieval.InactivityTimeout,
		}
	}

	data, err = io.ReadAll(reader)
	ttfb = time.Duration(firstByteNs.Load())
	if err != nil {
		err = xerrors.Errorf("failed to read body: %w", err)
		return
	}

	if statusCode < 200 || statusCode > 299 {
		err = &statusError{code: statusCode}
		return
	}
	return
}

func (self *fetcher) newTransport(protocol Protocol, proxyUrl string) (transport *http.Transport) {
	dialer := &net.Dialer{
		Timeout:   self.config.ProviderClient.DialerTimeout,
		KeepAlive: self.config.ProviderClient.DialerKeepAlive,
	}
	transport = &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: self.config.ProviderClient.TLSHandshakeTimeout,
		IdleConnTimeout:     self.config.ProviderClient.IdleConnTimeout,
		MaxIdleConns:        1,
		MaxConnsPerHost:     2,
	}

	if proxyUrl != "" {
		// The pool only hands out urls it could parse
		if parsed, err := url.Parse(proxyUrl); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	}

	switch protocol {
	case ProtocolHttp2:
		transport.ForceAttemptHTTP2 = true
		transport.ResponseHeaderTimeout = self.config.Retrieval.ConnectTimeout
	default:
		// An empty next-proto map pins the connection to HTTP/1.1
		transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}
	return
}

// Pushes the stall watchdog forward on every read that makes progress
type inactivityReader struct {
	reader   io.Reader
	watchdog *time.Timer
	timeout  time.Duration
}

func (self *inactivityReader) Read(p []byte) (n int, err error) {
	n, err = self.reader.Read(p)
	if n > 0 {
		self.watchdog.Reset(self.timeout)
	}
	return
}
