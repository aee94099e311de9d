package indexer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/filstation/spprobe/src/utils/build_info"
	"github.com/filstation/spprobe/src/utils/config"
	"github.com/filstation/spprobe/src/utils/logger"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// Client for the indexing network's find API
type Client struct {
	client *resty.Client
	config *config.Config
	log    *logrus.Entry
}

func NewClient(config *config.Config) (self *Client) {
	self = new(Client)
	self.config = config
	self.log = logger.NewSublogger("indexer-client")

	self.client =
		resty.New().
			SetTimeout(self.config.Indexer.RequestTimeout).
			SetHeader("User-Agent", "filstation.io/spprobe/"+build_info.Version).
			SetHeader("Accept", "application/json")

	return
}

// Checks whether the indexing network knows the given CID.
// A 404 is a negative answer, not an error.
func (self *Client) Lookup(ctx context.Context, cid string) (out *LookupResult, err error) {
	resp, err := self.client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(&FindResponse{}).
		SetPathParam("cid", cid).
		Get(self.config.Indexer.Url + "/cid/{cid}")
	if err != nil {
		return
	}

	if resp.StatusCode() == http.StatusNotFound {
		out = &LookupResult{Cid: cid}
		return
	}
	if resp.IsError() {
		err = fmt.Errorf("unexpected status: %s", resp.Status())
		return
	}

	found, ok := resp.Result().(*FindResponse)
	if !ok {
		err = ErrFailedToParse
		return
	}

	out = &LookupResult{Cid: cid}
	for _, result := range found.MultihashResults {
		for _, provider := range result.ProviderResults {
			out.Found = true
			out.KnownAddresses = append(out.KnownAddresses, provider.Provider.Addrs...)
		}
	}

	return
}
