package config

import (
	"net/url"
	"time"

	"github.com/filecoin-project/go-address"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
	"golang.org/x/xerrors"
)

// One storage provider on the probe roster
type Provider struct {
	// On-chain address, f0/f1/f2/f3 form
	Address string

	// Base URL of the deal + piece-status API
	ServiceUrl string

	// Base URL for retrievals. Empty means ServiceUrl.
	RetrievalUrl string
}

// Roster lookup, nil when the address is not configured
func (self *Config) ProviderByAddress(address string) *Provider {
	for i := range self.Providers {
		if self.Providers[i].Address == address {
			return &self.Providers[i]
		}
	}
	return nil
}

// Checks the whole roster at startup, collecting every problem instead of
// stopping at the first
func (self *Config) ValidateProviders() (err error) {
	var result *multierror.Error
	seen := make(map[string]bool, len(self.Providers))
	for i := range self.Providers {
		sp := &self.Providers[i]

		if _, e := address.NewFromString(sp.Address); e != nil {
			result = multierror.Append(result,
				xerrors.Errorf("provider %d: bad address %q: %w", i, sp.Address, e))
		}
		if seen[sp.Address] {
			result = multierror.Append(result,
				xerrors.Errorf("provider %d: duplicate address %q", i, sp.Address))
		}
		seen[sp.Address] = true

		if sp.ServiceUrl == "" {
			result = multierror.Append(result,
				xerrors.Errorf("provider %s: missing service url", sp.Address))
			continue
		}
		for _, raw := range []string{sp.ServiceUrl, sp.RetrievalUrl} {
			if raw == "" {
				continue
			}
			u, e := url.Parse(raw)
			if e != nil || u.Scheme == "" || u.Host == "" {
				result = multierror.Append(result,
					xerrors.Errorf("provider %s: bad url %q", sp.Address, raw))
			}
		}
	}
	return result.ErrorOrNil()
}

// HTTP client settings shared by all provider calls
type ProviderClient struct {
	RequestTimeout      time.Duration
	DialerTimeout       time.Duration
	DialerKeepAlive     time.Duration
	TLSHandshakeTimeout time.Duration
	IdleConnTimeout     time.Duration

	// Requests per second allowed per provider host
	RateLimit float64
}

func setProviderDefaults() {
	viper.SetDefault("Providers", []Provider{})
}

func setProviderClientDefaults() {
	viper.SetDefault("ProviderClient.RequestTimeout", "30s")
	viper.SetDefault("ProviderClient.DialerTimeout", "30s")
	viper.SetDefault("ProviderClient.DialerKeepAlive", "15s")
	viper.SetDefault("ProviderClient.TLSHandshakeTimeout", "10s")
	viper.SetDefault("ProviderClient.IdleConnTimeout", "31s")
	viper.SetDefault("ProviderClient.RateLimit", "2")
}
