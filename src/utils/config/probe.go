package config

import (
	"time"

	"github.com/spf13/viper"
)

type Probe struct {
	// How often each provider gets a storage probe
	StorageInterval time.Duration

	// How often each provider gets a retrieval probe
	RetrievalInterval time.Duration

	// Spacing between initial runs on a fresh deployment.
	// Job i starts after i*StartOffsetStep, so probes don't fire all at once.
	StartOffsetStep time.Duration

	// Size of the random payload stored with each probe
	PayloadSize int64

	// Max duration of a single payload upload
	UploadTimeout time.Duration

	// Deal creation retry backoff
	CreateMaxElapsedTime time.Duration
	CreateMaxInterval    time.Duration

	// Wait between deal status polls after the upload
	StorePollInterval time.Duration

	// Max wait for the provider to report the deal stored
	StoreTimeout time.Duration

	// Max deal age considered for retrieval probes
	MaxDealAge time.Duration
}

func setProbeDefaults() {
	viper.SetDefault("Probe.StorageInterval", "1h")
	viper.SetDefault("Probe.RetrievalInterval", "30m")
	viper.SetDefault("Probe.StartOffsetStep", "2m")
	viper.SetDefault("Probe.PayloadSize", "10485760")
	viper.SetDefault("Probe.UploadTimeout", "10m")
	viper.SetDefault("Probe.CreateMaxElapsedTime", "2m")
	viper.SetDefault("Probe.CreateMaxInterval", "15s")
	viper.SetDefault("Probe.StorePollInterval", "15s")
	viper.SetDefault("Probe.StoreTimeout", "5m")
	viper.SetDefault("Probe.MaxDealAge", "168h")
}
