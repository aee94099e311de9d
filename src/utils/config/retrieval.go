package config

import (
	"time"

	"github.com/spf13/viper"
)

type Retrieval struct {
	// Attempts per strategy before giving up on it
	MaxAttempts int

	// Wait between attempts of the same strategy
	AttemptBackoff time.Duration

	// HTTP/1.1: one inactivity timeout governs the whole request
	InactivityTimeout time.Duration

	// HTTP/2: short budget for connect + response headers...
	ConnectTimeout time.Duration

	// ...and a much longer budget for the full transfer
	TransferTimeout time.Duration

	// Upper bound on blocks fetched individually by the block strategy,
	// 0 means all declared blocks
	MaxBlockFetch int

	// How long a probed provider capability stays cached for canHandle checks
	CapabilityCacheTTL time.Duration
}

func setRetrievalDefaults() {
	viper.SetDefault("Retrieval.MaxAttempts", "3")
	viper.SetDefault("Retrieval.AttemptBackoff", "5s")
	viper.SetDefault("Retrieval.InactivityTimeout", "2m")
	viper.SetDefault("Retrieval.ConnectTimeout", "10s")
	viper.SetDefault("Retrieval.TransferTimeout", "15m")
	viper.SetDefault("Retrieval.MaxBlockFetch", "0")
	viper.SetDefault("Retrieval.CapabilityCacheTTL", "10m")
}
