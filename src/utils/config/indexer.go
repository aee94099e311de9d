package config

import (
	"time"

	"github.com/spf13/viper"
)

type Indexer struct {
	// Base URL of the IPNI index network
	Url string

	// Timeout of a single CID lookup
	RequestTimeout time.Duration

	// Parallel lookups during full-CID verification
	MaxParallelLookups int
}

func setIndexerDefaults() {
	viper.SetDefault("Indexer.Url", "https://cid.contact")
	viper.SetDefault("Indexer.RequestTimeout", "15s")
	viper.SetDefault("Indexer.MaxParallelLookups", "8")
}
