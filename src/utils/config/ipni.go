package config

import (
	"time"

	"github.com/spf13/viper"
)

type Ipni struct {
	// How often the poller looks for deals awaiting verification
	PollerInterval time.Duration

	// Deals claimed for checking are retried after this interval
	// if the previous check never finished
	PollerRetryAfter time.Duration

	// Max deals claimed per poller run
	PollerMaxBatchSize int

	// Wait between consecutive status polls of one deal
	StatusPollInterval time.Duration

	// Budget for polling one deal's piece status within a single claim.
	// Progress continues on the next claim cycle.
	StatusPollTimeout time.Duration

	// Deadline for a deal to reach the advertised state before it fails
	VerificationDeadline time.Duration

	// Workers checking deals in parallel
	WorkerPoolSize int

	// Max queued checks per worker pool
	WorkerQueueSize int

	// Batched state updates are flushed at this interval
	StoreFlushInterval time.Duration

	// Batch size triggering an early flush
	StoreBatchSize int

	// Flush retry backoff
	StoreMaxElapsedTime time.Duration
	StoreMaxInterval    time.Duration
}

func setIpniDefaults() {
	viper.SetDefault("Ipni.PollerInterval", "1m")
	viper.SetDefault("Ipni.PollerRetryAfter", "15m")
	viper.SetDefault("Ipni.PollerMaxBatchSize", "50")
	viper.SetDefault("Ipni.StatusPollInterval", "30s")
	viper.SetDefault("Ipni.StatusPollTimeout", "2m")
	viper.SetDefault("Ipni.VerificationDeadline", "24h")
	viper.SetDefault("Ipni.WorkerPoolSize", "5")
	viper.SetDefault("Ipni.WorkerQueueSize", "10")
	viper.SetDefault("Ipni.StoreFlushInterval", "5s")
	viper.SetDefault("Ipni.StoreBatchSize", "50")
	viper.SetDefault("Ipni.StoreMaxElapsedTime", "10m")
	viper.SetDefault("Ipni.StoreMaxInterval", "10s")
}
