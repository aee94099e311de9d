package config

import (
	"time"

	"github.com/spf13/viper"
)

type Mutex struct {
	// Age of the last renewal after which a mutex row counts as abandoned
	// and may be claimed by another replica. Keep well above the longest
	// expected probe duration.
	LivenessTimeout time.Duration

	// How often a live holder refreshes its row.
	// Must be strictly shorter than LivenessTimeout.
	RenewInterval time.Duration
}

func setMutexDefaults() {
	viper.SetDefault("Mutex.LivenessTimeout", "10m")
	viper.SetDefault("Mutex.RenewInterval", "2m")
}
