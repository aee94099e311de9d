package config

import (
	"github.com/spf13/viper"
)

type Proxy struct {
	// Upstream proxies rotated between retrieval attempts.
	// Empty list means direct connections.
	Urls []string
}

func setProxyDefaults() {
	viper.SetDefault("Proxy.Urls", []string{})
}
