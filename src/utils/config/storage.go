package config

import (
	"github.com/spf13/viper"
)

type Storage struct {
	// Store the raw payload bytes as-is
	DirectEnabled bool

	// Wrap the payload into a content-addressed CAR before storing
	CarEnabled bool
}

func setStorageDefaults() {
	viper.SetDefault("Storage.DirectEnabled", "true")
	viper.SetDefault("Storage.CarEnabled", "true")
}
