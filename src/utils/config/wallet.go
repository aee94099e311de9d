package config

import (
	"time"

	"github.com/spf13/viper"
)

type Wallet struct {
	// Allowance service endpoint. Empty disables the allowance check.
	Url string

	RequestTimeout time.Duration

	// Deal creation requires at least this allowance, in attoFIL
	MinAllowance string

	// Amount requested when topping up, in attoFIL
	TopUpAmount string
}

func setWalletDefaults() {
	viper.SetDefault("Wallet.Url", "")
	viper.SetDefault("Wallet.RequestTimeout", "30s")
	viper.SetDefault("Wallet.MinAllowance", "1000000000000000000")
	viper.SetDefault("Wallet.TopUpAmount", "5000000000000000000")
}
