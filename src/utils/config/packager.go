package config

import (
	"github.com/spf13/viper"
)

type Packager struct {
	// Directory for scratch files created while building and validating
	// packages. Empty means the OS temp dir.
	ScratchDir string

	// UnixFS chunk size in bytes
	ChunkSize int64

	// Max links per internal DAG node, 0 means the importer default
	MaxLinks int
}

func setPackagerDefaults() {
	viper.SetDefault("Packager.ScratchDir", "")
	viper.SetDefault("Packager.ChunkSize", "1048576")
	viper.SetDefault("Packager.MaxLinks", "0")
}
