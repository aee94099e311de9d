package config

import (
	"bytes"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const MAX_SLICE_LEN = 30

// Config stores global configuration
type Config struct {
	// Is development mode on
	IsDevelopment bool

	// REST API address. API used for monitoring etc.
	RESTListenAddress string

	// Maximum time the probe will be closing before stop is forced.
	StopTimeout time.Duration

	// Logging level
	LogLevel string

	Probe          Probe
	Mutex          Mutex
	Packager       Packager
	Storage        Storage
	Retrieval      Retrieval
	Ipni           Ipni
	Providers      []Provider
	ProviderClient ProviderClient
	Indexer        Indexer
	Wallet         Wallet
	Proxy          Proxy
	Database       Database
	Profiler       Profiler
}

func setDefaults() {
	viper.SetDefault("IsDevelopment", "false")
	viper.SetDefault("RESTListenAddress", ":7777")
	viper.SetDefault("LogLevel", "DEBUG")
	viper.SetDefault("StopTimeout", "30s")

	setProbeDefaults()
	setMutexDefaults()
	setPackagerDefaults()
	setStorageDefaults()
	setRetrievalDefaults()
	setIpniDefaults()
	setProviderDefaults()
	setProviderClientDefaults()
	setIndexerDefaults()
	setWalletDefaults()
	setProxyDefaults()
	setDatabaseDefaults()
	setProfilerDefaults()
}

func Default() (config *Config) {
	config, _ = Load("")
	return
}

func IsIndex(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func BindEnv(path []string, val reflect.Value) {
	if val.Kind() == reflect.Slice {
		_, ok := val.Interface().([]Provider)
		if ok {
			for i := 0; i < MAX_SLICE_LEN; i++ {
				newPath := make([]string, len(path))
				copy(newPath, path)
				newPath = append(newPath, fmt.Sprintf("%d", i))
				BindEnv(newPath, reflect.ValueOf(Provider{}))
			}
		} else {
			// Slice of base types
			key := strings.ToLower(strings.Join(path, "."))
			env := "SPPROBE_" + strcase.ToScreamingSnake(strings.Join(path, "_"))
			err := viper.BindEnv(key, env)
			if err != nil {
				panic(err)
			}
		}
	} else if val.Kind() != reflect.Struct {
		// Base types
		key := path[0]
		for _, p := range path[1:] {
			if IsIndex(p) {
				key += "[" + p + "]"
			} else {
				key += "." + p
			}
		}

		env := "SPPROBE_" + strcase.ToScreamingSnake(strings.Join(path, "_"))
		err := viper.BindEnv(key, env)
		if err != nil {
			panic(err)
		}
	} else {
		// Iterates over struct fields
		for i := 0; i < val.NumField(); i++ {
			newPath := make([]string, len(path))
			copy(newPath, path)
			newPath = append(newPath, val.Type().Field(i).Name)
			BindEnv(newPath, val.Field(i))
		}
	}
}

func getSliceLength(key string) int {
	var max int
	for viperKey := range viper.AllSettings() {
		var idx int
		_, err := fmt.Sscanf(viperKey, key+"[%d]", &idx)
		if err != nil {
			continue
		}
		idx += 1
		if idx > max {
			max = idx
		}
	}
	return max
}

func defaultDecoderConfig(output interface{}) *mapstructure.DecoderConfig {
	c := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           output,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}
	return c
}

// Load configuration from file and env
func Load(filename string) (config *Config, err error) {
	viper.SetConfigType("json")

	setDefaults()

	// Visits every field and registers upper snake case ENV name for it
	// Works with embedded structs
	BindEnv([]string{}, reflect.ValueOf(Config{}))

	// Empty filename means we use default values
	if filename != "" {
		var content []byte
		/* #nosec */
		content, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}

		err = viper.ReadConfig(bytes.NewBuffer(content))
		if err != nil {
			return nil, err
		}
	}

	config = new(Config)
	err = viper.Unmarshal(&config)
	if err != nil {
		return nil, err
	}

	err = unmarshalProviders(config)
	if err != nil {
		return nil, err
	}

	err = config.ValidateProviders()
	if err != nil {
		return nil, err
	}

	return
}

// Providers set through indexed env variables don't survive viper.Unmarshal,
// they end up as flat "providers[i].field" keys. Decode them by hand.
func unmarshalProviders(config *Config) (err error) {
	if len(config.Providers) > 0 {
		// Roster came from the config file
		return
	}

	n := getSliceLength("providers")
	if n > MAX_SLICE_LEN {
		n = MAX_SLICE_LEN
	}

	for i := 0; i < n; i++ {
		provider := Provider{
			Address:      viper.GetString(fmt.Sprintf("providers[%d].address", i)),
			ServiceUrl:   viper.GetString(fmt.Sprintf("providers[%d].serviceurl", i)),
			RetrievalUrl: viper.GetString(fmt.Sprintf("providers[%d].retrievalurl", i)),
		}
		if provider.Address == "" {
			continue
		}
		config.Providers = append(config.Providers, provider)
	}

	return nil
}
