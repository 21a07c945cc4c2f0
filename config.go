package rocketenv

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

var (
	cfgLoaded = false
	config    = _envconfig{}
)

// _envconfig is a "hidden" struct, just use `envConfig`
type _envconfig struct {
	outputDir string
	dataDir   string
}

// envConfig returns the rocketenv configuration, loading it on first use.
// The ROCKETENV_CONFIG environment variable must point at a directory
// holding a conf.toml with a [general] section. Only export and dataset
// paths live here, so the configuration is not touched until one is needed.
func envConfig() _envconfig {
	if cfgLoaded {
		return config
	}
	confPath := os.Getenv("ROCKETENV_CONFIG")
	if confPath == "" {
		panic("environment variable `ROCKETENV_CONFIG` is missing or empty")
	}
	viper.SetConfigName("conf")
	viper.AddConfigPath(confPath)
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("%s/conf.toml not found", confPath))
	}

	outputDir := viper.GetString("general.output_path")
	dataDir := viper.GetString("general.data_path")

	cfgLoaded = true
	config = _envconfig{outputDir: outputDir, dataDir: dataDir}
	return config
}
