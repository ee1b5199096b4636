// Package config provides a reusable loader for router configuration files
// and environment variables. It is versioned so that applications can depend
// on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"aequi-router/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified application configuration. It mirrors the YAML
// files under cmd/config; the chain registry itself lives in a separate
// file referenced by Chains.RegistryFile and is decoded by the core
// package.
type Config struct {
	Chains struct {
		RegistryFile string `mapstructure:"registry_file" json:"registry_file"`
		DefaultChain string `mapstructure:"default_chain" json:"default_chain"`
	} `mapstructure:"chains" json:"chains"`

	Routing struct {
		MaxOffers       int  `mapstructure:"max_offers" json:"max_offers"`
		EnableSplit     bool `mapstructure:"enable_split" json:"enable_split"`
		DeadlineSeconds int  `mapstructure:"deadline_seconds" json:"deadline_seconds"`
		SlippageBps     int  `mapstructure:"slippage_bps" json:"slippage_bps"`
	} `mapstructure:"routing" json:"routing"`

	RPC struct {
		ReadTimeoutMS  int `mapstructure:"read_timeout_ms" json:"read_timeout_ms"`
		ProbeTimeoutMS int `mapstructure:"probe_timeout_ms" json:"probe_timeout_ms"`
	} `mapstructure:"rpc" json:"rpc"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("AEQUI")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	applyDefaults(&AppConfig)
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the AEQUI_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	if err := utils.LoadDotEnv(""); err != nil {
		return nil, utils.Wrap(err, "load .env")
	}
	return Load(utils.EnvOrDefault("AEQUI_ENV", ""))
}

func applyDefaults(c *Config) {
	if c.Chains.RegistryFile == "" {
		c.Chains.RegistryFile = "cmd/config/chains.yaml"
	}
	if c.Routing.DeadlineSeconds <= 0 {
		c.Routing.DeadlineSeconds = 1200
	}
	if c.Routing.SlippageBps <= 0 {
		c.Routing.SlippageBps = 50
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
