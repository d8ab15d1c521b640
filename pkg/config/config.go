package config

// Package config provides a reusable loader for the anchor node's
// configuration files and environment variables. It is versioned so that
// applications can depend on a stable API contract.
//
// Version: v0.2.0

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/sidetree-node/anchornode/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.2.0"

// Config is the unified configuration for a node running both the Rooter
// and the Projection. It mirrors the structure of the YAML files under
// cmd/config.
type Config struct {
	Rooter struct {
		BatchIntervalSeconds int `mapstructure:"batch_interval_seconds" json:"batch_interval_seconds"`
	} `mapstructure:"rooter" json:"rooter"`

	Projection struct {
		DIDMethodName string `mapstructure:"did_method_name" json:"did_method_name"`
	} `mapstructure:"projection" json:"projection"`

	CAS struct {
		GatewayURL         string `mapstructure:"gateway_url" json:"gateway_url"`
		GatewayTimeoutSecs int    `mapstructure:"gateway_timeout_seconds" json:"gateway_timeout_seconds"`
		CacheEntries       int    `mapstructure:"cache_entries" json:"cache_entries"`
	} `mapstructure:"cas" json:"cas"`

	Ledger struct {
		RPCURL        string `mapstructure:"rpc_url" json:"rpc_url"`
		AnchorAddress string `mapstructure:"anchor_address" json:"anchor_address"`
		PrivateKeyHex string `mapstructure:"private_key_hex" json:"private_key_hex"`
		ChainID       int64  `mapstructure:"chain_id" json:"chain_id"`
	} `mapstructure:"ledger" json:"ledger"`

	HTTP struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"http" json:"http"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge additional
// config files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.AddConfigPath(".")
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

	viper.SetEnvPrefix("SIDETREE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // picks up SIDETREE_-prefixed overrides

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the SIDETREE_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("SIDETREE_ENV", ""))
}
