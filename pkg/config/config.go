// Package config provides the loader for gamechaind's configuration
// files and environment variables, built on the same viper-backed
// pattern as the reference node config loader.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"gamechain/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a gamechaind node.
type Config struct {
	Chain struct {
		ID          string `mapstructure:"id" json:"id"`
		GenesisFile string `mapstructure:"genesis_file" json:"genesis_file"`
	} `mapstructure:"chain" json:"chain"`

	Network struct {
		// ListenAddr and BootstrapPeers are consumed by the external P2P
		// gossip layer; gamechaind itself only persists them for that
		// collaborator to read.
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"network" json:"network"`

	Consensus struct {
		BlockTimeMS        int `mapstructure:"block_time_ms" json:"block_time_ms"`
		ValidatorsRequired int `mapstructure:"validators_required" json:"validators_required"`
	} `mapstructure:"consensus" json:"consensus"`

	Runtime struct {
		ExistentialDeposit uint64 `mapstructure:"existential_deposit" json:"existential_deposit"`
		TotalSupplyCap     uint64 `mapstructure:"total_supply_cap" json:"total_supply_cap"`
		BurnFeeNumerator   uint64 `mapstructure:"burn_fee_numerator" json:"burn_fee_numerator"`
		BurnFeeDenominator uint64 `mapstructure:"burn_fee_denominator" json:"burn_fee_denominator"`
		FlatFee            uint64 `mapstructure:"flat_fee" json:"flat_fee"`
		BlockWeightBudget  uint64 `mapstructure:"block_weight_budget" json:"block_weight_budget"`
	} `mapstructure:"runtime" json:"runtime"`

	Storage struct {
		WALPath      string `mapstructure:"wal_path" json:"wal_path"`
		SnapshotPath string `mapstructure:"snapshot_path" json:"snapshot_path"`
		BlocksLog    string `mapstructure:"blocks_log" json:"blocks_log"`
	} `mapstructure:"storage" json:"storage"`

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

	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the GAMECHAIN_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("GAMECHAIN_ENV", ""))
}
