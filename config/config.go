// Package config handles application configuration.
//
// Configuration is layered file → environment → flag via
// github.com/spf13/viper, with the CLI command tree built on
// github.com/spf13/cobra (see cmd/qchaind and cmd/qchain-cli).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds a node's full runtime configuration, one field per
// recognized settings section.
type Config struct {
	Network NetworkType `mapstructure:"chain_network"`
	DataDir string      `mapstructure:"datadir"`

	Node      NodeConfig      `mapstructure:"node"`
	Peers     NetworkConfig   `mapstructure:"network"`
	Consensus ConsensusConfig `mapstructure:"consensus"`
	Mining    MiningConfig    `mapstructure:"mining"`
	Security  SecurityConfig  `mapstructure:"security"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// NodeConfig controls surface binding and storage.
type NodeConfig struct {
	APIPort     int    `mapstructure:"api_port"`
	NetworkPort int    `mapstructure:"network_port"`
	RPCPort     int    `mapstructure:"rpc_port"`
	DBPath      string `mapstructure:"db_path"`
	NoNetwork   bool   `mapstructure:"no_network"`
}

// NetworkConfig controls peer acquisition (named NetworkConfig, not
// P2PConfig, since the transport is a plain TCP mesh, not libp2p).
type NetworkConfig struct {
	MaxPeers       int      `mapstructure:"max_peers"`
	BootstrapNodes []string `mapstructure:"bootstrap_nodes"`
	DNSSeeds       []string `mapstructure:"dns_seeds"`

	// Secret is the shared HMAC key authenticating frames between peers.
	// Never hard-coded: populated from this field, which is itself sourced
	// from the QCHAIN_NETWORK_SECRET environment variable or a config file
	// entry, never a compiled-in constant.
	Secret string `mapstructure:"secret"`
}

// ConsensusConfig holds validation rules that must be network-uniform.
type ConsensusConfig struct {
	MaxBlockTransactions int    `mapstructure:"max_block_transactions"`
	MaxBlockSizeBytes    int    `mapstructure:"max_block_size_bytes"`
	MinFee               uint64 `mapstructure:"min_fee"`
	TxExpiryBlocks       uint64 `mapstructure:"tx_expiry_blocks"`
	CoinbaseMaturity     uint64 `mapstructure:"coinbase_maturity"`
}

// MiningConfig holds mining rules that must be network-uniform, plus the
// per-node choice of whether to mine at all.
type MiningConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Coinbase string `mapstructure:"coinbase"`
	Threads  int    `mapstructure:"threads"`

	TargetBlockTime              int `mapstructure:"target_block_time"`
	DifficultyAdjustmentInterval int `mapstructure:"difficulty_adjustment_interval"`

	Y1Reward        uint64  `mapstructure:"y1_reward"`
	AnnualReduction float64 `mapstructure:"annual_reduction"`
	BlocksPerYear   uint64  `mapstructure:"blocks_per_year"`
	MinReward       uint64  `mapstructure:"min_reward"`

	TreasuryAllocPct int    `mapstructure:"treasury_alloc_pct"`
	LockPct          int    `mapstructure:"lock_pct"`
	LockBlocks       uint64 `mapstructure:"lock_blocks"`

	FeeBurnPct      int `mapstructure:"fee_burn_pct"`
	FeeTreasuryPct  int `mapstructure:"fee_treasury_pct"`
	FeeValidatorPct int `mapstructure:"fee_validator_pct"`
}

// SecurityConfig holds local DoS and transport policy.
type SecurityConfig struct {
	MaxMempoolSize     int  `mapstructure:"max_mempool_size"`
	RateLimitPerMinute int  `mapstructure:"rate_limit_per_minute"`
	EnablePeerBanning  bool `mapstructure:"enable_peer_banning"`
	RequireTLS         bool `mapstructure:"require_tls"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
	JSON  bool   `mapstructure:"json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.qchain
//	macOS:   ~/Library/Application Support/Qchain
//	Windows: %APPDATA%\Qchain
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".qchain"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Qchain")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Qchain")
		}
		return filepath.Join(home, "AppData", "Roaming", "Qchain")
	default:
		return filepath.Join(home, ".qchain")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// DBDir returns the storage engine's database directory.
func (c *Config) DBDir() string {
	if c.Node.DBPath != "" {
		return c.Node.DBPath
	}
	return filepath.Join(c.ChainDataDir(), "db")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the default config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "qchain.yaml")
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Idempotent — safe to call on every
// startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{cfg.DataDir, cfg.ChainDataDir(), cfg.DBDir(), cfg.LogsDir()}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
