package config

import "github.com/qchain-project/qchain/pkg/params"

// DefaultMainnet returns the default node configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Node: NodeConfig{
			APIPort:     8645,
			NetworkPort: 30303,
			RPCPort:     8545,
			NoNetwork:   false,
		},
		Peers: NetworkConfig{
			MaxPeers:       50,
			BootstrapNodes: []string{},
			DNSSeeds:       []string{},
		},
		Consensus: ConsensusConfig{
			MaxBlockTransactions: params.MaxBlockTxs,
			MaxBlockSizeBytes:    params.MaxBlockSizeBytes,
			MinFee:               params.MinFee,
			TxExpiryBlocks:       params.ExpirySecs / params.TargetBlockSecs,
			CoinbaseMaturity:     params.CoinbaseMaturity,
		},
		Mining: MiningConfig{
			Enabled: false,
			Threads: 1,

			TargetBlockTime:              params.TargetBlockSecs,
			DifficultyAdjustmentInterval: params.RetargetInterval,

			Y1Reward:        params.Y1Reward,
			AnnualReduction: params.AnnualReduction,
			BlocksPerYear:   params.BlocksPerYear,
			MinReward:       params.MinReward,

			TreasuryAllocPct: params.TreasuryAllocPct,
			LockPct:          params.LockPct,
			LockBlocks:       params.LockBlocks,

			FeeBurnPct:      params.FeeBurnPct,
			FeeTreasuryPct:  params.FeeTreasuryPct,
			FeeValidatorPct: params.FeeValidatorPct,
		},
		Security: SecurityConfig{
			MaxMempoolSize:     params.MaxMempoolSize,
			RateLimitPerMinute: 600,
			EnablePeerBanning:  true,
			RequireTLS:         false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9100,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default node configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Node.NetworkPort = 30304
	cfg.Node.RPCPort = 8645
	cfg.Node.APIPort = 8646
	cfg.Metrics.Port = 9101
	return cfg
}

// Default returns the default node configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
