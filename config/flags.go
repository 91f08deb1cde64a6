package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RegisterFlags declares the node's command-line flags on cmd and binds
// each one into v under the same dotted key Load reads from a config file
// or environment variable, so flag > env > file > default precedence falls
// out of viper's own resolution order once BindPFlag has run.
func RegisterFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.PersistentFlags()

	flags.String("network", "mainnet", "network to join: mainnet or testnet")
	flags.String("datadir", "", "data directory (default: "+DefaultDataDir()+")")
	flags.String("config", "", "config file path")

	flags.Int("node.api_port", 0, "API server port")
	flags.Int("node.network_port", 0, "P2P listen port")
	flags.Int("node.rpc_port", 0, "RPC server port")
	flags.String("node.db_path", "", "database directory")
	flags.Bool("node.no_network", false, "disable P2P networking")

	flags.Int("network.max_peers", 0, "maximum number of connected peers")
	flags.StringSlice("network.bootstrap_nodes", nil, "bootstrap peer addresses")
	flags.StringSlice("network.dns_seeds", nil, "DNS seed hostnames")

	flags.Bool("mining.enabled", false, "enable block production")
	flags.String("mining.coinbase", "", "address to receive block rewards")
	flags.Int("mining.threads", 1, "mining worker thread count")

	flags.Bool("metrics.enabled", true, "enable the Prometheus metrics endpoint")
	flags.Int("metrics.port", 0, "metrics endpoint port")

	flags.String("log.level", "", "log level: debug, info, warn, error")
	flags.String("log.file", "", "log file path (default: <datadir>/logs/qchain.log)")
	flags.Bool("log.json", false, "emit logs as JSON")

	bindKeys := []string{
		"network", "datadir", "config",
		"node.api_port", "node.network_port", "node.rpc_port", "node.db_path", "node.no_network",
		"network.max_peers", "network.bootstrap_nodes", "network.dns_seeds",
		"mining.enabled", "mining.coinbase", "mining.threads",
		"metrics.enabled", "metrics.port",
		"log.level", "log.file", "log.json",
	}
	for _, key := range bindKeys {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			return err
		}
	}
	return nil
}

// NetworkFromFlags resolves the --network flag value (falling back to
// "mainnet") into a NetworkType, before the rest of Load can run — the
// network choice determines which default values Load layers underneath
// the file and environment.
func NetworkFromFlags(v *viper.Viper) NetworkType {
	if v.GetString("network") == string(Testnet) {
		return Testnet
	}
	return Mainnet
}
