// qchaind is the qchain full node daemon.
//
// Usage:
//
//	qchaind [--mining.enabled --mining.coinbase=0x...]  Run node
//	qchaind --help                                      Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/qchain-project/qchain/config"
	klog "github.com/qchain-project/qchain/internal/log"
	"github.com/qchain-project/qchain/internal/node"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "qchaind",
		Short: "qchain full node daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
		SilenceUsage: true,
	}

	if err := config.RegisterFlags(cmd, v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(v *viper.Viper) error {
	network := config.NetworkFromFlags(v)
	cfg, err := config.Load(v, v.GetString("config"), network)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := config.EnsureDataDirs(cfg); err != nil {
		return fmt.Errorf("prepare data directories: %w", err)
	}

	logFile := cfg.Log.File
	if logFile == "" {
		logFile = cfg.LogsDir() + "/qchain.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger := klog.WithComponent("node")

	genesis := config.GenesisFor(cfg.Network)
	logger.Info().
		Str("chain_id", genesis.ChainID).
		Str("network", string(cfg.Network)).
		Bool("mining", cfg.Mining.Enabled).
		Msg("starting qchain node")

	n, err := node.New(cfg)
	if err != nil {
		return fmt.Errorf("build node: %w", err)
	}

	if err := n.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	logger.Info().
		Uint64("height", n.Height()).
		Msg("node started successfully")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	n.Stop()
	logger.Info().Msg("goodbye")
	return nil
}
