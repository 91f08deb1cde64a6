package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load builds a Config for network by layering, lowest to highest
// precedence: compiled-in defaults, an optional config file at path (if
// path is "", the default ConfigFile location is tried and silently
// skipped if absent), QCHAIN_-prefixed environment variables, then any
// command-line flags already bound into v. Pass nil for v to load from
// just defaults, file, and environment.
func Load(v *viper.Viper, path string, network NetworkType) (*Config, error) {
	cfg := Default(network)

	if v == nil {
		v = viper.New()
	}
	v.SetConfigType("yaml")
	v.SetEnvPrefix("qchain")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigFile(cfg.ConfigFile())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		// A missing default config file is not an error: compiled-in
		// defaults plus environment variables still apply.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// The network secret is deliberately not defaulted: it must come from
	// the environment or a config file, never a compiled-in constant.
	if secret := v.GetString("network.secret"); secret != "" {
		cfg.Peers.Secret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// WriteDefaultConfig writes a default node configuration file for network.
func WriteDefaultConfig(path string, network NetworkType) error {
	cfg := Default(network)
	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("chain_network", string(cfg.Network))
	v.Set("datadir", cfg.DataDir)
	v.Set("node", cfg.Node)
	v.Set("network", cfg.Peers)
	v.Set("consensus", cfg.Consensus)
	v.Set("mining", cfg.Mining)
	v.Set("security", cfg.Security)
	v.Set("metrics", cfg.Metrics)
	v.Set("log", cfg.Log)
	return v.WriteConfigAs(path)
}
