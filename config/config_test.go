package config

import "testing"

func TestDefaultMainnetIsValid(t *testing.T) {
	cfg := DefaultMainnet()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultMainnet() should validate: %v", err)
	}
}

func TestDefaultTestnetIsValid(t *testing.T) {
	cfg := DefaultTestnet()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultTestnet() should validate: %v", err)
	}
}

func TestDefaultTestnetUsesDistinctPorts(t *testing.T) {
	main := DefaultMainnet()
	test := DefaultTestnet()
	if main.Node.NetworkPort == test.Node.NetworkPort {
		t.Fatal("mainnet and testnet defaults should not share a network port")
	}
}

func TestValidateRejectsBadNetwork(t *testing.T) {
	cfg := DefaultMainnet()
	cfg.Network = "foo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown network")
	}
}

func TestValidateRejectsColldingPorts(t *testing.T) {
	cfg := DefaultMainnet()
	cfg.Node.RPCPort = cfg.Node.APIPort
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for colliding ports")
	}
}

func TestValidateRejectsBadFeeSplit(t *testing.T) {
	cfg := DefaultMainnet()
	cfg.Mining.FeeBurnPct = 50
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when fee split does not sum to 100")
	}
}

func TestValidateRejectsZeroMaxPeers(t *testing.T) {
	cfg := DefaultMainnet()
	cfg.Peers.MaxPeers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero max_peers")
	}
}

func TestValidateRejectsMiningEnabledWithoutThreads(t *testing.T) {
	cfg := DefaultMainnet()
	cfg.Mining.Enabled = true
	cfg.Mining.Threads = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for mining enabled with zero threads")
	}
}

func TestDBDirHonorsExplicitDBPath(t *testing.T) {
	cfg := DefaultMainnet()
	cfg.Node.DBPath = "/var/lib/qchain/db"
	if cfg.DBDir() != "/var/lib/qchain/db" {
		t.Fatalf("DBDir() = %q, want explicit db_path", cfg.DBDir())
	}
}
