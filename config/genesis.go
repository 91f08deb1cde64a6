package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/qchain-project/qchain/pkg/crypto"
	"github.com/qchain-project/qchain/pkg/types"
)

// Coin denomination. 1 coin = 10^8 base units.
const (
	Decimals = 8
	Coin     = 100_000_000
)

// Genesis holds the genesis block configuration. Protocol/economic
// parameters (difficulty, reward schedule, fee splits) are consensus
// constants frozen in pkg/params, not per-genesis-file fields — every node
// on the network runs the same binary and therefore the same constants, so
// there is nothing for a genesis file to override.
type Genesis struct {
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name"`
	Timestamp int64  `json:"timestamp"`
	ExtraData string `json:"extra_data,omitempty"`

	// Alloc credits each address's spendable balance at block 0, keyed by
	// the canonical "0x"-prefixed hex address string.
	Alloc map[string]uint64 `json:"alloc"`
}

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:   "qchain-mainnet-1",
		ChainName: "Qchain Mainnet",
		Timestamp: 1770734103, // 2026-02-10
		ExtraData: "Qchain Genesis",
		Alloc:     map[string]uint64{},
	}
}

// TestnetGenesis returns the testnet genesis configuration.
func TestnetGenesis() *Genesis {
	return &Genesis{
		ChainID:   "qchain-testnet-1",
		ChainName: "Qchain Testnet",
		Timestamp: 1770734103,
		ExtraData: "Qchain Testnet Genesis",
		Alloc: map[string]uint64{
			"0x1111111111111111111111111111111111111111": 200_000 * Coin,
		},
	}
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// LoadGenesis loads a genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}
	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}
	return nil
}

// Validate checks that the genesis configuration is structurally valid.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if g.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be positive")
	}
	for addrStr := range g.Alloc {
		if _, err := types.ParseAddress(addrStr); err != nil {
			return fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
	}
	return nil
}

// Hash returns a SHA3-256 hash of the genesis configuration, used to detect
// genesis mismatches between peers during handshake.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
