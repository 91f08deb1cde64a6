package chain

import (
	"math/big"

	"github.com/qchain-project/qchain/pkg/types"
)

// State holds the current chain tip's summary fields.
type State struct {
	Height               uint64
	TipHash              types.Hash
	Supply               uint64   // total coins in circulation: genesis alloc + cumulative rewards
	CumulativeDifficulty *big.Int // Σ16^difficulty over every block in the active chain
	TipTimestamp         int64
}

// IsGenesis reports whether no blocks have been processed yet.
func (s *State) IsGenesis() bool {
	return s.Height == 0 && s.TipHash.IsZero()
}
