package consensus

import "github.com/qchain-project/qchain/pkg/params"

// NewGenesisPoW builds the PoW engine with the frozen genesis difficulty.
// The constants pow.go and reward.go draw on live in pkg/params, since
// pkg/block's structural validation also needs them (an import from
// internal/consensus back into pkg/block would cycle).
func NewGenesisPoW() (*PoW, error) {
	return NewPoW(params.InitialDifficulty)
}
