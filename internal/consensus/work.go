package consensus

import "math/big"

// Work returns a single block's contribution to cumulative chain work,
// 16^difficulty. Each additional required leading-zero
// hex nibble is sixteen times harder to find, so work must accumulate
// geometrically for fork-choice to reflect actual computation spent, not
// just block count or the sum of difficulties.
func Work(difficulty uint64) *big.Int {
	return new(big.Int).Exp(big.NewInt(16), new(big.Int).SetUint64(difficulty), nil)
}
