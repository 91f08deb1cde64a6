// Package consensus implements proof-of-work validation, the difficulty
// retarget algorithm, the reward schedule, and checkpoint enforcement.
package consensus

import "github.com/qchain-project/qchain/pkg/block"

// Engine is the consensus backend a Validator checks a block's proof of
// work against.
type Engine interface {
	VerifyHeader(blk *block.Block) error
	VerifyDifficulty(blk *block.Block, prevDifficulty uint64, getTimestamp func(uint64) (int64, error)) error
	Prepare(header *block.Header, difficulty uint64)
	Seal(blk *block.Block) error
}
