package consensus

import (
	"errors"
	"fmt"

	"github.com/qchain-project/qchain/pkg/block"
)

var (
	ErrBadIndex       = errors.New("block index does not follow previous block")
	ErrBadPrevHash    = errors.New("previous_hash does not match the parent block")
	ErrStaleTimestamp = errors.New("block timestamp does not advance the chain")
	ErrFutureTimestamp = errors.New("block timestamp too far in the future")
	ErrCheckpoint     = errors.New("block conflicts with a checkpoint")
)

// MaxFutureDriftSecs bounds how far a block's timestamp may sit ahead of
// the validating node's clock, limiting a miner's ability to manipulate
// the next retarget by backdating or postdating blocks.
const MaxFutureDriftSecs = 2 * 60 * 60

// Validator checks a received block against every consensus rule that
// needs chain context, on top of block.Block.Validate's self-contained
// structural checks.
type Validator struct {
	engine      Engine
	checkpoints Checkpoints
	nowFn       func() int64
}

// NewValidator creates a block validator bound to engine and a checkpoint
// set. nowFn is injectable for tests; nil uses no future-timestamp bound.
func NewValidator(engine Engine, checkpoints Checkpoints, nowFn func() int64) *Validator {
	return &Validator{engine: engine, checkpoints: checkpoints, nowFn: nowFn}
}

// ValidateBlock runs the full accept-or-reject pipeline for a block
// received from a peer or the mining loop: structure, linkage, proof of
// work, difficulty, checkpoints.
func (v *Validator) ValidateBlock(blk *block.Block, prev *block.Block, prevDifficulty uint64, getTimestamp func(uint64) (int64, error)) error {
	if err := blk.Validate(); err != nil {
		return fmt.Errorf("block structure: %w", err)
	}

	if prev != nil {
		if blk.Header.Index != prev.Header.Index+1 {
			return fmt.Errorf("%w: got %d, want %d", ErrBadIndex, blk.Header.Index, prev.Header.Index+1)
		}
		if blk.Header.PrevHash != prev.HashHex() {
			return fmt.Errorf("%w: got %s, want %s", ErrBadPrevHash, blk.Header.PrevHash, prev.HashHex())
		}
		if blk.Header.Timestamp <= prev.Header.Timestamp {
			return fmt.Errorf("%w: %d <= %d", ErrStaleTimestamp, blk.Header.Timestamp, prev.Header.Timestamp)
		}
	}

	if v.nowFn != nil {
		if blk.Header.Timestamp > v.nowFn()+MaxFutureDriftSecs {
			return fmt.Errorf("%w: %d", ErrFutureTimestamp, blk.Header.Timestamp)
		}
	}

	if err := v.engine.VerifyHeader(blk); err != nil {
		return fmt.Errorf("proof of work: %w", err)
	}
	if err := v.engine.VerifyDifficulty(blk, prevDifficulty, getTimestamp); err != nil {
		return fmt.Errorf("difficulty: %w", err)
	}

	if v.checkpoints != nil {
		if err := v.checkpoints.Verify(blk.Header.Index, blk.HashHex()); err != nil {
			return fmt.Errorf("%w: %v", ErrCheckpoint, err)
		}
	}

	return nil
}
