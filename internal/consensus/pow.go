package consensus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/qchain-project/qchain/pkg/block"
	"github.com/qchain-project/qchain/pkg/crypto"
	"github.com/qchain-project/qchain/pkg/params"
)

var (
	ErrInsufficientWork = errors.New("hash does not meet the required leading-zero-nibble count")
	ErrZeroDifficulty   = errors.New("difficulty must be > 0")
	ErrBadDifficulty    = errors.New("block difficulty does not match expected")
)

// PoW implements the proof-of-work consensus rule. A valid
// block's hash, rendered as lowercase hex, must begin with at least
// Difficulty zero nibbles. The engine holds no per-block mutable state —
// difficulty is always read from, or written to, the header being worked on.
type PoW struct {
	InitialDifficulty uint64
	// Threads controls the number of parallel mining goroutines used by
	// Seal/SealWithCancel. 0 or 1 means single-threaded.
	Threads int
}

// NewPoW creates a PoW engine seeded with the genesis difficulty.
func NewPoW(initialDifficulty uint64) (*PoW, error) {
	if initialDifficulty == 0 {
		return nil, ErrZeroDifficulty
	}
	return &PoW{InitialDifficulty: initialDifficulty}, nil
}

// LeadingZeroNibbles counts the leading '0' hex characters of s.
func LeadingZeroNibbles(s string) int {
	n := 0
	for n < len(s) && s[n] == '0' {
		n++
	}
	return n
}

// VerifyHeader checks that blk's hash meets its own stated difficulty.
func (p *PoW) VerifyHeader(blk *block.Block) error {
	if blk.Header.Difficulty == 0 {
		return ErrZeroDifficulty
	}
	hashHex := blk.HashHex()
	if uint64(LeadingZeroNibbles(hashHex)) < blk.Header.Difficulty {
		return fmt.Errorf("%w: hash %s, need %d leading zero nibbles", ErrInsufficientWork, hashHex, blk.Header.Difficulty)
	}
	return nil
}

// Prepare sets the header's difficulty field before mining begins.
func (p *PoW) Prepare(header *block.Header, difficulty uint64) {
	header.Difficulty = difficulty
}

// nonceTemplate splits a block's signing text around the nonce field so a
// mining loop can substitute nonces cheaply without recomputing the
// transaction hash list or merkle root every iteration.
type nonceTemplate struct {
	prefix string // "index:timestamp:tx_hashes_csv:previous_hash:"
	suffix string // ":difficulty:merkle_root"
}

func newNonceTemplate(blk *block.Block) nonceTemplate {
	h := blk.Header
	return nonceTemplate{
		prefix: fmt.Sprintf("%d:%d:%s:%s:", h.Index, h.Timestamp, blk.TxHashesCSV(), h.PrevHash),
		suffix: fmt.Sprintf(":%d:%s", h.Difficulty, h.MerkleRoot.String()),
	}
}

func (n nonceTemplate) hashHex(nonce uint64) string {
	text := n.prefix + strconv.FormatUint(nonce, 10) + n.suffix
	return crypto.DoubleHash([]byte(text))
}

// Seal mines blk until its hash meets blk.Header.Difficulty, setting Nonce.
func (p *PoW) Seal(blk *block.Block) error {
	return p.SealWithCancel(context.Background(), blk)
}

// SealWithCancel mines blk, stopping early if ctx is cancelled.
func (p *PoW) SealWithCancel(ctx context.Context, blk *block.Block) error {
	if blk == nil || blk.Header == nil {
		return fmt.Errorf("nil block or header")
	}
	if blk.Header.Difficulty == 0 {
		return ErrZeroDifficulty
	}
	if p.Threads > 1 {
		return p.sealParallel(ctx, blk, p.Threads)
	}
	return p.sealSingle(ctx, blk)
}

func (p *PoW) sealSingle(ctx context.Context, blk *block.Block) error {
	tmpl := newNonceTemplate(blk)
	target := int(blk.Header.Difficulty)

	for nonce := uint64(0); ; nonce++ {
		if nonce&0xFFFF == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		if LeadingZeroNibbles(tmpl.hashHex(nonce)) >= target {
			blk.Header.Nonce = nonce
			return nil
		}
		if nonce == ^uint64(0) {
			return fmt.Errorf("nonce space exhausted")
		}
	}
}

func (p *PoW) sealParallel(ctx context.Context, blk *block.Block, threads int) error {
	tmpl := newNonceTemplate(blk)
	target := int(blk.Header.Difficulty)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var found atomic.Uint64
	var foundOK atomic.Bool
	var wg sync.WaitGroup

	for i := 0; i < threads; i++ {
		wg.Add(1)
		start := uint64(i)
		stride := uint64(threads)
		go func() {
			defer wg.Done()
			for nonce := start; ; nonce += stride {
				if (nonce/stride)&0xFFFF == 0 && nonce > 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}
				if LeadingZeroNibbles(tmpl.hashHex(nonce)) >= target {
					if foundOK.CompareAndSwap(false, true) {
						found.Store(nonce)
					}
					cancel()
					return
				}
				if nonce > ^uint64(0)-stride {
					return
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if !foundOK.Load() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("nonce space exhausted")
		}
		blk.Header.Nonce = found.Load()
		return nil
	case <-ctx.Done():
		<-done
		if foundOK.Load() {
			blk.Header.Nonce = found.Load()
			return nil
		}
		return ctx.Err()
	}
}

// ExpectedDifficulty computes the difficulty a block at height must carry.
// Blocks that are not at a retarget boundary carry forward the previous
// block's difficulty.
func (p *PoW) ExpectedDifficulty(height uint64, prevDifficulty uint64, getTimestamp func(uint64) (int64, error)) uint64 {
	if height <= 1 || prevDifficulty == 0 {
		return p.InitialDifficulty
	}
	if height%params.RetargetInterval != 0 {
		return prevDifficulty
	}
	startTS, err := getTimestamp(height - params.RetargetInterval)
	if err != nil {
		return prevDifficulty
	}
	endTS, err := getTimestamp(height - 1)
	if err != nil {
		return prevDifficulty
	}
	actual := endTS - startTS
	expected := int64(params.RetargetInterval * params.TargetBlockSecs)
	return CalcNextDifficulty(prevDifficulty, actual, expected)
}

// VerifyDifficulty checks a header's stated difficulty against the value
// chain history demands.
func (p *PoW) VerifyDifficulty(blk *block.Block, prevDifficulty uint64, getTimestamp func(uint64) (int64, error)) error {
	expected := p.ExpectedDifficulty(blk.Header.Index, prevDifficulty, getTimestamp)
	if blk.Header.Difficulty != expected {
		return fmt.Errorf("%w: height %d has difficulty %d, want %d",
			ErrBadDifficulty, blk.Header.Index, blk.Header.Difficulty, expected)
	}
	return nil
}

// CalcNextDifficulty applies the two-stage retarget clamp:
// first the actual timespan is clamped to [expected/4, expected*4], then
// the raw proportional adjustment is clamped to ±25% of the current
// difficulty, and finally the result is clamped to
// [params.MinDifficulty, params.MaxDifficulty].
func CalcNextDifficulty(currentDiff uint64, actualTimeSpan, expectedTimeSpan int64) uint64 {
	if actualTimeSpan <= 0 {
		actualTimeSpan = 1
	}
	if expectedTimeSpan <= 0 {
		expectedTimeSpan = 1
	}

	minSpan := expectedTimeSpan / 4
	if minSpan < 1 {
		minSpan = 1
	}
	maxSpan := expectedTimeSpan * 4
	if actualTimeSpan < minSpan {
		actualTimeSpan = minSpan
	}
	if actualTimeSpan > maxSpan {
		actualTimeSpan = maxSpan
	}

	raw := float64(currentDiff) * float64(expectedTimeSpan) / float64(actualTimeSpan)

	minChange := float64(currentDiff) * 0.75
	maxChange := float64(currentDiff) * 1.25
	if raw < minChange {
		raw = minChange
	}
	if raw > maxChange {
		raw = maxChange
	}

	newDiff := uint64(raw + 0.5)
	if newDiff < params.MinDifficulty {
		newDiff = params.MinDifficulty
	}
	if newDiff > params.MaxDifficulty {
		newDiff = params.MaxDifficulty
	}
	return newDiff
}
