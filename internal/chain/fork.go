package chain

import (
	"fmt"
	"sync"

	"github.com/qchain-project/qchain/internal/consensus"
	"github.com/qchain-project/qchain/pkg/block"
	"github.com/qchain-project/qchain/pkg/types"
)

// orphanPool holds blocks received out of order or on a losing fork,
// bounded at maxOrphans with oldest-first eviction.
type orphanPool struct {
	mu      sync.Mutex
	order   []types.Hash
	byHash  map[types.Hash]*block.Block
	maxSize int
}

func newOrphanPool(maxSize int) *orphanPool {
	return &orphanPool{byHash: make(map[types.Hash]*block.Block), maxSize: maxSize}
}

func (p *orphanPool) add(blk *block.Block) {
	p.mu.Lock()
	defer p.mu.Unlock()
	hash := blk.Hash()
	if _, exists := p.byHash[hash]; exists {
		return
	}
	if len(p.order) >= p.maxSize {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.byHash, oldest)
	}
	p.order = append(p.order, hash)
	p.byHash[hash] = blk
}

func (p *orphanPool) remove(hash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byHash, hash)
	for i, h := range p.order {
		if h == hash {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// childrenOf returns every pooled block whose previous_hash matches parent.
func (p *orphanPool) childrenOf(parent string) []*block.Block {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*block.Block
	for _, blk := range p.byHash {
		if blk.Header.PrevHash == parent {
			out = append(out, blk)
		}
	}
	return out
}

// handleFork routes a block that does not directly extend the tip: one
// further ahead than the tip is queued as an orphan awaiting its missing
// ancestors; one at or behind tip height is a potential competing tip.
func (c *Chain) handleFork(blk *block.Block) error {
	if blk.Header.Index > c.state.Height+1 {
		c.orphans.add(blk)
		return nil
	}
	return c.tryReorgFrom(blk)
}

// tryReorgFrom considers blk as a replacement for the current tip. Only a
// competing block at the tip's own height is resolved; a reorg reaching
// further back than one block is not resolved anywhere, and such a block
// is only pooled.
func (c *Chain) tryReorgFrom(blk *block.Block) error {
	if blk.Header.Index != c.state.Height {
		c.orphans.add(blk)
		return nil
	}

	tipBlk, err := c.blocks.GetBlock(c.state.Height)
	if err != nil {
		return fmt.Errorf("load current tip: %w", err)
	}
	if blk.Hash() == tipBlk.Hash() {
		return ErrBlockKnown
	}

	if floor := c.checkpoints.Floor(); floor > 0 && blk.Header.Index <= floor {
		return fmt.Errorf("block at height %d is below the checkpoint floor %d", blk.Header.Index, floor)
	}

	candidateWork := consensus.Work(blk.Header.Difficulty)
	currentWork := consensus.Work(tipBlk.Header.Difficulty)
	if candidateWork.Cmp(currentWork) <= 0 {
		c.orphans.add(blk)
		return nil
	}

	if c.state.Height == 0 {
		return fmt.Errorf("cannot replace the genesis block")
	}
	prevBlk, err := c.blocks.GetBlock(c.state.Height - 1)
	if err != nil {
		return fmt.Errorf("load parent of competing tip: %w", err)
	}
	if err := c.validator.ValidateBlock(blk, prevBlk, prevBlk.Header.Difficulty, c.blockTimestamp); err != nil {
		return fmt.Errorf("validate competing tip: %w", err)
	}

	if err := c.blocks.PutReorgCheckpoint(c.state.Height - 1); err != nil {
		return fmt.Errorf("mark reorg in progress: %w", err)
	}
	if err := c.revertTip(); err != nil {
		return fmt.Errorf("revert current tip: %w", err)
	}
	if err := c.commitBlock(blk); err != nil {
		return fmt.Errorf("apply competing tip: %w", err)
	}
	if err := c.blocks.DeleteReorgCheckpoint(); err != nil {
		return fmt.Errorf("clear reorg marker: %w", err)
	}
	return c.tryExtendFromOrphans()
}

// tryExtendFromOrphans repeatedly looks for a pooled block extending the
// (possibly just-changed) tip, preferring the heaviest candidate when more
// than one targets the same parent.
func (c *Chain) tryExtendFromOrphans() error {
	for {
		children := c.orphans.childrenOf(c.state.TipHash.String())
		if len(children) == 0 {
			return nil
		}
		next := children[0]
		for _, child := range children[1:] {
			if consensus.Work(child.Header.Difficulty).Cmp(consensus.Work(next.Header.Difficulty)) > 0 {
				next = child
			}
		}

		tipBlk, err := c.blocks.GetBlock(c.state.Height)
		if err != nil {
			return fmt.Errorf("load tip for orphan extension: %w", err)
		}
		if err := c.validator.ValidateBlock(next, tipBlk, tipBlk.Header.Difficulty, c.blockTimestamp); err != nil {
			c.orphans.remove(next.Hash())
			continue
		}
		if err := c.commitBlock(next); err != nil {
			c.orphans.remove(next.Hash())
			continue
		}
	}
}
