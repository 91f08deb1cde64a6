package p2p

import (
	"fmt"
	"sort"

	klog "github.com/qchain-project/qchain/internal/log"
	"github.com/qchain-project/qchain/pkg/block"
)

// maxBlocksPerSync caps how many blocks one GetBlocksMessage round trip
// returns, regardless of what the requester asked for.
const maxBlocksPerSync = 500

// ChainSource is the local chain surface the syncer reads from and writes
// to. internal/node supplies internal/chain.Chain for this.
type ChainSource interface {
	Height() uint64
	GetBlock(height uint64) (*block.Block, error)
	ProcessBlock(blk *block.Block) error
}

// Syncer drives chain synchronization with peers: on connect it compares
// local height against the peer's handshake BestHeight, requests any
// blocks it is missing, and applies them in order through ProcessBlock.
// It only fetches blocks above the local height: it does not resolve a
// reorg reaching further back than the single block internal/chain's own
// fork handling covers, so blocks of such a competing chain end up only in
// the chain's orphan pool.
type Syncer struct {
	chain ChainSource
}

// NewSyncer creates a syncer attached to chain.
func NewSyncer(chain ChainSource) *Syncer {
	return &Syncer{chain: chain}
}

// HandleGetBlocks answers a GetBlocksMessage with a contiguous run of
// blocks starting at req.FromHeight, clipped to maxBlocksPerSync and to
// the local tip.
func (s *Syncer) HandleGetBlocks(req GetBlocksMessage) BlocksMessage {
	var blocks []*block.Block
	tip := s.chain.Height()
	for h := req.FromHeight; h <= tip && len(blocks) < maxBlocksPerSync; h++ {
		blk, err := s.chain.GetBlock(h)
		if err != nil {
			break
		}
		blocks = append(blocks, blk)
	}
	return BlocksMessage{Blocks: blocks}
}

// SyncFrom requests every block the peer has beyond our local height and
// applies them to the chain in order. It returns once the peer's
// announced BestHeight has been reached or a block fails to apply.
func (s *Syncer) SyncFrom(p *Peer) error {
	local := s.chain.Height()
	if p.BestHeight <= local {
		return nil
	}

	for local < p.BestHeight {
		req := GetBlocksMessage{FromHeight: local + 1}
		if err := p.Send(MsgGetBlocks, req); err != nil {
			return fmt.Errorf("p2p: send get_blocks to %s: %w", p.Addr, err)
		}

		env, err := p.Recv()
		if err != nil {
			return fmt.Errorf("p2p: read blocks response from %s: %w", p.Addr, err)
		}
		if env.Type != MsgBlocks {
			return fmt.Errorf("p2p: expected blocks, got %s from %s", env.Type, p.Addr)
		}

		var resp BlocksMessage
		if err := decodeBlocks(env.Payload, &resp); err != nil {
			return fmt.Errorf("p2p: decode blocks from %s: %w", p.Addr, err)
		}
		if len(resp.Blocks) == 0 {
			return fmt.Errorf("p2p: %s reported height %d but sent no blocks", p.Addr, p.BestHeight)
		}

		sort.Slice(resp.Blocks, func(i, j int) bool {
			return resp.Blocks[i].Header.Index < resp.Blocks[j].Header.Index
		})

		for _, blk := range resp.Blocks {
			if err := s.chain.ProcessBlock(blk); err != nil {
				return fmt.Errorf("p2p: apply synced block %d from %s: %w", blk.Header.Index, p.Addr, err)
			}
			klog.P2P.Debug().Uint64("height", blk.Header.Index).Str("peer", p.Addr).Msg("applied synced block")
		}
		local = s.chain.Height()
	}
	return nil
}
