// Package miner assembles, seals, and submits new blocks: selecting
// mempool transactions, computing the coinbase reward, running
// proof-of-work sealing, and handing the sealed block to the chain.
package miner

import (
	"context"
	"fmt"
	"time"

	"github.com/qchain-project/qchain/internal/consensus"
	klog "github.com/qchain-project/qchain/internal/log"
	"github.com/qchain-project/qchain/pkg/block"
	"github.com/qchain-project/qchain/pkg/params"
	"github.com/qchain-project/qchain/pkg/tx"
	"github.com/qchain-project/qchain/pkg/types"
)

// ChainState is the read/write chain surface the miner needs: enough to
// assemble a candidate block against the current tip, validate it the same
// way ProcessBlock would, and commit it.
type ChainState interface {
	Height() uint64
	TipHash() types.Hash
	Engine() consensus.Engine
	ProcessBlock(blk *block.Block) error
}

// MempoolSource selects pending transactions for inclusion and drops the
// ones a newly-mined block confirms.
type MempoolSource interface {
	Best(limit, maxBytes int) []*tx.Transaction
	RemoveMined(txs []*tx.Transaction)
}

// Miner assembles, seals, and submits candidate blocks against a running
// chain.
type Miner struct {
	chain        ChainState
	pool         MempoolSource
	coinbaseAddr types.Address
	maxBlockTxs  int
	maxBlockSize int
}

// New creates a block producer that pays coinbaseAddr and draws
// transactions from pool.
func New(chain ChainState, pool MempoolSource, coinbaseAddr types.Address) *Miner {
	return &Miner{
		chain:        chain,
		pool:         pool,
		coinbaseAddr: coinbaseAddr,
		maxBlockTxs:  params.MaxBlockTxs,
		maxBlockSize: params.MaxBlockSizeBytes,
	}
}

// MineOnce assembles one candidate block on top of the current tip, seals
// it via proof of work, submits it to the chain, and evicts its
// transactions from the mempool. It blocks until a block is sealed or ctx
// is cancelled.
func (m *Miner) MineOnce(ctx context.Context) (*block.Block, error) {
	blk, err := m.assemble(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.chain.ProcessBlock(blk); err != nil {
		return nil, fmt.Errorf("miner: submit sealed block: %w", err)
	}
	m.pool.RemoveMined(blk.Transactions)
	klog.Mining.Info().
		Uint64("height", blk.Header.Index).
		Int("transactions", len(blk.Transactions)-1).
		Uint64("difficulty", blk.Header.Difficulty).
		Msg("mined block")
	return blk, nil
}

// Run mines continuously until ctx is cancelled, submitting each sealed
// block. After a submission failure (typically a race with a block
// received from a peer) it starts again on the new tip at once, without
// pausing.
func (m *Miner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		blk, err := m.assemble(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			klog.Mining.Warn().Err(err).Msg("assemble candidate block failed")
			continue
		}
		if err := m.chain.ProcessBlock(blk); err != nil {
			klog.Mining.Debug().Err(err).Msg("mined block rejected, retrying on new tip")
			continue
		}
		m.pool.RemoveMined(blk.Transactions)
		klog.Mining.Info().
			Uint64("height", blk.Header.Index).
			Int("transactions", len(blk.Transactions)-1).
			Msg("mined block")
	}
}

// assemble builds and seals one candidate block: select mempool
// transactions, compute the coinbase reward from the fees they carry,
// prepare the header via the consensus engine, and seal it with
// cancellable proof-of-work search.
func (m *Miner) assemble(ctx context.Context) (*block.Block, error) {
	height := m.chain.Height() + 1
	prevHash := m.chain.TipHash()

	selected := m.pool.Best(m.maxBlockTxs-1, m.maxBlockSize)

	var totalFees uint64
	for _, t := range selected {
		totalFees += t.Fee
	}

	alloc := consensus.ComputeAllocation(height, totalFees)
	coinbase := BuildCoinbase(m.coinbaseAddr, alloc.MinerLiquid, height)

	txs := make([]*tx.Transaction, 0, 1+len(selected))
	txs = append(txs, coinbase)
	txs = append(txs, selected...)

	header := &block.Header{
		Index:     height,
		Timestamp: time.Now().Unix(),
		PrevHash:  prevHash.String(),
	}
	blk := block.NewBlock(header, txs)
	header.MerkleRoot = blk.MerkleRoot()

	engine := m.chain.Engine()
	difficulty := m.expectedDifficulty(height)
	engine.Prepare(header, difficulty)

	if pow, ok := engine.(*consensus.PoW); ok {
		if err := pow.SealWithCancel(ctx, blk); err != nil {
			return nil, fmt.Errorf("miner: seal block: %w", err)
		}
	} else if err := engine.Seal(blk); err != nil {
		return nil, fmt.Errorf("miner: seal block: %w", err)
	}
	return blk, nil
}

// expectedDifficulty asks the engine for the difficulty the next block
// must meet, falling back to the engine's prepared default when the
// engine doesn't expose a retarget (non-PoW engines, tests).
func (m *Miner) expectedDifficulty(height uint64) uint64 {
	pow, ok := m.chain.Engine().(*consensus.PoW)
	if !ok {
		return 0
	}
	prevBlk, err := chainBlock(m.chain, height-1)
	if err != nil {
		return pow.ExpectedDifficulty(height, 0, nil)
	}
	return pow.ExpectedDifficulty(height, prevBlk.Header.Difficulty, blockTimestampFn(m.chain))
}

// blockGetter is satisfied by internal/chain.Chain; kept narrow so tests
// can supply a fake without pulling in the whole chain package.
type blockGetter interface {
	GetBlock(height uint64) (*block.Block, error)
}

func chainBlock(c ChainState, height uint64) (*block.Block, error) {
	bg, ok := c.(blockGetter)
	if !ok {
		return nil, fmt.Errorf("miner: chain does not expose GetBlock")
	}
	return bg.GetBlock(height)
}

func blockTimestampFn(c ChainState) func(uint64) (int64, error) {
	return func(height uint64) (int64, error) {
		blk, err := chainBlock(c, height)
		if err != nil {
			return 0, err
		}
		return blk.Header.Timestamp, nil
	}
}

// BuildCoinbase creates the reward-issuing transaction placed first in
// every mined block, crediting amount to addr. height is used as the
// transaction's nonce, so coinbases at different heights hash differently.
// Coinbase transactions carry no signature or public key, authorized
// instead by the reserved CoinbaseSender string.
func BuildCoinbase(addr types.Address, amount, height uint64) *tx.Transaction {
	return &tx.Transaction{
		Sender:    types.CoinbaseSender,
		Recipient: addr,
		Amount:    amount,
		Timestamp: time.Now().Unix(),
		Nonce:     height,
	}
}
