// Package chain implements the account-based blockchain state machine:
// block application, balance transitions, and chain-tip bookkeeping.
package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/qchain-project/qchain/config"
	"github.com/qchain-project/qchain/internal/consensus"
	"github.com/qchain-project/qchain/internal/contract"
	"github.com/qchain-project/qchain/internal/state"
	"github.com/qchain-project/qchain/internal/storage"
	"github.com/qchain-project/qchain/pkg/block"
	"github.com/qchain-project/qchain/pkg/tx"
	"github.com/qchain-project/qchain/pkg/types"
)

// maxOrphans bounds the in-memory pool of blocks received out of order or
// on a competing fork, before they are applied or discarded.
const maxOrphans = 100

var (
	ErrBlockKnown         = errors.New("block already known")
	ErrBadCoinbase        = errors.New("invalid coinbase transaction")
	ErrUnexpectedTreasury = errors.New("unexpected treasury-sender transaction")
	ErrRewardMismatch     = errors.New("coinbase reward does not match the computed allocation")
	ErrNotInitialized     = errors.New("chain has no genesis block yet")
	ErrAlreadyInitialized = errors.New("chain already initialized")
)

// Chain is the account-based ledger: committed account balances, the block
// store, and the chain tip, guarded by a single mutex since block
// application and reorgs must never interleave.
type Chain struct {
	mu sync.Mutex

	state        *State
	blocks       *BlockStore
	accounts     *state.State
	engine       consensus.Engine
	validator    *consensus.Validator
	checkpoints  consensus.Checkpoints
	genesisHash  types.Hash
	orphans      *orphanPool
	contracts    *contract.Store
	executor     contract.Executor
}

// New opens a chain backed by db. If a reorg was interrupted by a crash
// (a reorg checkpoint marker survives in storage), account state is rebuilt
// from genesis before the chain is usable.
func New(db storage.DB, engine consensus.Engine, checkpoints consensus.Checkpoints) (*Chain, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("consensus engine is nil")
	}

	accounts, err := state.New(db)
	if err != nil {
		return nil, fmt.Errorf("load account state: %w", err)
	}
	contracts := contract.NewStore(db)

	blocks := NewBlockStore(db)
	tipHash, height, supply, err := blocks.GetTip()
	if err != nil {
		return nil, fmt.Errorf("recover tip: %w", err)
	}
	cumDiff := blocks.GetCumulativeDifficulty()

	var genesisHash types.Hash
	if genBlk, err := blocks.GetBlock(0); err == nil {
		genesisHash = genBlk.Hash()
	}

	c := &Chain{
		state: &State{
			TipHash:              tipHash,
			Height:               height,
			Supply:               supply,
			CumulativeDifficulty: cumDiff,
		},
		blocks:      blocks,
		accounts:    accounts,
		engine:      engine,
		validator:   consensus.NewValidator(engine, checkpoints, func() int64 { return time.Now().Unix() }),
		checkpoints: checkpoints,
		genesisHash: genesisHash,
		orphans:     newOrphanPool(maxOrphans),
		contracts:   contracts,
		executor:    contract.NewNoopExecutor(contracts),
	}

	if _, found := blocks.GetReorgCheckpoint(); found {
		if err := c.RebuildState(); err != nil {
			return nil, fmt.Errorf("recover from interrupted reorg: %w", err)
		}
	}
	return c, nil
}

// InitFromGenesis seeds a fresh chain with the genesis block's allocations.
// Genesis bypasses consensus.Validator entirely — there is no parent block
// and no proof of work to check, only the allocation addresses themselves.
func (c *Chain) InitFromGenesis(gen *config.Genesis) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.IsGenesis() {
		return fmt.Errorf("%w at height %d", ErrAlreadyInitialized, c.state.Height)
	}

	blk, err := CreateGenesisBlock(gen)
	if err != nil {
		return fmt.Errorf("create genesis: %w", err)
	}

	var supply uint64
	for _, t := range blk.Transactions {
		c.accounts.Credit(t.Recipient, t.Amount)
		supply += t.Amount
	}
	if err := c.accounts.Persist(); err != nil {
		return fmt.Errorf("persist genesis accounts: %w", err)
	}
	if err := c.blocks.PutBlock(blk); err != nil {
		return fmt.Errorf("store genesis block: %w", err)
	}

	hash := blk.Hash()
	c.state.TipHash = hash
	c.state.Height = 0
	c.state.Supply = supply
	c.state.TipTimestamp = blk.Header.Timestamp
	c.state.CumulativeDifficulty = big.NewInt(0)
	c.genesisHash = hash

	if err := c.blocks.SetTip(hash, 0, supply); err != nil {
		return fmt.Errorf("set genesis tip: %w", err)
	}
	if err := c.blocks.SetCumulativeDifficulty(c.state.CumulativeDifficulty); err != nil {
		return fmt.Errorf("set genesis cumulative difficulty: %w", err)
	}
	return nil
}

// ProcessBlock validates and applies a block received from a peer or the
// mining loop. A block extending the current tip takes a direct fast path;
// anything else (out-of-order, or competing with the current tip) is
// handed to the fork-handling logic in fork.go.
func (c *Chain) ProcessBlock(blk *block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if blk == nil || blk.Header == nil {
		return fmt.Errorf("nil block or header")
	}
	if c.state.IsGenesis() {
		return ErrNotInitialized
	}

	hash := blk.Hash()
	if hash == c.state.TipHash {
		return ErrBlockKnown
	}

	extendsTip := blk.Header.Index == c.state.Height+1 && blk.Header.PrevHash == c.state.TipHash.String()
	if !extendsTip {
		return c.handleFork(blk)
	}

	tipBlk, err := c.blocks.GetBlock(c.state.Height)
	if err != nil {
		return fmt.Errorf("load tip block: %w", err)
	}
	if err := c.validator.ValidateBlock(blk, tipBlk, tipBlk.Header.Difficulty, c.blockTimestamp); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if err := c.commitBlock(blk); err != nil {
		return fmt.Errorf("commit block: %w", err)
	}
	return c.tryExtendFromOrphans()
}

// blockTimestamp satisfies consensus.Validator's getTimestamp callback,
// used by the difficulty retarget to read a past block's timestamp.
func (c *Chain) blockTimestamp(height uint64) (int64, error) {
	blk, err := c.blocks.GetBlock(height)
	if err != nil {
		return 0, err
	}
	return blk.Header.Timestamp, nil
}

// applyBlockWithUndo applies blk's transactions to account state: it
// verifies every non-coinbase signature, checks the coinbase transaction's
// claimed reward against consensus.ComputeAllocation, applies each
// transfer, and credits the miner/treasury/burn split. It returns the
// pre-block snapshot of every touched address (for reorg rollback) and the
// total amount newly added to circulating supply.
func (c *Chain) applyBlockWithUndo(blk *block.Block) (map[types.Address]types.AccountBalance, uint64, error) {
	if len(blk.Transactions) == 0 {
		return nil, 0, fmt.Errorf("block has no transactions")
	}
	coinbase := blk.Transactions[0]
	if !coinbase.IsCoinbase() {
		return nil, 0, fmt.Errorf("%w: first transaction is not coinbase", ErrBadCoinbase)
	}

	touched := map[types.Address]struct{}{
		coinbase.Recipient:   {},
		types.TreasurySender: {},
	}

	var totalFees uint64
	for _, t := range blk.Transactions[1:] {
		if t.IsCoinbase() {
			return nil, 0, fmt.Errorf("%w: extra coinbase transaction", ErrBadCoinbase)
		}
		if t.IsTreasury() {
			return nil, 0, fmt.Errorf("%w: treasury allocation is computed, not transacted", ErrUnexpectedTreasury)
		}
		if err := t.VerifySignature(); err != nil {
			return nil, 0, fmt.Errorf("tx %s: %w", t.Hash(), err)
		}
		touched[t.Sender] = struct{}{}
		touched[t.Recipient] = struct{}{}
		totalFees += t.Fee
	}

	undo := make(map[types.Address]types.AccountBalance, len(touched))
	for addr := range touched {
		bal, _ := c.accounts.Account(addr)
		undo[addr] = bal
	}

	alloc := consensus.ComputeAllocation(blk.Header.Index, totalFees)
	if coinbase.Amount != alloc.MinerLiquid {
		return nil, 0, fmt.Errorf("%w: coinbase claims %d, computed reward is %d", ErrRewardMismatch, coinbase.Amount, alloc.MinerLiquid)
	}

	for _, t := range blk.Transactions[1:] {
		if err := c.accounts.ApplyTransfer(t); err != nil {
			return nil, 0, fmt.Errorf("tx %s: %w", t.Hash(), err)
		}
		if err := c.applyPayload(t); err != nil {
			return nil, 0, fmt.Errorf("tx %s: %w", t.Hash(), err)
		}
	}

	c.accounts.Credit(coinbase.Recipient, alloc.MinerLiquid)
	if alloc.MinerLocked > 0 {
		c.accounts.CreditLocked(coinbase.Recipient, alloc.MinerLocked, alloc.UnlockHeight)
	}
	if alloc.TreasuryAmount > 0 {
		c.accounts.Credit(types.TreasurySender, alloc.TreasuryAmount)
	}
	c.accounts.Burn(alloc.BurnAmount)
	c.accounts.UnlockMatured(blk.Header.Index)

	// The fees paid out to the miner and treasury were already circulating;
	// only the subsidy less the burned fee share is new supply.
	reward := alloc.MinerLiquid + alloc.MinerLocked + alloc.TreasuryAmount - totalFees
	return undo, reward, nil
}

// applyPayload runs the non-transfer side effect of a confirmed transaction,
// after ApplyTransfer has already moved amount+fee out of the sender and
// amount into the recipient. Transfer carries no further payload. A
// deploy/call failure does not roll back the transfer itself — the fee and
// amount debit already apply to a transaction that reached the chain, same
// as a reverted EVM call still paying for its own gas.
func (c *Chain) applyPayload(t *tx.Transaction) error {
	switch t.Payload.Kind {
	case tx.Transfer:
		return nil
	case tx.DeployContract:
		if err := c.contracts.Deploy(t.Recipient, t.Payload.Code); err != nil {
			return fmt.Errorf("deploy contract: %w", err)
		}
		return nil
	case tx.CallContract:
		if _, err := c.executor.Execute(c.accounts, t.Sender, t.Payload); err != nil {
			return fmt.Errorf("call contract: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown payload kind %d", t.Payload.Kind)
	}
}

// commitBlock applies blk, persists it and the resulting account state,
// and advances the tip. Shared by the direct extend-tip path, orphan
// extension, and post-revert reorg application.
func (c *Chain) commitBlock(blk *block.Block) error {
	undo, reward, err := c.applyBlockWithUndo(blk)
	if err != nil {
		return err
	}
	if err := c.blocks.PutBlock(blk); err != nil {
		return fmt.Errorf("store block: %w", err)
	}
	undoBytes, err := json.Marshal(undo)
	if err != nil {
		return fmt.Errorf("marshal undo: %w", err)
	}
	if err := c.blocks.PutUndo(blk.Hash(), undoBytes); err != nil {
		return fmt.Errorf("store undo: %w", err)
	}
	if err := c.accounts.Persist(); err != nil {
		return fmt.Errorf("persist accounts: %w", err)
	}

	c.state.Supply += reward
	c.state.CumulativeDifficulty.Add(c.state.CumulativeDifficulty, consensus.Work(blk.Header.Difficulty))
	c.state.TipHash = blk.Hash()
	c.state.Height = blk.Header.Index
	c.state.TipTimestamp = blk.Header.Timestamp

	if err := c.blocks.SetTip(c.state.TipHash, c.state.Height, c.state.Supply); err != nil {
		return fmt.Errorf("set tip: %w", err)
	}
	if err := c.blocks.SetCumulativeDifficulty(c.state.CumulativeDifficulty); err != nil {
		return fmt.Errorf("set cumulative difficulty: %w", err)
	}
	c.orphans.remove(blk.Hash())
	return nil
}

// revertTip undoes the current tip block, restoring every touched account
// to its pre-block snapshot and moving the tip back to the parent block.
func (c *Chain) revertTip() error {
	if c.state.Height == 0 {
		return fmt.Errorf("cannot revert the genesis block")
	}
	hash := c.state.TipHash
	blk, err := c.blocks.GetBlock(c.state.Height)
	if err != nil {
		return fmt.Errorf("load tip block: %w", err)
	}
	data, err := c.blocks.GetUndo(hash)
	if err != nil {
		return fmt.Errorf("load undo for %s: %w", hash, err)
	}
	var undo map[types.Address]types.AccountBalance
	if err := json.Unmarshal(data, &undo); err != nil {
		return fmt.Errorf("unmarshal undo: %w", err)
	}
	for addr, bal := range undo {
		c.accounts.Restore(addr, bal)
	}
	for _, t := range blk.Transactions {
		if err := c.blocks.DeleteTxIndex(t.Hash()); err != nil {
			return fmt.Errorf("delete tx index: %w", err)
		}
	}
	if err := c.accounts.Persist(); err != nil {
		return fmt.Errorf("persist reverted state: %w", err)
	}
	if err := c.blocks.DeleteUndo(hash); err != nil {
		return fmt.Errorf("delete undo: %w", err)
	}

	prevBlk, err := c.blocks.GetBlock(c.state.Height - 1)
	if err != nil {
		return fmt.Errorf("load previous block: %w", err)
	}
	reward := blockReward(blk)

	c.state.Height--
	c.state.TipHash = prevBlk.Hash()
	c.state.TipTimestamp = prevBlk.Header.Timestamp
	c.state.Supply -= reward
	c.state.CumulativeDifficulty.Sub(c.state.CumulativeDifficulty, consensus.Work(blk.Header.Difficulty))

	if err := c.blocks.SetTip(c.state.TipHash, c.state.Height, c.state.Supply); err != nil {
		return fmt.Errorf("set tip: %w", err)
	}
	if err := c.blocks.SetCumulativeDifficulty(c.state.CumulativeDifficulty); err != nil {
		return fmt.Errorf("set cumulative difficulty: %w", err)
	}
	return nil
}

// blockReward recomputes the total amount a previously-applied block added
// to circulating supply, from its own height and collected fees.
func blockReward(blk *block.Block) uint64 {
	var totalFees uint64
	for _, t := range blk.Transactions[1:] {
		totalFees += t.Fee
	}
	alloc := consensus.ComputeAllocation(blk.Header.Index, totalFees)
	return alloc.MinerLiquid + alloc.MinerLocked + alloc.TreasuryAmount - totalFees
}

// RebuildState replays every block from genesis into a fresh account map,
// used to recover from a crash that left account storage mid-reorg. This
// mirrors a full chain resync rather than attempting partial undo replay,
// since undo data for an interrupted reorg may itself be incomplete.
func (c *Chain) RebuildState() error {
	var keys [][]byte
	if err := c.blocks.db.ForEach(storage.AccountPrefix(), func(key, _ []byte) error {
		keys = append(keys, append([]byte(nil), key...))
		return nil
	}); err != nil {
		return fmt.Errorf("scan accounts: %w", err)
	}
	for _, key := range keys {
		if err := c.blocks.db.Delete(key); err != nil {
			return fmt.Errorf("clear account record: %w", err)
		}
	}

	fresh, err := state.New(c.blocks.db)
	if err != nil {
		return fmt.Errorf("reset account state: %w", err)
	}
	c.accounts = fresh

	genesisBlk, err := c.blocks.GetBlock(0)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	var supply uint64
	for _, t := range genesisBlk.Transactions {
		c.accounts.Credit(t.Recipient, t.Amount)
		supply += t.Amount
	}

	cumDiff := big.NewInt(0)
	tip := c.state.Height
	for h := uint64(1); h <= tip; h++ {
		blk, err := c.blocks.GetBlock(h)
		if err != nil {
			return fmt.Errorf("load block %d: %w", h, err)
		}
		_, reward, err := c.applyBlockWithUndo(blk)
		if err != nil {
			return fmt.Errorf("replay block %d: %w", h, err)
		}
		supply += reward
		cumDiff.Add(cumDiff, consensus.Work(blk.Header.Difficulty))
	}

	if err := c.accounts.Persist(); err != nil {
		return fmt.Errorf("persist rebuilt state: %w", err)
	}
	c.state.Supply = supply
	c.state.CumulativeDifficulty = cumDiff
	if err := c.blocks.SetCumulativeDifficulty(cumDiff); err != nil {
		return fmt.Errorf("persist cumulative difficulty: %w", err)
	}
	if err := c.blocks.DeleteReorgCheckpoint(); err != nil {
		return fmt.Errorf("clear reorg checkpoint: %w", err)
	}
	return nil
}

// State returns a copy of the chain's current tip summary.
func (c *Chain) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	cumDiff := new(big.Int)
	if c.state.CumulativeDifficulty != nil {
		cumDiff.Set(c.state.CumulativeDifficulty)
	}
	return State{
		Height:               c.state.Height,
		TipHash:              c.state.TipHash,
		Supply:               c.state.Supply,
		CumulativeDifficulty: cumDiff,
		TipTimestamp:         c.state.TipTimestamp,
	}
}

// GetBlock returns the block at height.
func (c *Chain) GetBlock(height uint64) (*block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks.GetBlock(height)
}

// GetTransaction locates a transaction by hash and returns it along with
// the block that contains it.
func (c *Chain) GetTransaction(hash types.Hash) (*tx.Transaction, *block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	height, _, err := c.blocks.GetTxLocation(hash)
	if err != nil {
		return nil, nil, err
	}
	blk, err := c.blocks.GetBlock(height)
	if err != nil {
		return nil, nil, err
	}
	for _, t := range blk.Transactions {
		if t.Hash() == hash {
			return t, blk, nil
		}
	}
	return nil, nil, fmt.Errorf("transaction %s not indexed in block %d", hash, height)
}

// Account returns addr's current balance record.
func (c *Chain) Account(addr types.Address) (types.AccountBalance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accounts.Account(addr)
}

// Height returns the current chain height.
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Height
}

// TipHash returns the current tip block's hash.
func (c *Chain) TipHash() types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.TipHash
}

// Supply returns the current circulating supply.
func (c *Chain) Supply() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Supply
}

// AccountsSnapshot returns a scratch clone of the full account map, for RPC
// state dumps and speculative mining.
func (c *Chain) AccountsSnapshot() *state.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accounts.Clone()
}

// Engine returns the consensus engine the chain validates blocks against,
// for the miner to Prepare/Seal candidate blocks with the same rules.
func (c *Chain) Engine() consensus.Engine {
	return c.engine
}

// ContractCode returns the code deployed at addr, for the RPC surface's
// contract inspection method.
func (c *Chain) ContractCode(addr types.Address) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contracts.Code(addr)
}
