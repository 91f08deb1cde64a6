package chain

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/qchain-project/qchain/internal/storage"
	"github.com/qchain-project/qchain/pkg/block"
	"github.com/qchain-project/qchain/pkg/types"
)

// Key prefixes for chain metadata storage.BlockKey/ChainHeightKey do not
// cover: transaction location index, reorg undo data, and tip bookkeeping
// (supply, cumulative difficulty, in-progress reorg marker).
var (
	prefixTx   = []byte("tx:")
	prefixUndo = []byte("undo:")

	keyTipHash         = []byte("chain_tip_hash")
	keySupply          = []byte("chain_supply")
	keyCumDifficulty   = []byte("chain_cumdiff")
	keyReorgCheckpoint = []byte("chain_reorg_checkpoint")
)

// BlockStore persists blocks and chain metadata to a storage.DB, using the
// block:<height> / chain_height keys plus the auxiliary indexes above.
type BlockStore struct {
	db storage.DB
}

// NewBlockStore creates a block store backed by the given database.
func NewBlockStore(db storage.DB) *BlockStore {
	return &BlockStore{db: db}
}

// PutBlock stores a block at its height and indexes each of its
// transactions by hash, without touching the chain tip. Callers advance
// the tip separately via SetTip once a block is confirmed onto the active
// chain. Only genesis and committed active-chain blocks are stored here;
// orphans and side-chain blocks stay in the in-memory orphan pool.
func (bs *BlockStore) PutBlock(blk *block.Block) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("block marshal: %w", err)
	}
	if err := bs.db.Put(storage.BlockKey(blk.Header.Index), data); err != nil {
		return fmt.Errorf("block put: %w", err)
	}

	hash := blk.Hash()
	for _, t := range blk.Transactions {
		txHash := t.Hash()
		val := make([]byte, 8+types.HashSize)
		binary.BigEndian.PutUint64(val[:8], blk.Header.Index)
		copy(val[8:], hash[:])
		if err := bs.db.Put(txKey(txHash), val); err != nil {
			return fmt.Errorf("tx index put %s: %w", txHash, err)
		}
	}
	return nil
}

// GetBlock retrieves a block by height.
func (bs *BlockStore) GetBlock(height uint64) (*block.Block, error) {
	data, err := bs.db.Get(storage.BlockKey(height))
	if err != nil {
		return nil, fmt.Errorf("block get: %w", err)
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("block unmarshal: %w", err)
	}
	return &blk, nil
}

// HasBlock reports whether a block exists at height.
func (bs *BlockStore) HasBlock(height uint64) (bool, error) {
	return bs.db.Has(storage.BlockKey(height))
}

// SetTip stores the current chain tip hash, height, and circulating supply.
func (bs *BlockStore) SetTip(hash types.Hash, height, supply uint64) error {
	if err := bs.db.Put(keyTipHash, hash[:]); err != nil {
		return fmt.Errorf("set tip hash: %w", err)
	}
	if err := bs.db.Put(storage.ChainHeightKey(), storage.EncodeUint64(height)); err != nil {
		return fmt.Errorf("set tip height: %w", err)
	}
	if err := bs.db.Put(keySupply, storage.EncodeUint64(supply)); err != nil {
		return fmt.Errorf("set supply: %w", err)
	}
	return nil
}

// GetTip returns the current chain tip hash, height, and supply. Returns
// zero values if no tip is set (fresh chain, pre-genesis).
func (bs *BlockStore) GetTip() (types.Hash, uint64, uint64, error) {
	hashBytes, err := bs.db.Get(keyTipHash)
	if err != nil {
		return types.Hash{}, 0, 0, nil
	}
	if len(hashBytes) != types.HashSize {
		return types.Hash{}, 0, 0, fmt.Errorf("corrupt tip hash: got %d bytes", len(hashBytes))
	}

	heightBytes, err := bs.db.Get(storage.ChainHeightKey())
	if err != nil {
		return types.Hash{}, 0, 0, fmt.Errorf("tip height missing: %w", err)
	}
	height, err := storage.DecodeUint64(heightBytes)
	if err != nil {
		return types.Hash{}, 0, 0, fmt.Errorf("corrupt tip height: %w", err)
	}

	var supply uint64
	if supplyBytes, err := bs.db.Get(keySupply); err == nil {
		if v, err := storage.DecodeUint64(supplyBytes); err == nil {
			supply = v
		}
	}

	var hash types.Hash
	copy(hash[:], hashBytes)
	return hash, height, supply, nil
}

// GetTxLocation returns the block height and hash containing txHash.
func (bs *BlockStore) GetTxLocation(txHash types.Hash) (uint64, types.Hash, error) {
	data, err := bs.db.Get(txKey(txHash))
	if err != nil {
		return 0, types.Hash{}, fmt.Errorf("tx index get: %w", err)
	}
	if len(data) != 8+types.HashSize {
		return 0, types.Hash{}, fmt.Errorf("corrupt tx index: got %d bytes, want %d", len(data), 8+types.HashSize)
	}
	height := binary.BigEndian.Uint64(data[:8])
	var blockHash types.Hash
	copy(blockHash[:], data[8:])
	return height, blockHash, nil
}

// DeleteTxIndex removes the transaction index entry for the given hash.
func (bs *BlockStore) DeleteTxIndex(txHash types.Hash) error {
	return bs.db.Delete(txKey(txHash))
}

func txKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixTx)+types.HashSize)
	copy(key, prefixTx)
	copy(key[len(prefixTx):], hash[:])
	return key
}

func undoKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixUndo)+types.HashSize)
	copy(key, prefixUndo)
	copy(key[len(prefixUndo):], hash[:])
	return key
}

// PutUndo stores the account-balance undo data needed to roll a block back
// during a reorg.
func (bs *BlockStore) PutUndo(hash types.Hash, data []byte) error {
	if err := bs.db.Put(undoKey(hash), data); err != nil {
		return fmt.Errorf("put undo: %w", err)
	}
	return nil
}

// GetUndo retrieves undo data for a block.
func (bs *BlockStore) GetUndo(hash types.Hash) ([]byte, error) {
	data, err := bs.db.Get(undoKey(hash))
	if err != nil {
		return nil, fmt.Errorf("get undo: %w", err)
	}
	return data, nil
}

// DeleteUndo removes undo data for a block.
func (bs *BlockStore) DeleteUndo(hash types.Hash) error {
	return bs.db.Delete(undoKey(hash))
}

// SetCumulativeDifficulty persists the tip's cumulative work, Σ16^difficulty
// over every block in the active chain. 16^difficulty
// overflows a uint64 well before MaxDifficulty, so this is stored as the
// big-endian bytes of a big.Int rather than a fixed-width integer.
func (bs *BlockStore) SetCumulativeDifficulty(cumDiff *big.Int) error {
	return bs.db.Put(keyCumDifficulty, cumDiff.Bytes())
}

// GetCumulativeDifficulty retrieves the cumulative difficulty (0 if unset).
func (bs *BlockStore) GetCumulativeDifficulty() *big.Int {
	data, err := bs.db.Get(keyCumDifficulty)
	if err != nil || len(data) == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).SetBytes(data)
}

// PutReorgCheckpoint writes a marker recording a reorg in progress. If the
// node crashes mid-reorg, this marker triggers account-state recovery on
// restart rather than trusting a half-applied tip.
func (bs *BlockStore) PutReorgCheckpoint(forkHeight uint64) error {
	return bs.db.Put(keyReorgCheckpoint, storage.EncodeUint64(forkHeight))
}

// GetReorgCheckpoint returns the fork height and true if a reorg checkpoint
// exists.
func (bs *BlockStore) GetReorgCheckpoint() (uint64, bool) {
	data, err := bs.db.Get(keyReorgCheckpoint)
	if err != nil {
		return 0, false
	}
	v, err := storage.DecodeUint64(data)
	if err != nil {
		return 0, false
	}
	return v, true
}

// DeleteReorgCheckpoint removes the reorg-in-progress marker.
func (bs *BlockStore) DeleteReorgCheckpoint() error {
	return bs.db.Delete(keyReorgCheckpoint)
}
