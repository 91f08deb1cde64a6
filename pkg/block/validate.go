package block

import (
	"errors"
	"fmt"

	"github.com/qchain-project/qchain/pkg/params"
)

// Structural validation errors. These are self-contained checks that do
// not require chain state (account balances, previous block, difficulty
// history) — that is internal/consensus.Validator's job.
var (
	ErrNilHeader      = errors.New("block has nil header")
	ErrNoTransactions = errors.New("block has no transactions")
	ErrBadMerkleRoot  = errors.New("merkle root mismatch")
	ErrZeroTimestamp  = errors.New("block timestamp is zero")
	ErrNoCoinbase     = errors.New("first transaction must be the coinbase reward")
	ErrExtraCoinbase  = errors.New("coinbase transaction may only appear first")
	ErrTooManyTxs     = errors.New("too many transactions in block")
	ErrBlockTooLarge  = errors.New("block too large")
)

// Validate checks block structure and internal consistency: shape,
// merkle root, and per-transaction structural validity. It does not check
// consensus rules that need chain state — difficulty, previous-hash
// linkage, account balances — those live in internal/consensus.
func (b *Block) Validate() error {
	if b.Header == nil {
		return ErrNilHeader
	}
	if b.Header.Timestamp == 0 {
		return ErrZeroTimestamp
	}
	if len(b.Transactions) == 0 {
		return ErrNoTransactions
	}
	if len(b.Transactions)-1 > params.MaxBlockTxs {
		return fmt.Errorf("%w: %d txs, max %d", ErrTooManyTxs, len(b.Transactions)-1, params.MaxBlockTxs)
	}

	if !b.Transactions[0].IsCoinbase() {
		return ErrNoCoinbase
	}
	for _, t := range b.Transactions[1:] {
		if t.IsCoinbase() {
			return ErrExtraCoinbase
		}
	}

	size := len(b.signingText())
	for _, t := range b.Transactions {
		n, err := t.SerializedSize()
		if err != nil {
			return err
		}
		size += n
	}
	if size > params.MaxBlockSizeBytes {
		return fmt.Errorf("%w: %d bytes, max %d", ErrBlockTooLarge, size, params.MaxBlockSizeBytes)
	}

	expectedRoot := b.MerkleRoot()
	if b.Header.MerkleRoot != expectedRoot {
		return fmt.Errorf("%w: header=%s computed=%s", ErrBadMerkleRoot, b.Header.MerkleRoot, expectedRoot)
	}

	for i, t := range b.Transactions {
		if i == 0 {
			continue // coinbase is exempt from signature checks by tx.Validate itself
		}
		if err := t.Validate(params.MaxTxSizeBytes); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}

	return nil
}
