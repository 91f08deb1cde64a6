// Package block defines the block type, its consensus-frozen hash, and
// structural validation.
package block

import (
	"fmt"
	"strings"

	"github.com/qchain-project/qchain/pkg/crypto"
	"github.com/qchain-project/qchain/pkg/merkle"
	"github.com/qchain-project/qchain/pkg/tx"
	"github.com/qchain-project/qchain/pkg/types"
)

// Block pairs a header with its transaction list. Transactions[0] is always
// the coinbase transaction (sender types.CoinbaseSender). The treasury
// allocation is not a transaction: internal/chain credits it to the
// treasury account when it applies the block, and rejects a block that
// carries a types.TreasurySender transaction.
type Block struct {
	Header       *Header           `json:"header"`
	Transactions []*tx.Transaction `json:"transactions"`
}

// NewBlock creates a block with the given header and transactions. The
// header's MerkleRoot must already be set to MerkleRoot(txs) — callers
// assembling a new block should call MerkleRoot themselves before filling
// in the header, mirroring the mining procedure's step order.
func NewBlock(header *Header, txs []*tx.Transaction) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// TxHashes returns the hash of every transaction in order.
func (b *Block) TxHashes() []types.Hash {
	hashes := make([]types.Hash, len(b.Transactions))
	for i, t := range b.Transactions {
		hashes[i] = t.Hash()
	}
	return hashes
}

// MerkleRoot computes the merkle root over the block's transaction hashes.
func (b *Block) MerkleRoot() types.Hash {
	return merkle.Root(b.TxHashes())
}

// TxHashesCSV renders the transaction hash list as the comma-separated
// string the consensus-frozen hash format hashes directly. An empty
// block (no transactions, which validation otherwise forbids) renders as
// the empty string.
func (b *Block) TxHashesCSV() string {
	hashes := b.TxHashes()
	parts := make([]string, len(hashes))
	for i, h := range hashes {
		parts[i] = h.String()
	}
	return strings.Join(parts, ",")
}

// signingText is the exact textual concatenation consensus freezes:
//
//	index:timestamp:tx_hashes_csv:previous_hash:nonce:difficulty:merkle_root
//
// This ordering and these separators must never change; any alteration
// would be a hard fork of the hash itself, not just of validation rules.
func (b *Block) signingText() string {
	h := b.Header
	return fmt.Sprintf("%d:%d:%s:%s:%d:%d:%s",
		h.Index, h.Timestamp, b.TxHashesCSV(), h.PrevHash, h.Nonce, h.Difficulty, h.MerkleRoot.String())
}

// Hash is the double-SHA3-256 digest of signingText, hex-decoded back into
// a types.Hash. crypto.DoubleHash already returns the hex form the wire
// and storage formats use.
func (b *Block) Hash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	digestHex := crypto.DoubleHash([]byte(b.signingText()))
	h, err := types.HexToHash(digestHex)
	if err != nil {
		// DoubleHash always returns 64 hex chars; this cannot happen.
		panic(fmt.Sprintf("block: malformed digest: %v", err))
	}
	return h
}

// HashHex is Hash().String(), the form used on the wire and in storage keys.
func (b *Block) HashHex() string {
	h := b.Hash()
	return h.String()
}
