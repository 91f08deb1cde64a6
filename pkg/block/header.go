package block

import (
	"github.com/qchain-project/qchain/pkg/types"
)

// Header carries a block's metadata. The block hash is computed over the
// header fields together with the transaction hashes — see Block.Hash —
// not over the header in isolation, since the hashing format folds the
// comma-separated transaction hash list directly into the hashed text.
type Header struct {
	Index      uint64     `json:"index"`
	Timestamp  int64      `json:"timestamp"`
	PrevHash   string     `json:"previous_hash"`
	Nonce      uint64     `json:"nonce"`
	Difficulty uint64     `json:"difficulty"`
	MerkleRoot types.Hash `json:"merkle_root"`
}
