package rpc

import (
	"github.com/qchain-project/qchain/pkg/block"
	"github.com/qchain-project/qchain/pkg/tx"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// HashParam is used by endpoints that take a single hash.
type HashParam struct {
	Hash string `json:"hash"`
}

// HeightParam is used by endpoints that take a block height.
type HeightParam struct {
	Height uint64 `json:"height"`
}

// AddressParam is used by get_balance.
type AddressParam struct {
	Address string `json:"address"`
}

// TxSubmitParam is used by submit_transaction.
type TxSubmitParam struct {
	Transaction *tx.Transaction `json:"transaction"`
}

// StartMiningParam is used by start_mining.
type StartMiningParam struct {
	Coinbase string `json:"coinbase,omitempty"`
}

// ── Result types ────────────────────────────────────────────────────────

// BlockResult wraps a block with its precomputed hash for RPC responses.
type BlockResult struct {
	Hash         string          `json:"hash"`
	Header       *block.Header   `json:"header"`
	Transactions []*tx.Transaction `json:"transactions"`
}

// NewBlockResult creates a BlockResult from a block, precomputing its hash.
func NewBlockResult(b *block.Block) *BlockResult {
	return &BlockResult{
		Hash:         b.Hash().String(),
		Header:       b.Header,
		Transactions: b.Transactions,
	}
}

// NodeStatusResult is returned by node_status.
type NodeStatusResult struct {
	ChainID   string `json:"chain_id"`
	Network   string `json:"network"`
	Height    uint64 `json:"height"`
	TipHash   string `json:"tip_hash"`
	PeerCount int    `json:"peer_count"`
	Mining    bool   `json:"mining"`
}

// StatsResult is returned by get_stats.
type StatsResult struct {
	Height               uint64 `json:"height"`
	Supply               uint64 `json:"supply"`
	CumulativeDifficulty string `json:"cumulative_difficulty"`
	MempoolSize          int    `json:"mempool_size"`
	PeerCount            int    `json:"peer_count"`
}

// BalanceResult is returned by get_balance.
type BalanceResult struct {
	Address       string `json:"address"`
	Balance       uint64 `json:"balance"`
	Nonce         uint64 `json:"nonce"`
	LockedBalance uint64 `json:"locked_balance"`
	UnlockHeight  uint64 `json:"unlock_height"`
}

// TxSubmitResult is returned by submit_transaction.
type TxSubmitResult struct {
	TxHash string `json:"tx_hash"`
}

// MempoolResult is returned by get_mempool.
type MempoolResult struct {
	Count  int      `json:"count"`
	Hashes []string `json:"hashes"`
}

// MiningStatusResult is returned by mining_status.
type MiningStatusResult struct {
	Enabled  bool   `json:"enabled"`
	Coinbase string `json:"coinbase,omitempty"`
}

// PeerEntry describes a connected peer.
type PeerEntry struct {
	Addr        string `json:"addr"`
	Source      string `json:"source"`
	ConnectedAt int64  `json:"connected_at"`
}

// PeersResult is returned by get_peers.
type PeersResult struct {
	Count int         `json:"count"`
	Peers []PeerEntry `json:"peers"`
}

// MerkleProofParam is used by get_merkle_proof.
type MerkleProofParam struct {
	Height uint64 `json:"height"`
	TxHash string `json:"tx_hash"`
}

// MerkleProofStep is a single sibling hash in a proof path.
type MerkleProofStep struct {
	Hash         string `json:"hash"`
	SiblingIsLeft bool  `json:"sibling_is_left"`
}

// MerkleProofResult is returned by get_merkle_proof.
type MerkleProofResult struct {
	Root  string            `json:"root"`
	Leaf  string            `json:"leaf"`
	Steps []MerkleProofStep `json:"steps"`
}

// ContractCodeParam is used by get_contract_code.
type ContractCodeParam struct {
	Address string `json:"address"`
}

// ContractCodeResult is returned by get_contract_code.
type ContractCodeResult struct {
	Address string `json:"address"`
	Code    string `json:"code"` // hex-encoded
}
