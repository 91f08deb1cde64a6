package chain

import (
	"fmt"
	"sort"

	"github.com/qchain-project/qchain/config"
	"github.com/qchain-project/qchain/pkg/block"
	"github.com/qchain-project/qchain/pkg/tx"
	"github.com/qchain-project/qchain/pkg/types"
)

// CreateGenesisBlock builds the genesis block from the genesis
// configuration. The genesis block has index 0, an empty PrevHash, and one
// coinbase transaction per allocation address crediting its balance
// directly — there is no UTXO set to seed, so genesis issuance is an
// ordinary account credit authorized by the reserved CoinbaseSender string
// rather than a signature.
func CreateGenesisBlock(gen *config.Genesis) (*block.Block, error) {
	if gen == nil {
		return nil, fmt.Errorf("genesis config is nil")
	}

	txs, err := buildAllocTxs(gen.Alloc, gen.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("build genesis allocations: %w", err)
	}

	header := &block.Header{
		Index:      0,
		Timestamp:  gen.Timestamp,
		PrevHash:   "",
		Nonce:      0,
		Difficulty: 0,
	}
	blk := block.NewBlock(header, txs)
	header.MerkleRoot = blk.MerkleRoot()
	return blk, nil
}

// buildAllocTxs renders gen.Alloc into one coinbase credit per address, in
// deterministic (sorted-address) order so every node building the genesis
// block independently produces an identical merkle root and hash.
func buildAllocTxs(alloc map[string]uint64, timestamp int64) ([]*tx.Transaction, error) {
	addrs := make([]string, 0, len(alloc))
	for addr := range alloc {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	txs := make([]*tx.Transaction, 0, len(addrs))
	for i, addrStr := range addrs {
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			return nil, fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		txs = append(txs, &tx.Transaction{
			Sender:    types.CoinbaseSender,
			Recipient: addr,
			Amount:    alloc[addrStr],
			Timestamp: timestamp,
			Nonce:     uint64(i),
		})
	}

	if len(txs) == 0 {
		// A block must carry at least one transaction for MerkleRoot to be
		// meaningful; a zero-amount self-credit to the reserved treasury
		// address keeps the genesis block structurally valid with no alloc.
		txs = append(txs, &tx.Transaction{
			Sender:    types.CoinbaseSender,
			Recipient: types.TreasurySender,
			Amount:    0,
			Timestamp: timestamp,
		})
	}
	return txs, nil
}
