package consensus

import (
	"testing"

	"github.com/qchain-project/qchain/pkg/block"
	"github.com/qchain-project/qchain/pkg/tx"
	"github.com/qchain-project/qchain/pkg/types"
)

func sealedBlock(t *testing.T, pow *PoW, index uint64, prevHash string, timestamp int64, difficulty uint64) *block.Block {
	t.Helper()
	coinbase := &tx.Transaction{
		Sender:    types.Address(types.CoinbaseSender),
		Recipient: "0x2222222222222222222222222222222222222222",
		Amount:    50_000_000,
		Timestamp: timestamp,
		Payload:   tx.Payload{Kind: tx.Transfer},
	}
	txs := []*tx.Transaction{coinbase}
	root := (&block.Block{Transactions: txs}).MerkleRoot()
	header := &block.Header{
		Index:      index,
		Timestamp:  timestamp,
		PrevHash:   prevHash,
		Difficulty: difficulty,
		MerkleRoot: root,
	}
	blk := block.NewBlock(header, txs)
	if err := pow.Seal(blk); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return blk
}

func TestValidatorAcceptsValidChain(t *testing.T) {
	pow, _ := NewPoW(1)
	v := NewValidator(pow, nil, nil)

	genesis := sealedBlock(t, pow, 0, types.Hash{}.String(), 1000, 1)
	next := sealedBlock(t, pow, 1, genesis.HashHex(), 1010, 1)

	if err := v.ValidateBlock(genesis, nil, 0, nil); err != nil {
		t.Fatalf("ValidateBlock(genesis) = %v", err)
	}
	if err := v.ValidateBlock(next, genesis, 1, nil); err != nil {
		t.Fatalf("ValidateBlock(next) = %v", err)
	}
}

func TestValidatorRejectsBadIndex(t *testing.T) {
	pow, _ := NewPoW(1)
	v := NewValidator(pow, nil, nil)

	genesis := sealedBlock(t, pow, 0, types.Hash{}.String(), 1000, 1)
	bad := sealedBlock(t, pow, 5, genesis.HashHex(), 1010, 1)

	if err := v.ValidateBlock(bad, genesis, 1, nil); err == nil {
		t.Fatal("expected ErrBadIndex")
	}
}

func TestValidatorRejectsBadPrevHash(t *testing.T) {
	pow, _ := NewPoW(1)
	v := NewValidator(pow, nil, nil)

	genesis := sealedBlock(t, pow, 0, types.Hash{}.String(), 1000, 1)
	bad := sealedBlock(t, pow, 1, "not-the-real-hash", 1010, 1)

	if err := v.ValidateBlock(bad, genesis, 1, nil); err == nil {
		t.Fatal("expected ErrBadPrevHash")
	}
}

func TestValidatorRejectsStaleTimestamp(t *testing.T) {
	pow, _ := NewPoW(1)
	v := NewValidator(pow, nil, nil)

	genesis := sealedBlock(t, pow, 0, types.Hash{}.String(), 1000, 1)
	stale := sealedBlock(t, pow, 1, genesis.HashHex(), 999, 1)

	if err := v.ValidateBlock(stale, genesis, 1, nil); err == nil {
		t.Fatal("expected ErrStaleTimestamp")
	}
}

func TestValidatorRejectsFutureTimestamp(t *testing.T) {
	pow, _ := NewPoW(1)
	nowFn := func() int64 { return 1000 }
	v := NewValidator(pow, nil, nowFn)

	genesis := sealedBlock(t, pow, 0, types.Hash{}.String(), 900, 1)
	future := sealedBlock(t, pow, 1, genesis.HashHex(), 1000+MaxFutureDriftSecs+1, 1)

	if err := v.ValidateBlock(future, genesis, 1, nil); err == nil {
		t.Fatal("expected ErrFutureTimestamp")
	}
}

func TestValidatorEnforcesCheckpoints(t *testing.T) {
	pow, _ := NewPoW(1)
	genesis := sealedBlock(t, pow, 0, types.Hash{}.String(), 1000, 1)
	next := sealedBlock(t, pow, 1, genesis.HashHex(), 1010, 1)

	checkpoints := Checkpoints{1: "0000000000000000000000000000000000000000000000000000000000000000"}
	v := NewValidator(pow, checkpoints, nil)

	if err := v.ValidateBlock(next, genesis, 1, nil); err == nil {
		t.Fatal("expected ErrCheckpoint for a hash mismatch")
	}
}

func TestValidatorRejectsStructurallyInvalidBlock(t *testing.T) {
	pow, _ := NewPoW(1)
	v := NewValidator(pow, nil, nil)

	blk := block.NewBlock(&block.Header{Index: 0, Timestamp: 0}, nil)
	if err := v.ValidateBlock(blk, nil, 0, nil); err == nil {
		t.Fatal("expected structural validation error")
	}
}
