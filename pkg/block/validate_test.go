package block

import (
	"errors"
	"testing"

	"github.com/qchain-project/qchain/pkg/crypto"
	"github.com/qchain-project/qchain/pkg/tx"
	"github.com/qchain-project/qchain/pkg/types"
)

func coinbaseTx(t *testing.T, recipient types.Address, reward uint64) *tx.Transaction {
	t.Helper()
	return &tx.Transaction{
		Sender:    types.Address(types.CoinbaseSender),
		Recipient: recipient,
		Amount:    reward,
		Timestamp: 1700000000,
		Payload:   tx.Payload{Kind: tx.Transfer},
	}
}

func signedTx(t *testing.T, recipient types.Address, amount, fee, nonce uint64) *tx.Transaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	txn := &tx.Transaction{
		Sender:    crypto.AddressFromPubKey(key.PublicKey()),
		Recipient: recipient,
		Amount:    amount,
		Timestamp: 1700000000,
		Fee:       fee,
		Nonce:     nonce,
		PublicKey: key.PublicKey(),
		Payload:   tx.Payload{Kind: tx.Transfer},
	}
	hash := txn.Hash()
	sig, err := key.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	txn.Signature = sig
	return txn
}

func validBlock(t *testing.T) *Block {
	t.Helper()
	coinbase := coinbaseTx(t, "0x1111111111111111111111111111111111111111", 50_000_000)
	txs := []*tx.Transaction{coinbase}
	root := (&Block{Transactions: txs}).MerkleRoot()
	header := &Header{
		Index:      1,
		Timestamp:  1700000000,
		PrevHash:   types.Hash{0xaa}.String(),
		Nonce:      0,
		Difficulty: 4,
		MerkleRoot: root,
	}
	return NewBlock(header, txs)
}

func TestBlockValidateValid(t *testing.T) {
	blk := validBlock(t)
	if err := blk.Validate(); err != nil {
		t.Errorf("valid block should pass: %v", err)
	}
}

func TestBlockValidateNilHeader(t *testing.T) {
	blk := &Block{Header: nil}
	if err := blk.Validate(); !errors.Is(err, ErrNilHeader) {
		t.Errorf("expected ErrNilHeader, got %v", err)
	}
}

func TestBlockValidateZeroTimestamp(t *testing.T) {
	blk := validBlock(t)
	blk.Header.Timestamp = 0
	if err := blk.Validate(); !errors.Is(err, ErrZeroTimestamp) {
		t.Errorf("expected ErrZeroTimestamp, got %v", err)
	}
}

func TestBlockValidateNoTransactions(t *testing.T) {
	blk := validBlock(t)
	blk.Transactions = nil
	if err := blk.Validate(); !errors.Is(err, ErrNoTransactions) {
		t.Errorf("expected ErrNoTransactions, got %v", err)
	}
}

func TestBlockValidateRequiresLeadingCoinbase(t *testing.T) {
	blk := validBlock(t)
	other := signedTx(t, "0x2222222222222222222222222222222222222222", 1, 1, 1)
	blk.Transactions = []*tx.Transaction{other}
	blk.Header.MerkleRoot = blk.MerkleRoot()
	if err := blk.Validate(); !errors.Is(err, ErrNoCoinbase) {
		t.Errorf("expected ErrNoCoinbase, got %v", err)
	}
}

func TestBlockValidateRejectsExtraCoinbase(t *testing.T) {
	blk := validBlock(t)
	extra := coinbaseTx(t, "0x3333333333333333333333333333333333333333", 50_000_000)
	blk.Transactions = append(blk.Transactions, extra)
	blk.Header.MerkleRoot = blk.MerkleRoot()
	if err := blk.Validate(); !errors.Is(err, ErrExtraCoinbase) {
		t.Errorf("expected ErrExtraCoinbase, got %v", err)
	}
}

func TestBlockValidateBadMerkleRoot(t *testing.T) {
	blk := validBlock(t)
	blk.Header.MerkleRoot = types.Hash{0x01}
	if err := blk.Validate(); !errors.Is(err, ErrBadMerkleRoot) {
		t.Errorf("expected ErrBadMerkleRoot, got %v", err)
	}
}

func TestBlockValidateRejectsInvalidTx(t *testing.T) {
	blk := validBlock(t)
	bad := signedTx(t, "0x2222222222222222222222222222222222222222", 1, 1, 1)
	bad.Amount = 9999 // tamper after signing
	blk.Transactions = append(blk.Transactions, bad)
	blk.Header.MerkleRoot = blk.MerkleRoot()
	if err := blk.Validate(); err == nil {
		t.Error("expected tampered transaction to fail block validation")
	}
}

func TestBlockHashChangesWithNonce(t *testing.T) {
	blk := validBlock(t)
	h1 := blk.Hash()
	blk.Header.Nonce++
	h2 := blk.Hash()
	if h1 == h2 {
		t.Error("changing the nonce must change the block hash")
	}
}

func TestBlockHashIncludesTxHashesCSV(t *testing.T) {
	blk := validBlock(t)
	h1 := blk.Hash()
	extra := signedTx(t, "0x4444444444444444444444444444444444444444", 1, 1, 1)
	blk.Transactions = append(blk.Transactions, extra)
	blk.Header.MerkleRoot = blk.MerkleRoot()
	h2 := blk.Hash()
	if h1 == h2 {
		t.Error("adding a transaction must change the block hash")
	}
}
