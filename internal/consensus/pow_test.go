package consensus

import (
	"errors"
	"testing"

	"github.com/qchain-project/qchain/pkg/block"
	"github.com/qchain-project/qchain/pkg/tx"
	"github.com/qchain-project/qchain/pkg/types"
)

func testBlock(t *testing.T, difficulty uint64) *block.Block {
	t.Helper()
	coinbase := &tx.Transaction{
		Sender:    types.Address(types.CoinbaseSender),
		Recipient: "0x1111111111111111111111111111111111111111",
		Amount:    50_000_000,
		Timestamp: 1700000000,
		Payload:   tx.Payload{Kind: tx.Transfer},
	}
	txs := []*tx.Transaction{coinbase}
	root := (&block.Block{Transactions: txs}).MerkleRoot()
	header := &block.Header{
		Index:      1,
		Timestamp:  1700000000,
		PrevHash:   types.Hash{0xaa}.String(),
		Difficulty: difficulty,
		MerkleRoot: root,
	}
	return block.NewBlock(header, txs)
}

func TestNewPoWZeroDifficulty(t *testing.T) {
	if _, err := NewPoW(0); err != ErrZeroDifficulty {
		t.Fatalf("NewPoW(0) err = %v, want ErrZeroDifficulty", err)
	}
}

func TestLeadingZeroNibbles(t *testing.T) {
	cases := map[string]int{
		"0000abcd": 4,
		"abcd0000": 0,
		"":         0,
		"0":        1,
	}
	for s, want := range cases {
		if got := LeadingZeroNibbles(s); got != want {
			t.Errorf("LeadingZeroNibbles(%q) = %d, want %d", s, got, want)
		}
	}
}

func TestSealAndVerify(t *testing.T) {
	pow, err := NewPoW(1)
	if err != nil {
		t.Fatal(err)
	}
	blk := testBlock(t, 1)
	if err := pow.Seal(blk); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if err := pow.VerifyHeader(blk); err != nil {
		t.Fatalf("VerifyHeader after Seal: %v", err)
	}
}

func TestVerifyHeaderRejectsInsufficientWork(t *testing.T) {
	pow, _ := NewPoW(1)
	blk := testBlock(t, 60) // essentially unreachable with nonce=0
	if err := pow.VerifyHeader(blk); !errors.Is(err, ErrInsufficientWork) {
		t.Fatalf("VerifyHeader = %v, want ErrInsufficientWork", err)
	}
}

func TestVerifyHeaderZeroDifficulty(t *testing.T) {
	pow, _ := NewPoW(1)
	blk := testBlock(t, 0)
	if err := pow.VerifyHeader(blk); err != ErrZeroDifficulty {
		t.Fatalf("VerifyHeader(difficulty=0) = %v, want ErrZeroDifficulty", err)
	}
}

func TestSealParallel(t *testing.T) {
	pow, _ := NewPoW(1)
	pow.Threads = 4
	blk := testBlock(t, 1)
	if err := pow.Seal(blk); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if err := pow.VerifyHeader(blk); err != nil {
		t.Fatalf("VerifyHeader after parallel Seal: %v", err)
	}
}

func TestPrepareSetsDifficulty(t *testing.T) {
	pow, _ := NewPoW(4)
	header := &block.Header{Index: 1, Timestamp: 1}
	pow.Prepare(header, 8)
	if header.Difficulty != 8 {
		t.Fatalf("Prepare set difficulty = %d, want 8", header.Difficulty)
	}
}

func TestCalcNextDifficultyExactTarget(t *testing.T) {
	if got := CalcNextDifficulty(16, 600, 600); got != 16 {
		t.Fatalf("CalcNextDifficulty(exact) = %d, want 16", got)
	}
}

func TestCalcNextDifficultyClampedToPlus25Percent(t *testing.T) {
	// Blocks arrive 2x faster than target: the raw ratio (2x) is clamped
	// to the ±25% per-retarget cap before anything else.
	got := CalcNextDifficulty(16, 300, 600)
	if got != 20 {
		t.Fatalf("CalcNextDifficulty(2x fast) = %d, want 20", got)
	}
}

func TestCalcNextDifficultyClampedToMinus25Percent(t *testing.T) {
	got := CalcNextDifficulty(16, 1200, 600)
	if got != 12 {
		t.Fatalf("CalcNextDifficulty(2x slow) = %d, want 12", got)
	}
}

func TestCalcNextDifficultyNeverBelowGlobalMin(t *testing.T) {
	got := CalcNextDifficulty(4, 10000, 600)
	if got != 4 {
		t.Fatalf("CalcNextDifficulty(global min) = %d, want 4", got)
	}
}

func TestCalcNextDifficultyNeverAboveGlobalMax(t *testing.T) {
	got := CalcNextDifficulty(32, 60, 600)
	if got != 32 {
		t.Fatalf("CalcNextDifficulty(global max) = %d, want 32", got)
	}
}

func TestExpectedDifficultyCarriesForwardBetweenRetargets(t *testing.T) {
	pow, _ := NewPoW(4)
	if got := pow.ExpectedDifficulty(5, 8, nil); got != 8 {
		t.Fatalf("ExpectedDifficulty(non-boundary) = %d, want 8", got)
	}
}

func TestExpectedDifficultyAtGenesis(t *testing.T) {
	pow, _ := NewPoW(4)
	if got := pow.ExpectedDifficulty(0, 0, nil); got != 4 {
		t.Fatalf("ExpectedDifficulty(0) = %d, want 4", got)
	}
	if got := pow.ExpectedDifficulty(1, 0, nil); got != 4 {
		t.Fatalf("ExpectedDifficulty(1) = %d, want 4", got)
	}
}

func TestExpectedDifficultyAtRetargetBoundary(t *testing.T) {
	pow, _ := NewPoW(4)
	getTS := func(h uint64) (int64, error) {
		if h == 0 {
			return 0, nil
		}
		return 100, nil // exactly 10*10s target
	}
	if got := pow.ExpectedDifficulty(10, 16, getTS); got != 16 {
		t.Fatalf("ExpectedDifficulty(boundary, exact) = %d, want 16", got)
	}
}

func TestVerifyDifficultyRejectsMismatch(t *testing.T) {
	pow, _ := NewPoW(4)
	blk := testBlock(t, 8)
	blk.Header.Index = 5
	if err := pow.VerifyDifficulty(blk, 4, nil); err == nil {
		t.Error("expected a difficulty mismatch error")
	}
}
