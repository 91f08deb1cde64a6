package state

import (
	"testing"

	"github.com/qchain-project/qchain/internal/storage"
	"github.com/qchain-project/qchain/pkg/tx"
	"github.com/qchain-project/qchain/pkg/types"
)

const (
	alice = types.Address("0x1111111111111111111111111111111111111111")
	bob   = types.Address("0x2222222222222222222222222222222222222222")
)

func testState(t *testing.T) *State {
	t.Helper()
	s, err := New(storage.NewMemory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestAccountUnknownReadsZeroValue(t *testing.T) {
	s := testState(t)
	bal, ok := s.Account(alice)
	if ok {
		t.Fatal("Account(unknown) ok = true, want false")
	}
	if bal.Balance != 0 || bal.Nonce != 0 {
		t.Fatalf("Account(unknown) = %+v, want zero value", bal)
	}
}

func TestCreditAndDebit(t *testing.T) {
	s := testState(t)
	s.Credit(alice, 1000)
	bal, _ := s.Account(alice)
	if bal.Balance != 1000 {
		t.Fatalf("Balance after Credit = %d, want 1000", bal.Balance)
	}
	if err := s.Debit(alice, 400); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	bal, _ = s.Account(alice)
	if bal.Balance != 600 {
		t.Fatalf("Balance after Debit = %d, want 600", bal.Balance)
	}
}

func TestDebitInsufficientFunds(t *testing.T) {
	s := testState(t)
	s.Credit(alice, 100)
	if err := s.Debit(alice, 200); err == nil {
		t.Fatal("expected ErrInsufficientFunds")
	}
}

func TestCreditLockedTakesLaterUnlockHeight(t *testing.T) {
	s := testState(t)
	s.CreditLocked(alice, 500, 100)
	s.CreditLocked(alice, 500, 50)
	bal, _ := s.Account(alice)
	if bal.LockedBalance != 1000 {
		t.Fatalf("LockedBalance = %d, want 1000", bal.LockedBalance)
	}
	if bal.UnlockHeight != 100 {
		t.Fatalf("UnlockHeight = %d, want 100 (the later of the two)", bal.UnlockHeight)
	}
}

func TestUnlockMaturedSweepsAtHeight(t *testing.T) {
	s := testState(t)
	s.CreditLocked(alice, 500, 100)
	s.Credit(alice, 10)

	s.UnlockMatured(99)
	bal, _ := s.Account(alice)
	if bal.LockedBalance != 500 || bal.Balance != 10 {
		t.Fatalf("before maturity: %+v", bal)
	}

	s.UnlockMatured(100)
	bal, _ = s.Account(alice)
	if bal.LockedBalance != 0 {
		t.Fatalf("LockedBalance after maturity = %d, want 0", bal.LockedBalance)
	}
	if bal.Balance != 510 {
		t.Fatalf("Balance after maturity = %d, want 510", bal.Balance)
	}
}

func TestApplyTransferMovesFundsAndIncrementsNonce(t *testing.T) {
	s := testState(t)
	s.Credit(alice, 1000)

	transfer := &tx.Transaction{Sender: alice, Recipient: bob, Amount: 300, Fee: 10, Nonce: 0}
	if err := s.ApplyTransfer(transfer); err != nil {
		t.Fatalf("ApplyTransfer: %v", err)
	}

	senderBal, _ := s.Account(alice)
	if senderBal.Balance != 690 {
		t.Fatalf("sender balance = %d, want 690", senderBal.Balance)
	}
	if senderBal.Nonce != 1 {
		t.Fatalf("sender nonce = %d, want 1", senderBal.Nonce)
	}
	recipientBal, _ := s.Account(bob)
	if recipientBal.Balance != 300 {
		t.Fatalf("recipient balance = %d, want 300", recipientBal.Balance)
	}
}

func TestApplyTransferRejectsNonceMismatch(t *testing.T) {
	s := testState(t)
	s.Credit(alice, 1000)
	transfer := &tx.Transaction{Sender: alice, Recipient: bob, Amount: 100, Nonce: 5}
	if err := s.ApplyTransfer(transfer); err == nil {
		t.Fatal("expected ErrNonceMismatch")
	}
}

func TestApplyTransferRejectsInsufficientFundsForFee(t *testing.T) {
	s := testState(t)
	s.Credit(alice, 100)
	transfer := &tx.Transaction{Sender: alice, Recipient: bob, Amount: 95, Fee: 10, Nonce: 0}
	if err := s.ApplyTransfer(transfer); err == nil {
		t.Fatal("expected ErrInsufficientFunds covering amount+fee")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := testState(t)
	s.Credit(alice, 1000)

	scratch := s.Clone()
	scratch.Credit(alice, 500)

	bal, _ := s.Account(alice)
	if bal.Balance != 1000 {
		t.Fatalf("original mutated by clone: balance = %d, want 1000", bal.Balance)
	}
	scratchBal, _ := scratch.Account(alice)
	if scratchBal.Balance != 1500 {
		t.Fatalf("clone balance = %d, want 1500", scratchBal.Balance)
	}
}

func TestClonePersistFails(t *testing.T) {
	s := testState(t)
	scratch := s.Clone()
	if err := scratch.Persist(); err == nil {
		t.Fatal("expected Persist on a scratch clone to fail")
	}
}

func TestPersistAndReload(t *testing.T) {
	db := storage.NewMemory()
	s, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Credit(alice, 777)
	s.CreditLocked(bob, 222, 10)

	if err := s.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	reloaded, err := New(db)
	if err != nil {
		t.Fatalf("New(reload): %v", err)
	}
	bal, ok := reloaded.Account(alice)
	if !ok || bal.Balance != 777 {
		t.Fatalf("reloaded alice = %+v, ok=%v, want Balance=777", bal, ok)
	}
	bobBal, ok := reloaded.Account(bob)
	if !ok || bobBal.LockedBalance != 222 || bobBal.UnlockHeight != 10 {
		t.Fatalf("reloaded bob = %+v, ok=%v", bobBal, ok)
	}
}
