// Package state holds the account balance map: the single spendable
// balance, nonce, and locked-reward bookkeeping every address carries.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/qchain-project/qchain/internal/storage"
	"github.com/qchain-project/qchain/pkg/tx"
	"github.com/qchain-project/qchain/pkg/types"
)

var (
	ErrInsufficientFunds = errors.New("insufficient spendable balance")
	ErrNonceMismatch     = errors.New("transaction nonce does not match account nonce")
)

// State is the committed or scratch account map. A scratch State (built via
// Clone) has no db binding and cannot Persist; changes made to it never
// reach the committed state.
type State struct {
	mu       sync.RWMutex
	db       storage.DB
	accounts map[types.Address]types.AccountBalance
}

// New loads every account record from db into memory.
func New(db storage.DB) (*State, error) {
	s := &State{db: db, accounts: make(map[types.Address]types.AccountBalance)}
	err := db.ForEach(storage.AccountPrefix(), func(key, value []byte) error {
		var bal types.AccountBalance
		if err := json.Unmarshal(value, &bal); err != nil {
			return fmt.Errorf("state: unmarshal account %s: %w", storage.AddressFromAccountKey(key), err)
		}
		s.accounts[types.Address(storage.AddressFromAccountKey(key))] = bal
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Clone returns an in-memory scratch copy with no storage binding, used to
// apply a candidate block's transactions speculatively.
func (s *State) Clone() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &State{accounts: make(map[types.Address]types.AccountBalance, len(s.accounts))}
	for addr, bal := range s.accounts {
		clone.accounts[addr] = bal
	}
	return clone
}

// Account returns addr's balance record. A never-seen address reads as a
// zero-value account with ok=false, not an error — every address is
// implicitly a valid, empty account until it first receives funds.
func (s *State) Account(addr types.Address) (types.AccountBalance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bal, ok := s.accounts[addr]
	return bal, ok
}

func (s *State) set(addr types.Address, bal types.AccountBalance) {
	s.accounts[addr] = bal
}

// Credit adds amount to addr's spendable balance.
func (s *State) Credit(addr types.Address, amount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.accounts[addr]
	bal.Balance += amount
	s.set(addr, bal)
}

// CreditLocked adds amount to addr's locked balance, maturing at unlockHeight.
// If the account already has a locked balance pending at a different height,
// the new amount adopts the later of the two unlock heights — coinbase
// rewards never unlock earlier than the latest one received.
func (s *State) CreditLocked(addr types.Address, amount, unlockHeight uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.accounts[addr]
	bal.LockedBalance += amount
	if unlockHeight > bal.UnlockHeight {
		bal.UnlockHeight = unlockHeight
	}
	s.set(addr, bal)
}

// Debit subtracts amount from addr's spendable balance, failing if
// insufficient.
func (s *State) Debit(addr types.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.accounts[addr]
	if bal.Balance < amount {
		return fmt.Errorf("%w: address %s has %d, needs %d", ErrInsufficientFunds, addr, bal.Balance, amount)
	}
	bal.Balance -= amount
	s.set(addr, bal)
	return nil
}

// Burn removes amount from circulation entirely — no address is credited.
// Used for the validator fee-burn share.
func (s *State) Burn(uint64) {}

// Restore overwrites addr's account record directly, bypassing the usual
// credit/debit invariants. The only caller is block-revert during a reorg,
// replaying a saved pre-block snapshot back over the current record.
func (s *State) Restore(addr types.Address, bal types.AccountBalance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bal == (types.AccountBalance{}) {
		delete(s.accounts, addr)
		return
	}
	s.set(addr, bal)
}

// ApplyTransfer applies a confirmed, signature-verified, ordinary transfer
// transaction to the state: the nonce must match the sender's current
// nonce exactly, the sender must be able to cover amount+fee, and the fee
// is handed to the caller to route to the validator/treasury/burn split
// rather than credited automatically, since that split depends on the
// whole block's collected fees, not a single transaction.
func (s *State) ApplyTransfer(t *tx.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender := s.accounts[t.Sender]
	if t.Nonce != sender.Nonce {
		return fmt.Errorf("%w: account nonce %d, transaction nonce %d", ErrNonceMismatch, sender.Nonce, t.Nonce)
	}
	total := t.Amount + t.Fee
	if sender.Balance < total {
		return fmt.Errorf("%w: address %s has %d, needs %d", ErrInsufficientFunds, t.Sender, sender.Balance, total)
	}
	sender.Balance -= total
	sender.Nonce++
	s.set(t.Sender, sender)

	recipient := s.accounts[t.Recipient]
	recipient.Balance += t.Amount
	s.set(t.Recipient, recipient)

	return nil
}

// UnlockMatured sweeps every account whose locked balance has reached its
// unlock height into the spendable balance. Called once per committed
// block, after every transaction in it has been applied.
func (s *State) UnlockMatured(height uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, bal := range s.accounts {
		if bal.LockedBalance == 0 || height < bal.UnlockHeight {
			continue
		}
		bal.Balance += bal.LockedBalance
		bal.LockedBalance = 0
		bal.UnlockHeight = 0
		s.accounts[addr] = bal
	}
}

// Persist writes every account currently held in memory to db. Called
// after a block commits, never from a scratch clone.
func (s *State) Persist() error {
	if s.db == nil {
		return fmt.Errorf("state: Persist called on a scratch clone with no storage binding")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for addr, bal := range s.accounts {
		data, err := json.Marshal(bal)
		if err != nil {
			return fmt.Errorf("state: marshal account %s: %w", addr, err)
		}
		if err := s.db.Put(storage.AccountKey(string(addr)), data); err != nil {
			return fmt.Errorf("state: persist account %s: %w", addr, err)
		}
	}
	return nil
}

// Snapshot returns a copy of the full account map, for RPC state dumps.
func (s *State) Snapshot() map[types.Address]types.AccountBalance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[types.Address]types.AccountBalance, len(s.accounts))
	for addr, bal := range s.accounts {
		out[addr] = bal
	}
	return out
}
