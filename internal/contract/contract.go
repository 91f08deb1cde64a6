// Package contract defines the sandboxed execution interface the account
// model's CallContract and DeployContract payload kinds hand off to. The
// consensus core only needs to agree on the interface boundary (code
// storage key, the executor's inputs and outputs) — it never needs to agree
// on what a given sandbox does inside Execute, since that output is not
// consensus-critical unless a future contract variant makes it so.
package contract

import (
	"errors"
	"fmt"

	"github.com/qchain-project/qchain/internal/storage"
	"github.com/qchain-project/qchain/pkg/tx"
	"github.com/qchain-project/qchain/pkg/types"
)

var (
	// ErrNotDeployed is returned when a CallContract targets an address with
	// no stored code.
	ErrNotDeployed = errors.New("contract: no code deployed at this address")
	// ErrAlreadyDeployed is returned when DeployContract targets an address
	// that already has code.
	ErrAlreadyDeployed = errors.New("contract: code already deployed at this address")
)

// AccountView is the account-state surface an Executor needs: reading and
// crediting/debiting balances belonging to the call, without reaching into
// the rest of internal/state.
type AccountView interface {
	Account(addr types.Address) (types.AccountBalance, bool)
	Credit(addr types.Address, amount uint64)
	Debit(addr types.Address, amount uint64) error
}

// Result is what an Execute call reports back to the block-application
// pipeline: whether the call succeeded, and any return payload a future RPC
// surface might expose (e.g. a view-function result).
type Result struct {
	Success bool
	Output  []byte
	GasUsed uint64
}

// Executor runs a CallContract invocation against account state. Deploying
// is handled by Store below (it is pure storage, no execution semantics to
// speak of) — Execute only ever sees CallContract payloads.
type Executor interface {
	Execute(state AccountView, sender types.Address, call tx.Payload) (Result, error)
}

// Store persists and retrieves deployed contract code, keyed by the
// contract's address (contract:<address>).
type Store struct {
	db storage.DB
}

// NewStore creates a contract code store backed by db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Deploy persists code at addr. Redeploying over existing code is rejected —
// a contract address is derived once, at DeployContract time, and its code
// is immutable afterward.
func (s *Store) Deploy(addr types.Address, code []byte) error {
	exists, err := s.db.Has(storage.ContractKey(string(addr)))
	if err != nil {
		return fmt.Errorf("contract: check existing code: %w", err)
	}
	if exists {
		return ErrAlreadyDeployed
	}
	return s.db.Put(storage.ContractKey(string(addr)), code)
}

// Code returns the code stored at addr.
func (s *Store) Code(addr types.Address) ([]byte, error) {
	code, err := s.db.Get(storage.ContractKey(string(addr)))
	if err != nil {
		return nil, ErrNotDeployed
	}
	return code, nil
}

// NoopExecutor is the reference Executor: it charges the transaction's own
// fee (already debited by the state layer before Execute runs) and performs
// no further state mutation, applying no output beyond the call's own
// value transfer. It exists so CallContract transactions have a concrete,
// always-available executor to exercise instead of leaving the interface
// unimplemented; a real sandboxed VM would satisfy the same Executor
// interface without any caller-visible change.
type NoopExecutor struct {
	Store *Store
}

// NewNoopExecutor creates a no-op executor backed by a contract code store,
// used only to confirm the target address has code before reporting success.
func NewNoopExecutor(store *Store) *NoopExecutor {
	return &NoopExecutor{Store: store}
}

func (e *NoopExecutor) Execute(state AccountView, sender types.Address, call tx.Payload) (Result, error) {
	if call.Kind != tx.CallContract {
		return Result{}, fmt.Errorf("contract: executor invoked with payload kind %s", call.Kind)
	}
	if _, err := e.Store.Code(call.Contract); err != nil {
		return Result{}, err
	}
	return Result{Success: true}, nil
}
