// Package mempool manages pending transactions waiting for block inclusion.
// Transactions are indexed by hash, by fee (for block assembly),
// and by sender/nonce (to keep each sender's pending transactions in
// strict nonce order and to reserve a nonce against races between
// concurrent submissions).
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/qchain-project/qchain/pkg/params"
	"github.com/qchain-project/qchain/pkg/tx"
	"github.com/qchain-project/qchain/pkg/types"
)

var (
	ErrAlreadyExists = errors.New("transaction already in mempool")
	ErrNoncePending  = errors.New("a transaction with this sender/nonce is already pending")
	ErrNonceTooLow   = errors.New("nonce already used by a confirmed transaction")
	ErrPoolFull      = errors.New("mempool is full")
	ErrValidation    = errors.New("transaction failed validation")
	ErrFeeTooLow     = errors.New("transaction fee below minimum")
)

// AccountSource answers the confirmed nonce for a sender, letting the pool
// reject transactions that reuse an already-applied nonce. It is the
// chain's committed account state, not the mempool's own bookkeeping.
type AccountSource interface {
	Account(addr types.Address) (types.AccountBalance, bool)
}

type entry struct {
	tx      *tx.Transaction
	hash    types.Hash
	addedAt int64
}

// Pool holds unconfirmed transactions awaiting inclusion in a block.
type Pool struct {
	mu       sync.RWMutex
	byHash   map[types.Hash]*entry
	bySender map[types.Address]map[uint64]*entry // nonce -> entry
	maxSize  int
	accounts AccountSource
	nowFn    func() int64
}

// New creates a mempool backed by accounts for nonce checks. maxSize <= 0
// falls back to params.MaxMempoolSize.
func New(accounts AccountSource, maxSize int, nowFn func() int64) *Pool {
	if maxSize <= 0 {
		maxSize = params.MaxMempoolSize
	}
	return &Pool{
		byHash:   make(map[types.Hash]*entry),
		bySender: make(map[types.Address]map[uint64]*entry),
		maxSize:  maxSize,
		accounts: accounts,
		nowFn:    nowFn,
	}
}

// Add validates transaction and admits it to the pool. It reserves the
// sender/nonce slot atomically with the rest of the check, so two
// concurrent Add calls for the same sender and nonce cannot both succeed.
func (p *Pool) Add(transaction *tx.Transaction) error {
	if err := transaction.VerifyFull(params.MaxTxSizeBytes); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !transaction.IsCoinbase() && !transaction.IsTreasury() && transaction.Fee < params.MinFee {
		return fmt.Errorf("%w: got %d, need %d", ErrFeeTooLow, transaction.Fee, params.MinFee)
	}

	hash := transaction.Hash()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byHash[hash]; exists {
		return ErrAlreadyExists
	}

	account, _ := p.accounts.Account(transaction.Sender)
	if transaction.Nonce <= account.Nonce {
		return fmt.Errorf("%w: tx nonce %d, confirmed nonce %d", ErrNonceTooLow, transaction.Nonce, account.Nonce)
	}

	pending := p.bySender[transaction.Sender]
	if pending == nil {
		pending = make(map[uint64]*entry)
	}
	if _, exists := pending[transaction.Nonce]; exists {
		return ErrNoncePending
	}

	if len(p.byHash) >= p.maxSize {
		lowest, ok := p.lowestFeeEntryLocked()
		if !ok || transaction.Fee <= lowest.tx.Fee {
			return ErrPoolFull
		}
		p.removeLocked(lowest.hash)
	}

	e := &entry{tx: transaction, hash: hash, addedAt: p.now()}
	p.byHash[hash] = e
	pending[transaction.Nonce] = e
	p.bySender[transaction.Sender] = pending
	return nil
}

func (p *Pool) now() int64 {
	if p.nowFn != nil {
		return p.nowFn()
	}
	return 0
}

// Remove drops a transaction from the pool by hash.
func (p *Pool) Remove(hash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(hash)
}

func (p *Pool) removeLocked(hash types.Hash) {
	e, exists := p.byHash[hash]
	if !exists {
		return
	}
	delete(p.byHash, hash)
	if pending := p.bySender[e.tx.Sender]; pending != nil {
		delete(pending, e.tx.Nonce)
		if len(pending) == 0 {
			delete(p.bySender, e.tx.Sender)
		}
	}
}

// RemoveMined drops every transaction a newly-applied block confirmed.
func (p *Pool) RemoveMined(txs []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range txs {
		p.removeLocked(t.Hash())
	}
}

// Has reports whether hash is currently pending.
func (p *Pool) Has(hash types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.byHash[hash]
	return exists
}

// Get returns the pending transaction for hash, or nil.
func (p *Pool) Get(hash types.Hash) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.byHash[hash]
	if !exists {
		return nil
	}
	return e.tx
}

// Count returns the number of pending transactions.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byHash)
}

// Hashes returns the hash of every pending transaction.
func (p *Pool) Hashes() []types.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	hashes := make([]types.Hash, 0, len(p.byHash))
	for h := range p.byHash {
		hashes = append(hashes, h)
	}
	return hashes
}

func (p *Pool) lowestFeeEntryLocked() (*entry, bool) {
	var lowest *entry
	for _, e := range p.byHash {
		if lowest == nil || e.tx.Fee < lowest.tx.Fee {
			lowest = e
		}
	}
	return lowest, lowest != nil
}

// senderQueue is one sender's pending transactions in ascending nonce order.
type senderQueue struct {
	sender types.Address
	txs    []*entry // index 0 is the next nonce due
}

// Best selects transactions for a new block: up to limit transactions, at
// most maxBytes of combined serialized size, preferring higher fees while
// never placing a sender's transaction ahead of that sender's own
// lower-nonce transaction.
func (p *Pool) Best(limit, maxBytes int) []*tx.Transaction {
	p.mu.RLock()
	queues := make([]*senderQueue, 0, len(p.bySender))
	for sender, pending := range p.bySender {
		q := &senderQueue{sender: sender}
		for _, e := range pending {
			q.txs = append(q.txs, e)
		}
		sort.Slice(q.txs, func(i, j int) bool { return q.txs[i].tx.Nonce < q.txs[j].tx.Nonce })
		queues = append(queues, q)
	}
	p.mu.RUnlock()

	var result []*tx.Transaction
	usedBytes := 0
	for {
		if limit > 0 && len(result) >= limit {
			break
		}
		bestIdx := -1
		var bestFee uint64
		for i, q := range queues {
			if len(q.txs) == 0 {
				continue
			}
			head := q.txs[0]
			if bestIdx == -1 || head.tx.Fee > bestFee {
				bestIdx = i
				bestFee = head.tx.Fee
			}
		}
		if bestIdx == -1 {
			break
		}
		head := queues[bestIdx].txs[0]
		size, err := head.tx.SerializedSize()
		if err != nil {
			queues[bestIdx].txs = queues[bestIdx].txs[1:]
			continue
		}
		if maxBytes > 0 && usedBytes+size > maxBytes {
			queues[bestIdx].txs = nil
			continue
		}
		result = append(result, head.tx)
		usedBytes += size
		queues[bestIdx].txs = queues[bestIdx].txs[1:]
	}
	return result
}
