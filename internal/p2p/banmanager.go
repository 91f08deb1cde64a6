package p2p

import (
	"sync"
	"time"

	klog "github.com/qchain-project/qchain/internal/log"
)

// Ban threshold and duration.
const (
	BanThreshold = 100
	BanDuration  = 24 * time.Hour
)

// Penalty values for specific offenses.
const (
	PenaltyInvalidBlock  = 50
	PenaltyInvalidTx     = 20
	PenaltyHandshakeFail = 100 // instant ban, e.g. genesis mismatch
)

// BanManager tracks peer offense scores, keyed by dial address since peers
// have no separate cryptographic identity beyond their connection.
type BanManager struct {
	mu     sync.RWMutex
	scores map[string]int
	bans   map[string]*BanRecord
	store  *BanStore // nil disables persistence, e.g. in tests
	node   *Node     // nil if disconnect-on-ban is not wired
}

// NewBanManager creates a ban manager. store may be nil to disable
// persistence; node may be nil to skip automatic disconnection on ban.
func NewBanManager(store *BanStore, node *Node) *BanManager {
	return &BanManager{
		scores: make(map[string]int),
		bans:   make(map[string]*BanRecord),
		store:  store,
		node:   node,
	}
}

// LoadBans restores persisted, non-expired bans into the in-memory cache.
func (bm *BanManager) LoadBans() {
	if bm.store == nil {
		return
	}
	bm.store.PruneExpired()

	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.store.ForEach(func(rec *BanRecord) error {
		if !rec.IsExpired() {
			bm.bans[rec.Addr] = rec
		}
		return nil
	})
}

// RecordOffense adds penalty to addr's score. Crossing BanThreshold bans
// and disconnects the peer.
func (bm *BanManager) RecordOffense(addr string, penalty int, reason string) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if rec, ok := bm.bans[addr]; ok && !rec.IsExpired() {
		return
	}

	bm.scores[addr] += penalty
	if bm.scores[addr] < BanThreshold {
		return
	}

	now := time.Now()
	rec := &BanRecord{
		Addr:      addr,
		Reason:    reason,
		Score:     bm.scores[addr],
		BannedAt:  now.Unix(),
		ExpiresAt: now.Add(BanDuration).Unix(),
	}
	bm.bans[addr] = rec
	delete(bm.scores, addr)

	if bm.store != nil {
		bm.store.Put(rec)
	}

	klog.P2P.Warn().Str("peer", addr).Str("reason", reason).Int("score", rec.Score).Msg("peer banned")

	if bm.node != nil {
		go bm.node.DisconnectPeer(addr)
	}
}

// IsBanned reports whether addr is currently under an active ban.
func (bm *BanManager) IsBanned(addr string) bool {
	bm.mu.RLock()
	rec, ok := bm.bans[addr]
	bm.mu.RUnlock()
	if !ok {
		return false
	}
	if rec.IsExpired() {
		bm.mu.Lock()
		delete(bm.bans, addr)
		bm.mu.Unlock()
		if bm.store != nil {
			bm.store.Delete(addr)
		}
		return false
	}
	return true
}

// Unban manually lifts a ban and clears its score.
func (bm *BanManager) Unban(addr string) {
	bm.mu.Lock()
	delete(bm.bans, addr)
	delete(bm.scores, addr)
	bm.mu.Unlock()
	if bm.store != nil {
		bm.store.Delete(addr)
	}
}

// BanList returns a snapshot of all active bans.
func (bm *BanManager) BanList() []BanRecord {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	var list []BanRecord
	for _, rec := range bm.bans {
		if !rec.IsExpired() {
			list = append(list, *rec)
		}
	}
	return list
}

// RunPruneLoop periodically prunes expired bans until done is closed. Run
// in its own goroutine.
func (bm *BanManager) RunPruneLoop(done <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			bm.pruneExpired()
		}
	}
}

func (bm *BanManager) pruneExpired() {
	bm.mu.Lock()
	var expired []string
	for addr, rec := range bm.bans {
		if rec.IsExpired() {
			expired = append(expired, addr)
		}
	}
	for _, addr := range expired {
		delete(bm.bans, addr)
	}
	bm.mu.Unlock()

	if bm.store != nil {
		bm.store.PruneExpired()
	}
}
