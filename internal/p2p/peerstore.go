package p2p

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/qchain-project/qchain/internal/storage"
)

const (
	staleThreshold    = 24 * time.Hour
	maxPersistedPeers = 500
)

// PeerRecord is a persisted peer entry: an address plus how and when it
// was last confirmed reachable, and whether it came from a seed, a manual
// dial, or peer discovery.
type PeerRecord struct {
	Addr     string `json:"addr"`
	LastSeen int64  `json:"last_seen"`
	Source   string `json:"source"`
}

// PeerStore persists peer records in a storage.DB under the peer: prefix.
type PeerStore struct {
	db storage.DB
}

// NewPeerStore creates a peer store backed by db.
func NewPeerStore(db storage.DB) *PeerStore {
	return &PeerStore{db: db}
}

// Save persists a peer record. Once the store holds maxPersistedPeers
// records, new peers are silently dropped rather than evicting an existing
// one — discovery keeps offering the same seed/manual peers across
// restarts.
func (ps *PeerStore) Save(rec PeerRecord) error {
	key := storage.PeerKey(rec.Addr)
	exists, err := ps.db.Has(key)
	if err != nil {
		return fmt.Errorf("p2p: check existing peer record: %w", err)
	}
	if !exists {
		count, err := ps.Count()
		if err != nil {
			return fmt.Errorf("p2p: count peer records: %w", err)
		}
		if count >= maxPersistedPeers {
			return nil
		}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("p2p: marshal peer record: %w", err)
	}
	return ps.db.Put(key, data)
}

// Load retrieves a single peer record by address.
func (ps *PeerStore) Load(addr string) (*PeerRecord, error) {
	data, err := ps.db.Get(storage.PeerKey(addr))
	if err != nil {
		return nil, fmt.Errorf("p2p: get peer record: %w", err)
	}
	var rec PeerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("p2p: unmarshal peer record: %w", err)
	}
	return &rec, nil
}

// LoadAll returns every persisted peer record.
func (ps *PeerStore) LoadAll() ([]PeerRecord, error) {
	var records []PeerRecord
	err := ps.db.ForEach(storage.PeerPrefix(), func(key, value []byte) error {
		var rec PeerRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("p2p: iterate peer records: %w", err)
	}
	return records, nil
}

// Delete removes a peer record.
func (ps *PeerStore) Delete(addr string) error {
	return ps.db.Delete(storage.PeerKey(addr))
}

// PruneStale removes records older than threshold, returning the count
// removed.
func (ps *PeerStore) PruneStale(threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold).Unix()
	var stale [][]byte

	err := ps.db.ForEach(storage.PeerPrefix(), func(key, value []byte) error {
		var rec PeerRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			keyCopy := append([]byte(nil), key...)
			stale = append(stale, keyCopy)
			return nil
		}
		if rec.LastSeen < cutoff {
			keyCopy := append([]byte(nil), key...)
			stale = append(stale, keyCopy)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("p2p: iterate for prune: %w", err)
	}
	for _, k := range stale {
		if err := ps.db.Delete(k); err != nil {
			return 0, fmt.Errorf("p2p: delete stale peer: %w", err)
		}
	}
	return len(stale), nil
}

// Count returns the number of persisted peer records.
func (ps *PeerStore) Count() (int, error) {
	count := 0
	err := ps.db.ForEach(storage.PeerPrefix(), func(key, value []byte) error {
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("p2p: count peer records: %w", err)
	}
	return count, nil
}
