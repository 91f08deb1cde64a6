package p2p

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/qchain-project/qchain/internal/storage"
)

// BanRecord is a persisted ban entry.
type BanRecord struct {
	Addr      string `json:"addr"`
	Reason    string `json:"reason"`
	Score     int    `json:"score"`
	BannedAt  int64  `json:"banned_at"`
	ExpiresAt int64  `json:"expires_at"` // 0 = permanent
}

// IsExpired returns true if the ban has a non-zero expiry that has passed.
func (r *BanRecord) IsExpired() bool {
	return r.ExpiresAt > 0 && time.Now().Unix() >= r.ExpiresAt
}

// BanStore persists ban records in a storage.DB under the ban: prefix.
type BanStore struct {
	db storage.DB
}

// NewBanStore creates a ban store backed by db.
func NewBanStore(db storage.DB) *BanStore {
	return &BanStore{db: db}
}

// Get retrieves a ban record by peer address.
func (bs *BanStore) Get(addr string) (*BanRecord, error) {
	data, err := bs.db.Get(storage.BanKey(addr))
	if err != nil {
		return nil, err
	}
	var rec BanRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("p2p: unmarshal ban record: %w", err)
	}
	return &rec, nil
}

// Put persists a ban record.
func (bs *BanStore) Put(rec *BanRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("p2p: marshal ban record: %w", err)
	}
	return bs.db.Put(storage.BanKey(rec.Addr), data)
}

// Delete removes a ban record.
func (bs *BanStore) Delete(addr string) error {
	return bs.db.Delete(storage.BanKey(addr))
}

// ForEach iterates over all ban records.
func (bs *BanStore) ForEach(fn func(*BanRecord) error) error {
	return bs.db.ForEach(storage.BanPrefix(), func(key, value []byte) error {
		var rec BanRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil
		}
		return fn(&rec)
	})
}

// PruneExpired removes every expired ban record, returning the count removed.
func (bs *BanStore) PruneExpired() (int, error) {
	now := time.Now().Unix()
	var toDelete [][]byte

	err := bs.db.ForEach(storage.BanPrefix(), func(key, value []byte) error {
		var rec BanRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			toDelete = append(toDelete, append([]byte(nil), key...))
			return nil
		}
		if rec.ExpiresAt > 0 && now >= rec.ExpiresAt {
			toDelete = append(toDelete, append([]byte(nil), key...))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("p2p: iterate for prune: %w", err)
	}
	for _, k := range toDelete {
		if err := bs.db.Delete(k); err != nil {
			return 0, fmt.Errorf("p2p: delete expired ban: %w", err)
		}
	}
	return len(toDelete), nil
}
