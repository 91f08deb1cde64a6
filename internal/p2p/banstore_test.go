package p2p

import (
	"testing"
	"time"

	"github.com/qchain-project/qchain/internal/storage"
)

func TestBanStorePutGet(t *testing.T) {
	bs := NewBanStore(storage.NewMemory())
	rec := &BanRecord{Addr: "10.0.0.1:4000", Reason: "bad block", Score: 100, BannedAt: time.Now().Unix(), ExpiresAt: time.Now().Add(time.Hour).Unix()}

	if err := bs.Put(rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	loaded, err := bs.Get(rec.Addr)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded.Reason != rec.Reason || loaded.Score != rec.Score {
		t.Errorf("record mismatch: got %+v, want %+v", loaded, rec)
	}
}

func TestBanStorePruneExpired(t *testing.T) {
	bs := NewBanStore(storage.NewMemory())

	expired := &BanRecord{Addr: "10.0.0.1:4000", ExpiresAt: time.Now().Add(-time.Hour).Unix()}
	active := &BanRecord{Addr: "10.0.0.2:4000", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	bs.Put(expired)
	bs.Put(active)

	pruned, err := bs.PruneExpired()
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned, got %d", pruned)
	}

	if _, err := bs.Get(active.Addr); err != nil {
		t.Error("active ban should survive prune")
	}
}

func TestBanRecordIsExpired(t *testing.T) {
	permanent := &BanRecord{ExpiresAt: 0}
	if permanent.IsExpired() {
		t.Error("zero ExpiresAt should mean permanent, not expired")
	}

	past := &BanRecord{ExpiresAt: time.Now().Add(-time.Minute).Unix()}
	if !past.IsExpired() {
		t.Error("expected past ExpiresAt to be expired")
	}
}
