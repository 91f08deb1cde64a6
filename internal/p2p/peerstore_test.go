package p2p

import (
	"testing"
	"time"

	"github.com/qchain-project/qchain/internal/storage"
)

func newTestPeerStore() *PeerStore {
	return NewPeerStore(storage.NewMemory())
}

func TestPeerStoreSaveLoad(t *testing.T) {
	ps := newTestPeerStore()

	rec := PeerRecord{Addr: "192.168.1.1:4001", LastSeen: time.Now().Unix(), Source: SourceDiscovered}
	if err := ps.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := ps.Load(rec.Addr)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Addr != rec.Addr || loaded.LastSeen != rec.LastSeen || loaded.Source != rec.Source {
		t.Errorf("record mismatch: got %+v, want %+v", loaded, rec)
	}
}

func TestPeerStoreLoadAll(t *testing.T) {
	ps := newTestPeerStore()
	now := time.Now().Unix()

	for i, addr := range []string{"10.0.0.1:4001", "10.0.0.2:4001", "10.0.0.3:4001"} {
		rec := PeerRecord{Addr: addr, LastSeen: now + int64(i), Source: SourceSeed}
		if err := ps.Save(rec); err != nil {
			t.Fatalf("Save %s: %v", addr, err)
		}
	}

	all, err := ps.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 records, got %d", len(all))
	}
}

func TestPeerStoreDelete(t *testing.T) {
	ps := newTestPeerStore()
	rec := PeerRecord{Addr: "10.0.0.1:4001", LastSeen: time.Now().Unix(), Source: SourceManual}
	if err := ps.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := ps.Delete(rec.Addr); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := ps.Load(rec.Addr); err == nil {
		t.Error("expected error after delete, got nil")
	}
}

func TestPeerStorePruneStale(t *testing.T) {
	ps := newTestPeerStore()

	old := PeerRecord{Addr: "10.0.0.1:4001", LastSeen: time.Now().Add(-48 * time.Hour).Unix(), Source: SourceDiscovered}
	if err := ps.Save(old); err != nil {
		t.Fatalf("Save old: %v", err)
	}
	recent := PeerRecord{Addr: "10.0.0.2:4001", LastSeen: time.Now().Add(-1 * time.Hour).Unix(), Source: SourceDiscovered}
	if err := ps.Save(recent); err != nil {
		t.Fatalf("Save recent: %v", err)
	}

	pruned, err := ps.PruneStale(staleThreshold)
	if err != nil {
		t.Fatalf("PruneStale: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned, got %d", pruned)
	}

	count, _ := ps.Count()
	if count != 1 {
		t.Errorf("expected 1 remaining, got %d", count)
	}

	rec, err := ps.Load(recent.Addr)
	if err != nil {
		t.Fatalf("Load recent after prune: %v", err)
	}
	if rec.Addr != recent.Addr {
		t.Errorf("wrong peer survived prune: %q", rec.Addr)
	}
}

func TestPeerStoreCount(t *testing.T) {
	ps := newTestPeerStore()

	count, err := ps.Count()
	if err != nil {
		t.Fatalf("Count empty: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0, got %d", count)
	}

	for _, addr := range []string{"a:1", "b:1", "c:1", "d:1"} {
		ps.Save(PeerRecord{Addr: addr, LastSeen: time.Now().Unix()})
	}

	count, err = ps.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4, got %d", count)
	}
}

func TestPeerStoreSaveOverwrite(t *testing.T) {
	ps := newTestPeerStore()

	rec1 := PeerRecord{Addr: "10.0.0.1:4001", LastSeen: 1000, Source: SourceManual}
	if err := ps.Save(rec1); err != nil {
		t.Fatalf("Save v1: %v", err)
	}
	rec2 := PeerRecord{Addr: "10.0.0.1:4001", LastSeen: 2000, Source: SourceDiscovered}
	if err := ps.Save(rec2); err != nil {
		t.Fatalf("Save v2: %v", err)
	}

	loaded, err := ps.Load(rec1.Addr)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.LastSeen != 2000 {
		t.Errorf("LastSeen not updated: got %d, want 2000", loaded.LastSeen)
	}
	if loaded.Source != SourceDiscovered {
		t.Errorf("Source not updated: got %q, want %q", loaded.Source, SourceDiscovered)
	}

	count, _ := ps.Count()
	if count != 1 {
		t.Errorf("expected 1 record after overwrite, got %d", count)
	}
}

func TestPeerStoreEmpty(t *testing.T) {
	ps := newTestPeerStore()
	all, err := ps.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll empty: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected 0 records, got %d", len(all))
	}
}
