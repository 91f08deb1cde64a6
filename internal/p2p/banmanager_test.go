package p2p

import (
	"testing"

	"github.com/qchain-project/qchain/internal/storage"
)

func TestBanManagerScoreAccumulation(t *testing.T) {
	bm := NewBanManager(nil, nil)
	addr := "10.0.0.1:4000"

	bm.RecordOffense(addr, PenaltyInvalidTx, "bad tx 1")
	if bm.IsBanned(addr) {
		t.Error("peer should not be banned after 20 points")
	}

	bm.RecordOffense(addr, PenaltyInvalidTx, "bad tx 2")
	if bm.IsBanned(addr) {
		t.Error("peer should not be banned after 40 points")
	}
}

func TestBanManagerThresholdBan(t *testing.T) {
	bm := NewBanManager(nil, nil)
	addr := "10.0.0.1:4000"

	bm.RecordOffense(addr, PenaltyInvalidBlock, "bad block 1")
	bm.RecordOffense(addr, PenaltyInvalidBlock, "bad block 2")

	if !bm.IsBanned(addr) {
		t.Error("peer should be banned at threshold")
	}
}

func TestBanManagerInstantBan(t *testing.T) {
	bm := NewBanManager(nil, nil)
	addr := "10.0.0.1:4000"

	bm.RecordOffense(addr, PenaltyHandshakeFail, "genesis mismatch")

	if !bm.IsBanned(addr) {
		t.Error("peer should be banned after handshake fail")
	}
}

func TestBanManagerIsBannedNotBanned(t *testing.T) {
	bm := NewBanManager(nil, nil)
	if bm.IsBanned("10.0.0.9:4000") {
		t.Error("unknown peer should not be banned")
	}
}

func TestBanManagerUnban(t *testing.T) {
	bm := NewBanManager(nil, nil)
	addr := "10.0.0.1:4000"
	bm.RecordOffense(addr, PenaltyHandshakeFail, "bad handshake")

	if !bm.IsBanned(addr) {
		t.Fatal("peer should be banned")
	}

	bm.Unban(addr)
	if bm.IsBanned(addr) {
		t.Error("peer should not be banned after Unban")
	}
}

func TestBanManagerBanList(t *testing.T) {
	bm := NewBanManager(nil, nil)
	bm.RecordOffense("10.0.0.1:4000", PenaltyHandshakeFail, "bad")
	bm.RecordOffense("10.0.0.2:4000", PenaltyHandshakeFail, "bad")

	list := bm.BanList()
	if len(list) != 2 {
		t.Errorf("expected 2 bans, got %d", len(list))
	}
}

func TestBanManagerPersistence(t *testing.T) {
	db := storage.NewMemory()
	store := NewBanStore(db)
	bm := NewBanManager(store, nil)

	addr := "10.0.0.1:4000"
	bm.RecordOffense(addr, PenaltyHandshakeFail, "genesis mismatch")

	if !bm.IsBanned(addr) {
		t.Fatal("peer should be banned")
	}

	bm2 := NewBanManager(store, nil)
	bm2.LoadBans()

	if !bm2.IsBanned(addr) {
		t.Error("ban should survive reload from store")
	}
}

func TestBanManagerDuplicateOffenseAlreadyBanned(t *testing.T) {
	bm := NewBanManager(nil, nil)
	addr := "10.0.0.1:4000"
	bm.RecordOffense(addr, PenaltyHandshakeFail, "bad handshake")

	bm.RecordOffense(addr, PenaltyInvalidBlock, "bad block")

	list := bm.BanList()
	if len(list) != 1 {
		t.Errorf("expected 1 ban, got %d", len(list))
	}
}

func TestBanManagerMultiPeer(t *testing.T) {
	bm := NewBanManager(nil, nil)
	bm.RecordOffense("10.0.0.1:4000", PenaltyHandshakeFail, "bad")
	bm.RecordOffense("10.0.0.2:4000", PenaltyInvalidTx, "bad tx")

	if !bm.IsBanned("10.0.0.1:4000") {
		t.Error("peer a should be banned")
	}
	if bm.IsBanned("10.0.0.2:4000") {
		t.Error("peer b should not be banned")
	}
}
