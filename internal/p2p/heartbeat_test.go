package p2p

import (
	"testing"

	"github.com/qchain-project/qchain/pkg/crypto"
)

func TestHeartbeatSignVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	msg, err := SignHeartbeat(key, 42, 1700000000)
	if err != nil {
		t.Fatalf("sign heartbeat: %v", err)
	}

	if !VerifyHeartbeat(msg) {
		t.Error("expected valid heartbeat to verify")
	}
}

func TestHeartbeatVerifyRejectsTamperedHeight(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	msg, err := SignHeartbeat(key, 42, 1700000000)
	if err != nil {
		t.Fatalf("sign heartbeat: %v", err)
	}

	msg.Height = 43
	if VerifyHeartbeat(msg) {
		t.Error("expected tampered heartbeat to fail verification")
	}
}

func TestHeartbeatVerifyRejectsEmpty(t *testing.T) {
	if VerifyHeartbeat(HeartbeatMessage{}) {
		t.Error("expected empty heartbeat to fail verification")
	}
}
