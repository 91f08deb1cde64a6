package p2p

import (
	"encoding/json"
	"testing"

	"github.com/qchain-project/qchain/pkg/types"
)

func TestHandshakeMessageJSON(t *testing.T) {
	msg := HandshakeMessage{
		ProtocolVersion: 1,
		GenesisHash:     types.Hash{0xaa, 0xbb, 0xcc},
		NetworkID:       "qchain-testnet-1",
		BestHeight:      42,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded HandshakeMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != msg {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, msg)
	}
}

func TestValidateHandshakeSuccess(t *testing.T) {
	local := HandshakeMessage{ProtocolVersion: protocolVersion, GenesisHash: types.Hash{0x01, 0x02, 0x03}, NetworkID: "test"}
	remote := HandshakeMessage{ProtocolVersion: protocolVersion, GenesisHash: types.Hash{0x01, 0x02, 0x03}, NetworkID: "test", BestHeight: 100}

	if err := validateHandshake(local, remote); err != nil {
		t.Errorf("expected success, got %v", err)
	}
}

func TestValidateHandshakeGenesisMismatch(t *testing.T) {
	local := HandshakeMessage{ProtocolVersion: protocolVersion, GenesisHash: types.Hash{0x01, 0x02, 0x03}, NetworkID: "test"}
	remote := HandshakeMessage{ProtocolVersion: protocolVersion, GenesisHash: types.Hash{0xff, 0xfe, 0xfd}, NetworkID: "test"}

	if err := validateHandshake(local, remote); err == nil {
		t.Error("expected genesis mismatch error")
	}
}

func TestValidateHandshakeNetworkMismatch(t *testing.T) {
	local := HandshakeMessage{ProtocolVersion: protocolVersion, GenesisHash: types.Hash{0x01}, NetworkID: "mainnet"}
	remote := HandshakeMessage{ProtocolVersion: protocolVersion, GenesisHash: types.Hash{0x01}, NetworkID: "testnet"}

	if err := validateHandshake(local, remote); err == nil {
		t.Error("expected network mismatch error")
	}
}

func TestValidateHandshakeVersionTooLow(t *testing.T) {
	local := HandshakeMessage{ProtocolVersion: protocolVersion, GenesisHash: types.Hash{0x01}, NetworkID: "test"}
	remote := HandshakeMessage{ProtocolVersion: 0, GenesisHash: types.Hash{0x01}, NetworkID: "test"}

	if err := validateHandshake(local, remote); err == nil {
		t.Error("expected version too low error")
	}
}

func TestBuildHandshakeMessage(t *testing.T) {
	genesis := types.Hash{0x01}
	msg := buildHandshakeMessage("qchain-testnet-1", genesis, 99)

	if msg.ProtocolVersion != protocolVersion {
		t.Errorf("ProtocolVersion: got %d, want %d", msg.ProtocolVersion, protocolVersion)
	}
	if msg.GenesisHash != genesis {
		t.Error("GenesisHash mismatch")
	}
	if msg.NetworkID != "qchain-testnet-1" {
		t.Errorf("NetworkID: got %q", msg.NetworkID)
	}
	if msg.BestHeight != 99 {
		t.Errorf("BestHeight: got %d, want 99", msg.BestHeight)
	}
}
