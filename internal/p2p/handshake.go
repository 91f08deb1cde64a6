package p2p

import (
	"encoding/json"
	"fmt"

	"github.com/qchain-project/qchain/pkg/types"
)

// protocolVersion is bumped whenever the wire format changes in a way old
// peers cannot parse. minProtocolVersion is the oldest version this node
// still accepts a handshake from.
const (
	protocolVersion    uint32 = 1
	minProtocolVersion uint32 = 1
)

// HandshakeMessage is the first message exchanged on every connection,
// in both directions, before any other message type is accepted.
// A peer whose genesis hash or network ID disagrees with ours is on a
// different chain entirely and is rejected before any block or
// transaction data is exchanged.
type HandshakeMessage struct {
	ProtocolVersion uint32     `json:"protocol_version"`
	NetworkID       string     `json:"network_id"`
	GenesisHash     types.Hash `json:"genesis_hash"`
	BestHeight      uint64     `json:"best_height"`
}

// ErrHandshakeMismatch is returned by validateHandshake when a peer is
// running an incompatible protocol version or a different chain.
type ErrHandshakeMismatch struct {
	Reason string
}

func (e *ErrHandshakeMismatch) Error() string {
	return fmt.Sprintf("p2p: handshake rejected: %s", e.Reason)
}

// buildHandshakeMessage captures this node's identity at the moment a
// connection is opened: network ID, genesis hash, and current tip height.
func buildHandshakeMessage(networkID string, genesisHash types.Hash, bestHeight uint64) HandshakeMessage {
	return HandshakeMessage{
		ProtocolVersion: protocolVersion,
		NetworkID:       networkID,
		GenesisHash:     genesisHash,
		BestHeight:      bestHeight,
	}
}

// validateHandshake checks a peer's handshake against our own identity.
// Genesis hash and network ID must match exactly; protocol version must
// be at or above the floor this node still supports.
func validateHandshake(local, remote HandshakeMessage) error {
	if remote.ProtocolVersion < minProtocolVersion {
		return &ErrHandshakeMismatch{Reason: fmt.Sprintf("peer protocol version %d below minimum %d", remote.ProtocolVersion, minProtocolVersion)}
	}
	if remote.NetworkID != local.NetworkID {
		return &ErrHandshakeMismatch{Reason: fmt.Sprintf("peer network %q does not match local network %q", remote.NetworkID, local.NetworkID)}
	}
	if remote.GenesisHash != local.GenesisHash {
		return &ErrHandshakeMismatch{Reason: "peer genesis hash does not match local genesis"}
	}
	return nil
}

// sendHandshake writes an outbound handshake frame.
func sendHandshake(p *Peer, msg HandshakeMessage) error {
	raw, err := encodeMessage(MsgHandshake, msg)
	if err != nil {
		return err
	}
	return writeFrame(p.conn, p.secret, raw)
}

// recvHandshake reads and decodes the next frame, which must be a
// handshake — used only for the very first frame on a new connection.
func recvHandshake(p *Peer) (HandshakeMessage, error) {
	raw, err := readFrame(p.conn, p.secret)
	if err != nil {
		return HandshakeMessage{}, err
	}
	var env Message
	if err := json.Unmarshal(raw, &env); err != nil {
		return HandshakeMessage{}, fmt.Errorf("p2p: decode handshake envelope: %w", err)
	}
	if env.Type != MsgHandshake {
		return HandshakeMessage{}, fmt.Errorf("p2p: expected handshake, got %s", env.Type)
	}
	var hs HandshakeMessage
	if err := json.Unmarshal(env.Payload, &hs); err != nil {
		return HandshakeMessage{}, fmt.Errorf("p2p: decode handshake payload: %w", err)
	}
	return hs, nil
}
