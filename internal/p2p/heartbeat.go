package p2p

import (
	"encoding/binary"
	"encoding/json"

	"github.com/qchain-project/qchain/pkg/crypto"
)

// HeartbeatMessage is a signed liveness announcement a node broadcasts to
// its connected peers: proof that the sender still holds the private key
// behind PubKey and is at the claimed height, fanned out over direct peer
// connections rather than a pubsub mesh (see frame.go).
type HeartbeatMessage struct {
	PubKey    []byte `json:"pubkey"`    // serialized Dilithium public key
	Height    uint64 `json:"height"`    // sender's chain height
	Timestamp int64  `json:"timestamp"` // unix seconds
	Signature []byte `json:"signature"` // Dilithium signature over HeartbeatSigningBytes
}

// HeartbeatSigningBytes returns the bytes a heartbeat's signature covers.
func HeartbeatSigningBytes(pubKey []byte, height uint64, timestamp int64) []byte {
	buf := make([]byte, len(pubKey)+8+8)
	copy(buf, pubKey)
	binary.LittleEndian.PutUint64(buf[len(pubKey):], height)
	binary.LittleEndian.PutUint64(buf[len(pubKey)+8:], uint64(timestamp))
	return buf
}

// SignHeartbeat builds and signs a heartbeat message with key, claiming the
// given height at the given unix timestamp.
func SignHeartbeat(key *crypto.PrivateKey, height uint64, timestamp int64) (HeartbeatMessage, error) {
	pub := key.PublicKey()
	data := HeartbeatSigningBytes(pub, height, timestamp)
	hash := crypto.Hash(data)
	sig, err := key.Sign(hash[:])
	if err != nil {
		return HeartbeatMessage{}, err
	}
	return HeartbeatMessage{PubKey: pub, Height: height, Timestamp: timestamp, Signature: sig}, nil
}

// VerifyHeartbeat checks a heartbeat's signature against its own claimed
// public key. It says nothing about whether that key belongs to a peer
// worth trusting — callers decide what a verified heartbeat is worth.
func VerifyHeartbeat(msg HeartbeatMessage) bool {
	if len(msg.PubKey) == 0 || len(msg.Signature) == 0 {
		return false
	}
	data := HeartbeatSigningBytes(msg.PubKey, msg.Height, msg.Timestamp)
	hash := crypto.Hash(data)
	return crypto.VerifySignature(hash[:], msg.Signature, msg.PubKey)
}

func encodeHeartbeat(msg HeartbeatMessage) ([]byte, error) {
	return encodeMessage(MsgHeartbeat, msg)
}

func decodeHeartbeat(payload json.RawMessage) (HeartbeatMessage, error) {
	var hb HeartbeatMessage
	err := json.Unmarshal(payload, &hb)
	return hb, err
}
