package p2p

import (
	"encoding/json"
	"fmt"

	"github.com/qchain-project/qchain/pkg/block"
	"github.com/qchain-project/qchain/pkg/tx"
)

// MessageType discriminates the envelope's payload.
type MessageType string

const (
	MsgHandshake     MessageType = "handshake"
	MsgHeartbeat     MessageType = "heartbeat"
	MsgNewTx         MessageType = "new_tx"
	MsgNewBlock      MessageType = "new_block"
	MsgGetBlocks     MessageType = "get_blocks"
	MsgBlocks        MessageType = "blocks"
	MsgGetPeers      MessageType = "get_peers"
	MsgPeers         MessageType = "peers"
	MsgPing          MessageType = "ping"
	MsgPong          MessageType = "pong"
)

// Message is the envelope every frame carries: a type tag plus the raw JSON
// of the type-specific payload below, so a peer can route on Type before
// committing to unmarshal a specific struct.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// GetBlocksMessage requests every block after FromHeight, up to a
// peer-enforced batch limit.
type GetBlocksMessage struct {
	FromHeight uint64 `json:"from_height"`
}

// BlocksMessage answers a GetBlocksMessage with a contiguous run of blocks.
type BlocksMessage struct {
	Blocks []*block.Block `json:"blocks"`
}

// NewTxMessage announces a transaction the sending peer just accepted into
// its mempool.
type NewTxMessage struct {
	Transaction *tx.Transaction `json:"transaction"`
}

// NewBlockMessage announces a newly mined or received block.
type NewBlockMessage struct {
	Block *block.Block `json:"block"`
}

// PeersMessage exchanges known peer addresses for discovery, each
// carrying its seed/manual/discovered provenance.
type PeersMessage struct {
	Peers []PeerRecord `json:"peers"`
}

func encodeMessage(msgType MessageType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("p2p: marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Message{Type: msgType, Payload: raw})
}

func decodeGetBlocks(raw json.RawMessage, out *GetBlocksMessage) error {
	return json.Unmarshal(raw, out)
}

func decodeBlocks(raw json.RawMessage, out *BlocksMessage) error {
	return json.Unmarshal(raw, out)
}

func decodeNewTx(raw json.RawMessage, out *NewTxMessage) error {
	return json.Unmarshal(raw, out)
}

func decodeNewBlock(raw json.RawMessage, out *NewBlockMessage) error {
	return json.Unmarshal(raw, out)
}

func decodePeers(raw json.RawMessage, out *PeersMessage) error {
	return json.Unmarshal(raw, out)
}
