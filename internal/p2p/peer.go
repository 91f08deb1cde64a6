package p2p

import (
	"encoding/json"
	"net"
	"sync"
	"time"
)

// Peer sources, recorded so discovery provenance survives a restart.
const (
	SourceSeed      = "seed"
	SourceManual    = "manual"
	SourceDiscovered = "discovered"
)

// Peer wraps one connected peer's socket. Identity is the remote dial
// address (host:port): the transport is a single raw TCP stream per peer,
// so there is no separate cryptographic peer identity to maintain
// independent of the connection itself.
type Peer struct {
	Addr        string
	ConnectedAt time.Time
	Source      string
	BestHeight  uint64

	conn   net.Conn
	secret []byte

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// newPeer wraps an established connection.
func newPeer(addr string, conn net.Conn, secret []byte, source string) *Peer {
	return &Peer{
		Addr:        addr,
		ConnectedAt: time.Now(),
		Source:      source,
		conn:        conn,
		secret:      secret,
	}
}

// Send frames and writes msg to the peer. Safe for concurrent callers —
// writes are serialized so two goroutines broadcasting at once can't
// interleave frame bytes on the wire.
func (p *Peer) Send(msgType MessageType, payload any) error {
	raw, err := encodeMessage(msgType, payload)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return writeFrame(p.conn, p.secret, raw)
}

// Recv blocks for the next frame and decodes its envelope.
func (p *Peer) Recv() (Message, error) {
	raw, err := readFrame(p.conn, p.secret)
	if err != nil {
		return Message{}, err
	}
	var env Message
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, err
	}
	return env, nil
}

// Close shuts down the underlying connection. Safe to call more than once.
func (p *Peer) Close() error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Close()
}
