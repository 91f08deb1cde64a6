// Package p2p implements the framed, HMAC-authenticated TCP protocol peers
// use to exchange handshakes, transactions, blocks, and heartbeats.
package p2p

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	klog "github.com/qchain-project/qchain/internal/log"
	"github.com/qchain-project/qchain/internal/storage"
	"github.com/qchain-project/qchain/pkg/types"
)

// dialTimeout bounds how long an outbound connection attempt (including
// the handshake round trip) may take before it is abandoned.
const dialTimeout = 5 * time.Second

// Config holds the parameters a Node is started with.
type Config struct {
	ListenAddr string
	Port       int
	Seeds      []string
	MaxPeers   int
	NetworkID  string
	Secret     []byte     // shared HMAC secret every frame is authenticated with
	DB         storage.DB // peer/ban persistence; nil disables both
}

// Node is a running peer-to-peer endpoint: it listens for inbound
// connections, dials outbound ones, and routes messages between connected
// peers and the rest of the node (chain, mempool, miner).
type Node struct {
	config      Config
	genesisHash types.Hash
	heightFn    func() uint64

	listener net.Listener
	done     chan struct{}
	wg       sync.WaitGroup

	mu    sync.RWMutex
	peers map[string]*Peer

	peerStore  *PeerStore
	BanManager *BanManager
	syncer     *Syncer

	txHandler       func(*Peer, NewTxMessage)
	blockHandler    func(*Peer, NewBlockMessage)
	heartbeatHandler func(*Peer, HeartbeatMessage)
}

// New creates a Node. genesisHash and heightFn feed the handshake this
// node presents to every peer it connects to.
func New(cfg Config, chain ChainSource, genesisHash types.Hash) *Node {
	n := &Node{
		config:      cfg,
		genesisHash: genesisHash,
		heightFn:    chain.Height,
		peers:       make(map[string]*Peer),
		syncer:      NewSyncer(chain),
	}
	if cfg.DB != nil {
		n.peerStore = NewPeerStore(cfg.DB)
	}
	return n
}

// SetTxHandler registers the callback invoked when a new_tx message that
// decodes to a non-nil transaction arrives from a peer. The transaction
// itself is not verified here.
func (n *Node) SetTxHandler(fn func(*Peer, NewTxMessage)) { n.txHandler = fn }

// SetBlockHandler registers the callback invoked when a new_block
// announcement arrives from a peer.
func (n *Node) SetBlockHandler(fn func(*Peer, NewBlockMessage)) { n.blockHandler = fn }

// SetHeartbeatHandler registers the callback invoked when a verified
// heartbeat arrives from a peer.
func (n *Node) SetHeartbeatHandler(fn func(*Peer, HeartbeatMessage)) { n.heartbeatHandler = fn }

// Start opens the listen socket, begins accepting inbound connections, and
// dials configured seeds plus any persisted peers.
func (n *Node) Start() error {
	if n.config.DB != nil {
		store := NewBanStore(n.config.DB)
		n.BanManager = NewBanManager(store, n)
		n.BanManager.LoadBans()
	} else {
		n.BanManager = NewBanManager(nil, n)
	}

	addr := net.JoinHostPort(n.config.ListenAddr, strconv.Itoa(n.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("p2p: listen on %s: %w", addr, err)
	}
	n.listener = ln
	n.done = make(chan struct{})

	n.wg.Add(1)
	go n.acceptLoop()

	go n.BanManager.RunPruneLoop(n.done)

	for _, seed := range n.config.Seeds {
		go n.dial(seed, SourceSeed)
	}
	if n.peerStore != nil {
		records, err := n.peerStore.LoadAll()
		if err == nil {
			for _, rec := range records {
				go n.dial(rec.Addr, rec.Source)
			}
		}
	}
	return nil
}

// Stop closes the listener and every connected peer.
func (n *Node) Stop() error {
	if n.done != nil {
		close(n.done)
	}
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	for addr, p := range n.peers {
		p.Close()
		delete(n.peers, addr)
	}
	n.mu.Unlock()
	n.wg.Wait()
	return nil
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.done:
				return
			default:
				klog.P2P.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		go n.handleInbound(conn)
	}
}

func (n *Node) handleInbound(conn net.Conn) {
	addr := conn.RemoteAddr().String()
	if n.BanManager.IsBanned(addr) {
		conn.Close()
		return
	}
	if n.atCapacity() {
		conn.Close()
		return
	}
	n.handleConn(addr, conn, SourceDiscovered)
}

// dial opens an outbound connection to addr and, on success, hands it off
// to the same handshake/dispatch path an inbound connection goes through.
func (n *Node) dial(addr, source string) {
	if addr == "" || n.hasPeer(addr) || n.BanManager.IsBanned(addr) {
		return
	}
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		klog.P2P.Debug().Str("peer", addr).Err(err).Msg("dial failed")
		return
	}
	n.handleConn(addr, conn, source)
}

func (n *Node) handleConn(addr string, conn net.Conn, source string) {
	p := newPeer(addr, conn, n.config.Secret, source)

	local := buildHandshakeMessage(n.config.NetworkID, n.genesisHash, n.heightFn())
	if err := sendHandshake(p, local); err != nil {
		conn.Close()
		return
	}
	remote, err := recvHandshake(p)
	if err != nil {
		conn.Close()
		return
	}
	if err := validateHandshake(local, remote); err != nil {
		n.BanManager.RecordOffense(addr, PenaltyHandshakeFail, err.Error())
		conn.Close()
		return
	}
	p.BestHeight = remote.BestHeight

	if !n.addPeer(p) {
		conn.Close()
		return
	}
	defer n.removePeer(addr)

	if n.peerStore != nil {
		n.peerStore.Save(PeerRecord{Addr: addr, LastSeen: time.Now().Unix(), Source: source})
	}

	klog.P2P.Info().Str("peer", addr).Str("source", source).Uint64("peer_height", remote.BestHeight).Msg("peer connected")

	// Sync before entering readLoop: both read from the same connection, so
	// running them concurrently would let readLoop take the blocks replies
	// SyncFrom is waiting for.
	if err := n.syncer.SyncFrom(p); err != nil {
		klog.P2P.Warn().Str("peer", addr).Err(err).Msg("sync failed")
	}

	n.readLoop(p)
}

func (n *Node) readLoop(p *Peer) {
	for {
		env, err := p.Recv()
		if err != nil {
			return
		}
		n.dispatch(p, env)
	}
}

func (n *Node) dispatch(p *Peer, env Message) {
	switch env.Type {
	case MsgHeartbeat:
		var hb HeartbeatMessage
		if json.Unmarshal(env.Payload, &hb) != nil || !VerifyHeartbeat(hb) {
			return
		}
		if n.heartbeatHandler != nil {
			n.heartbeatHandler(p, hb)
		}
	case MsgNewTx:
		var m NewTxMessage
		if decodeNewTx(env.Payload, &m) != nil || m.Transaction == nil {
			n.BanManager.RecordOffense(p.Addr, PenaltyInvalidTx, "malformed new_tx")
			return
		}
		if n.txHandler != nil {
			n.txHandler(p, m)
		}
	case MsgNewBlock:
		var m NewBlockMessage
		if decodeNewBlock(env.Payload, &m) != nil || m.Block == nil {
			n.BanManager.RecordOffense(p.Addr, PenaltyInvalidBlock, "malformed new_block")
			return
		}
		if m.Block.Header.Index > p.BestHeight {
			p.BestHeight = m.Block.Header.Index
		}
		if n.blockHandler != nil {
			n.blockHandler(p, m)
		}
	case MsgGetBlocks:
		var req GetBlocksMessage
		if decodeGetBlocks(env.Payload, &req) != nil {
			return
		}
		resp := n.syncer.HandleGetBlocks(req)
		p.Send(MsgBlocks, resp)
	case MsgGetPeers:
		p.Send(MsgPeers, PeersMessage{Peers: n.knownPeers()})
	case MsgPeers:
		var m PeersMessage
		if decodePeers(env.Payload, &m) == nil {
			for _, rec := range m.Peers {
				go n.dial(rec.Addr, SourceDiscovered)
			}
		}
	case MsgPing:
		p.Send(MsgPong, struct{}{})
	case MsgPong:
		// no-op: liveness only
	}
}

// Broadcast sends a message to every currently connected peer.
func (n *Node) Broadcast(msgType MessageType, payload any) {
	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()

	for _, p := range peers {
		if err := p.Send(msgType, payload); err != nil {
			klog.P2P.Debug().Str("peer", p.Addr).Err(err).Msg("broadcast failed")
		}
	}
}

// DisconnectPeer closes and forgets the peer at addr, if connected.
func (n *Node) DisconnectPeer(addr string) {
	n.mu.Lock()
	p, ok := n.peers[addr]
	if ok {
		delete(n.peers, addr)
	}
	n.mu.Unlock()
	if ok {
		p.Close()
	}
}

// ListenAddr returns the address the node is actually listening on, which
// may differ from the configured one if Port was 0.
func (n *Node) ListenAddr() string {
	if n.listener == nil {
		return ""
	}
	return n.listener.Addr().String()
}

// PeerCount returns the number of currently connected peers.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}

func (n *Node) knownPeers() []PeerRecord {
	n.mu.RLock()
	defer n.mu.RUnlock()
	recs := make([]PeerRecord, 0, len(n.peers))
	for addr, p := range n.peers {
		recs = append(recs, PeerRecord{Addr: addr, LastSeen: p.ConnectedAt.Unix(), Source: p.Source})
	}
	return recs
}

// Peers returns the currently connected peers, for RPC and diagnostics.
func (n *Node) Peers() []PeerRecord {
	return n.knownPeers()
}

func (n *Node) addPeer(p *Peer) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.config.MaxPeers > 0 && len(n.peers) >= n.config.MaxPeers {
		return false
	}
	if _, exists := n.peers[p.Addr]; exists {
		return false
	}
	n.peers[p.Addr] = p
	return true
}

func (n *Node) removePeer(addr string) {
	n.mu.Lock()
	delete(n.peers, addr)
	n.mu.Unlock()
}

func (n *Node) hasPeer(addr string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.peers[addr]
	return ok
}

func (n *Node) atCapacity() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.config.MaxPeers > 0 && len(n.peers) >= n.config.MaxPeers
}
