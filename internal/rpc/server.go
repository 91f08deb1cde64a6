// Package rpc implements the JSON-RPC 2.0 API surface a qchain node
// exposes over HTTP.
package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/qchain-project/qchain/config"
	"github.com/qchain-project/qchain/internal/chain"
	"github.com/qchain-project/qchain/internal/mempool"
	"github.com/qchain-project/qchain/internal/metrics"
	"github.com/qchain-project/qchain/internal/miner"
	"github.com/qchain-project/qchain/internal/p2p"
	"github.com/qchain-project/qchain/pkg/merkle"
	"github.com/qchain-project/qchain/pkg/types"
	"github.com/rs/zerolog"

	klog "github.com/qchain-project/qchain/internal/log"
)

// maxBodySize bounds a single JSON-RPC request body.
const maxBodySize = 1 << 20

// Server is the JSON-RPC 2.0 HTTP server exposing node state and control.
type Server struct {
	addr     string
	chain    *chain.Chain
	pool     *mempool.Pool
	p2pNode  *p2p.Node
	m        *miner.Miner
	genesis  *config.Genesis
	registry *metrics.Registry

	server *http.Server
	logger zerolog.Logger
	ln     net.Listener

	miningMu sync.RWMutex
	mining   bool
	coinbase types.Address
	cancel   context.CancelFunc
}

// New creates a JSON-RPC server. m and p2pNode may be nil: with no miner,
// mining_status reports disabled and start_mining returns an error; with
// no P2P node, get_peers returns an empty list and peer counts read 0.
func New(addr string, ch *chain.Chain, pool *mempool.Pool, p2pNode *p2p.Node, m *miner.Miner, genesis *config.Genesis, registry *metrics.Registry) *Server {
	s := &Server{
		addr:     addr,
		chain:    ch,
		pool:     pool,
		p2pNode:  p2pNode,
		m:        m,
		genesis:  genesis,
		registry: registry,
		logger:   klog.WithComponent("rpc"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins listening and serving in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc: listen: %w", err)
	}
	s.ln = ln
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("rpc server error")
		}
	}()
	return nil
}

// Addr returns the listener's bound address (useful when started on :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, `jsonrpc must be "2.0"`)
		return
	}

	result, rpcErr := s.dispatch(&req)
	outcome := "ok"
	if rpcErr != nil {
		outcome = "error"
	}
	if s.registry != nil {
		s.registry.RPCRequestsTotal.WithLabelValues(req.Method, outcome).Inc()
	}
	if rpcErr != nil {
		writeJSON(w, Response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID})
		return
	}
	writeJSON(w, Response{JSONRPC: "2.0", Result: result, ID: req.ID})
}

func (s *Server) dispatch(req *Request) (interface{}, *Error) {
	switch req.Method {
	case "node_status":
		return s.handleNodeStatus(req)
	case "get_stats":
		return s.handleGetStats(req)
	case "get_balance":
		return s.handleGetBalance(req)
	case "submit_transaction":
		return s.handleSubmitTransaction(req)
	case "get_block":
		return s.handleGetBlock(req)
	case "get_transaction":
		return s.handleGetTransaction(req)
	case "get_mempool":
		return s.handleGetMempool(req)
	case "start_mining":
		return s.handleStartMining(req)
	case "stop_mining":
		return s.handleStopMining(req)
	case "mining_status":
		return s.handleMiningStatus(req)
	case "get_peers":
		return s.handleGetPeers(req)
	case "get_merkle_proof":
		return s.handleGetMerkleProof(req)
	case "get_contract_code":
		return s.handleGetContractCode(req)
	case "shutdown":
		return s.handleShutdown(req)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

func (s *Server) handleNodeStatus(req *Request) (interface{}, *Error) {
	state := s.chain.State()
	peerCount := 0
	if s.p2pNode != nil {
		peerCount = s.p2pNode.PeerCount()
	}
	s.miningMu.RLock()
	mining := s.mining
	s.miningMu.RUnlock()
	return NodeStatusResult{
		ChainID:   s.genesis.ChainID,
		Network:   s.genesis.ChainName,
		Height:    state.Height,
		TipHash:   state.TipHash.String(),
		PeerCount: peerCount,
		Mining:    mining,
	}, nil
}

func (s *Server) handleGetStats(req *Request) (interface{}, *Error) {
	state := s.chain.State()
	peerCount := 0
	if s.p2pNode != nil {
		peerCount = s.p2pNode.PeerCount()
	}
	cumDiff := "0"
	if state.CumulativeDifficulty != nil {
		cumDiff = state.CumulativeDifficulty.String()
	}
	return StatsResult{
		Height:                state.Height,
		Supply:                state.Supply,
		CumulativeDifficulty:  cumDiff,
		MempoolSize:           s.pool.Count(),
		PeerCount:             peerCount,
	}, nil
}

func (s *Server) handleGetBalance(req *Request) (interface{}, *Error) {
	var p AddressParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	addr, perr := types.ParseAddress(p.Address)
	if perr != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: perr.Error()}
	}
	acc, _ := s.chain.Account(addr)
	return BalanceResult{
		Address:       p.Address,
		Balance:       acc.Balance,
		Nonce:         acc.Nonce,
		LockedBalance: acc.LockedBalance,
		UnlockHeight:  acc.UnlockHeight,
	}, nil
}

func (s *Server) handleSubmitTransaction(req *Request) (interface{}, *Error) {
	var p TxSubmitParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	if p.Transaction == nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "transaction is required"}
	}
	if err := s.pool.Add(p.Transaction); err != nil {
		if s.registry != nil {
			s.registry.TxRejected.Inc()
		}
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	if s.registry != nil {
		s.registry.TxSubmitted.Inc()
	}
	if s.p2pNode != nil {
		s.p2pNode.Broadcast(p2p.MsgNewTx, p2p.NewTxMessage{Transaction: p.Transaction})
	}
	return TxSubmitResult{TxHash: p.Transaction.Hash().String()}, nil
}

func (s *Server) handleGetBlock(req *Request) (interface{}, *Error) {
	var p HeightParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	blk, err := s.chain.GetBlock(p.Height)
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: err.Error()}
	}
	return NewBlockResult(blk), nil
}

func (s *Server) handleGetTransaction(req *Request) (interface{}, *Error) {
	var p HashParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	hash, herr := types.HexToHash(p.Hash)
	if herr != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: herr.Error()}
	}
	t, blk, err := s.chain.GetTransaction(hash)
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: err.Error()}
	}
	return struct {
		Transaction interface{} `json:"transaction"`
		Height      uint64      `json:"height"`
		BlockHash   string      `json:"block_hash"`
	}{Transaction: t, Height: blk.Header.Index, BlockHash: blk.Hash().String()}, nil
}

func (s *Server) handleGetMempool(req *Request) (interface{}, *Error) {
	hashes := s.pool.Hashes()
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = h.String()
	}
	return MempoolResult{Count: len(out), Hashes: out}, nil
}

func (s *Server) handleStartMining(req *Request) (interface{}, *Error) {
	if s.m == nil {
		return nil, &Error{Code: CodeInvalidRequest, Message: "mining is not configured on this node"}
	}
	s.miningMu.Lock()
	defer s.miningMu.Unlock()
	if s.mining {
		return MiningStatusResult{Enabled: true}, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mining = true
	go s.m.Run(ctx)
	return MiningStatusResult{Enabled: true}, nil
}

func (s *Server) handleStopMining(req *Request) (interface{}, *Error) {
	s.miningMu.Lock()
	defer s.miningMu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mining = false
	return MiningStatusResult{Enabled: false}, nil
}

func (s *Server) handleMiningStatus(req *Request) (interface{}, *Error) {
	s.miningMu.RLock()
	defer s.miningMu.RUnlock()
	return MiningStatusResult{Enabled: s.mining}, nil
}

func (s *Server) handleGetPeers(req *Request) (interface{}, *Error) {
	if s.p2pNode == nil {
		return PeersResult{}, nil
	}
	recs := s.p2pNode.Peers()
	entries := make([]PeerEntry, len(recs))
	for i, r := range recs {
		entries[i] = PeerEntry{Addr: r.Addr, Source: r.Source, ConnectedAt: r.LastSeen}
	}
	return PeersResult{Count: len(entries), Peers: entries}, nil
}

func (s *Server) handleGetMerkleProof(req *Request) (interface{}, *Error) {
	var p MerkleProofParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	blk, err := s.chain.GetBlock(p.Height)
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: err.Error()}
	}
	leaves := blk.TxHashes()
	target, herr := types.HexToHash(p.TxHash)
	if herr != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: herr.Error()}
	}
	index := -1
	for i, h := range leaves {
		if h == target {
			index = i
			break
		}
	}
	if index == -1 {
		return nil, &Error{Code: CodeNotFound, Message: "transaction not found in this block"}
	}
	steps, err := merkle.Proof(leaves, index)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	out := make([]MerkleProofStep, len(steps))
	for i, st := range steps {
		out[i] = MerkleProofStep{Hash: st.Sibling.String(), SiblingIsLeft: st.IsLeft}
	}
	return MerkleProofResult{
		Root:  blk.Header.MerkleRoot.String(),
		Leaf:  target.String(),
		Steps: out,
	}, nil
}

func (s *Server) handleGetContractCode(req *Request) (interface{}, *Error) {
	var p ContractCodeParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	addr, perr := types.ParseAddress(p.Address)
	if perr != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: perr.Error()}
	}
	code, err := s.chain.ContractCode(addr)
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: err.Error()}
	}
	return ContractCodeResult{Address: p.Address, Code: hex.EncodeToString(code)}, nil
}

func (s *Server) handleShutdown(req *Request) (interface{}, *Error) {
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.Stop()
	}()
	return struct {
		ShuttingDown bool `json:"shutting_down"`
	}{true}, nil
}

func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: message}, ID: id})
}

func parseParams(req *Request, target interface{}) *Error {
	if req.Params == nil {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}
	data, err := json.Marshal(req.Params)
	if err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid params"}
	}
	if err := json.Unmarshal(data, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}
