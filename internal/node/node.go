// Package node provides a reusable blockchain node that can be embedded
// in any binary (daemon, CLI, test harness).
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qchain-project/qchain/config"
	"github.com/qchain-project/qchain/internal/chain"
	"github.com/qchain-project/qchain/internal/consensus"
	klog "github.com/qchain-project/qchain/internal/log"
	"github.com/qchain-project/qchain/internal/mempool"
	"github.com/qchain-project/qchain/internal/metrics"
	"github.com/qchain-project/qchain/internal/miner"
	"github.com/qchain-project/qchain/internal/p2p"
	"github.com/qchain-project/qchain/internal/rpc"
	"github.com/qchain-project/qchain/internal/storage"
	"github.com/qchain-project/qchain/pkg/types"
	"github.com/rs/zerolog"
)

// Node is a fully-initialized blockchain node: storage, consensus, chain,
// mempool, P2P networking, RPC surface and, optionally, a miner — wired
// together and ready to run.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	db       storage.DB
	engine   consensus.Engine
	ch       *chain.Chain
	pool     *mempool.Pool
	registry *metrics.Registry

	p2pNode *p2p.Node
	rpcSrv  *rpc.Server
	m       *miner.Miner

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Node from cfg but does not start any background goroutines
// or network listeners; call Start for that.
func New(cfg *config.Config) (*Node, error) {
	logger := klog.WithComponent("node")
	genesis := config.GenesisFor(cfg.Network)

	if err := config.EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("node: prepare data directories: %w", err)
	}

	db, err := storage.NewBadger(cfg.DBDir())
	if err != nil {
		return nil, fmt.Errorf("node: open database at %s: %w", cfg.DBDir(), err)
	}

	engine, err := consensus.NewGenesisPoW()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("node: create consensus engine: %w", err)
	}

	ch, err := chain.New(db, engine, consensus.Checkpoints{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("node: create chain: %w", err)
	}

	state := ch.State()
	if state.IsGenesis() {
		if err := ch.InitFromGenesis(genesis); err != nil {
			db.Close()
			return nil, fmt.Errorf("node: init from genesis: %w", err)
		}
		logger.Info().Str("chain_id", genesis.ChainID).Msg("chain initialized from genesis")
	} else {
		logger.Info().Uint64("height", ch.Height()).Str("tip", ch.TipHash().String()).Msg("chain resumed from storage")
	}

	pool := mempool.New(ch, cfg.Security.MaxMempoolSize, func() int64 { return time.Now().Unix() })
	registry := metrics.NewRegistry()

	genesisHash, err := genesis.Hash()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("node: hash genesis: %w", err)
	}

	n := &Node{
		cfg:      cfg,
		genesis:  genesis,
		logger:   logger,
		db:       db,
		engine:   engine,
		ch:       ch,
		pool:     pool,
		registry: registry,
	}

	if !cfg.Node.NoNetwork {
		p2pNode := p2p.New(p2p.Config{
			ListenAddr: "0.0.0.0",
			Port:       cfg.Node.NetworkPort,
			Seeds:      append(append([]string{}, cfg.Peers.BootstrapNodes...), cfg.Peers.DNSSeeds...),
			MaxPeers:   cfg.Peers.MaxPeers,
			NetworkID:  genesis.ChainID,
			Secret:     []byte(cfg.Peers.Secret),
			DB:         db,
		}, ch, genesisHash)

		p2pNode.SetTxHandler(n.handlePeerTx)
		p2pNode.SetBlockHandler(n.handlePeerBlock)
		n.p2pNode = p2pNode
	} else {
		logger.Warn().Msg("networking disabled; node will run offline")
	}

	if cfg.Mining.Enabled {
		coinbase, err := types.ParseAddress(cfg.Mining.Coinbase)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("node: invalid mining coinbase address: %w", err)
		}
		n.m = miner.New(ch, pool, coinbase)
	}

	if cfg.Node.RPCPort != 0 {
		n.rpcSrv = rpc.New(fmt.Sprintf("127.0.0.1:%d", cfg.Node.RPCPort), ch, pool, n.p2pNode, n.m, genesis, registry)
	}

	return n, nil
}

// Start launches the node's background work: P2P listener, optional
// metrics endpoint, optional RPC server, optional continuous mining.
func (n *Node) Start() error {
	n.ctx, n.cancel = context.WithCancel(context.Background())

	if n.p2pNode != nil {
		if err := n.p2pNode.Start(); err != nil {
			return fmt.Errorf("node: start p2p: %w", err)
		}
		n.logger.Info().Int("port", n.cfg.Node.NetworkPort).Msg("p2p listening")
	}

	if n.rpcSrv != nil {
		if err := n.rpcSrv.Start(); err != nil {
			return fmt.Errorf("node: start rpc: %w", err)
		}
		n.logger.Info().Str("addr", n.rpcSrv.Addr()).Msg("rpc listening")
	}

	if n.cfg.Metrics.Enabled {
		addr := fmt.Sprintf("127.0.0.1:%d", n.cfg.Metrics.Port)
		srv := newMetricsServer(addr, n.registry)
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			srv.run(n.ctx)
		}()
		n.logger.Info().Str("addr", addr).Msg("metrics listening")
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.runStatsLoop()
	}()

	if n.m != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.m.Run(n.ctx)
		}()
		n.logger.Info().Msg("mining enabled")
	}

	return nil
}

// Stop shuts the node down in reverse dependency order, waiting for all
// background goroutines before closing storage.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()

	if n.rpcSrv != nil {
		n.rpcSrv.Stop()
	}
	if n.p2pNode != nil {
		n.p2pNode.Stop()
	}
	if n.db != nil {
		n.db.Close()
	}
	n.logger.Info().Msg("node stopped")
}

// Height returns the current chain tip height.
func (n *Node) Height() uint64 { return n.ch.Height() }

// Chain exposes the underlying chain for callers embedding the node
// (a CLI harness or the RPC server's own tests).
func (n *Node) Chain() *chain.Chain { return n.ch }

// Mempool exposes the underlying pool.
func (n *Node) Mempool() *mempool.Pool { return n.pool }

func (n *Node) handlePeerTx(p *p2p.Peer, msg p2p.NewTxMessage) {
	if msg.Transaction == nil {
		return
	}
	if err := n.pool.Add(msg.Transaction); err != nil {
		n.logger.Debug().Err(err).Str("peer", p.Addr).Msg("rejected peer transaction")
		n.registry.TxRejected.Inc()
		return
	}
	n.registry.TxSubmitted.Inc()
}

func (n *Node) handlePeerBlock(p *p2p.Peer, msg p2p.NewBlockMessage) {
	if msg.Block == nil {
		return
	}
	if err := n.ch.ProcessBlock(msg.Block); err != nil {
		n.logger.Debug().Err(err).Str("peer", p.Addr).Uint64("height", msg.Block.Header.Index).Msg("rejected peer block")
		n.registry.BlocksRejected.Inc()
		return
	}
	n.pool.RemoveMined(msg.Block.Transactions)
}

func (n *Node) runStatsLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			state := n.ch.State()
			n.registry.ChainHeight.Set(float64(state.Height))
			if blk, err := n.ch.GetBlock(state.Height); err == nil {
				n.registry.ChainDifficulty.Set(float64(blk.Header.Difficulty))
			}
			n.registry.MempoolSize.Set(float64(n.pool.Count()))
			if n.p2pNode != nil {
				n.registry.PeerCount.Set(float64(n.p2pNode.PeerCount()))
			}
		}
	}
}
