package rpcclient

import (
	"testing"

	"github.com/qchain-project/qchain/config"
	"github.com/qchain-project/qchain/internal/chain"
	"github.com/qchain-project/qchain/internal/consensus"
	"github.com/qchain-project/qchain/internal/mempool"
	"github.com/qchain-project/qchain/internal/metrics"
	"github.com/qchain-project/qchain/internal/rpc"
	"github.com/qchain-project/qchain/internal/storage"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	db := storage.NewMemory()
	engine, err := consensus.NewPoW(1)
	if err != nil {
		t.Fatalf("new pow: %v", err)
	}
	ch, err := chain.New(db, engine, consensus.Checkpoints{})
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	gen := &config.Genesis{
		ChainID:   "qchain-test-1",
		ChainName: "Test",
		Timestamp: 1700000000,
		Alloc: map[string]uint64{
			"0x1111111111111111111111111111111111111111": 1_000_000,
		},
	}
	if err := ch.InitFromGenesis(gen); err != nil {
		t.Fatalf("init from genesis: %v", err)
	}
	pool := mempool.New(ch, 0, func() int64 { return 1700000100 })
	registry := metrics.NewRegistry()

	s := rpc.New("127.0.0.1:0", ch, pool, nil, nil, gen, registry)
	if err := s.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { s.Stop() })

	return New("http://" + s.Addr() + "/")
}

func TestCallNodeStatus(t *testing.T) {
	c := testClient(t)
	var res rpc.NodeStatusResult
	if err := c.Call("node_status", nil, &res); err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.ChainID != "qchain-test-1" {
		t.Errorf("chain id: got %q", res.ChainID)
	}
}

func TestCallGetBalance(t *testing.T) {
	c := testClient(t)
	var res rpc.BalanceResult
	params := rpc.AddressParam{Address: "0x1111111111111111111111111111111111111111"}
	if err := c.Call("get_balance", params, &res); err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.Balance != 1_000_000 {
		t.Errorf("balance: got %d, want 1000000", res.Balance)
	}
}

func TestCallUnknownMethodReturnsRPCError(t *testing.T) {
	c := testClient(t)
	err := c.Call("not_a_real_method", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("expected *RPCError, got %T", err)
	}
	if rpcErr.Code != rpc.CodeMethodNotFound {
		t.Errorf("code: got %d", rpcErr.Code)
	}
}
