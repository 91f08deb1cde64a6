// qchain-cli is a command-line client for interacting with a qchaind node
// over its JSON-RPC 2.0 surface.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/qchain-project/qchain/internal/rpc"
	"github.com/qchain-project/qchain/internal/rpcclient"
	"github.com/spf13/cobra"
)

func main() {
	var rpcURL string

	root := &cobra.Command{
		Use:          "qchain-cli",
		Short:        "command-line client for a qchain node",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&rpcURL, "rpc", "http://127.0.0.1:8545", "node RPC endpoint")

	client := func() *rpcclient.Client { return rpcclient.New(rpcURL) }

	root.AddCommand(
		statusCmd(client),
		statsCmd(client),
		balanceCmd(client),
		blockCmd(client),
		txCmd(client),
		submitTxCmd(client),
		mempoolCmd(client),
		peersCmd(client),
		startMiningCmd(client),
		stopMiningCmd(client),
		miningStatusCmd(client),
		merkleProofCmd(client),
		contractCodeCmd(client),
		shutdownCmd(client),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func printResult(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func statusCmd(client func() *rpcclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show node status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var res rpc.NodeStatusResult
			if err := client().Call("node_status", nil, &res); err != nil {
				return err
			}
			return printResult(res)
		},
	}
}

func statsCmd(client func() *rpcclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "show chain statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var res rpc.StatsResult
			if err := client().Call("get_stats", nil, &res); err != nil {
				return err
			}
			return printResult(res)
		},
	}
}

func balanceCmd(client func() *rpcclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address>",
		Short: "show an account's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res rpc.BalanceResult
			params := rpc.AddressParam{Address: args[0]}
			if err := client().Call("get_balance", params, &res); err != nil {
				return err
			}
			return printResult(res)
		},
	}
}

func blockCmd(client func() *rpcclient.Client) *cobra.Command {
	var height uint64
	cmd := &cobra.Command{
		Use:   "block",
		Short: "fetch a block by height",
		RunE: func(cmd *cobra.Command, args []string) error {
			var res rpc.BlockResult
			params := rpc.HeightParam{Height: height}
			if err := client().Call("get_block", params, &res); err != nil {
				return err
			}
			return printResult(res)
		},
	}
	cmd.Flags().Uint64Var(&height, "height", 0, "block height")
	return cmd
}

func txCmd(client func() *rpcclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "tx <hash>",
		Short: "fetch a transaction by hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res map[string]interface{}
			params := rpc.HashParam{Hash: args[0]}
			if err := client().Call("get_transaction", params, &res); err != nil {
				return err
			}
			return printResult(res)
		},
	}
}

func submitTxCmd(client func() *rpcclient.Client) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "submit-tx",
		Short: "submit a signed transaction (JSON, from --file or stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			var err error
			if file != "" {
				raw, err = os.ReadFile(file)
			} else {
				raw, err = readAllStdin()
			}
			if err != nil {
				return fmt.Errorf("read transaction: %w", err)
			}

			var param rpc.TxSubmitParam
			if err := json.Unmarshal(raw, &param.Transaction); err != nil {
				return fmt.Errorf("decode transaction: %w", err)
			}

			var res rpc.TxSubmitResult
			if err := client().Call("submit_transaction", param, &res); err != nil {
				return err
			}
			return printResult(res)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a JSON-encoded transaction")
	return cmd
}

func mempoolCmd(client func() *rpcclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "mempool",
		Short: "list pending transaction hashes",
		RunE: func(cmd *cobra.Command, args []string) error {
			var res rpc.MempoolResult
			if err := client().Call("get_mempool", nil, &res); err != nil {
				return err
			}
			return printResult(res)
		},
	}
}

func peersCmd(client func() *rpcclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "list connected peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			var res rpc.PeersResult
			if err := client().Call("get_peers", nil, &res); err != nil {
				return err
			}
			return printResult(res)
		},
	}
}

func startMiningCmd(client func() *rpcclient.Client) *cobra.Command {
	var coinbase string
	cmd := &cobra.Command{
		Use:   "start-mining",
		Short: "start continuous block production",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := rpc.StartMiningParam{Coinbase: coinbase}
			var res rpc.MiningStatusResult
			if err := client().Call("start_mining", params, &res); err != nil {
				return err
			}
			return printResult(res)
		},
	}
	cmd.Flags().StringVar(&coinbase, "coinbase", "", "override the configured coinbase address")
	return cmd
}

func stopMiningCmd(client func() *rpcclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "stop-mining",
		Short: "stop block production",
		RunE: func(cmd *cobra.Command, args []string) error {
			var res rpc.MiningStatusResult
			if err := client().Call("stop_mining", nil, &res); err != nil {
				return err
			}
			return printResult(res)
		},
	}
}

func miningStatusCmd(client func() *rpcclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "mining-status",
		Short: "show whether block production is active",
		RunE: func(cmd *cobra.Command, args []string) error {
			var res rpc.MiningStatusResult
			if err := client().Call("mining_status", nil, &res); err != nil {
				return err
			}
			return printResult(res)
		},
	}
}

func merkleProofCmd(client func() *rpcclient.Client) *cobra.Command {
	var height uint64
	var txHash string
	cmd := &cobra.Command{
		Use:   "merkle-proof",
		Short: "fetch an inclusion proof for a transaction in a block",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := rpc.MerkleProofParam{Height: height, TxHash: txHash}
			var res rpc.MerkleProofResult
			if err := client().Call("get_merkle_proof", params, &res); err != nil {
				return err
			}
			return printResult(res)
		},
	}
	cmd.Flags().Uint64Var(&height, "height", 0, "block height")
	cmd.Flags().StringVar(&txHash, "tx", "", "transaction hash")
	return cmd
}

func contractCodeCmd(client func() *rpcclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "contract-code <address>",
		Short: "fetch deployed contract code for an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := rpc.ContractCodeParam{Address: args[0]}
			var res rpc.ContractCodeResult
			if err := client().Call("get_contract_code", params, &res); err != nil {
				return err
			}
			return printResult(res)
		},
	}
}

func shutdownCmd(client func() *rpcclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "request the node shut down gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().Call("shutdown", nil, nil)
		},
	}
}

func readAllStdin() ([]byte, error) {
	info, err := os.Stdin.Stat()
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return nil, fmt.Errorf("no --file given and stdin is a terminal")
	}
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}
