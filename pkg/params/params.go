// Package params holds the frozen genesis-time protocol constants. These
// are consensus rules: every node must agree on
// them bit-for-bit, so they live here as untyped constants rather than in
// any runtime config file.
package params

import "time"

const (
	// TargetBlockSecs is the target spacing between blocks.
	TargetBlockSecs = 10
	// RetargetInterval is the number of blocks between difficulty
	// recalculations.
	RetargetInterval = 10
	// InitialDifficulty is the genesis block's difficulty (leading zero
	// hex nibbles required of a valid block hash).
	InitialDifficulty = 4
	// MinDifficulty and MaxDifficulty bound every retarget.
	MinDifficulty = 4
	MaxDifficulty = 32
	// CoinbaseMaturity is the number of confirmations before a coinbase
	// output is spendable.
	CoinbaseMaturity = 100
	// MaxMempoolSize is the maximum number of transactions the mempool holds.
	MaxMempoolSize = 5000
	// MaxBlockTxs is the maximum number of transactions (excluding the
	// coinbase) a block may carry.
	MaxBlockTxs = 2000
	// MaxBlockSizeBytes is the maximum serialized size of a block.
	MaxBlockSizeBytes = 1048576
	// MaxTxSizeBytes is the maximum serialized size of a single transaction.
	MaxTxSizeBytes = 102400
	// MinFee is the minimum fee the mempool accepts.
	MinFee = 100
	// ExpirySecs is how long an unconfirmed transaction stays in the
	// mempool before it is evicted as expired.
	ExpirySecs = 86400

	// Reward schedule (annual-reduction variant).
	Y1Reward        = 50_000_000
	AnnualReduction = 0.08
	BlocksPerYear   = 3_153_600
	MinReward       = 1_000_000

	// Fee and reward distribution split.
	TreasuryAllocPct = 10
	LockPct          = 40
	LockBlocks       = 50_000
	FeeBurnPct       = 10
	FeeTreasuryPct   = 20
	FeeValidatorPct  = 70
)

// ExpiryDuration is ExpirySecs as a time.Duration, for mempool timers.
const ExpiryDuration = ExpirySecs * time.Second
