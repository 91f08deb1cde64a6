package consensus

import "github.com/qchain-project/qchain/pkg/params"

// BlockReward computes the block subsidy at height under the
// annual-reduction schedule: the year-one reward shrinks
// by params.AnnualReduction every params.BlocksPerYear blocks, floored at
// params.MinReward.
func BlockReward(height uint64) uint64 {
	years := height / params.BlocksPerYear
	reward := float64(params.Y1Reward)
	for i := uint64(0); i < years; i++ {
		reward *= 1 - params.AnnualReduction
	}
	r := uint64(reward)
	if r < params.MinReward {
		r = params.MinReward
	}
	return r
}

// splitTreasuryShare divides the block subsidy between the miner and the
// automatic treasury allocation.
func splitTreasuryShare(subsidy uint64) (minerShare, treasuryShare uint64) {
	treasuryShare = subsidy * params.TreasuryAllocPct / 100
	minerShare = subsidy - treasuryShare
	return minerShare, treasuryShare
}

// splitLocked divides a miner's subsidy share into the portion that is
// immediately spendable and the portion that enters locked_balance until
// params.LockBlocks after the block's height.
func splitLocked(minerShare uint64) (liquid, locked uint64) {
	locked = minerShare * params.LockPct / 100
	liquid = minerShare - locked
	return liquid, locked
}

// SplitFees divides the fees collected from a block's transactions between
// burn, the treasury, and the miner, per params.Fee* percentages.
func SplitFees(totalFees uint64) (burn, treasury, validator uint64) {
	burn = totalFees * params.FeeBurnPct / 100
	treasury = totalFees * params.FeeTreasuryPct / 100
	validator = totalFees - burn - treasury
	return burn, treasury, validator
}

// Allocation is the full payout breakdown for a mined block.
type Allocation struct {
	MinerLiquid    uint64 // credited directly to the miner's spendable balance
	MinerLocked    uint64 // credited to the miner's locked_balance
	UnlockHeight   uint64 // height at which MinerLocked becomes spendable
	TreasuryAmount uint64 // credited to the treasury account
	BurnAmount     uint64 // removed from circulation entirely
}

// ComputeAllocation works out how to distribute a block's subsidy and
// collected fees, applying the reward schedule and fee split together. Fee
// income is never locked — only newly-issued subsidy coins are, since fees
// already circulated.
func ComputeAllocation(height uint64, totalFees uint64) Allocation {
	subsidy := BlockReward(height)
	minerSubsidy, treasurySubsidy := splitTreasuryShare(subsidy)
	liquidSubsidy, lockedSubsidy := splitLocked(minerSubsidy)

	feeBurn, feeTreasury, feeMiner := SplitFees(totalFees)

	return Allocation{
		MinerLiquid:    liquidSubsidy + feeMiner,
		MinerLocked:    lockedSubsidy,
		UnlockHeight:   height + params.LockBlocks,
		TreasuryAmount: treasurySubsidy + feeTreasury,
		BurnAmount:     feeBurn,
	}
}
