// Package merkle builds the binary hash tree over transaction hashes and
// produces/verifies inclusion proofs.
package merkle

import (
	"github.com/qchain-project/qchain/pkg/crypto"
	"github.com/qchain-project/qchain/pkg/types"
)

// Root computes the merkle root of a sequence of leaf hashes.
//
//   - 0 leaves: the zero hash.
//   - 1 leaf: that leaf.
//   - otherwise: pairwise HashConcat, duplicating the last node at any odd
//     level, recursing until one hash remains.
//
// Two constructions from the same leaves always yield byte-identical roots.
func Root(leaves []types.Hash) types.Hash {
	if len(leaves) == 0 {
		return types.Hash{}
	}
	if len(leaves) == 1 {
		return leaves[0]
	}

	level := make([]types.Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = crypto.HashConcat(level[i], level[i+1])
		}
		level = next
	}
	return level[0]
}

// ProofStep is one sibling hash on the path from a leaf to the root.
type ProofStep struct {
	Sibling types.Hash
	// IsLeft is true when Sibling is the left operand of the pairing
	// (i.e. the proven node was the right operand).
	IsLeft bool
}

// Proof returns the bottom-up sibling path for leaves[index].
func Proof(leaves []types.Hash, index int) ([]ProofStep, error) {
	if index < 0 || index >= len(leaves) {
		return nil, errIndexRange(index, len(leaves))
	}
	if len(leaves) <= 1 {
		return nil, nil
	}

	level := make([]types.Hash, len(leaves))
	copy(level, leaves)
	idx := index

	var steps []ProofStep
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		var sibIdx int
		var step ProofStep
		if idx%2 == 0 {
			sibIdx = idx + 1
			step = ProofStep{Sibling: level[sibIdx], IsLeft: false}
		} else {
			sibIdx = idx - 1
			step = ProofStep{Sibling: level[sibIdx], IsLeft: true}
		}
		steps = append(steps, step)

		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = crypto.HashConcat(level[i], level[i+1])
		}
		level = next
		idx /= 2
	}
	return steps, nil
}

// VerifyProof reconstructs the root from a leaf hash and its proof path and
// compares it against the expected root.
func VerifyProof(leafHash types.Hash, proof []ProofStep, root types.Hash) bool {
	h := leafHash
	for _, step := range proof {
		if step.IsLeft {
			h = crypto.HashConcat(step.Sibling, h)
		} else {
			h = crypto.HashConcat(h, step.Sibling)
		}
	}
	return h == root
}

type indexRangeError struct {
	index, len int
}

func (e indexRangeError) Error() string {
	return "merkle: index out of range"
}

func errIndexRange(index, length int) error {
	return indexRangeError{index, length}
}
