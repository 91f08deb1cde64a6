package merkle

import (
	"testing"

	"github.com/qchain-project/qchain/pkg/crypto"
	"github.com/qchain-project/qchain/pkg/types"
)

func leafHashes(words ...string) []types.Hash {
	out := make([]types.Hash, len(words))
	for i, w := range words {
		out[i] = crypto.Hash([]byte(w))
	}
	return out
}

func TestRootEmpty(t *testing.T) {
	if Root(nil) != (types.Hash{}) {
		t.Error("empty leaf set should produce the zero hash")
	}
}

func TestRootSingle(t *testing.T) {
	leaves := leafHashes("a")
	if Root(leaves) != leaves[0] {
		t.Error("single-leaf root should equal the leaf itself")
	}
}

func TestRootReproducible(t *testing.T) {
	leaves := leafHashes("a", "b", "c", "d", "e")
	r1 := Root(leaves)
	r2 := Root(leaves)
	if r1 != r2 {
		t.Fatal("two constructions from the same leaves must be byte-identical")
	}
}

func TestRootOddDuplicatesLast(t *testing.T) {
	leaves := leafHashes("a", "b", "c")
	withDup := leafHashes("a", "b", "c", "c")
	if Root(leaves) != Root(withDup) {
		t.Error("odd-length level should duplicate the last node")
	}
}

func TestProofVerify(t *testing.T) {
	leaves := leafHashes("a", "b", "c", "d", "e", "f", "g")
	root := Root(leaves)
	for i := range leaves {
		proof, err := Proof(leaves, i)
		if err != nil {
			t.Fatalf("Proof(%d) error: %v", i, err)
		}
		if !VerifyProof(leaves[i], proof, root) {
			t.Errorf("proof for leaf %d did not verify", i)
		}
	}
}

func TestProofRejectsWrongLeaf(t *testing.T) {
	leaves := leafHashes("a", "b", "c", "d")
	root := Root(leaves)
	proof, err := Proof(leaves, 1)
	if err != nil {
		t.Fatalf("Proof error: %v", err)
	}
	if VerifyProof(crypto.Hash([]byte("not-in-tree")), proof, root) {
		t.Error("proof should not verify against a different leaf")
	}
}

func TestProofIndexOutOfRange(t *testing.T) {
	leaves := leafHashes("a", "b")
	if _, err := Proof(leaves, 5); err == nil {
		t.Error("expected error for out-of-range index")
	}
}
