package crypto

import (
	"testing"

	"github.com/qchain-project/qchain/pkg/types"
)

func TestHashDeterministic(t *testing.T) {
	a := Hash([]byte("qchain"))
	b := Hash([]byte("qchain"))
	if a != b {
		t.Fatalf("Hash is not deterministic: %x != %x", a, b)
	}
	if Hash([]byte("qchain")) == Hash([]byte("qchain2")) {
		t.Fatal("different inputs produced the same hash")
	}
}

func TestDoubleHashIsHexOfDoubleApplication(t *testing.T) {
	data := []byte("block-payload")
	first := Hash(data)
	second := Hash(first[:])
	if DoubleHash(data) != second.String() {
		t.Fatalf("DoubleHash mismatch: got %s want %s", DoubleHash(data), second.String())
	}
}

func TestAddressFromPubKeyIsFirst20BytesOfHash(t *testing.T) {
	pub := []byte("a-fake-public-key-for-testing")
	addr := AddressFromPubKey(pub)
	h := Hash(pub)
	var raw [types.AddressSize]byte
	copy(raw[:], h[:types.AddressSize])
	want := types.RawAddress(raw)
	if addr != want {
		t.Fatalf("AddressFromPubKey = %s, want %s", addr, want)
	}
}

func TestHashConcatOrderMatters(t *testing.T) {
	a := Hash([]byte("left"))
	b := Hash([]byte("right"))
	if HashConcat(a, b) == HashConcat(b, a) {
		t.Fatal("HashConcat should not be commutative")
	}
}
