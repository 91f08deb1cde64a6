// Package crypto provides cryptographic primitives for qchain: SHA3-256
// hashing, post-quantum signatures, and the HMAC primitive the P2P layer
// authenticates its frames with.
package crypto

import (
	"encoding/hex"

	"github.com/qchain-project/qchain/pkg/types"
	"golang.org/x/crypto/sha3"
)

// Hash computes a SHA3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return types.Hash(sha3.Sum256(data))
}

// DoubleHash computes Hash(Hash(data)) and returns it as a 64-character hex
// string, the representation block hashing uses.
func DoubleHash(data []byte) string {
	first := Hash(data)
	second := Hash(first[:])
	return hex.EncodeToString(second[:])
}

// AddressFromPubKey derives an address from a public key.
// address = "0x" + hex(first 20 bytes of SHA3-256(public_key)).
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var raw [types.AddressSize]byte
	copy(raw[:], h[:types.AddressSize])
	return types.RawAddress(raw)
}

// HashConcat hashes the raw 32-byte concatenation of two digests — never
// their hex strings. Used by the merkle tree.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}
