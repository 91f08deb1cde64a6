package storage

import (
	"encoding/binary"
	"fmt"
)

// Key layout:
//
//	block:<u64 big-endian height>  -> serialized block
//	chain_height                   -> u64 big-endian, the current tip height
//	account:<address>              -> serialized AccountBalance
//	contract:<address>             -> serialized contract state
//
// Heights are encoded big-endian so lexicographic key order matches
// numeric order, letting ForEach("block:") walk the chain in height order.
var keyChainHeight = []byte("chain_height")

const (
	blockPrefix    = "block:"
	accountPrefix  = "account:"
	contractPrefix = "contract:"
	peerPrefix     = "peer:"
	banPrefix      = "ban:"
)

// BlockKey returns the storage key for the block at the given height.
func BlockKey(height uint64) []byte {
	key := make([]byte, len(blockPrefix)+8)
	copy(key, blockPrefix)
	binary.BigEndian.PutUint64(key[len(blockPrefix):], height)
	return key
}

// BlockPrefix returns the prefix under which every block key sorts, for
// ForEach-based chain scans.
func BlockPrefix() []byte {
	return []byte(blockPrefix)
}

// ChainHeightKey returns the storage key holding the current tip height.
func ChainHeightKey() []byte {
	return keyChainHeight
}

// AccountKey returns the storage key for a single account's balance record.
func AccountKey(address string) []byte {
	return []byte(fmt.Sprintf("%s%s", accountPrefix, address))
}

// AccountPrefix returns the prefix under which every account key sorts, for
// ForEach-based full-state scans (snapshot rebuild, state export).
func AccountPrefix() []byte {
	return []byte(accountPrefix)
}

// AddressFromAccountKey recovers the address suffix from an account key
// produced by AccountKey, as ForEach callbacks receive raw keys.
func AddressFromAccountKey(key []byte) string {
	return string(key[len(accountPrefix):])
}

// ContractKey returns the storage key for a deployed contract's state.
func ContractKey(address string) []byte {
	return []byte(fmt.Sprintf("%s%s", contractPrefix, address))
}

// PeerKey returns the storage key for a persisted peer record, keyed by its
// dial address: a plain host:port string is the peer identity.
func PeerKey(addr string) []byte {
	return []byte(peerPrefix + addr)
}

// PeerPrefix returns the prefix under which every peer key sorts.
func PeerPrefix() []byte {
	return []byte(peerPrefix)
}

// BanKey returns the storage key for a persisted ban record.
func BanKey(addr string) []byte {
	return []byte(banPrefix + addr)
}

// BanPrefix returns the prefix under which every ban key sorts.
func BanPrefix() []byte {
	return []byte(banPrefix)
}

// EncodeUint64 and DecodeUint64 are the big-endian encoding ChainHeightKey's
// value uses.
func EncodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func DecodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("storage: expected 8-byte uint64, got %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
