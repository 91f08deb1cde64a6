package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressSize is the length of a raw address in bytes.
const AddressSize = 20

// Reserved sender/recipient strings with consensus meaning.
const (
	// CoinbaseSender marks a block's reward-creating transaction.
	CoinbaseSender = "COINBASE"
	// TreasurySender is the treasury's account address; block application
	// credits the treasury allocation to it directly.
	TreasurySender = "TREASURY"
)

// Address is the canonical textual account identifier: "0x" followed by the
// lowercase hex encoding of the first 20 bytes of SHA3-256(public_key). The
// two reserved literals CoinbaseSender and TreasurySender are also valid
// Address values and are exempt from the public-key-derivation check.
type Address string

// RawAddress derives the canonical Address string from a 20-byte digest.
func RawAddress(b [AddressSize]byte) Address {
	return Address("0x" + hex.EncodeToString(b[:]))
}

// IsReserved reports whether a is one of the protocol-reserved senders.
func (a Address) IsReserved() bool {
	return a == CoinbaseSender || a == TreasurySender
}

// IsZero reports whether a is the empty address.
func (a Address) IsZero() bool {
	return a == ""
}

// String returns the address as-is; Address already carries its canonical
// textual form.
func (a Address) String() string {
	return string(a)
}

// Bytes decodes the 20-byte payload of a non-reserved address. Reserved
// addresses have no byte form and return an error.
func (a Address) Bytes() ([]byte, error) {
	if a.IsReserved() {
		return nil, fmt.Errorf("address %q is reserved, has no byte form", a)
	}
	s := strings.TrimPrefix(string(a), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid address hex: %w", err)
	}
	if len(b) != AddressSize {
		return nil, fmt.Errorf("address must decode to %d bytes, got %d", AddressSize, len(b))
	}
	return b, nil
}

// ParseAddress validates and normalizes an address string: it must be either
// a reserved literal or "0x" followed by exactly 40 hex characters.
func ParseAddress(s string) (Address, error) {
	if s == CoinbaseSender || s == TreasurySender {
		return Address(s), nil
	}
	if !strings.HasPrefix(s, "0x") {
		return "", fmt.Errorf("address must start with 0x: %q", s)
	}
	hexPart := s[2:]
	if len(hexPart) != AddressSize*2 {
		return "", fmt.Errorf("address must be %d hex chars after 0x, got %d", AddressSize*2, len(hexPart))
	}
	if _, err := hex.DecodeString(hexPart); err != nil {
		return "", fmt.Errorf("invalid address hex: %w", err)
	}
	return Address(strings.ToLower(s)), nil
}
