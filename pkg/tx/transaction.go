// Package tx defines the transaction type and its canonical encoding.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/qchain-project/qchain/pkg/crypto"
	"github.com/qchain-project/qchain/pkg/types"
)

// PayloadKind discriminates a transaction's payload variant.
type PayloadKind uint8

const (
	Transfer PayloadKind = iota
	DeployContract
	CallContract
)

func (k PayloadKind) String() string {
	switch k {
	case Transfer:
		return "transfer"
	case DeployContract:
		return "deploy_contract"
	case CallContract:
		return "call_contract"
	default:
		return "unknown"
	}
}

// Payload carries the variant-specific fields. Exactly the fields relevant
// to Kind are meaningful; the rest are zero-valued.
type Payload struct {
	Kind PayloadKind `json:"kind"`

	// DeployContract
	Code []byte `json:"code,omitempty"`

	// CallContract
	Contract types.Address `json:"contract,omitempty"`
	Function string        `json:"function,omitempty"`
	Args     []byte        `json:"args,omitempty"`
}

// Transaction is the single sender/recipient record this ledger uses. Coinbase and
// treasury transactions use the reserved sender strings
// types.CoinbaseSender / types.TreasurySender, carry an empty signature and
// public key, and are authorized by block rules rather than a signature.
type Transaction struct {
	Sender    types.Address `json:"sender"`
	Recipient types.Address `json:"recipient"`
	Amount    uint64        `json:"amount"`
	Timestamp int64         `json:"timestamp"`
	Fee       uint64        `json:"fee"`
	Nonce     uint64        `json:"nonce"`
	PublicKey []byte        `json:"public_key"`
	Signature []byte        `json:"signature"`
	Payload   Payload       `json:"payload"`
}

// txJSON mirrors Transaction but renders byte slices as hex, matching the
// teacher's custom-marshal-binary-fields convention.
type txJSON struct {
	Sender    types.Address `json:"sender"`
	Recipient types.Address `json:"recipient"`
	Amount    uint64        `json:"amount"`
	Timestamp int64         `json:"timestamp"`
	Fee       uint64        `json:"fee"`
	Nonce     uint64        `json:"nonce"`
	PublicKey string        `json:"public_key"`
	Signature string        `json:"signature"`
	Payload   Payload       `json:"payload"`
}

func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(txJSON{
		Sender:    t.Sender,
		Recipient: t.Recipient,
		Amount:    t.Amount,
		Timestamp: t.Timestamp,
		Fee:       t.Fee,
		Nonce:     t.Nonce,
		PublicKey: hex.EncodeToString(t.PublicKey),
		Signature: hex.EncodeToString(t.Signature),
		Payload:   t.Payload,
	})
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	var aux txJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	pub, err := hex.DecodeString(aux.PublicKey)
	if err != nil {
		return fmt.Errorf("invalid public_key hex: %w", err)
	}
	sig, err := hex.DecodeString(aux.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	t.Sender = aux.Sender
	t.Recipient = aux.Recipient
	t.Amount = aux.Amount
	t.Timestamp = aux.Timestamp
	t.Fee = aux.Fee
	t.Nonce = aux.Nonce
	t.PublicKey = pub
	t.Signature = sig
	t.Payload = aux.Payload
	return nil
}

// SigningBytes produces the canonical byte encoding hashed by Hash(), and
// therefore the bytes signed:
//
//	sender || 0x00 || recipient || 0x00 || u64-LE(amount) ||
//	i64-LE(timestamp) || u64-LE(fee) || u64-LE(nonce) || public_key ||
//	variant-discriminant || variant-bytes
//
// variant-bytes is empty for Transfer, the code for DeployContract, and
// contract || 0x00 || function || 0x00 || args for CallContract.
// The signature is never part of this encoding.
func (t *Transaction) SigningBytes() []byte {
	buf := make([]byte, 0, 128+len(t.PublicKey)+len(t.Payload.Code)+len(t.Payload.Args))
	buf = append(buf, []byte(t.Sender)...)
	buf = append(buf, 0) // field separator, avoids sender/recipient concatenation ambiguity
	buf = append(buf, []byte(t.Recipient)...)
	buf = append(buf, 0)

	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], t.Amount)
	buf = append(buf, scratch[:]...)
	binary.LittleEndian.PutUint64(scratch[:], uint64(t.Timestamp))
	buf = append(buf, scratch[:]...)
	binary.LittleEndian.PutUint64(scratch[:], t.Fee)
	buf = append(buf, scratch[:]...)
	binary.LittleEndian.PutUint64(scratch[:], t.Nonce)
	buf = append(buf, scratch[:]...)

	buf = append(buf, t.PublicKey...)
	buf = append(buf, byte(t.Payload.Kind))

	switch t.Payload.Kind {
	case DeployContract:
		buf = append(buf, t.Payload.Code...)
	case CallContract:
		buf = append(buf, []byte(t.Payload.Contract)...)
		buf = append(buf, 0)
		buf = append(buf, []byte(t.Payload.Function)...)
		buf = append(buf, 0)
		buf = append(buf, t.Payload.Args...)
	}
	return buf
}

// Hash is the SHA3-256 digest of SigningBytes. It excludes the signature.
func (t *Transaction) Hash() types.Hash {
	return crypto.Hash(t.SigningBytes())
}

// IsCoinbase reports whether t is the block's reward-creating transaction.
func (t *Transaction) IsCoinbase() bool {
	return t.Sender == types.CoinbaseSender
}

// IsTreasury reports whether t is the automatic treasury allocation.
func (t *Transaction) IsTreasury() bool {
	return t.Sender == types.TreasurySender
}

// SerializedSize returns the byte length used for block-size and
// mempool-size accounting: the JSON encoding, the self-describing
// persisted form this ledger uses on the wire and on disk.
func (t *Transaction) SerializedSize() (int, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return 0, fmt.Errorf("serialize tx: %w", err)
	}
	return len(b), nil
}
