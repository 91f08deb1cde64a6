package tx

import (
	"errors"
	"fmt"

	"github.com/qchain-project/qchain/pkg/crypto"
	"github.com/qchain-project/qchain/pkg/types"
)

// Structural/signature validation errors.
var (
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrSenderKeyMismatch  = errors.New("sender does not derive from public_key")
	ErrMissingPubKey      = errors.New("missing public key")
	ErrMissingSignature   = errors.New("missing signature")
	ErrTransactionTooLarge = errors.New("transaction too large")
	ErrInvalidPayload     = errors.New("invalid payload for transaction kind")
	ErrZeroAmount         = errors.New("transfer amount and fee are both zero")
)

// Validate checks self-contained structural rules: it does not require
// access to account state (that is the mempool's and the consensus
// engine's job). Coinbase and treasury transactions skip the
// signature-related checks, since they are authorized by block position,
// not by a signature.
func (t *Transaction) Validate(maxTxSize int) error {
	if t.IsCoinbase() || t.IsTreasury() {
		if len(t.Signature) != 0 || len(t.PublicKey) != 0 {
			return fmt.Errorf("%w: reserved sender must have empty signature and public key", ErrInvalidPayload)
		}
	} else {
		if len(t.PublicKey) == 0 {
			return ErrMissingPubKey
		}
		if len(t.Signature) == 0 {
			return ErrMissingSignature
		}
		wantSender := crypto.AddressFromPubKey(t.PublicKey)
		if t.Sender != wantSender {
			return fmt.Errorf("%w: sender %s, derived %s", ErrSenderKeyMismatch, t.Sender, wantSender)
		}
		if t.Amount == 0 && t.Fee == 0 {
			return ErrZeroAmount
		}
	}

	switch t.Payload.Kind {
	case Transfer:
		if len(t.Payload.Code) != 0 || len(t.Payload.Args) != 0 {
			return fmt.Errorf("%w: transfer carries no extra data", ErrInvalidPayload)
		}
	case DeployContract:
		if len(t.Payload.Code) == 0 {
			return fmt.Errorf("%w: deploy_contract requires code", ErrInvalidPayload)
		}
	case CallContract:
		if t.Payload.Contract.IsZero() || t.Payload.Function == "" {
			return fmt.Errorf("%w: call_contract requires a contract address and function", ErrInvalidPayload)
		}
	default:
		return fmt.Errorf("%w: unknown payload kind %d", ErrInvalidPayload, t.Payload.Kind)
	}

	size, err := t.SerializedSize()
	if err != nil {
		return err
	}
	if maxTxSize > 0 && size > maxTxSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrTransactionTooLarge, size, maxTxSize)
	}
	return nil
}

// VerifySignature checks the signature over hash(t) against t.PublicKey.
// Coinbase and treasury transactions are always considered valid here —
// they are authorized by block rules, not by a signature.
func (t *Transaction) VerifySignature() error {
	if t.IsCoinbase() || t.IsTreasury() {
		return nil
	}
	hash := t.Hash()
	if !crypto.VerifySignature(hash[:], t.Signature, t.PublicKey) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyFull checks both structural rules and the signature. This is the
// check the mempool and block validator perform before any state-dependent
// check (nonce, balance) runs.
func (t *Transaction) VerifyFull(maxTxSize int) error {
	if err := t.Validate(maxTxSize); err != nil {
		return err
	}
	return t.VerifySignature()
}

// DerivedSender returns the address a public key derives to, for callers
// that need to check sender-binds-public-key without going through
// Validate (e.g. the mempool's fast-path admission check).
func DerivedSender(publicKey []byte) types.Address {
	return crypto.AddressFromPubKey(publicKey)
}
