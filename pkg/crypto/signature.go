package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// scheme is the post-quantum signature scheme this node signs and verifies
// with. Signatures and keys are opaque byte arrays to every caller above
// this package. Dilithium mode3 gives a 1952-byte public key, 4016-byte
// private key, and 3293-byte signature.
var scheme sign.Scheme = mode3.Scheme()

// Signer signs messages with a private key.
type Signer interface {
	// Sign produces a signature over a 32-byte hash.
	Sign(hash []byte) ([]byte, error)
	// PublicKey returns the opaque public key bytes.
	PublicKey() []byte
}

// Verifier verifies signatures produced by a Signer.
type Verifier interface {
	Verify(hash, signature, publicKey []byte) bool
}

// PrivateKey wraps a post-quantum private/public keypair. The core
// blockchain engine never constructs or holds a PrivateKey itself — it only
// sees opaque public keys and signatures — but the type lives here
// for the benefit of callers outside the core (tests, CLI tooling) that do
// need to sign.
type PrivateKey struct {
	pub  sign.PublicKey
	priv sign.PrivateKey
}

// GenerateKey creates a new random keypair.
func GenerateKey() (*PrivateKey, error) {
	pub, priv, err := scheme.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{pub: pub, priv: priv}, nil
}

// PrivateKeyFromBytes reconstructs a keypair from its serialized private key.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	priv, err := scheme.UnmarshalBinaryPrivateKey(b)
	if err != nil {
		return nil, fmt.Errorf("unmarshal private key: %w", err)
	}
	pub := priv.Public().(sign.PublicKey)
	return &PrivateKey{pub: pub, priv: priv}, nil
}

// Sign produces a signature over a 32-byte hash. All signing in the system
// is performed over a hash, never over raw message bytes.
func (pk *PrivateKey) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	return scheme.Sign(pk.priv, hash, nil), nil
}

// PublicKey returns the opaque serialized public key.
func (pk *PrivateKey) PublicKey() []byte {
	b, _ := pk.pub.MarshalBinary()
	return b
}

// Serialize returns the opaque serialized private key.
func (pk *PrivateKey) Serialize() []byte {
	if pk.priv == nil {
		return nil
	}
	b, _ := pk.priv.MarshalBinary()
	return b
}

// Zero best-effort scrubs the private key from memory. circl's dilithium
// keys don't expose a zeroing primitive directly; dropping the only
// reference and letting the garbage collector reclaim it is the remaining
// option once the underlying arrays are unreachable.
func (pk *PrivateKey) Zero() {
	pk.priv = nil
	pk.pub = nil
}

// VerifySignature checks a signature against a 32-byte hash and a
// serialized public key. Returns false on any ill-formed input, including
// a malformed key or a panic raised by the underlying library — it never
// propagates a panic to the caller — a malformed signature is reported as
// an ordinary verification failure, not a crash.
func VerifySignature(hash, signature, publicKey []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	if len(hash) != 32 {
		return false
	}
	pub, err := scheme.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return false
	}
	return scheme.Verify(pub, hash, signature, nil)
}

// SchemeVerifier implements Verifier using the package signature scheme.
type SchemeVerifier struct{}

func (SchemeVerifier) Verify(hash, signature, publicKey []byte) bool {
	return VerifySignature(hash, signature, publicKey)
}
