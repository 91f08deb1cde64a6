package crypto

import (
	"crypto/hmac"
	"crypto/subtle"
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// FrameMAC computes HMAC-SHA3-256(secret, message || u64-LE(nonce)), the
// authentication tag every P2P wire frame carries. HMAC composition
// itself is stdlib (crypto/hmac) — there is nothing domain-specific an
// ecosystem HMAC implementation would add over the standard library's,
// which is already constant-time and correct; see DESIGN.md.
func FrameMAC(secret, message []byte, nonce uint64) []byte {
	mac := hmac.New(sha3.New256, secret)
	mac.Write(message)
	var nonceBuf [8]byte
	binary.LittleEndian.PutUint64(nonceBuf[:], nonce)
	mac.Write(nonceBuf[:])
	return mac.Sum(nil)
}

// VerifyFrameMAC recomputes the tag and compares it in constant time.
func VerifyFrameMAC(secret, message, tag []byte, nonce uint64) bool {
	expected := FrameMAC(secret, message, nonce)
	return subtle.ConstantTimeCompare(expected, tag) == 1
}
