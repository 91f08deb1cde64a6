// Package p2p implements the framed, HMAC-authenticated TCP protocol peers
// use to exchange handshakes, transactions, blocks, and heartbeats: a
// single raw stream per peer rather than a pubsub mesh or a DHT.
package p2p

import (
	"crypto/hmac"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/qchain-project/qchain/pkg/crypto"
)

// maxFrameBytes bounds a single frame's payload, guarding against a peer
// claiming an unbounded length prefix and exhausting memory on read.
const maxFrameBytes = 10 << 20 // 10 MiB

// macSize is the length of the HMAC-SHA3-256 authentication tag appended
// to every frame.
const macSize = 32

// writeFrame writes a length-prefixed, HMAC-authenticated frame:
//
//	u32-BE length || payload || crypto.FrameMAC(secret, payload, 0)
//
// Frames carry no per-message nonce; the tag is always computed with nonce 0.
//
// secret is the shared network secret (config.Peers.Secret /
// QCHAIN_NETWORK_SECRET) — every frame is authenticated with it so a peer
// without the secret cannot forge protocol messages, even though the
// payload itself is not encrypted.
func writeFrame(w io.Writer, secret []byte, payload []byte) error {
	if len(payload) > maxFrameBytes {
		return fmt.Errorf("p2p: frame payload %d bytes exceeds limit %d", len(payload), maxFrameBytes)
	}
	mac := computeMAC(secret, payload)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)+macSize))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("p2p: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("p2p: write frame payload: %w", err)
	}
	if _, err := w.Write(mac); err != nil {
		return fmt.Errorf("p2p: write frame mac: %w", err)
	}
	return nil
}

// readFrame reads and authenticates one frame written by writeFrame.
func readFrame(r io.Reader, secret []byte) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	total := binary.BigEndian.Uint32(lenBuf[:])
	if total < macSize || int(total) > maxFrameBytes+macSize {
		return nil, fmt.Errorf("p2p: invalid frame length %d", total)
	}

	buf := make([]byte, total)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("p2p: read frame body: %w", err)
	}
	payload := buf[:len(buf)-macSize]
	gotMAC := buf[len(buf)-macSize:]

	wantMAC := computeMAC(secret, payload)
	if !hmac.Equal(gotMAC, wantMAC) {
		return nil, fmt.Errorf("p2p: frame authentication failed")
	}
	return payload, nil
}

func computeMAC(secret, payload []byte) []byte {
	return crypto.FrameMAC(secret, payload, 0)
}
