package tuyalan

import "fmt"

// DeriveSessionKey computes a v3.4 session key from a negotiation key and
// the two 16-byte nonces exchanged during session-key negotiation: XOR
// the nonces, then encrypt the result with unpadded AES-128-ECB under
// negotiationKey. See SPEC_FULL.md §4.3; full negotiation is optional
// per spec.md's non-goal — this is the wire-level building block only.
func DeriveSessionKey(negotiationKey, localNonce, remoteNonce []byte) ([]byte, error) {
	if len(localNonce) != aesBlockSize || len(remoteNonce) != aesBlockSize {
		return nil, fmt.Errorf("tuyalan: DeriveSessionKey: nonces must be %d bytes", aesBlockSize)
	}
	mixed, err := xorBytes(localNonce, remoteNonce)
	if err != nil {
		return nil, err
	}
	c := NewCipher(negotiationKey, false)
	return c.encryptNoPad(mixed)
}

// ExtractRemoteNonce splits a session-key-negotiation response payload
// into a 16-byte remote nonce and a 32-byte HMAC-SHA256 tag, and verifies
// the tag against HMAC(negotiationKey, localNonce).
func ExtractRemoteNonce(negotiationKey, localNonce []byte, payload []byte) ([]byte, error) {
	if len(payload) < aesBlockSize+32 {
		return nil, fmt.Errorf("%w: session-key response too short", ErrMalformedFrame)
	}
	remoteNonce := payload[:aesBlockSize]
	tag := payload[aesBlockSize : aesBlockSize+32]
	expected := hmacSHA256(negotiationKey, localNonce)
	if !bytesEqual(expected, tag) {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, ErrHmacMismatch)
	}
	return remoteNonce, nil
}
