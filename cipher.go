package tuyalan

import (
	"crypto/aes"
	"crypto/rand"
	"fmt"
)

const aesBlockSize = 16

// Cipher performs AES-128-ECB/PKCS7 encryption and decryption using a key
// normalized from a device's local key, per spec §4.2: the raw UTF-8 bytes
// of the local key are used verbatim when they are exactly 16 bytes long
// and forceMD5 isn't set; otherwise the key is MD5(localKey).
type Cipher struct {
	// rawKey is the original local-key bytes, retained because v3.4
	// framing HMACs are keyed by the raw local key, not the normalized
	// 16-byte AES key.
	rawKey []byte
	// key is the normalized 16-byte AES key.
	key []byte
	// TolerateMalformedPadding keeps Decrypt's permissive behavior on
	// unpad failure (return the buffer as-is) instead of erroring. See
	// SPEC_FULL.md's Open Question resolution; defaults to true via
	// NewCipher.
	TolerateMalformedPadding bool
}

// NewCipher derives a Cipher from a device's local key. forceMD5 forces
// MD5 normalization even for a 16-byte key (used by the fixed discovery
// key, which spec §4.6 requires to always be MD5-normalized).
func NewCipher(localKey []byte, forceMD5 bool) *Cipher {
	key := localKey
	if forceMD5 || len(localKey) != aesBlockSize {
		key = md5Sum(localKey)
	}
	return &Cipher{
		rawKey:                   append([]byte(nil), localKey...),
		key:                      key,
		TolerateMalformedPadding: true,
	}
}

// RawKey returns the original, unnormalized local-key bytes — the key
// used for v3.4 frame HMACs.
func (c *Cipher) RawKey() []byte {
	return c.rawKey
}

// Encrypt pads plaintext with PKCS#7 and encrypts it with AES-128-ECB.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("tuyalan: aes.NewCipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, aesBlockSize)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aesBlockSize {
		block.Encrypt(out[i:i+aesBlockSize], padded[i:i+aesBlockSize])
	}
	return out, nil
}

// Decrypt decrypts AES-128-ECB ciphertext and strips PKCS#7 padding. It
// fails if the ciphertext length isn't a multiple of the AES block size,
// or (when TolerateMalformedPadding is false) if the padding is invalid.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, nil
	}
	return c.decryptRaw(ciphertext, !c.TolerateMalformedPadding)
}

// decryptRaw is Decrypt with an explicit padding-strictness override,
// used by the codec's decode-side layout probing (message.go), which
// needs to know precisely whether a candidate slice unpads cleanly rather
// than silently tolerating garbage.
func (c *Cipher) decryptRaw(ciphertext []byte, strict bool) ([]byte, error) {
	if len(ciphertext)%aesBlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d not a multiple of %d", ErrDecryptFailure, len(ciphertext), aesBlockSize)
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("tuyalan: aes.NewCipher: %w", err)
	}
	decrypted := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aesBlockSize {
		block.Decrypt(decrypted[i:i+aesBlockSize], ciphertext[i:i+aesBlockSize])
	}
	return pkcs7Unpad(decrypted, aesBlockSize, strict)
}

// encryptNoPad encrypts data (which must already be block-aligned) with
// AES-128-ECB and no padding. Used for the v3.4 session-key derivation
// (SPEC_FULL §4.3), which XORs two 16-byte nonces and encrypts the result
// directly.
func (c *Cipher) encryptNoPad(data []byte) ([]byte, error) {
	if len(data)%aesBlockSize != 0 {
		return nil, fmt.Errorf("tuyalan: encryptNoPad: data length %d not block-aligned", len(data))
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("tuyalan: aes.NewCipher: %w", err)
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += aesBlockSize {
		block.Encrypt(out[i:i+aesBlockSize], data[i:i+aesBlockSize])
	}
	return out, nil
}

// calculateSuffix computes MD5("data=<deviceID>||lpv=3.3||<localKey>"),
// the 16-byte value some devices use for their own side-channel integrity
// check. Kept for completeness per spec §4.2; unused by the codec itself.
func calculateSuffix(deviceID string, localKey string) []byte {
	s := fmt.Sprintf("data=%s||lpv=3.3||%s", deviceID, localKey)
	return md5Sum([]byte(s))
}

// randomNonce returns 16 cryptographically random bytes, suitable as the
// local nonce in v3.4 session-key negotiation (SPEC_FULL §4.3). Nothing in
// this package calls it.
func randomNonce() []byte {
	buf := make([]byte, aesBlockSize)
	_, _ = rand.Read(buf)
	return buf
}
