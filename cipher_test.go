package tuyalan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCipher_EncryptDecrypt_RoundTrip(t *testing.T) {
	c := NewCipher([]byte(testLocalKey), false)
	for _, n := range []int{0, 1, 15, 16, 17, 100} {
		plaintext := make([]byte, n)
		for i := range plaintext {
			plaintext[i] = byte(i)
		}
		ciphertext, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		require.Equal(t, 0, len(ciphertext)%aesBlockSize)

		decrypted, err := c.Decrypt(ciphertext)
		require.NoError(t, err)
		require.Equal(t, plaintext, decrypted)
	}
}

func TestCipher_KeyNormalization(t *testing.T) {
	// exactly 16 bytes, no force-MD5: used verbatim.
	raw := NewCipher([]byte(testLocalKey), false)
	require.Len(t, raw.key, 16)
	require.Equal(t, []byte(testLocalKey), raw.key)

	// force-MD5 always normalizes, even for a 16-byte key.
	forced := NewCipher([]byte(testLocalKey), true)
	require.NotEqual(t, []byte(testLocalKey), forced.key)
	require.Len(t, forced.key, 16)

	// non-16-byte key is always MD5-normalized.
	short := NewCipher([]byte("short"), false)
	require.Len(t, short.key, 16)
}

func TestCipher_RawKeyPreserved(t *testing.T) {
	c := NewCipher([]byte(testLocalKey), true)
	require.Equal(t, []byte(testLocalKey), c.RawKey())
}

func TestCipher_Decrypt_RejectsNonBlockAligned(t *testing.T) {
	c := NewCipher([]byte(testLocalKey), false)
	c.TolerateMalformedPadding = false
	_, err := c.Decrypt([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrDecryptFailure)
}

func TestCipher_EncryptNoPad_RequiresBlockAlignment(t *testing.T) {
	c := NewCipher([]byte(testLocalKey), false)
	_, err := c.encryptNoPad([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestCalculateSuffix(t *testing.T) {
	out := calculateSuffix(testDeviceID, testLocalKey)
	require.Len(t, out, 16)
}
