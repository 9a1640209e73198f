package tuyalan

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"strings"
)

// putUint32BE writes v as a 4-byte big-endian value into dst at offset.
// dst must have at least offset+4 bytes.
func putUint32BE(dst []byte, offset int, v uint32) {
	binary.BigEndian.PutUint32(dst[offset:offset+4], v)
}

// readUint32BE reads a 4-byte big-endian value from data at offset. It
// fails if fewer than four bytes remain.
func readUint32BE(data []byte, offset int) (uint32, error) {
	if offset < 0 || offset+4 > len(data) {
		return 0, fmt.Errorf("tuyalan: readUint32BE: need 4 bytes at offset %d, have %d", offset, len(data))
	}
	return binary.BigEndian.Uint32(data[offset : offset+4]), nil
}

// hexEncode returns the lowercase hex encoding of b with no separators.
func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

// hexDecode decodes a hex string, tolerating embedded spaces and colons
// (common in packet-capture dumps). It rejects odd-length input (after
// stripping separators) and non-hex characters.
func hexDecode(s string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", ":", "").Replace(s)
	if len(cleaned)%2 != 0 {
		return nil, fmt.Errorf("tuyalan: hexDecode: odd-length input")
	}
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("tuyalan: hexDecode: %w", err)
	}
	return b, nil
}

// md5Sum returns the MD5 digest of data.
func md5Sum(data []byte) []byte {
	sum := md5.Sum(data)
	return sum[:]
}

// crc32IEEE returns the IEEE (zip-style) CRC32 checksum of data.
func crc32IEEE(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// crc32IEEEBytes returns the CRC32 checksum of data as 4 big-endian bytes.
func crc32IEEEBytes(data []byte) []byte {
	out := make([]byte, 4)
	putUint32BE(out, 0, crc32IEEE(data))
	return out
}

// hmacSHA256 returns the HMAC-SHA256 of data keyed by key.
func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// pkcs7Pad pads data to a multiple of blockSize using PKCS#7. It always
// adds padding, even when data is already block-aligned (a full block of
// value blockSize is appended in that case).
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// pkcs7Unpad strips PKCS#7 padding at blockSize. If the trailing byte
// isn't a value in [1, blockSize], the input is returned unmodified —
// best-effort tolerance for malformed device packets, matching the
// source's permissive behavior. Set strict to false to keep that
// tolerance; strict mode instead returns ErrDecryptFailure.
func pkcs7Unpad(data []byte, blockSize int, strict bool) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	padLen := int(data[len(data)-1])
	if padLen < 1 || padLen > blockSize || padLen > len(data) {
		if strict {
			return nil, fmt.Errorf("%w: invalid PKCS#7 padding byte %d", ErrDecryptFailure, padLen)
		}
		return data, nil
	}
	return data[:len(data)-padLen], nil
}

// xorBytes returns a XOR b, element-wise. Both slices must be the same
// length.
func xorBytes(a, b []byte) ([]byte, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("tuyalan: xorBytes: length mismatch %d != %d", len(a), len(b))
	}
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out, nil
}
