package tuyalan

import "fmt"

// Version is a protocol version string, one of "3.1"/"3.2"/"3.3"/"3.4".
// Version 3.5 exists on the wire but is explicitly unsupported (spec §1
// non-goal); Validate rejects it.
type Version string

const (
	Version31 Version = "3.1"
	Version32 Version = "3.2"
	Version33 Version = "3.3"
	Version34 Version = "3.4"
	version35 Version = "3.5" // recognized only to produce a precise error
)

// Validate returns ErrUnsupportedVersion if v isn't one of the four
// supported versions.
func (v Version) Validate() error {
	switch v {
	case Version31, Version32, Version33, Version34:
		return nil
	case version35:
		return fmt.Errorf("%w: 3.5", ErrUnsupportedVersion)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, string(v))
	}
}

// usesHMAC reports whether v's integrity mechanism is HMAC-SHA256 (v3.4)
// rather than CRC32 (v3.1-v3.3).
func (v Version) usesHMAC() bool {
	return v == Version34
}

// headerBytes returns the 15-byte version header: 3 ASCII bytes of the
// version string followed by 12 zero bytes.
func (v Version) headerBytes() []byte {
	h := make([]byte, 15)
	copy(h, []byte(v))
	return h
}
