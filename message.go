package tuyalan

import (
	"bytes"
	"fmt"
)

const (
	framePrefix uint32 = 0x000055aa
	frameSuffix uint32 = 0x0000aa55
	// fixedHeaderLen is prefix(4) + seq(4) + cmd(4) + length(4).
	fixedHeaderLen = 16
)

// Message is a decoded or to-be-encoded frame: a command, an opaque
// plaintext payload, a sequence number, and an optional return code (set
// on decoded frames that carry one; written by Encode when non-nil).
// Seq == 0 means "assign one on send" — see Connection.Send.
type Message struct {
	Command    Command
	Payload    []byte
	Seq        int32
	ReturnCode *int32
}

func integrityLen(v Version) int {
	if v.usesHMAC() {
		return 32
	}
	return 4
}

// Encode serializes msg to the wire format for version v, encrypting the
// payload with cipher per spec §4.3. A nil cipher produces an unencrypted
// diagnostic frame with the payload used verbatim for v3.1-v3.3; v3.4
// returns an error, since its HMAC is keyed by the cipher's raw key. A
// non-nil msg.ReturnCode is written as a 4-byte field after the length
// field and counted in the declared length.
func Encode(msg Message, cipher *Cipher, v Version) ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if cipher == nil && v.usesHMAC() {
		return nil, fmt.Errorf("tuyalan: encode: v%s HMAC requires a cipher", v)
	}

	prepared, err := preparePayload(msg, cipher, v)
	if err != nil {
		return nil, err
	}

	cLen := integrityLen(v)
	length := uint32(len(prepared) + cLen + 4)

	header := make([]byte, fixedHeaderLen, fixedHeaderLen+4)
	putUint32BE(header, 0, framePrefix)
	putUint32BE(header, 4, uint32(msg.Seq))
	putUint32BE(header, 8, uint32(msg.Command))
	putUint32BE(header, 12, length)
	if msg.ReturnCode != nil {
		putUint32BE(header, 12, length+4)
		rc := make([]byte, 4)
		putUint32BE(rc, 0, uint32(*msg.ReturnCode))
		header = append(header, rc...)
	}

	integrityInput := make([]byte, 0, len(header)+len(prepared))
	integrityInput = append(integrityInput, header...)
	integrityInput = append(integrityInput, prepared...)

	var checksum []byte
	if v.usesHMAC() {
		checksum = hmacSHA256(cipher.RawKey(), integrityInput)
	} else {
		checksum = crc32IEEEBytes(integrityInput)
	}

	out := make([]byte, 0, len(header)+len(prepared)+len(checksum)+4)
	out = append(out, header...)
	out = append(out, prepared...)
	out = append(out, checksum...)
	suffixBytes := make([]byte, 4)
	putUint32BE(suffixBytes, 0, frameSuffix)
	out = append(out, suffixBytes...)
	return out, nil
}

// preparePayload implements the version-aware payload layering of
// spec §4.3's Encode section.
func preparePayload(msg Message, cipher *Cipher, v Version) ([]byte, error) {
	if cipher == nil {
		return msg.Payload, nil
	}
	if v == Version31 {
		if msg.Command == CmdControl {
			return nil, fmt.Errorf("%w: v3.1 CONTROL", ErrUnsupportedCommandVariant)
		}
		return msg.Payload, nil
	}
	if hasNoHeader(msg.Command) {
		return cipher.Encrypt(msg.Payload)
	}
	switch v {
	case Version32, Version33:
		ciphertext, err := cipher.Encrypt(msg.Payload)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, 15+len(ciphertext))
		out = append(out, v.headerBytes()...)
		out = append(out, ciphertext...)
		return out, nil
	case Version34:
		combined := make([]byte, 0, 15+len(msg.Payload))
		combined = append(combined, v.headerBytes()...)
		combined = append(combined, msg.Payload...)
		return cipher.Encrypt(combined)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, v)
	}
}

// decodeLayout describes one candidate interpretation of a frame's byte
// layout: whether a 4-byte return-code field is present between the
// length field and the payload body.
type decodeLayout struct {
	hasReturnCode bool
	payloadStart  int
	payloadLen    int
}

// candidateLayouts returns the possible (hasReturnCode, payloadStart,
// payloadLen) interpretations of a frame whose declared length is L and
// whose integrity trailer is cLen bytes, consistent with the actual
// buffer length. Device-originated frames always carry the return-code
// field (spec §4.3's decode offset-20 rule); frames produced by this
// package's own Encode carry it only when Message.ReturnCode is set.
// Decode tries the return-code-present
// layout first since that's the primary use (parsing device traffic),
// falling back to the no-return-code layout so it can also parse this
// package's own Encode output (needed for the round-trip property in
// spec §8).
func candidateLayouts(totalLen int, length uint32, cLen int) []decodeLayout {
	var layouts []decodeLayout
	// With return code: L = 4 + P + cLen + 4  =>  P = L - cLen - 8
	if p := int(length) - cLen - 8; p >= 0 && fixedHeaderLen+4+p+cLen+4 == totalLen {
		layouts = append(layouts, decodeLayout{true, fixedHeaderLen + 4, p})
	}
	// Without return code: L = P + cLen + 4  =>  P = L - cLen - 4
	if p := int(length) - cLen - 4; p >= 0 && fixedHeaderLen+p+cLen+4 == totalLen {
		layouts = append(layouts, decodeLayout{false, fixedHeaderLen, p})
	}
	return layouts
}

// Decode parses and validates a wire frame, decrypting its payload with
// cipher per spec §4.3's version-aware rules. It rejects frames with a
// bad prefix/suffix/length, an unknown command, or a failing integrity
// check.
func Decode(data []byte, cipher *Cipher, v Version) (*Message, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	cLen := integrityLen(v)
	minLen := fixedHeaderLen + cLen + 4
	if len(data) < minLen {
		return nil, fmt.Errorf("%w: frame too short (%d bytes, need at least %d)", ErrMalformedFrame, len(data), minLen)
	}
	prefix, err := readUint32BE(data, 0)
	if err != nil || prefix != framePrefix {
		return nil, fmt.Errorf("%w: bad prefix", ErrMalformedFrame)
	}
	seq, _ := readUint32BE(data, 4)
	cmdWord, _ := readUint32BE(data, 8)
	length, _ := readUint32BE(data, 12)
	cmd := Command(uint8(cmdWord))
	if !cmd.Known() {
		return nil, fmt.Errorf("%w: code 0x%02x", ErrUnknownCommand, uint8(cmdWord))
	}

	layouts := candidateLayouts(len(data), length, cLen)
	if len(layouts) == 0 {
		return nil, fmt.Errorf("%w: declared length %d inconsistent with frame size %d", ErrMalformedFrame, length, len(data))
	}

	// Try each candidate layout until one both has the correct magic
	// suffix and passes the integrity check.
	var lastErr error
	for _, layout := range layouts {
		msg, err := tryDecodeLayout(data, cmd, int32(seq), length, layout, cipher, v, cLen)
		if err == nil {
			return msg, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// tryDecodeLayout attempts to decode data under one candidate byte
// layout, verifying the suffix and integrity checksum before decrypting.
func tryDecodeLayout(data []byte, cmd Command, seq int32, length uint32, layout decodeLayout, cipher *Cipher, v Version, cLen int) (*Message, error) {
	payloadBody := data[layout.payloadStart : layout.payloadStart+layout.payloadLen]
	integrityBytes := data[layout.payloadStart+layout.payloadLen : layout.payloadStart+layout.payloadLen+cLen]
	suffixOffset := layout.payloadStart + layout.payloadLen + cLen
	suffix, err := readUint32BE(data, suffixOffset)
	if err != nil || suffix != frameSuffix {
		return nil, fmt.Errorf("%w: bad suffix", ErrMalformedFrame)
	}

	integrityInput := make([]byte, 0, fixedHeaderLen+4+len(payloadBody))
	integrityInput = append(integrityInput, data[0:fixedHeaderLen]...)
	if layout.hasReturnCode {
		integrityInput = append(integrityInput, data[fixedHeaderLen:fixedHeaderLen+4]...)
	}
	integrityInput = append(integrityInput, payloadBody...)

	if v.usesHMAC() {
		if cipher == nil {
			return nil, fmt.Errorf("%w: HMAC frame requires a cipher", ErrMalformedFrame)
		}
		expected := hmacSHA256(cipher.RawKey(), integrityInput)
		if !bytesEqual(expected, integrityBytes) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, ErrHmacMismatch)
		}
	} else {
		expected := crc32IEEEBytes(integrityInput)
		if !bytesEqual(expected, integrityBytes) {
			return nil, fmt.Errorf("%w: crc mismatch", ErrMalformedFrame)
		}
	}

	plaintext, err := decodePayload(payloadBody, cipher, v)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Command: cmd,
		Payload: plaintext,
		Seq:     seq,
	}
	if layout.hasReturnCode {
		rc, _ := readUint32BE(data, fixedHeaderLen)
		signed := int32(rc)
		msg.ReturnCode = &signed
	}
	return msg, nil
}

func bytesEqual(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// versionHeaderPrefix is the ASCII prefix ("3.3") the source's decode
// heuristic sniffs for on the wire, per spec §4.3, for every version
// including v3.4 inbound frames. decodePayload also sniffs the frame's
// own version string, so v3.2 frames (header "3.2") decode too.
var versionHeaderPrefix = []byte("3.3")

// decodePayload implements spec §4.3's decode-side payload decryption,
// extended with two deliberate resolutions of the ambiguity spec.md §9
// flags around this exact heuristic (recorded in DESIGN.md):
//
//  1. v3.1 frames are never encrypted on the wire (confirmed against the
//     concrete v3.1 vector in spec §8), so decode returns the body as-is
//     rather than attempting the literal "single decrypt" the prose
//     describes, which would fail immediately on a non-block-aligned
//     plaintext body.
//  2. When the "3.3" sniff triggers, both the with-trailing-suffix and
//     header-only-strip candidates are tried, preferring whichever
//     decrypts to a validly padded plaintext — this lets the same path
//     serve both the quirky wire layout spec.md describes and frames
//     produced by this package's own Encode (which never appends the
//     trailing MD5 suffix).
//  3. After decrypting, a plaintext that itself begins with a 15-byte
//     version-header pattern (three ASCII "3.x" bytes followed by twelve
//     zero bytes) has that header stripped — this is what lets a v3.4
//     frame (header encrypted *inside* the ciphertext) round-trip
//     symmetrically with Encode.
func decodePayload(body []byte, cipher *Cipher, v Version) ([]byte, error) {
	if cipher == nil || len(body) == 0 {
		return body, nil
	}
	if v == Version31 {
		return body, nil
	}

	var plaintext []byte
	if len(body) >= 15+aesBlockSize && (bytes.Equal(body[:3], versionHeaderPrefix) || bytes.Equal(body[:3], []byte(v))) {
		plaintext = decodeSniffedHeader(body, cipher)
	} else {
		pt, err := cipher.Decrypt(body)
		if err != nil {
			return nil, err
		}
		plaintext = pt
	}
	return stripEmbeddedVersionHeader(plaintext), nil
}

// decodeSniffedHeader tries the two candidate ciphertext slices implied
// by the "3.3"-prefixed wire layout, preferring the one that decrypts to
// validly padded plaintext.
func decodeSniffedHeader(body []byte, cipher *Cipher) []byte {
	if withSuffix := body[15 : len(body)-16]; len(withSuffix) > 0 && len(withSuffix)%aesBlockSize == 0 {
		if pt, err := cipher.decryptRaw(withSuffix, true); err == nil {
			return pt
		}
	}
	if headerOnly := body[15:]; len(headerOnly)%aesBlockSize == 0 {
		if pt, err := cipher.decryptRaw(headerOnly, true); err == nil {
			return pt
		}
	}
	pt, err := cipher.Decrypt(body)
	if err != nil {
		return nil
	}
	return pt
}

// stripEmbeddedVersionHeader removes a leading 15-byte version header
// ("3." + one digit + twelve zero bytes) if present.
func stripEmbeddedVersionHeader(plaintext []byte) []byte {
	if len(plaintext) < 15 {
		return plaintext
	}
	h := plaintext[:15]
	if h[0] != '3' || h[1] != '.' || h[2] < '0' || h[2] > '9' {
		return plaintext
	}
	for _, b := range h[3:] {
		if b != 0 {
			return plaintext
		}
	}
	return plaintext[15:]
}
