package tuyalan

import "errors"

// Sentinel errors classify failures the way spec §7 names them. Wrapped
// errors from lower layers (net, encoding) should be joined with these via
// fmt.Errorf("...: %w", ErrX) so callers can classify with errors.Is.
var (
	// ErrMalformedFrame covers bad prefix/suffix, a declared length that
	// doesn't fit the buffer, or an integrity (CRC/HMAC) mismatch.
	ErrMalformedFrame = errors.New("tuyalan: malformed frame")

	// ErrUnknownCommand is returned when a decoded command code isn't in
	// the known set.
	ErrUnknownCommand = errors.New("tuyalan: unknown command")

	// ErrDecryptFailure covers ciphertext whose length isn't a multiple of
	// the block size, or (when tolerant padding is disabled) invalid
	// PKCS#7 padding.
	ErrDecryptFailure = errors.New("tuyalan: decrypt failure")

	// ErrNotConnected is returned by Send when the connection state isn't
	// Connected.
	ErrNotConnected = errors.New("tuyalan: not connected")

	// ErrResponseTimeout is returned by Send when no response for the
	// assigned sequence number arrives within the response timeout.
	ErrResponseTimeout = errors.New("tuyalan: response timeout")

	// ErrConnectTimeout is returned by Connect when the TCP handshake and
	// startup don't complete within the connection timeout.
	ErrConnectTimeout = errors.New("tuyalan: connect timeout")

	// ErrSocketError wraps a lower-level net.Error from a read or write.
	ErrSocketError = errors.New("tuyalan: socket error")

	// ErrUnsupportedVersion is returned for protocol version 3.5 or any
	// unrecognized version string.
	ErrUnsupportedVersion = errors.New("tuyalan: unsupported protocol version")

	// ErrUnsupportedCommandVariant is returned when encoding a v3.1 CONTROL
	// frame, which the source protocol never implemented.
	ErrUnsupportedCommandVariant = errors.New("tuyalan: unsupported command for this protocol version")

	// ErrBreakerOpen is returned by Device.Connect when the reconnect
	// circuit breaker has tripped and is still in its cooldown window.
	ErrBreakerOpen = errors.New("tuyalan: reconnect circuit breaker open")

	// ErrHmacMismatch is a more specific form of ErrMalformedFrame used
	// internally by the v3.4 decode path; it is always wrapped with
	// ErrMalformedFrame so errors.Is(err, ErrMalformedFrame) still holds.
	ErrHmacMismatch = errors.New("tuyalan: hmac mismatch")
)

// RetryableErrors is the default set of error kinds the retry policy (see
// retry.go) treats as transient.
var RetryableErrors = []error{
	ErrSocketError,
	ErrResponseTimeout,
	ErrConnectTimeout,
}
