// Package tuyalan implements a LAN client for Tuya-protocol smart home
// devices: the binary frame codec, the AES-128-ECB cipher, a TCP
// connection manager with heartbeats and request/response multiplexing,
// UDP broadcast discovery, and a retry policy for transient failures.
//
// Device-class wrappers (bulbs, outlets, covers) are not part of this
// package; they are thin consumers of Device.SetDps/SetDp/Refresh built
// on top of it.
package tuyalan
