package tuyalan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// discoveryKey is the fixed well-known key devices use to encrypt their
// broadcast announcements (spec §4.6/§6).
const discoveryKey = "yGAdlopoPVldABfn"

// DefaultScanPorts are the UDP ports broadcast announcements arrive on:
// 6666 (v3.1-3.3 plaintext-ish), 6667 (v3.3+ encrypted), 7000 (v3.5
// gateway-active broadcasts, sniffed for version only).
var DefaultScanPorts = []int{6666, 6667, 7000}

// ScannerConfig configures a Scanner.
type ScannerConfig struct {
	// Ports to listen on; defaults to DefaultScanPorts.
	Ports []int
	// BindAddr defaults to "0.0.0.0".
	BindAddr string
	// Timeout bounds how long Scan runs before returning collected
	// results; defaults to 10s.
	Timeout time.Duration
}

func (c *ScannerConfig) applyDefaults() {
	if len(c.Ports) == 0 {
		c.Ports = DefaultScanPorts
	}
	if c.BindAddr == "" {
		c.BindAddr = "0.0.0.0"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// DiscoveredDevice is one device announcement decoded from a broadcast
// datagram, per spec §3.
type DiscoveredDevice struct {
	IP         string `json:"ip"`
	GatewayID  string `json:"gatewayId"`
	ProductKey string `json:"productKey,omitempty"`
	Version    string `json:"version"`
	Encrypted  bool   `json:"encrypted"`
	Active     bool   `json:"active"`
}

type broadcastPayload struct {
	IP         string      `json:"ip"`
	GwID       string      `json:"gwId"`
	ProductKey string      `json:"productKey"`
	Version    string      `json:"version"`
	Encrypt    bool        `json:"encrypt"`
	Active     interface{} `json:"active"`
}

// Scanner listens for UDP discovery broadcasts and decodes them with the
// fixed discovery key, per spec §4.6. It generalizes the teacher's
// single-port discovery.go into the multi-port, timeout-bounded contract
// the spec requires.
type Scanner struct {
	cfg    ScannerConfig
	cipher *Cipher
}

// NewScanner builds a Scanner using force-MD5 normalization of the fixed
// discovery key, as spec §4.6 requires.
func NewScanner(cfg ScannerConfig) *Scanner {
	cfg.applyDefaults()
	return &Scanner{
		cfg:    cfg,
		cipher: NewCipher([]byte(discoveryKey), true),
	}
}

// Scan binds a UDP listener on every configured port and collects
// discovered devices, deduped by source IP, until cfg.Timeout elapses or
// ctx is cancelled. Per-datagram decode errors are logged and skipped.
func (s *Scanner) Scan(ctx context.Context) (map[string]DiscoveredDevice, error) {
	scanID := uuid.NewString()
	logger := log.With().Str("component", "scanner").Str("scan_id", scanID).Logger()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var mu sync.Mutex
	results := make(map[string]DiscoveredDevice)

	var wg sync.WaitGroup
	var listenErrs []error
	boundPorts := 0

	for _, port := range s.cfg.Ports {
		port := port
		conn, err := net.ListenPacket("udp4", fmt.Sprintf("%s:%d", s.cfg.BindAddr, port))
		if err != nil {
			listenErrs = append(listenErrs, fmt.Errorf("port %d: %w", port, err))
			continue
		}
		boundPorts++
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			go func() {
				<-ctx.Done()
				conn.Close()
			}()
			buf := make([]byte, 2048)
			for {
				n, addr, err := conn.ReadFrom(buf)
				if err != nil {
					return
				}
				dev, err := s.decodeBroadcast(buf[:n])
				if err != nil {
					logger.Debug().Err(err).Str("addr", addr.String()).Int("port", port).Msg("skipping undecodable broadcast")
					continue
				}
				if dev.IP == "" {
					if host, _, splitErr := net.SplitHostPort(addr.String()); splitErr == nil {
						dev.IP = host
					}
				}
				mu.Lock()
				results[dev.IP] = *dev
				mu.Unlock()
				logger.Info().Str("ip", dev.IP).Str("gateway_id", dev.GatewayID).Msg("discovered device")
			}
		}()
	}

	if boundPorts == 0 {
		return nil, fmt.Errorf("tuyalan: scanner: could not bind any of %v: %v", s.cfg.Ports, listenErrs)
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]DiscoveredDevice, len(results))
	for k, v := range results {
		out[k] = v
	}
	return out, nil
}

// decodeBroadcast decodes one discovery datagram: parses the wire frame
// unconditionally with v3.3 layering and the discovery key, per spec §4.6,
// then the resulting JSON payload. sniffBroadcastVersion is never used to
// pick the wire-decode algorithm — only, below, to fill in the reported
// "version" field for payloads that omit it.
func (s *Scanner) decodeBroadcast(data []byte) (*DiscoveredDevice, error) {
	msg, err := Decode(data, s.cipher, Version33)
	if err != nil {
		return nil, err
	}
	var p broadcastPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, fmt.Errorf("tuyalan: scanner: decode payload json: %w", err)
	}
	if p.GwID == "" {
		return nil, fmt.Errorf("tuyalan: scanner: broadcast payload missing gwId")
	}
	v := p.Version
	if v == "" {
		v = string(sniffBroadcastVersion(data))
	}
	active := false
	switch a := p.Active.(type) {
	case bool:
		active = a
	case float64:
		active = a != 0
	}
	return &DiscoveredDevice{
		IP:         p.IP,
		GatewayID:  p.GwID,
		ProductKey: p.ProductKey,
		Version:    v,
		Encrypted:  p.Encrypt,
		Active:     active,
	}, nil
}

// sniffBroadcastVersion returns the first of "3.1".."3.4" found as ASCII
// anywhere in the raw frame, or v3.3 if none is found. decodeBroadcast
// uses it only to fill in the reported version for payloads that omit the
// "version" JSON field.
func sniffBroadcastVersion(data []byte) Version {
	for _, v := range []Version{Version31, Version32, Version33, Version34} {
		if bytes.Contains(data, []byte(v)) {
			return v
		}
	}
	return Version33
}
