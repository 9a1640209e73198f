package tuyalan

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Status is a snapshot of a device's data points, keyed by DP id.
type Status map[string]any

// clone returns a shallow copy of s.
func (s Status) clone() Status {
	out := make(Status, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// merge writes updates into a copy of s and returns the result.
func (s Status) merge(updates Status) Status {
	out := s.clone()
	for k, v := range updates {
		out[k] = v
	}
	return out
}

// DeviceConfig configures a Device façade.
type DeviceConfig struct {
	Host              string
	Port              int
	DeviceID          string
	LocalKey          []byte
	Version           Version
	ConnectTimeout    time.Duration
	ResponseTimeout   time.Duration
	HeartbeatInterval time.Duration
	AutoReconnect     bool
	ReconnectDelay    time.Duration
	RetryPolicy       RetryPolicy
	Breaker           BreakerConfig
}

func (c *DeviceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 6668
	}
	if c.Version == "" {
		c.Version = Version33
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.RetryPolicy.MaxAttempts == 0 {
		c.RetryPolicy = RetryStandard
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker = DefaultBreakerConfig
	}
}

// Device is the high-level façade over a Connection: cached status,
// retry-wrapped operations, and optional auto-reconnect. It plays the role
// the teacher's Device+Manager pair played together, but built on
// Connection's sequence-number multiplexing instead of the teacher's
// per-command response table.
type Device struct {
	cfg  DeviceConfig
	conn *Connection

	breaker *connectionBreaker

	mu     sync.RWMutex
	status Status

	autoReconnect   bool
	reconnectMu     sync.Mutex
	reconnectActive bool

	logger zerolog.Logger

	stopUnsolicited chan struct{}
}

// NewDevice builds a Device façade in the disconnected state.
func NewDevice(cfg DeviceConfig) *Device {
	cfg.applyDefaults()
	conn := NewConnection(ConnectionConfig{
		Host:              cfg.Host,
		Port:              cfg.Port,
		DeviceID:          cfg.DeviceID,
		LocalKey:          cfg.LocalKey,
		Version:           cfg.Version,
		ConnectTimeout:    cfg.ConnectTimeout,
		ResponseTimeout:   cfg.ResponseTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
	})
	return &Device{
		cfg:           cfg,
		conn:          conn,
		breaker:       newConnectionBreaker(cfg.DeviceID, cfg.Breaker),
		status:        make(Status),
		autoReconnect: cfg.AutoReconnect,
		logger:        log.With().Str("component", "device").Str("device_id", cfg.DeviceID).Logger(),
	}
}

// State returns the underlying connection's current state.
func (d *Device) State() State {
	return d.conn.State()
}

// WithMetrics attaches Prometheus-backed instrumentation to the
// underlying connection.
func (d *Device) WithMetrics(m *ConnMetrics) *Device {
	d.conn.WithMetrics(m)
	return d
}

// StateChanges proxies the underlying connection's state-change stream.
func (d *Device) StateChanges() <-chan StateChange {
	return d.conn.StateChanges()
}

// Snapshot returns a copy of the current cached status.
func (d *Device) Snapshot() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status.clone()
}

// Connect dials the device through the reconnect circuit breaker and, on
// success, starts the unsolicited-message consumer and (if configured)
// the auto-reconnect watcher.
func (d *Device) Connect(ctx context.Context) error {
	err := d.breaker.call(func() error {
		return d.conn.Connect(ctx)
	})
	if err != nil {
		return err
	}
	if d.stopUnsolicited == nil {
		d.stopUnsolicited = make(chan struct{})
		go d.consumeUnsolicited()
	}
	if d.autoReconnect {
		go d.watchForFailure()
	}
	return nil
}

// Disconnect tears down the connection and stops the unsolicited-message
// consumer. An auto-reconnect watcher started by Connect keeps running; it
// acts only on Failed transitions, which Disconnect does not produce.
func (d *Device) Disconnect(ctx context.Context) error {
	if d.stopUnsolicited != nil {
		close(d.stopUnsolicited)
		d.stopUnsolicited = nil
	}
	return d.conn.Disconnect(ctx)
}

// Refresh issues a DP_QUERY for this device's current data points, wrapped
// in the configured retry policy, and updates the cached status from the
// response.
func (d *Device) Refresh(ctx context.Context) (Status, error) {
	payload, err := json.Marshal(map[string]any{
		"gwId":  d.cfg.DeviceID,
		"devId": d.cfg.DeviceID,
	})
	if err != nil {
		return nil, err
	}

	var resp *Message
	err = d.cfg.RetryPolicy.Do(ctx, func(ctx context.Context) error {
		r, sendErr := d.conn.Send(ctx, Message{Command: CmdDPQuery, Payload: payload})
		if sendErr != nil {
			return sendErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	dps, err := parseDPResponse(resp.Payload)
	if err != nil {
		return nil, err
	}
	d.applyUpdate(dps)
	return d.Snapshot(), nil
}

// SetDps issues a CONTROL frame writing the given data points, wrapped in
// the configured retry policy, and optimistically merges the written
// values into the cached status.
func (d *Device) SetDps(ctx context.Context, dps map[string]any) (Status, error) {
	payload, err := json.Marshal(map[string]any{
		"devId": d.cfg.DeviceID,
		"uid":   d.cfg.DeviceID,
		"t":     fmt.Sprintf("%d", time.Now().Unix()),
		"dps":   dps,
	})
	if err != nil {
		return nil, err
	}

	err = d.cfg.RetryPolicy.Do(ctx, func(ctx context.Context) error {
		_, sendErr := d.conn.Send(ctx, Message{Command: CmdControl, Payload: payload})
		return sendErr
	})
	if err != nil {
		return nil, err
	}

	d.applyUpdate(dps)
	return d.Snapshot(), nil
}

// SetDp is a convenience wrapper around SetDps for a single data point.
func (d *Device) SetDp(ctx context.Context, id string, value any) (Status, error) {
	return d.SetDps(ctx, map[string]any{id: value})
}

func (d *Device) applyUpdate(dps map[string]any) {
	d.mu.Lock()
	d.status = d.status.merge(dps)
	d.mu.Unlock()
}

// parseDPResponse accepts any of the three response shapes spec §3
// enumerates: {"dps": …}, {"data": {"dps": …}}, or a bare object.
func parseDPResponse(payload []byte) (map[string]any, error) {
	if len(payload) == 0 {
		return map[string]any{}, nil
	}
	var envelope struct {
		Dps  map[string]any `json:"dps"`
		Data struct {
			Dps map[string]any `json:"dps"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("tuyalan: parse data-point response: %w", err)
	}
	if envelope.Dps != nil {
		return envelope.Dps, nil
	}
	if envelope.Data.Dps != nil {
		return envelope.Data.Dps, nil
	}
	var bare map[string]any
	if err := json.Unmarshal(payload, &bare); err != nil {
		return nil, fmt.Errorf("tuyalan: parse data-point response: %w", err)
	}
	return bare, nil
}

// consumeUnsolicited applies status pushes from the device (frames with no
// matching pending request) to the cached status, best-effort per spec
// §4.7: parse errors are swallowed since a malformed push must not tear
// down the façade.
func (d *Device) consumeUnsolicited() {
	for {
		select {
		case <-d.stopUnsolicited:
			return
		case msg, ok := <-d.conn.Unsolicited():
			if !ok {
				return
			}
			dps, err := parseDPResponse(msg.Payload)
			if err != nil {
				d.logger.Debug().Err(err).Msg("ignoring unparsable unsolicited payload")
				continue
			}
			d.applyUpdate(dps)
		}
	}
}

// watchForFailure schedules exactly one reconnect attempt after
// ReconnectDelay whenever the connection transitions to Failed, per spec
// §4.7. Rescheduling is idempotent: reconnectActive prevents a second
// concurrent reconnect task.
func (d *Device) watchForFailure() {
	for sc := range d.conn.StateChanges() {
		if sc.State != StateFailed {
			continue
		}
		d.reconnectMu.Lock()
		if d.reconnectActive {
			d.reconnectMu.Unlock()
			continue
		}
		d.reconnectActive = true
		d.reconnectMu.Unlock()

		go func() {
			defer func() {
				d.reconnectMu.Lock()
				d.reconnectActive = false
				d.reconnectMu.Unlock()
			}()
			time.Sleep(d.cfg.ReconnectDelay)
			ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ConnectTimeout)
			defer cancel()
			if err := d.Connect(ctx); err != nil {
				d.logger.Warn().Err(err).Msg("reconnect attempt failed")
			}
		}()
	}
}
