package tuyalan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConnectionConfig configures timing and behavior for a Connection. Zero
// timeouts, heartbeat interval and UnsolicitedBuffer are replaced with
// defaults by NewConnection; Port has no default here.
type ConnectionConfig struct {
	Host              string
	Port              int
	DeviceID          string
	LocalKey          []byte
	Version           Version
	ForceMD5          bool
	ConnectTimeout    time.Duration
	ResponseTimeout   time.Duration
	HeartbeatInterval time.Duration
	// UnsolicitedBuffer bounds the unsolicited-message channel; once full,
	// the oldest pending message is dropped to make room (SPEC_FULL.md §9
	// resolves the source's open back-pressure question this way, since
	// status pushes are idempotent refreshes).
	UnsolicitedBuffer int
}

func (c *ConnectionConfig) applyDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = 5 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.UnsolicitedBuffer == 0 {
		c.UnsolicitedBuffer = 16
	}
}

// pendingResponse is the single-shot completion handle for one in-flight
// request, keyed by sequence number per spec §3/§4.5. err is written
// before ch is closed by a teardown that cancels the request out from
// under a blocked Send, so Send can distinguish "response delivered" from
// "cancelled by teardown" instead of reading ch's zero value as success.
type pendingResponse struct {
	ch  chan *Message
	err error
}

// Connection manages exactly one TCP session to one device, multiplexing
// request/response pairs by sequence number. It fuses the teacher's
// device.go (socket ownership, write path) and manager.go (receive loop,
// response dispatch table) into a single sequence-number-keyed component,
// per the correction spec.md §9 calls for (the teacher keys by Command,
// which cannot distinguish two in-flight requests for the same command).
type Connection struct {
	cfg    ConnectionConfig
	cipher *Cipher

	mu         sync.Mutex
	conn       net.Conn
	seq        int32
	pending    map[int32]*pendingResponse
	sessionKey []byte

	state       *stateBroadcaster
	unsolicited chan *Message
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	// lifecycleMu serializes Connect/Disconnect transitions and their
	// wg.Wait calls, so a reconnect's wg.Add(2) can never race a still-
	// in-flight wg.Wait from the previous generation's teardown (see
	// Connect and Disconnect).
	lifecycleMu sync.Mutex

	writeMu sync.Mutex

	logger zerolog.Logger

	metrics *ConnMetrics
}

// ConnMetrics is a narrow seam a caller fills via WithMetrics to wire
// Prometheus collectors (see the metrics subpackage) without this package
// importing prometheus directly. Every hook is optional; a nil hook is a
// no-op.
type ConnMetrics struct {
	FramesSent        func()
	FramesReceived    func()
	DecodeFailures    func()
	ResponseLatency   func(time.Duration)
	HeartbeatFailures func()
}

// NewConnection builds a Connection in the Disconnected state. The socket
// is not opened until Connect is called.
func NewConnection(cfg ConnectionConfig) *Connection {
	cfg.applyDefaults()
	return &Connection{
		cfg:         cfg,
		cipher:      NewCipher(cfg.LocalKey, cfg.ForceMD5),
		pending:     make(map[int32]*pendingResponse),
		state:       newStateBroadcaster(StateDisconnected),
		unsolicited: make(chan *Message, cfg.UnsolicitedBuffer),
		logger:      log.With().Str("component", "connection").Str("device_id", cfg.DeviceID).Logger(),
	}
}

// WithMetrics attaches Prometheus-backed counters/histograms; nil hooks are
// left as no-ops.
func (c *Connection) WithMetrics(m *ConnMetrics) *Connection {
	c.metrics = m
	return c
}

// State returns the current connection state.
func (c *Connection) State() State {
	return c.state.get().State
}

// StateChanges returns a stream of state transitions.
func (c *Connection) StateChanges() <-chan StateChange {
	return c.state.subscribe()
}

// Unsolicited returns the stream of device-originated frames that carried
// no matching pending request (status pushes).
func (c *Connection) Unsolicited() <-chan *Message {
	return c.unsolicited
}

// Connect dials the device, blocking until the socket is established or
// cfg.ConnectTimeout elapses. It starts the receive and heartbeat loops on
// success.
func (c *Connection) Connect(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	// Block until any previous generation's receive/heartbeat loops have
	// fully exited before reusing c.wg: wg.Add must never race a
	// still-returning wg.Wait for the same WaitGroup. This call returns
	// immediately once the counter is already zero.
	c.wg.Wait()

	c.state.set(StateChange{State: StateConnecting})

	dialCtx, dialCancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer dialCancel()

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		c.state.set(StateChange{State: StateFailed, Err: wrapped})
		return wrapped
	}

	c.mu.Lock()
	c.conn = conn
	c.seq = 0
	c.mu.Unlock()

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.state.set(StateChange{State: StateConnected})
	c.logger.Info().Str("addr", addr).Msg("connected")

	c.wg.Add(2)
	go c.receiveLoop(loopCtx, conn)
	go c.heartbeatLoop(loopCtx)
	return nil
}

// nextSeq returns the next strictly-monotonic positive sequence number.
func (c *Connection) nextSeq() int32 {
	return atomic.AddInt32(&c.seq, 1)
}

// Send encodes and writes msg, assigning a fresh sequence number if msg.Seq
// is 0, and blocks until the matching response arrives or
// cfg.ResponseTimeout elapses.
func (c *Connection) Send(ctx context.Context, msg Message) (*Message, error) {
	if c.State() != StateConnected {
		return nil, ErrNotConnected
	}
	if msg.Seq == 0 {
		msg.Seq = c.nextSeq()
	}
	corrID := uuid.NewString()
	logger := c.logger.With().Str("correlation_id", corrID).Int32("seq", msg.Seq).Logger()

	pr := &pendingResponse{ch: make(chan *Message, 1)}
	c.mu.Lock()
	c.pending[msg.Seq] = pr
	c.mu.Unlock()

	start := time.Now()
	if err := c.writeFrame(msg); err != nil {
		c.removePending(msg.Seq)
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.cfg.ResponseTimeout)
	defer cancel()

	select {
	case resp, ok := <-pr.ch:
		if !ok {
			return nil, pr.err
		}
		if c.metrics != nil && c.metrics.ResponseLatency != nil {
			c.metrics.ResponseLatency(time.Since(start))
		}
		logger.Debug().Dur("latency", time.Since(start)).Msg("response received")
		return resp, nil
	case <-timeoutCtx.Done():
		c.removePending(msg.Seq)
		if timeoutCtx.Err() == context.DeadlineExceeded {
			return nil, ErrResponseTimeout
		}
		return nil, timeoutCtx.Err()
	}
}

// SendNoResponse writes msg without waiting for a matching reply, for
// callers that only care about write success. A reply the device sends
// anyway has no pending entry and goes to the unsolicited stream.
func (c *Connection) SendNoResponse(msg Message) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	if msg.Seq == 0 {
		msg.Seq = c.nextSeq()
	}
	return c.writeFrame(msg)
}

// SendHeartbeat sends an empty HEART_BEAT frame and awaits its response.
func (c *Connection) SendHeartbeat(ctx context.Context) error {
	_, err := c.Send(ctx, Message{Command: CmdHeartBeat})
	return err
}

func (c *Connection) writeFrame(msg Message) error {
	encoded, err := Encode(msg, c.activeCipher(), c.cfg.Version)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if _, err := conn.Write(encoded); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrSocketError, err)
		c.fail(wrapped)
		return wrapped
	}
	if c.metrics != nil && c.metrics.FramesSent != nil {
		c.metrics.FramesSent()
	}
	return nil
}

// activeCipher returns the negotiated v3.4 session cipher if one has been
// established, otherwise the local-key cipher.
func (c *Connection) activeCipher() *Cipher {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sessionKey) > 0 {
		return NewCipher(c.sessionKey, false)
	}
	return c.cipher
}

// SetSessionKey installs a negotiated v3.4 session key, used for frames
// sent after session-key negotiation completes.
func (c *Connection) SetSessionKey(key []byte) {
	c.mu.Lock()
	c.sessionKey = key
	c.mu.Unlock()
}

func (c *Connection) removePending(seq int32) {
	c.mu.Lock()
	delete(c.pending, seq)
	c.mu.Unlock()
}

// receiveLoop reads frames until the socket errors or the connection's
// context is cancelled, dispatching each decoded message either to its
// pending sender or to the unsolicited stream. conn is the socket dialed
// by the Connect call that started this loop, passed explicitly rather
// than read from c.conn, which teardownResources may concurrently nil out
// under c.mu.
func (c *Connection) receiveLoop(ctx context.Context, conn net.Conn) {
	defer c.wg.Done()
	for {
		frame, err := readFrame(conn)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				c.fail(fmt.Errorf("%w: connection closed by peer", ErrSocketError))
				return
			}
			c.fail(fmt.Errorf("%w: %v", ErrSocketError, err))
			return
		}
		msg, err := Decode(frame, c.activeCipher(), c.cfg.Version)
		if err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed frame")
			if c.metrics != nil && c.metrics.DecodeFailures != nil {
				c.metrics.DecodeFailures()
			}
			continue
		}
		if c.metrics != nil && c.metrics.FramesReceived != nil {
			c.metrics.FramesReceived()
		}
		c.dispatch(msg)
	}
}

func (c *Connection) dispatch(msg *Message) {
	c.mu.Lock()
	pr, ok := c.pending[msg.Seq]
	if ok {
		delete(c.pending, msg.Seq)
	}
	c.mu.Unlock()

	if ok {
		pr.ch <- msg
		return
	}

	select {
	case c.unsolicited <- msg:
	default:
		select {
		case <-c.unsolicited:
		default:
		}
		select {
		case c.unsolicited <- msg:
		default:
		}
	}
}

func (c *Connection) heartbeatLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.SendHeartbeat(ctx); err != nil {
				if c.metrics != nil && c.metrics.HeartbeatFailures != nil {
					c.metrics.HeartbeatFailures()
				}
				c.fail(fmt.Errorf("%w: heartbeat: %v", ErrSocketError, err))
				return
			}
		}
	}
}

// fail transitions the connection to Failed and releases socket/pending
// resources so the failing goroutine's own read/write loop can return. It
// is idempotent: a second call while already Failed is a no-op.
//
// fail is called from inside receiveLoop and heartbeatLoop, both of which
// are wg-tracked goroutines that call wg.Done() on return. It must
// therefore never block on c.wg.Wait() itself — that would deadlock the
// very goroutine whose exit is needed to make the counter reach zero.
// Waiting for the loops to fully exit is left to whichever external
// caller needs that guarantee (Connect, before starting a new generation,
// or Disconnect).
func (c *Connection) fail(err error) {
	if c.State() == StateFailed {
		return
	}
	c.logger.Error().Err(err).Msg("connection failed")
	c.state.set(StateChange{State: StateFailed, Err: err})
	c.teardownResources(err)
}

// Disconnect transitions Connected → Disconnecting → Disconnected,
// cancelling background loops, closing the socket, and blocking until the
// receive and heartbeat loops have fully exited. It runs to completion
// regardless of ctx cancellation, matching spec §5's non-cancellable
// disconnect region. Unlike fail, Disconnect is called by an external
// caller, never from inside a wg-tracked goroutine, so waiting here is
// safe.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.state.set(StateChange{State: StateDisconnecting})
	c.teardownResources(nil)
	c.wg.Wait()
	c.state.set(StateChange{State: StateDisconnected})
	return nil
}

// teardownResources cancels the loop context, closes the socket, and
// fails every pending request with cause (ErrNotConnected if cause is nil,
// e.g. a plain Disconnect). Each pending Send is blocked on a <-pr.ch
// receive; closing pr.ch after recording the error in pr.err, rather than
// sending a sentinel value down it, lets Send tell "cancelled by teardown"
// apart from "response delivered" via the receive's ok flag, per spec §5/§8
// scenario 4 (kill the socket mid-exchange -> pending Send fails with a
// cancellation/SocketError, not a fabricated success). It never waits for
// the receive/heartbeat goroutines to observe the cancellation and return
// — see fail's comment for why that must stay the caller's responsibility.
// Safe to call more than once: a second call finds a nil conn and an empty
// pending map.
func (c *Connection) teardownResources(cause error) {
	if c.cancel != nil {
		c.cancel()
	}
	if cause == nil {
		cause = ErrNotConnected
	}
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	pending := c.pending
	c.pending = make(map[int32]*pendingResponse)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	for _, pr := range pending {
		pr.err = cause
		close(pr.ch)
	}
}

// readFrame reads exactly one frame from r: 4-byte prefix, 12 more header
// bytes (seq/cmd/length), then the declared-length remainder, per spec
// §4.5's receive-loop contract.
func readFrame(r io.Reader) ([]byte, error) {
	head := make([]byte, fixedHeaderLen)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	prefix, err := readUint32BE(head, 0)
	if err != nil || prefix != framePrefix {
		return nil, fmt.Errorf("%w: bad prefix", ErrMalformedFrame)
	}
	length, err := readUint32BE(head, 12)
	if err != nil {
		return nil, err
	}
	rest := make([]byte, length)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(head)+len(rest))
	frame = append(frame, head...)
	frame = append(frame, rest...)
	return frame, nil
}
