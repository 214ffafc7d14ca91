// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/labbox-foundation/labbox/lib/clock"
	"github.com/labbox-foundation/labbox/lib/netutil"
	"github.com/labbox-foundation/labbox/lib/observer"
	"github.com/labbox-foundation/labbox/lib/telemetry"
	"github.com/labbox-foundation/labbox/protocol"
)

// DefaultHeartbeat is the keepAlive interval.
const DefaultHeartbeat = 17 * time.Second

// DefaultWriteTimeout bounds a single channel write.
const DefaultWriteTimeout = 10 * time.Second

// Config configures a Connection. Exactly one of Dialer, WebSocketURL
// and Bridge selects the transport.
type Config struct {
	// WebSocketURL selects a WebSocketDialer for this endpoint.
	WebSocketURL string

	// Bridge selects a HostDialer over this host bridge.
	Bridge HostBridge

	// Dialer is used as-is when set.
	Dialer Dialer

	// Heartbeat is the keepAlive interval. Default: DefaultHeartbeat.
	Heartbeat time.Duration

	// WriteTimeout bounds each channel write. Default:
	// DefaultWriteTimeout.
	WriteTimeout time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *telemetry.Metrics
}

// Connection is the client's one logical connection. Create with New,
// then call Start.
type Connection struct {
	dialer       Dialer
	heartbeat    time.Duration
	writeTimeout time.Duration
	clock        clock.Clock
	logger       *slog.Logger
	metrics      *telemetry.Metrics

	// sendMu serializes channel writes so that a queue flush and
	// concurrent sends keep FIFO order. Acquired before mu.
	sendMu sync.Mutex

	mu      sync.Mutex
	state   State
	started bool
	dialing bool
	early   bool // the dialing epoch closed before Dial returned
	epoch   uint64
	channel Channel
	queue   []protocol.Message
	life    context.Context
	stop    context.CancelFunc

	notify notifier

	messages     observer.List[protocol.Message]
	batches      observer.List[[]protocol.Message]
	connected    observer.Condition
	disconnected observer.Condition
}

// New validates config and returns a Connection in the Waiting state.
// It performs no I/O.
func New(config Config) (*Connection, error) {
	dialer, err := selectDialer(config)
	if err != nil {
		return nil, err
	}
	c := &Connection{
		dialer:       dialer,
		heartbeat:    config.Heartbeat,
		writeTimeout: config.WriteTimeout,
		clock:        config.Clock,
		logger:       config.Logger,
		metrics:      config.Metrics,
	}
	if c.heartbeat <= 0 {
		c.heartbeat = DefaultHeartbeat
	}
	if c.writeTimeout <= 0 {
		c.writeTimeout = DefaultWriteTimeout
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

func selectDialer(config Config) (Dialer, error) {
	configured := 0
	for _, set := range []bool{config.Dialer != nil, config.WebSocketURL != "", config.Bridge != nil} {
		if set {
			configured++
		}
	}
	switch {
	case configured == 0:
		return nil, ErrNotConfigured
	case configured > 1:
		return nil, fmt.Errorf("%w: more than one of dialer, websocket url and host bridge set", ErrNotConfigured)
	case config.Dialer != nil:
		return config.Dialer, nil
	case config.Bridge != nil:
		return &HostDialer{Bridge: config.Bridge}, nil
	}
	return &WebSocketDialer{URL: config.WebSocketURL, Logger: config.Logger}, nil
}

// Start opens the first channel and starts the heartbeat. A host
// bridge is already present, so a HostDialer connects before Start
// returns; other dialers connect in the background. Both stop when ctx
// ends, which also closes the open channel. Calls after the first are
// no-ops.
func (c *Connection) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	ctx, c.stop = context.WithCancel(ctx)
	c.life = ctx
	c.started = true
	c.dialing = true
	c.mu.Unlock()

	if _, ok := c.dialer.(*HostDialer); ok {
		_ = c.open(ctx)
	} else {
		go func() {
			_ = c.open(ctx)
		}()
	}
	go c.heartbeatLoop(ctx)
	go func() {
		<-ctx.Done()
		c.closeChannel()
	}()
}

// Close stops the heartbeat and closes the open channel, which moves
// the connection to Disconnected.
func (c *Connection) Close() error {
	c.mu.Lock()
	stop := c.stop
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
	c.closeChannel()
	return nil
}

func (c *Connection) closeChannel() {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel != nil {
		if err := channel.Close(); err != nil {
			c.logger.Debug("closing channel", "error", err)
		}
	}
}

// Reconnect opens a new channel epoch. It is valid only in the
// Disconnected state and returns ErrInvalidState otherwise, including
// while an earlier Reconnect is still dialing. On a dial failure the
// connection stays Disconnected and the error is returned.
func (c *Connection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.started && c.life.Err() != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: connection closed", ErrInvalidState)
	}
	if !c.started || c.state != Disconnected || c.dialing {
		state, dialing := c.state, c.dialing
		c.mu.Unlock()
		if dialing {
			return fmt.Errorf("%w: reconnect already in progress", ErrInvalidState)
		}
		return fmt.Errorf("%w: state is %s", ErrInvalidState, state)
	}
	c.dialing = true
	c.mu.Unlock()

	c.logger.Info("reconnecting")
	return c.open(ctx)
}

// open dials a new epoch. The caller has set c.dialing.
func (c *Connection) open(ctx context.Context) error {
	c.mu.Lock()
	c.epoch++
	c.early = false
	epoch := c.epoch
	c.mu.Unlock()

	channel, err := c.dialer.Dial(ctx, Events{
		Batch:     func(batch []protocol.Message) { c.receive(epoch, batch) },
		Violation: func(err error) { c.violation(epoch, err) },
		Closed:    func(err error) { c.closed(epoch, err) },
	})
	if err != nil {
		c.dialFailed(err)
		return err
	}

	c.sendMu.Lock()
	c.mu.Lock()
	if c.early {
		c.mu.Unlock()
		c.sendMu.Unlock()
		err := errors.New("connection: channel closed while connecting")
		c.dialFailed(err)
		return err
	}
	c.channel = channel
	c.state = Connected
	c.dialing = false
	queued := c.queue
	c.queue = nil
	c.notify.hold()
	c.notify.push(c.publishConnected)
	c.mu.Unlock()

	for _, message := range queued {
		if err := c.write(channel, message); err != nil {
			c.logger.Warn("flushing queued message", "type", message.Type(), "error", err)
		}
	}
	c.sendMu.Unlock()

	c.metrics.Connected()
	c.logger.Info("connected", "flushed", len(queued))
	c.notify.release()
	return nil
}

// dialFailed keeps the pre-connect queue; the next successful open
// flushes it.
func (c *Connection) dialFailed(err error) {
	c.mu.Lock()
	c.dialing = false
	previous := c.state
	c.state = Disconnected
	held := len(c.queue)
	c.notify.push(c.publishDisconnected)
	c.mu.Unlock()

	if previous == Waiting {
		c.logger.Warn("initial connect failed", "error", err, "held_queued", held)
	} else {
		c.logger.Warn("reconnect failed", "error", err)
	}
	c.notify.drain()
}

func (c *Connection) closed(epoch uint64, err error) {
	c.mu.Lock()
	if epoch == c.epoch && c.dialing {
		c.early = true
		c.mu.Unlock()
		return
	}
	if epoch != c.epoch || c.state != Connected {
		c.mu.Unlock()
		return
	}
	c.state = Disconnected
	c.channel = nil
	c.notify.push(c.publishDisconnected)
	c.mu.Unlock()

	c.metrics.Disconnected()
	if err == nil || netutil.IsExpectedCloseError(err) || isNormalClosure(err) {
		c.logger.Info("disconnected", "error", err)
	} else {
		c.logger.Warn("disconnected", "error", err)
	}
	c.notify.drain()
}

func (c *Connection) publishConnected() {
	c.disconnected.Set(false)
	c.connected.Set(true)
}

func (c *Connection) publishDisconnected() {
	c.connected.Set(false)
	c.disconnected.Set(true)
}

func (c *Connection) receive(epoch uint64, batch []protocol.Message) {
	if !c.currentEpoch(epoch) {
		return
	}
	for _, message := range batch {
		c.metrics.Inbound(message.Type())
	}
	c.batches.Publish(batch)
	for _, message := range batch {
		c.messages.Publish(message)
	}
}

func (c *Connection) violation(epoch uint64, err error) {
	if !c.currentEpoch(epoch) {
		return
	}
	c.metrics.ProtocolViolation()
	c.logger.Warn("dropping inbound frame", "error", err)
}

func (c *Connection) currentEpoch(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return epoch == c.epoch
}

// Send transmits message when Connected, queues it when Waiting, and
// returns ErrDisconnected when Disconnected.
func (c *Connection) Send(ctx context.Context, message protocol.Message) error {
	if err := message.Validate(); err != nil {
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	state, channel := c.state, c.channel
	if state == Waiting {
		c.queue = append(c.queue, message)
	}
	c.mu.Unlock()

	switch state {
	case Waiting:
		c.metrics.Outbound(message.Type(), telemetry.OutboundQueued)
		return nil
	case Disconnected:
		c.metrics.Outbound(message.Type(), telemetry.OutboundDropped)
		c.logger.Warn("dropping message sent while disconnected", "type", message.Type())
		return ErrDisconnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.write(channel, message)
}

// write transmits on channel. The caller holds sendMu.
func (c *Connection) write(channel Channel, message protocol.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	if err := channel.Send(ctx, message); err != nil {
		c.metrics.Outbound(message.Type(), telemetry.OutboundDropped)
		return fmt.Errorf("connection: sending %s: %w", message.Type(), err)
	}
	c.metrics.Outbound(message.Type(), telemetry.OutboundSent)
	return nil
}

func (c *Connection) heartbeatLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(c.heartbeat):
		}
		if c.State() == Disconnected {
			continue
		}
		if err := c.Send(ctx, protocol.KeepAlive()); err != nil && !errors.Is(err, ErrDisconnected) {
			c.logger.Debug("keepAlive not sent", "error", err)
		}
	}
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether a channel is open.
func (c *Connection) IsConnected() bool { return c.State() == Connected }

// IsDisconnected reports whether the connection is Disconnected.
func (c *Connection) IsDisconnected() bool { return c.State() == Disconnected }

// OnMessage registers a callback for every inbound message, in batch
// order.
func (c *Connection) OnMessage(callback func(protocol.Message)) (unsubscribe func()) {
	return c.messages.Subscribe(callback)
}

// OnBatch registers a callback for every inbound batch, including
// empty ones. It runs before the batch's messages reach OnMessage
// observers.
func (c *Connection) OnBatch(callback func([]protocol.Message)) (unsubscribe func()) {
	return c.batches.Subscribe(callback)
}

// OnConnect registers a callback for every connect, and runs it
// immediately if currently connected.
func (c *Connection) OnConnect(callback func()) (unsubscribe func()) {
	return c.connected.Subscribe(callback)
}

// OnDisconnect registers a callback for every disconnect, and runs it
// immediately if currently disconnected.
func (c *Connection) OnDisconnect(callback func()) (unsubscribe func()) {
	return c.disconnected.Subscribe(callback)
}

// notifier delivers state notifications one at a time in push order.
// Whichever goroutine finds the queue idle drains it; a callback that
// triggers another transition only queues it. While held, nothing is
// drained; release drains what accumulated.
type notifier struct {
	mu       sync.Mutex
	pending  []func()
	draining bool
	held     bool
}

func (n *notifier) push(f func()) {
	n.mu.Lock()
	n.pending = append(n.pending, f)
	n.mu.Unlock()
}

func (n *notifier) hold() {
	n.mu.Lock()
	n.held = true
	n.mu.Unlock()
}

func (n *notifier) release() {
	n.mu.Lock()
	n.held = false
	n.mu.Unlock()
	n.drain()
}

func (n *notifier) drain() {
	n.mu.Lock()
	if n.draining {
		n.mu.Unlock()
		return
	}
	n.draining = true
	for len(n.pending) > 0 && !n.held {
		f := n.pending[0]
		n.pending = n.pending[1:]
		n.mu.Unlock()
		f()
		n.mu.Lock()
	}
	n.draining = false
	n.mu.Unlock()
}
