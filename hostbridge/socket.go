// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package hostbridge

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/labbox-foundation/labbox/connection"
	"github.com/labbox-foundation/labbox/lib/codec"
	"github.com/labbox-foundation/labbox/lib/netutil"
	"github.com/labbox-foundation/labbox/lib/observer"
	"github.com/labbox-foundation/labbox/lib/telemetry"
	"github.com/labbox-foundation/labbox/protocol"
)

var _ connection.ClosingBridge = (*Socket)(nil)

// SocketConfig configures DialSocket.
type SocketConfig struct {
	// Path is the host's Unix socket.
	Path string

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *telemetry.Metrics
}

// outboundFrame is the client-to-host stream item.
type outboundFrame struct {
	Message protocol.Message `cbor:"message"`
	Options map[string]any   `cbor:"options,omitempty"`
}

// Socket is a HostBridge over a Unix socket.
type Socket struct {
	conn      net.Conn
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	receivers observer.List[[]protocol.Message]

	writeMu sync.Mutex
	writer  *bufio.Writer
	encoder *codec.Encoder

	closeOnce sync.Once
	closed    chan error
}

// DialSocket connects to the host socket and starts reading batches.
func DialSocket(ctx context.Context, config SocketConfig) (*Socket, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("hostbridge: socket path is required")
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", config.Path)
	if err != nil {
		return nil, fmt.Errorf("hostbridge: dialing %s: %w", config.Path, err)
	}
	return NewSocket(conn, config), nil
}

// NewSocket runs the bridge protocol over an established connection.
func NewSocket(conn net.Conn, config SocketConfig) *Socket {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	writer := bufio.NewWriter(conn)
	s := &Socket{
		conn:    conn,
		logger:  logger.With("bridge", "socket"),
		metrics: config.Metrics,
		writer:  writer,
		encoder: codec.NewEncoder(writer),
		closed:  make(chan error, 1),
	}
	go s.readLoop()
	return s
}

func (s *Socket) readLoop() {
	decoder := codec.NewDecoder(bufio.NewReader(s.conn))
	for {
		var raw codec.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			s.finish(err)
			return
		}
		if !codec.IsArray(raw) {
			s.metrics.ProtocolViolation()
			s.logger.Warn("dropping host frame that is not a batch", "frame", codec.Diagnose(raw))
			continue
		}
		var frame any
		if err := codec.Unmarshal(raw, &frame); err != nil {
			s.metrics.ProtocolViolation()
			s.logger.Warn("dropping undecodable host frame", "error", err)
			continue
		}
		batch, err := protocol.AsBatch(frame)
		if err != nil {
			s.metrics.ProtocolViolation()
			s.logger.Warn("host batch had malformed elements", "error", err)
		}
		if batch == nil {
			batch = []protocol.Message{}
		}
		s.receivers.Publish(batch)
	}
}

// Send writes one message frame.
func (s *Socket) Send(message protocol.Message, options map[string]any) error {
	if err := message.Validate(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.encoder.Encode(outboundFrame{Message: message, Options: options}); err != nil {
		return fmt.Errorf("hostbridge: encoding %s: %w", message.Type(), err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("hostbridge: writing %s: %w", message.Type(), err)
	}
	return nil
}

// Subscribe registers a receiver for inbound batches.
func (s *Socket) Subscribe(receive func([]protocol.Message)) func() {
	return s.receivers.Subscribe(receive)
}

// Closed yields the reason the socket ended: nil for an orderly close.
func (s *Socket) Closed() <-chan error { return s.closed }

// Close closes the socket.
func (s *Socket) Close() error {
	err := s.conn.Close()
	s.finish(nil)
	return err
}

func (s *Socket) finish(err error) {
	s.closeOnce.Do(func() {
		if err == nil || netutil.IsExpectedCloseError(err) {
			s.logger.Debug("host socket closed", "error", err)
			err = nil
		} else {
			s.logger.Warn("host socket failed", "error", err)
		}
		_ = s.conn.Close()
		s.closed <- err
		close(s.closed)
	})
}
