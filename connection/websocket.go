// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/labbox-foundation/labbox/lib/version"
	"github.com/labbox-foundation/labbox/protocol"
)

// DefaultReadLimit bounds a single inbound WebSocket frame: 64 MB.
const DefaultReadLimit int64 = 64 << 20

// WebSocketDialer dials the backend over a WebSocket. Outbound
// messages are JSON text frames; each inbound frame must be a JSON
// array of messages.
type WebSocketDialer struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// HTTPClient is used for the handshake. Default:
	// http.DefaultClient.
	HTTPClient *http.Client

	// Header adds request headers to the handshake, for collaborators
	// that authenticate the socket.
	Header http.Header

	// ReadLimit bounds one inbound frame. Default: DefaultReadLimit.
	ReadLimit int64

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

var _ Dialer = (*WebSocketDialer)(nil)

// wsConn is the part of *websocket.Conn the channel uses.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Dial performs the WebSocket handshake and starts the reader.
func (d *WebSocketDialer) Dial(ctx context.Context, events Events) (Channel, error) {
	header := d.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("User-Agent", version.UserAgent())

	conn, _, err := websocket.Dial(ctx, d.URL, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPClient: d.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("connection: dialing %s: %w", d.URL, err)
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return newWebSocketChannel(conn, events, logger.With("url", d.URL)), nil
}

type webSocketChannel struct {
	conn   wsConn
	events Events
	logger *slog.Logger
	cancel context.CancelFunc

	closeOnce sync.Once
}

func newWebSocketChannel(conn wsConn, events Events, logger *slog.Logger) *webSocketChannel {
	readContext, cancel := context.WithCancel(context.Background())
	channel := &webSocketChannel{conn: conn, events: events, logger: logger, cancel: cancel}
	go channel.readLoop(readContext)
	return channel
}

func (c *webSocketChannel) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.finish(err)
			return
		}
		batch, err := protocol.DecodeBatch(data)
		if err != nil {
			c.events.Violation(err)
			if errors.Is(err, protocol.ErrNotBatch) {
				c.logger.Debug("inbound frame", "bytes", len(data))
				continue
			}
		}
		c.events.Batch(batch)
	}
}

func (c *webSocketChannel) finish(err error) {
	c.closeOnce.Do(func() {
		c.cancel()
		if isNormalClosure(err) || errors.Is(err, context.Canceled) {
			err = nil
		}
		c.events.Closed(err)
	})
}

func (c *webSocketChannel) Send(ctx context.Context, message protocol.Message) error {
	data, err := protocol.Encode(message)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *webSocketChannel) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "client closing")
	c.cancel()
	return err
}

// isNormalClosure reports whether err is a WebSocket close with status
// 1000 or 1001.
func isNormalClosure(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
