// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package subfeed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/labbox-foundation/labbox/lib/clock"
	"github.com/labbox-foundation/labbox/lib/telemetry"
	"github.com/labbox-foundation/labbox/protocol"
)

const (
	// DefaultNotifyGrace is added to a request's wait budget before a
	// missing notification is treated as lost.
	DefaultNotifyGrace = 2000 * time.Millisecond

	// DefaultWaitMsec is the replica driver's wait budget per poll.
	DefaultWaitMsec = 12000

	// DefaultIdlePause separates replica driver cycles.
	DefaultIdlePause = 100 * time.Millisecond
)

// Fetcher reads and appends subfeed messages over the feed API.
// *feedapi.Client implements it.
type Fetcher interface {
	GetMessages(ctx context.Context, feedURI string, subfeedName any, position, waitMsec int) ([]json.RawMessage, error)
	AppendMessages(ctx context.Context, feedURI string, subfeedName any, messages []json.RawMessage) error
}

// Sender transmits a message over the connection.
// *connection.Connection implements it.
type Sender interface {
	Send(ctx context.Context, message protocol.Message) error
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Fetcher is required.
	Fetcher Fetcher

	// Sender carries subfeedMessageRequest. Without one, waiting
	// requests long-poll the feed API directly.
	Sender Sender

	// NotifyGrace defaults to DefaultNotifyGrace.
	NotifyGrace time.Duration

	// WaitMsec is the replica driver's wait budget. Default:
	// DefaultWaitMsec.
	WaitMsec int

	// IdlePause separates replica driver cycles. Default:
	// DefaultIdlePause.
	IdlePause time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *telemetry.Metrics
}

// Manager owns the pending subfeed requests and the replicas driven
// through it.
type Manager struct {
	fetcher     Fetcher
	sender      Sender
	notifyGrace time.Duration
	waitMsec    int
	idlePause   time.Duration
	clock       clock.Clock
	logger      *slog.Logger
	metrics     *telemetry.Metrics

	life context.Context
	stop context.CancelFunc

	mu       sync.Mutex
	pending  map[string]*pendingRequest
	replicas map[Key]*Subfeed
}

// pendingRequest is one waiting GetMessages call. The first of the
// notification, the timeout and cancellation to win resolved claims
// it.
type pendingRequest struct {
	id       string
	resolved atomic.Bool
	notified chan int
}

// NewManager returns a Manager. Close stops every replica it drives.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.Fetcher == nil {
		return nil, errors.New("subfeed: manager requires a fetcher")
	}
	life, stop := context.WithCancel(context.Background())
	m := &Manager{
		fetcher:     config.Fetcher,
		sender:      config.Sender,
		notifyGrace: config.NotifyGrace,
		waitMsec:    config.WaitMsec,
		idlePause:   config.IdlePause,
		clock:       config.Clock,
		logger:      config.Logger,
		metrics:     config.Metrics,
		life:        life,
		stop:        stop,
		pending:     make(map[string]*pendingRequest),
		replicas:    make(map[Key]*Subfeed),
	}
	if m.notifyGrace <= 0 {
		m.notifyGrace = DefaultNotifyGrace
	}
	if m.waitMsec <= 0 {
		m.waitMsec = DefaultWaitMsec
	}
	if m.idlePause <= 0 {
		m.idlePause = DefaultIdlePause
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m, nil
}

// Close stops every replica driver, abandoning in-flight polls.
func (m *Manager) Close() error {
	m.stop()
	return nil
}

// GetMessages returns the messages of the subfeed at or after
// position. If none are available and waitMsec > 0, it waits for the
// server to report new messages, at most waitMsec plus the notify
// grace. A wait that ends without a notification returns an empty
// result, not an error.
func (m *Manager) GetMessages(ctx context.Context, feedURI string, subfeedName any, position, waitMsec int) ([]json.RawMessage, error) {
	messages, err := m.fetcher.GetMessages(ctx, feedURI, subfeedName, position, 0)
	if err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		m.metrics.SubfeedRequest(telemetry.SubfeedImmediate)
		return messages, nil
	}
	if waitMsec <= 0 {
		m.metrics.SubfeedRequest(telemetry.SubfeedEmpty)
		return nil, nil
	}

	request := &pendingRequest{id: uuid.NewString(), notified: make(chan int, 1)}
	m.mu.Lock()
	m.pending[request.id] = request
	m.mu.Unlock()
	defer m.forget(request)

	if m.sender == nil {
		return m.longPoll(ctx, feedURI, subfeedName, position, waitMsec)
	}
	err = m.sender.Send(ctx, protocol.SubfeedMessageRequest{
		RequestID:   request.id,
		FeedURI:     feedURI,
		SubfeedName: subfeedName,
		Position:    position,
		WaitMsec:    waitMsec,
	}.Message())
	if err != nil {
		// No notification can arrive; let the feed API hold the
		// request instead.
		m.logger.Debug("subfeed request not sent, long-polling the feed api",
			"request_id", request.id, "error", err)
		return m.longPoll(ctx, feedURI, subfeedName, position, waitMsec)
	}

	timeout := time.Duration(waitMsec)*time.Millisecond + m.notifyGrace
	expired := make(chan struct{})
	timer := m.clock.AfterFunc(timeout, func() { close(expired) })
	defer timer.Stop()
	select {
	case count := <-request.notified:
		return m.notified(ctx, feedURI, subfeedName, position, count)
	case <-expired:
		if !request.resolved.CompareAndSwap(false, true) {
			// A notification claimed the request first.
			return m.notified(ctx, feedURI, subfeedName, position, <-request.notified)
		}
		m.metrics.SubfeedRequest(telemetry.SubfeedTimeout)
		m.logger.Warn("no subfeed notification before timeout",
			"request_id", request.id, "feed_uri", feedURI, "position", position, "timeout", timeout)
		return nil, nil
	case <-ctx.Done():
		request.resolved.Store(true)
		return nil, ctx.Err()
	}
}

func (m *Manager) notified(ctx context.Context, feedURI string, subfeedName any, position, count int) ([]json.RawMessage, error) {
	if count <= 0 {
		m.metrics.SubfeedRequest(telemetry.SubfeedEmpty)
		return nil, nil
	}
	m.metrics.SubfeedRequest(telemetry.SubfeedNotified)
	return m.fetcher.GetMessages(ctx, feedURI, subfeedName, position, 0)
}

func (m *Manager) longPoll(ctx context.Context, feedURI string, subfeedName any, position, waitMsec int) ([]json.RawMessage, error) {
	messages, err := m.fetcher.GetMessages(ctx, feedURI, subfeedName, position, waitMsec)
	if err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		m.metrics.SubfeedRequest(telemetry.SubfeedImmediate)
	} else {
		m.metrics.SubfeedRequest(telemetry.SubfeedEmpty)
	}
	return messages, nil
}

func (m *Manager) forget(request *pendingRequest) {
	m.mu.Lock()
	delete(m.pending, request.id)
	m.mu.Unlock()
}

// NumPending returns the number of requests waiting for a
// notification.
func (m *Manager) NumPending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// HandleMessage applies subfeedMessageRequestResponse notifications
// and ignores every other message type, so it can be registered
// directly as a connection message observer.
func (m *Manager) HandleMessage(message protocol.Message) {
	if message.Type() != protocol.TypeSubfeedMessageRequestResponse {
		return
	}
	var response protocol.SubfeedMessageRequestResponse
	if err := message.Decode(&response); err != nil {
		m.logger.Warn("dropping malformed subfeed notification", "error", err)
		return
	}

	m.mu.Lock()
	request, ok := m.pending[response.RequestID]
	delete(m.pending, response.RequestID)
	m.mu.Unlock()
	if !ok || !request.resolved.CompareAndSwap(false, true) {
		m.logger.Debug("ignoring notification for unknown or resolved subfeed request",
			"request_id", response.RequestID)
		return
	}
	request.notified <- response.NumNewMessages
}

// AppendMessages appends messages to the remote subfeed. Local
// replicas learn of them through their normal polling.
func (m *Manager) AppendMessages(ctx context.Context, feedURI string, subfeedName any, messages []json.RawMessage) error {
	if len(messages) == 0 {
		return nil
	}
	return m.fetcher.AppendMessages(ctx, feedURI, subfeedName, messages)
}

// Subscribe returns the replica of the (feedURI, subfeedName) pair,
// starting its driver if it is not already running. Each call must be
// balanced by a Cleanup on the returned Subfeed.
func (m *Manager) Subscribe(feedURI string, subfeedName any) (*Subfeed, error) {
	key, err := KeyOf(feedURI, subfeedName)
	if err != nil {
		return nil, err
	}
	if err := m.life.Err(); err != nil {
		return nil, errors.New("subfeed: manager closed")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if replica, ok := m.replicas[key]; ok && replica.acquire() {
		return replica, nil
	}
	replica := newSubfeed(m, key, feedURI, subfeedName)
	m.replicas[key] = replica
	go replica.run()
	return replica, nil
}

// release removes replica from the driven set if it is still the
// registered one for its key.
func (m *Manager) release(replica *Subfeed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replicas[replica.key] == replica {
		delete(m.replicas, replica.key)
	}
}
