// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package labbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/labbox-foundation/labbox/connection"
	"github.com/labbox-foundation/labbox/feedapi"
	"github.com/labbox-foundation/labbox/hither"
	"github.com/labbox-foundation/labbox/hostbridge"
	"github.com/labbox-foundation/labbox/lib/clock"
	"github.com/labbox-foundation/labbox/lib/config"
	"github.com/labbox-foundation/labbox/lib/observer"
	"github.com/labbox-foundation/labbox/lib/telemetry"
	"github.com/labbox-foundation/labbox/protocol"
	"github.com/labbox-foundation/labbox/subfeed"
)

// ErrNoFeedAPI is returned by subfeed operations when the
// configuration has no feed_url.
var ErrNoFeedAPI = errors.New("labbox: no feed url configured")

// Options carries the collaborators a Config cannot express.
type Options struct {
	// Bridge is an in-process host bridge. In host mode it is used
	// instead of dialing the configured host socket.
	Bridge connection.HostBridge

	// Dialer replaces the configured transport entirely.
	Dialer connection.Dialer

	// HTTPClient is used for the feed API. Default: a gzip-negotiating
	// client.
	HTTPClient *http.Client

	// Authorize adds auth headers or cookies to every feed API
	// request.
	Authorize func(*http.Request) error

	// PollActive gates the host-mode iterate loop. The loop stops at
	// the first cycle where it returns false and restarts on the next
	// wake. Default: always active.
	PollActive func() bool

	// Registerer receives the client's metrics. Nil disables metrics.
	Registerer prometheus.Registerer

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client is one labbox session.
type Client struct {
	config   *config.Config
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	host     bool
	strategy hither.PollingStrategy

	conn     *connection.Connection
	jobs     *hither.Interface
	feeds    *feedapi.Client
	subfeeds *subfeed.Manager

	mu         sync.Mutex
	started    bool
	stop       context.CancelFunc
	poller     *hither.Poller
	detach     []func()
	serverInfo *protocol.ServerInfo

	// notifyMu orders server info publication against OnServerInfo
	// replay. Callbacks run while it is held.
	notifyMu    sync.Mutex
	serverInfos observer.List[protocol.ServerInfo]
	initialLoad observer.Condition
}

// New validates cfg and assembles a Client. It performs no network
// I/O; call Start to connect.
func New(cfg *config.Config, options Options) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("labbox: invalid configuration: %w", err)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clockSource := options.Clock
	if clockSource == nil {
		clockSource = clock.Real()
	}

	var metrics *telemetry.Metrics
	if options.Registerer != nil {
		var err error
		metrics, err = telemetry.New(options.Registerer)
		if err != nil {
			return nil, fmt.Errorf("labbox: %w", err)
		}
	}

	client := &Client{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		host:    cfg.Mode == config.ModeHost,
		strategy: hither.PollingStrategy{
			Initial: cfg.Polling.Initial,
			Step:    cfg.Polling.Step,
			Ceiling: cfg.Polling.Ceiling,
			Active:  options.PollActive,
			Clock:   clockSource,
		},
	}

	connectionConfig := connection.Config{
		Heartbeat: cfg.Heartbeat,
		Clock:     clockSource,
		Logger:    logger.With("component", "connection"),
		Metrics:   metrics,
	}
	switch {
	case options.Dialer != nil:
		connectionConfig.Dialer = options.Dialer
	case client.host && options.Bridge != nil:
		connectionConfig.Bridge = options.Bridge
	case client.host:
		connectionConfig.Dialer = &socketDialer{config: hostbridge.SocketConfig{
			Path:    cfg.HostSocket,
			Logger:  logger.With("component", "hostbridge"),
			Metrics: metrics,
		}}
	default:
		connectionConfig.WebSocketURL = cfg.WebSocketURL
	}
	conn, err := connection.New(connectionConfig)
	if err != nil {
		return nil, fmt.Errorf("labbox: %w", err)
	}
	client.conn = conn

	if cfg.FeedURL != "" || cfg.SHA1URL != "" {
		client.feeds, err = feedapi.NewClient(feedapi.ClientConfig{
			BaseURL:    cfg.FeedURL,
			SHA1URL:    cfg.SHA1URL,
			HTTPClient: options.HTTPClient,
			Authorize:  options.Authorize,
			Logger:     logger.With("component", "feedapi"),
		})
		if err != nil {
			return nil, fmt.Errorf("labbox: %w", err)
		}
	}

	interfaceConfig := hither.InterfaceConfig{
		Logger:  logger.With("component", "hither"),
		Metrics: metrics,
	}
	if client.feeds != nil && cfg.SHA1URL != "" {
		interfaceConfig.ResultLoader = client.feeds
	}
	client.jobs = hither.NewInterface(interfaceConfig)

	if cfg.FeedURL != "" {
		client.subfeeds, err = subfeed.NewManager(subfeed.ManagerConfig{
			Fetcher:   client.feeds,
			Sender:    conn,
			WaitMsec:  cfg.Subfeed.WaitMsec,
			IdlePause: cfg.Subfeed.IdlePause,
			Clock:     clockSource,
			Logger:    logger.With("component", "subfeed"),
			Metrics:   metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("labbox: %w", err)
		}
		client.detach = append(client.detach, conn.OnMessage(client.subfeeds.HandleMessage))
	}

	client.detach = append(client.detach, conn.OnMessage(client.handleMessage))
	if !client.host {
		client.detach = append(client.detach, hither.AttachSocket(client.jobs, conn))
	}
	return client, nil
}

// Start connects and, in host mode, starts the iterate poller. Both
// run until ctx ends or Close is called. Calls after the first are
// no-ops.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	ctx, c.stop = context.WithCancel(ctx)

	// Attach before connecting so the startup iterate is queued
	// ahead of anything the host sends.
	if c.host {
		poller, detach := hither.AttachHost(ctx, c.jobs, c.conn, c.strategy)
		c.poller = poller
		c.detach = append(c.detach, detach)
	}
	c.mu.Unlock()

	// Connect observers may run inside Start.
	c.conn.Start(ctx)
	c.logger.Info("labbox client started", "mode", c.config.Mode)
}

// Close ends the session: replica drivers stop, observers detach and
// the connection closes.
func (c *Client) Close() error {
	c.mu.Lock()
	stop := c.stop
	detach := c.detach
	c.detach = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	for _, f := range detach {
		f()
	}
	var errs []error
	if c.subfeeds != nil {
		errs = append(errs, c.subfeeds.Close())
	}
	errs = append(errs, c.conn.Close())
	return errors.Join(errs...)
}

// Status returns the connection state: "waiting", "connected" or
// "disconnected".
func (c *Client) Status() string { return c.conn.State().String() }

// Reconnect reopens a disconnected connection. See
// [connection.Connection.Reconnect].
func (c *Client) Reconnect(ctx context.Context) error { return c.conn.Reconnect(ctx) }

// Connection returns the underlying connection.
func (c *Client) Connection() *connection.Connection { return c.conn }

// Jobs returns the hither job dispatcher.
func (c *Client) Jobs() *hither.Interface { return c.jobs }

// Poller returns the host-mode iterate poller, or nil in websocket
// mode or before Start.
func (c *Client) Poller() *hither.Poller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poller
}

// Feeds returns the feed API client, or nil if neither feed_url nor
// sha1_url is configured.
func (c *Client) Feeds() *feedapi.Client { return c.feeds }

// Subfeeds returns the subfeed manager, or nil without a feed_url.
func (c *Client) Subfeeds() *subfeed.Manager { return c.subfeeds }

// CreateJob starts a hither job.
func (c *Client) CreateJob(ctx context.Context, spec hither.JobSpec) (*hither.Job, error) {
	return c.jobs.CreateJob(ctx, spec)
}

// Subscribe returns a replica of the subfeed. Balance it with Cleanup.
func (c *Client) Subscribe(feedURI string, subfeedName any) (*subfeed.Subfeed, error) {
	if c.subfeeds == nil {
		return nil, ErrNoFeedAPI
	}
	return c.subfeeds.Subscribe(feedURI, subfeedName)
}

// ServerInfo returns the most recent server info, if any has arrived.
func (c *Client) ServerInfo() (protocol.ServerInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.serverInfo == nil {
		return protocol.ServerInfo{}, false
	}
	return *c.serverInfo, true
}

// OnServerInfo registers callback for every server info report. If
// one has already arrived, callback runs immediately with it.
// Callbacks must not register further server info observers.
func (c *Client) OnServerInfo(callback func(protocol.ServerInfo)) (unsubscribe func()) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	unsubscribe = c.serverInfos.Subscribe(callback)
	if info, ok := c.ServerInfo(); ok {
		callback(info)
	}
	return unsubscribe
}

// InitialLoadComplete reports whether the server has announced the
// end of its initial load.
func (c *Client) InitialLoadComplete() bool { return c.initialLoad.Holds() }

// OnInitialLoadComplete registers callback for the server's initial
// load announcement, running it immediately if that already happened.
func (c *Client) OnInitialLoadComplete(callback func()) (unsubscribe func()) {
	return c.initialLoad.Subscribe(callback)
}

func (c *Client) handleMessage(message protocol.Message) {
	switch message.Type() {
	case protocol.TypeReportServerInfo:
		var report protocol.ReportServerInfo
		if err := message.Decode(&report); err != nil {
			c.logger.Warn("dropping malformed server info", "error", err)
			return
		}
		c.notifyMu.Lock()
		defer c.notifyMu.Unlock()
		c.mu.Lock()
		info := report.ServerInfo
		c.serverInfo = &info
		c.mu.Unlock()
		c.logger.Info("server info received",
			"node_id", info.NodeID, "default_feed_id", info.DefaultFeedID)
		c.serverInfos.Publish(info)
	case protocol.TypeReportInitialLoadComplete:
		if c.initialLoad.Set(true) {
			c.logger.Info("server initial load complete")
		}
	}
}

// socketDialer opens a fresh host socket bridge for every epoch, so
// Reconnect redials the socket.
type socketDialer struct {
	config hostbridge.SocketConfig
}

var _ connection.Dialer = (*socketDialer)(nil)

func (d *socketDialer) Dial(ctx context.Context, events connection.Events) (connection.Channel, error) {
	socket, err := hostbridge.DialSocket(ctx, d.config)
	if err != nil {
		return nil, err
	}
	channel, err := (&connection.HostDialer{Bridge: socket}).Dial(ctx, events)
	if err != nil {
		socket.Close()
		return nil, err
	}
	return &socketChannel{Channel: channel, socket: socket}, nil
}

// socketChannel closes its socket along with the host channel.
type socketChannel struct {
	connection.Channel
	socket *hostbridge.Socket
}

func (c *socketChannel) Close() error {
	err := c.Channel.Close()
	return errors.Join(err, c.socket.Close())
}
