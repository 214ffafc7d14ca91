// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package hither

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/labbox-foundation/labbox/lib/clock"
	"github.com/labbox-foundation/labbox/lib/telemetry"
	"github.com/labbox-foundation/labbox/protocol"
)

// Default polling strategy values.
const (
	DefaultPollInitial = 300 * time.Millisecond
	DefaultPollStep    = 50 * time.Millisecond
	DefaultPollCeiling = 5 * time.Second

	// DefaultWakeInterval is the minimum spacing of the immediate
	// iterates a wake sends.
	DefaultWakeInterval = 100 * time.Millisecond
)

// PollingStrategy configures the host-mode iterate loop. The interval
// between iterates starts at Initial and grows by Step after every
// cycle up to Ceiling. A wake resets it to Initial.
type PollingStrategy struct {
	Initial time.Duration
	Step    time.Duration
	Ceiling time.Duration

	// Active is checked after every cycle; the loop stops when it
	// returns false. A later wake starts it again. nil means always
	// active.
	Active func() bool

	// Limiter bounds the immediate iterates sent on wake. Default:
	// one per DefaultWakeInterval.
	Limiter *rate.Limiter

	// Clock defaults to clock.Real().
	Clock clock.Clock
}

func (s PollingStrategy) withDefaults() PollingStrategy {
	if s.Initial <= 0 {
		s.Initial = DefaultPollInitial
	}
	if s.Step < 0 {
		s.Step = 0
	} else if s.Step == 0 {
		s.Step = DefaultPollStep
	}
	if s.Ceiling < s.Initial {
		s.Ceiling = max(DefaultPollCeiling, s.Initial)
	}
	if s.Active == nil {
		s.Active = func() bool { return true }
	}
	if s.Limiter == nil {
		s.Limiter = rate.NewLimiter(rate.Every(DefaultWakeInterval), 1)
	}
	if s.Clock == nil {
		s.Clock = clock.Real()
	}
	return s
}

// Poller sends iterate nudges over a host channel. Create with
// NewPoller or AttachHost; the loop starts on the first Wake.
type Poller struct {
	ctx       context.Context
	transport Transport
	strategy  PollingStrategy
	logger    *slog.Logger
	metrics   *telemetry.Metrics

	kick chan struct{}

	mu       sync.Mutex
	running  bool
	interval time.Duration
	stopped  chan struct{}
}

// NewPoller returns an idle Poller bound to ctx.
func NewPoller(ctx context.Context, transport Transport, strategy PollingStrategy, logger *slog.Logger, metrics *telemetry.Metrics) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	strategy = strategy.withDefaults()
	return &Poller{
		ctx:       ctx,
		transport: transport,
		strategy:  strategy,
		logger:    logger,
		metrics:   metrics,
		kick:      make(chan struct{}, 1),
		interval:  strategy.Initial,
	}
}

// Wake resets the interval. A running loop sends an iterate promptly,
// subject to the strategy's Limiter; a stopped loop starts again.
func (p *Poller) Wake() {
	if p.ctx.Err() != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval = p.strategy.Initial
	if !p.running {
		p.running = true
		p.stopped = make(chan struct{})
		select {
		case <-p.kick:
		default:
		}
		go p.loop(p.stopped)
		return
	}
	// Sent under mu so the loop's inactive exit either sees the kick or
	// leaves running false for this Wake to restart.
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Running reports whether the loop is running.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Interval returns the wait before the next scheduled iterate.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Stopped returns a channel closed when the current loop exits, or
// nil if it was never started.
func (p *Poller) Stopped() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func (p *Poller) loop(stopped chan struct{}) {
	defer close(stopped)

	woken := false
	for {
		if !woken || p.strategy.Limiter.AllowN(p.strategy.Clock.Now(), 1) {
			p.iterate()
		}

		elapsed := make(chan struct{}, 1)
		timer := p.strategy.Clock.AfterFunc(p.Interval(), func() { elapsed <- struct{}{} })
		select {
		case <-p.ctx.Done():
			timer.Stop()
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
			return
		case <-elapsed:
			woken = false
			p.mu.Lock()
			p.interval = min(p.interval+p.strategy.Step, p.strategy.Ceiling)
			p.mu.Unlock()
		case <-p.kick:
			timer.Stop()
			woken = true
			p.mu.Lock()
			p.interval = p.strategy.Initial
			p.mu.Unlock()
		}

		if !p.strategy.Active() {
			if p.exitInactive() {
				p.logger.Debug("iterate loop stopped: inactive")
				return
			}
			woken = false
		}
	}
}

// exitInactive marks the loop stopped unless a Wake arrived since the
// last cycle, in which case the loop carries on as if restarted.
func (p *Poller) exitInactive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.kick:
		return false
	default:
	}
	p.running = false
	return true
}

func (p *Poller) iterate() {
	p.metrics.Iterate()
	if err := p.transport.Send(p.ctx, protocol.Iterate()); err != nil {
		p.logger.Debug("iterate not sent", "error", err)
	}
}
