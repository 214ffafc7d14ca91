// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry defines the Prometheus metrics labbox components
// report. A nil *Metrics is valid and records nothing, so components
// take an optional Metrics field and never check it.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "labbox"

// Outbound message dispositions.
const (
	OutboundSent    = "sent"
	OutboundQueued  = "queued"
	OutboundDropped = "dropped"
)

// Job outcomes.
const (
	JobFinished = "finished"
	JobErrored  = "errored"
)

// Subfeed request resolutions.
const (
	SubfeedImmediate = "immediate"
	SubfeedNotified  = "notified"
	SubfeedEmpty     = "empty"
	SubfeedTimeout   = "timeout"
)

// Metrics is the metric set for one client.
type Metrics struct {
	outbound           *prometheus.CounterVec
	inbound            *prometheus.CounterVec
	protocolViolations prometheus.Counter
	connects           prometheus.Counter
	disconnects        prometheus.Counter
	pendingJobs        prometheus.Gauge
	jobs               *prometheus.CounterVec
	subfeedRequests    *prometheus.CounterVec
	replicaMessages    prometheus.Counter
	iterates           prometheus.Counter
}

// New creates the metric set and registers it with registerer. A nil
// registerer leaves the metrics unregistered, which tests use to read
// values without a global registry.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_messages_total",
			Help:      "Outbound messages by type and disposition (sent, queued, dropped).",
		}, []string{"type", "disposition"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound messages by type.",
		}, []string{"type"}),
		protocolViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "Inbound frames dropped because they were not a message batch.",
		}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Successful connects, including reconnects.",
		}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Channel closes.",
		}),
		pendingJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hither_pending_jobs",
			Help:      "Hither jobs created and not yet finished or errored.",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hither_jobs_total",
			Help:      "Completed hither jobs by outcome.",
		}, []string{"outcome"}),
		subfeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subfeed_requests_total",
			Help:      "getMessages calls by resolution.",
		}, []string{"resolution"}),
		replicaMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subfeed_replica_messages_total",
			Help:      "Messages appended to local subfeed replicas.",
		}),
		iterates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hither_iterates_total",
			Help:      "Iterate nudges sent over the host channel.",
		}),
	}
	if registerer == nil {
		return m, nil
	}
	for _, collector := range m.collectors() {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.outbound, m.inbound, m.protocolViolations, m.connects, m.disconnects,
		m.pendingJobs, m.jobs, m.subfeedRequests, m.replicaMessages, m.iterates,
	}
}

// Outbound counts one outbound message.
func (m *Metrics) Outbound(messageType, disposition string) {
	if m == nil {
		return
	}
	m.outbound.WithLabelValues(messageType, disposition).Inc()
}

// Inbound counts one inbound message.
func (m *Metrics) Inbound(messageType string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(messageType).Inc()
}

// ProtocolViolation counts one dropped inbound frame.
func (m *Metrics) ProtocolViolation() {
	if m == nil {
		return
	}
	m.protocolViolations.Inc()
}

// Connected counts a connect.
func (m *Metrics) Connected() {
	if m == nil {
		return
	}
	m.connects.Inc()
}

// Disconnected counts a channel close.
func (m *Metrics) Disconnected() {
	if m == nil {
		return
	}
	m.disconnects.Inc()
}

// PendingJobs records the number of tracked jobs.
func (m *Metrics) PendingJobs(n int) {
	if m == nil {
		return
	}
	m.pendingJobs.Set(float64(n))
}

// JobCompleted counts a job leaving tracking.
func (m *Metrics) JobCompleted(outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(outcome).Inc()
}

// SubfeedRequest counts one getMessages resolution.
func (m *Metrics) SubfeedRequest(resolution string) {
	if m == nil {
		return
	}
	m.subfeedRequests.WithLabelValues(resolution).Inc()
}

// ReplicaGrew counts messages appended to a replica.
func (m *Metrics) ReplicaGrew(n int) {
	if m == nil {
		return
	}
	m.replicaMessages.Add(float64(n))
}

// Iterate counts one iterate nudge.
func (m *Metrics) Iterate() {
	if m == nil {
		return
	}
	m.iterates.Inc()
}
