// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package hither

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/labbox-foundation/labbox/lib/telemetry"
	"github.com/labbox-foundation/labbox/protocol"
)

// DefaultResultTimeout bounds loading one result_sha1 document.
const DefaultResultTimeout = 2 * time.Minute

// ErrNoSender is returned by CreateJob before a Sender is registered.
var ErrNoSender = errors.New("hither: no sender registered")

// Sender transmits one outbound message.
type Sender func(ctx context.Context, message protocol.Message) error

// ResultLoader fetches a job result stored by content hash. The feed
// API client implements it.
type ResultLoader interface {
	LoadSHA1(ctx context.Context, sha1 string) ([]byte, error)
}

// JobSpec describes a job to create.
type JobSpec struct {
	// FunctionName is the registered remote function.
	FunctionName string

	// Kwargs are the function's keyword arguments. nil sends {}.
	Kwargs map[string]any

	// Options are passed through as the message's opts, e.g. a job
	// handler name. Omitted when empty.
	Options map[string]any
}

// InterfaceConfig configures an Interface.
type InterfaceConfig struct {
	// ResultLoader resolves result_sha1. Without one, a job finished by
	// hash errors.
	ResultLoader ResultLoader

	// ResultTimeout bounds one result load. Default:
	// DefaultResultTimeout.
	ResultTimeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *telemetry.Metrics
}

// Interface tracks the jobs this client created.
type Interface struct {
	loader        ResultLoader
	resultTimeout time.Duration
	logger        *slog.Logger
	metrics       *telemetry.Metrics

	mu      sync.Mutex
	sender  Sender
	byToken map[string]*Job
	byID    map[protocol.JobID]*Job
}

// NewInterface returns an Interface with no Sender.
func NewInterface(config InterfaceConfig) *Interface {
	iface := &Interface{
		loader:        config.ResultLoader,
		resultTimeout: config.ResultTimeout,
		logger:        config.Logger,
		metrics:       config.Metrics,
		byToken:       make(map[string]*Job),
		byID:          make(map[protocol.JobID]*Job),
	}
	if iface.resultTimeout <= 0 {
		iface.resultTimeout = DefaultResultTimeout
	}
	if iface.logger == nil {
		iface.logger = slog.Default()
	}
	return iface
}

// RegisterSender sets the outbound sink, replacing any earlier one.
func (i *Interface) RegisterSender(sender Sender) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sender = sender
}

func (i *Interface) send(ctx context.Context, message protocol.Message) error {
	i.mu.Lock()
	sender := i.sender
	i.mu.Unlock()
	if sender == nil {
		return ErrNoSender
	}
	return sender(ctx, message)
}

// CreateJob sends hitherCreateJob for spec and returns the job's
// handle. The job is tracked before the message is sent, so a
// hitherJobCreated that arrives before CreateJob returns still binds.
func (i *Interface) CreateJob(ctx context.Context, spec JobSpec) (*Job, error) {
	if spec.FunctionName == "" {
		return nil, errors.New("hither: job spec has no function name")
	}

	i.mu.Lock()
	sender := i.sender
	if sender == nil {
		i.mu.Unlock()
		return nil, ErrNoSender
	}
	job := newJob(i, spec.FunctionName, uuid.NewString())
	i.byToken[job.clientJobID] = job
	pending := len(i.byToken)
	i.mu.Unlock()
	i.metrics.PendingJobs(pending)

	message := protocol.CreateJob{
		FunctionName: spec.FunctionName,
		Kwargs:       spec.Kwargs,
		ClientJobID:  job.clientJobID,
		Opts:         spec.Options,
	}.Message()
	if err := sender(ctx, message); err != nil {
		i.untrack(job)
		return nil, fmt.Errorf("hither: creating %s job: %w", spec.FunctionName, err)
	}
	i.logger.Debug("job created", "function", spec.FunctionName, "client_job_id", job.clientJobID)
	return job, nil
}

// NumPendingJobs returns the number of tracked jobs, pending or
// active.
func (i *Interface) NumPendingJobs() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.byToken)
}

// HandleMessage applies one inbound message. Messages of other types
// are ignored, so it can be registered directly as a connection
// message observer.
func (i *Interface) HandleMessage(message protocol.Message) {
	switch message.Type() {
	case protocol.TypeHitherJobCreated:
		var created protocol.JobCreated
		if i.decode(message, &created) {
			i.jobCreated(created)
		}
	case protocol.TypeHitherJobFinished:
		var finished protocol.JobFinished
		if i.decode(message, &finished) {
			i.jobFinished(finished)
		}
	case protocol.TypeHitherJobError:
		var failed protocol.JobError
		if i.decode(message, &failed) {
			i.jobError(failed)
		}
	}
}

func (i *Interface) decode(message protocol.Message, v any) bool {
	if err := message.Decode(v); err != nil {
		i.logger.Warn("dropping malformed job event", "type", message.Type(), "error", err)
		return false
	}
	return true
}

func (i *Interface) jobCreated(created protocol.JobCreated) {
	i.mu.Lock()
	job, ok := i.byToken[created.ClientJobID]
	if !ok || created.JobID == "" || !job.activate(created.JobID) {
		i.mu.Unlock()
		i.logger.Debug("ignoring hitherJobCreated for untracked job",
			"job_id", created.JobID, "client_job_id", created.ClientJobID)
		return
	}
	i.byID[created.JobID] = job
	i.mu.Unlock()
	i.logger.Debug("job active", "job_id", created.JobID, "function", job.functionName)
}

func (i *Interface) jobFinished(finished protocol.JobFinished) {
	i.mu.Lock()
	job, ok := i.byID[finished.JobID]
	if ok {
		i.removeLocked(job)
	}
	i.mu.Unlock()
	if !ok {
		i.logger.Debug("ignoring hitherJobFinished for unknown job", "job_id", finished.JobID)
		return
	}
	i.metrics.PendingJobs(i.NumPendingJobs())

	if len(finished.Result) == 0 && finished.ResultSHA1 != "" {
		go i.loadResult(job, finished)
		return
	}
	result := finished.Result
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	i.resolve(job, result, finished.RuntimeInfo)
}

func (i *Interface) loadResult(job *Job, finished protocol.JobFinished) {
	fail := func(message string, err error) {
		i.reject(job, &JobError{
			FunctionName: job.functionName,
			JobID:        finished.JobID,
			ClientJobID:  job.clientJobID,
			Message:      message,
			RuntimeInfo:  finished.RuntimeInfo,
			Err:          err,
		}, finished.RuntimeInfo)
	}
	if i.loader == nil {
		fail("result delivered by sha1 and no result loader is configured", nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.resultTimeout)
	defer cancel()
	data, err := i.loader.LoadSHA1(ctx, finished.ResultSHA1)
	if err != nil {
		fail("loading result "+finished.ResultSHA1, err)
		return
	}
	if !json.Valid(data) {
		fail("result "+finished.ResultSHA1+" is not JSON", nil)
		return
	}
	i.resolve(job, json.RawMessage(data), finished.RuntimeInfo)
}

func (i *Interface) jobError(failed protocol.JobError) {
	i.mu.Lock()
	job, ok := i.byID[failed.JobID]
	if !ok {
		// A creation failure arrives before any id is assigned and
		// carries the client token as its job id.
		job, ok = i.byToken[string(failed.JobID)]
		ok = ok && job.State() == PendingCreate
	}
	if ok {
		i.removeLocked(job)
	}
	i.mu.Unlock()
	if !ok {
		i.logger.Debug("ignoring hitherJobError for unknown job", "job_id", failed.JobID)
		return
	}
	i.metrics.PendingJobs(i.NumPendingJobs())

	i.reject(job, &JobError{
		FunctionName: job.functionName,
		JobID:        job.ID(),
		ClientJobID:  job.clientJobID,
		Message:      failed.ErrorMessage,
		RuntimeInfo:  failed.RuntimeInfo,
	}, failed.RuntimeInfo)
}

func (i *Interface) resolve(job *Job, result, runtimeInfo json.RawMessage) {
	if job.complete(Finished, result, runtimeInfo, nil) {
		i.metrics.JobCompleted(telemetry.JobFinished)
		i.logger.Debug("job finished", "job_id", job.ID(), "function", job.functionName)
	}
}

func (i *Interface) reject(job *Job, err *JobError, runtimeInfo json.RawMessage) {
	if job.complete(Errored, nil, runtimeInfo, err) {
		i.metrics.JobCompleted(telemetry.JobErrored)
		i.logger.Info("job errored", "job_id", job.ID(), "function", job.functionName, "error", err.Message)
	}
}

func (i *Interface) untrack(job *Job) {
	i.mu.Lock()
	i.removeLocked(job)
	pending := len(i.byToken)
	i.mu.Unlock()
	i.metrics.PendingJobs(pending)
}

// removeLocked drops job from tracking. The caller holds i.mu.
func (i *Interface) removeLocked(job *Job) {
	delete(i.byToken, job.clientJobID)
	if id := job.ID(); id != "" {
		delete(i.byID, id)
	}
}
