// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package hither

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/labbox-foundation/labbox/protocol"
)

// JobState is the lifecycle state of a job.
type JobState int

const (
	// PendingCreate means hitherCreateJob was sent and no job id has
	// been assigned yet.
	PendingCreate JobState = iota
	// Active means the server assigned a job id.
	Active
	// Finished means the job produced a result.
	Finished
	// Errored means the job failed, or could not be created.
	Errored
)

func (s JobState) String() string {
	switch s {
	case PendingCreate:
		return "pending-create"
	case Active:
		return "active"
	case Finished:
		return "finished"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// Terminal reports whether s is Finished or Errored.
func (s JobState) Terminal() bool { return s == Finished || s == Errored }

// ErrNotActive is returned by Job.Cancel for a job that has no server
// job id yet or has already completed.
var ErrNotActive = errors.New("hither: job is not active")

// JobError is the error a job resolves to when the server reports
// hitherJobError, or when a result_sha1 document cannot be loaded.
type JobError struct {
	FunctionName string
	JobID        protocol.JobID
	ClientJobID  string
	Message      string
	RuntimeInfo  json.RawMessage

	// Err is set when the failure happened on the client side, such
	// as loading a result document.
	Err error
}

func (e *JobError) Error() string {
	id := string(e.JobID)
	if id == "" {
		id = e.ClientJobID
	}
	if e.Err != nil {
		return fmt.Sprintf("hither: job %s (%s): %s: %v", id, e.FunctionName, e.Message, e.Err)
	}
	return fmt.Sprintf("hither: job %s (%s): %s", id, e.FunctionName, e.Message)
}

func (e *JobError) Unwrap() error { return e.Err }

// AsJobError returns the *JobError in err's chain, if any.
func AsJobError(err error) (*JobError, bool) {
	var jobError *JobError
	if errors.As(err, &jobError) {
		return jobError, true
	}
	return nil, false
}

// Job is the handle for one created job. All methods are safe for
// concurrent use.
type Job struct {
	iface        *Interface
	functionName string
	clientJobID  string
	done         chan struct{}

	mu          sync.Mutex
	state       JobState
	id          protocol.JobID
	result      json.RawMessage
	runtimeInfo json.RawMessage
	err         error
}

func newJob(iface *Interface, functionName, clientJobID string) *Job {
	return &Job{
		iface:        iface,
		functionName: functionName,
		clientJobID:  clientJobID,
		done:         make(chan struct{}),
	}
}

// FunctionName returns the remote function this job runs.
func (j *Job) FunctionName() string { return j.functionName }

// ClientJobID returns the client-generated correlation token.
func (j *Job) ClientJobID() string { return j.clientJobID }

// ID returns the server-assigned job id, or "" while PendingCreate.
func (j *Job) ID() protocol.JobID {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.id
}

// State returns the job's current state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// RuntimeInfo returns the runtime_info the server reported with the
// job's completion, or nil.
func (j *Job) RuntimeInfo() json.RawMessage {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runtimeInfo
}

// Done is closed when the job finishes or errors.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job completes or ctx ends. It returns the raw
// JSON result of a finished job, or a *JobError. Returning because ctx
// ended does not cancel the remote job.
func (j *Job) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Decode waits for the job and unmarshals its result into v.
func (j *Job) Decode(ctx context.Context, v any) error {
	result, err := j.Wait(ctx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(result, v); err != nil {
		return fmt.Errorf("hither: decoding result of %s: %w", j.functionName, err)
	}
	return nil
}

// Cancel asks the server to cancel an Active job. The job still
// completes through the server's hitherJobError or hitherJobFinished.
func (j *Job) Cancel(ctx context.Context) error {
	j.mu.Lock()
	state, id := j.state, j.id
	j.mu.Unlock()
	if state != Active {
		return fmt.Errorf("%w: %s is %s", ErrNotActive, j.clientJobID, state)
	}
	return j.iface.send(ctx, protocol.CancelJob{JobID: id}.Message())
}

// activate binds the server id. It reports false if the job was not
// PendingCreate.
func (j *Job) activate(id protocol.JobID) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != PendingCreate {
		return false
	}
	j.state = Active
	j.id = id
	return true
}

// complete moves the job to a terminal state and releases waiters. It
// reports false if the job had already completed.
func (j *Job) complete(state JobState, result, runtimeInfo json.RawMessage, err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return false
	}
	j.state = state
	j.result = result
	j.runtimeInfo = runtimeInfo
	j.err = err
	close(j.done)
	return true
}
