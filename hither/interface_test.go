// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package hither

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/labbox-foundation/labbox/lib/testutil"
	"github.com/labbox-foundation/labbox/protocol"
)

const timeout = 5 * time.Second

// recorder is a Sender that records every message.
type recorder struct {
	mu   sync.Mutex
	sent []protocol.Message
	err  error
}

func (r *recorder) send(_ context.Context, message protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, message)
	return nil
}

func (r *recorder) messages() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Message(nil), r.sent...)
}

func newTestInterface(t *testing.T, config InterfaceConfig) (*Interface, *recorder) {
	t.Helper()
	iface := NewInterface(config)
	sink := &recorder{}
	iface.RegisterSender(sink.send)
	return iface, sink
}

func created(jobID any, token string) protocol.Message {
	return protocol.Message{"type": protocol.TypeHitherJobCreated, "job_id": jobID, "client_job_id": token}
}

func finished(jobID any, token string, result any) protocol.Message {
	return protocol.Message{"type": protocol.TypeHitherJobFinished, "job_id": jobID, "client_job_id": token, "result": result}
}

func TestCreateJobRequiresSender(t *testing.T) {
	iface := NewInterface(InterfaceConfig{})
	if _, err := iface.CreateJob(context.Background(), JobSpec{FunctionName: "sum"}); !errors.Is(err, ErrNoSender) {
		t.Fatalf("CreateJob without sender = %v, want ErrNoSender", err)
	}
	iface.RegisterSender((&recorder{}).send)
	if _, err := iface.CreateJob(context.Background(), JobSpec{}); err == nil {
		t.Fatal("CreateJob with no function name succeeded")
	}
}

func TestCreateJobMessage(t *testing.T) {
	iface, sink := newTestInterface(t, InterfaceConfig{})
	job, err := iface.CreateJob(context.Background(), JobSpec{
		FunctionName: "sum",
		Kwargs:       map[string]any{"op": "sum"},
		Options:      map[string]any{"job_handler_name": "partition1"},
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	sent := sink.messages()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	message := sent[0]
	if message.Type() != protocol.TypeHitherCreateJob {
		t.Fatalf("type = %q", message.Type())
	}
	if message["functionName"] != "sum" || message["clientJobId"] != job.ClientJobID() {
		t.Fatalf("message = %v", message)
	}
	if kwargs, _ := message["kwargs"].(map[string]any); kwargs["op"] != "sum" {
		t.Fatalf("kwargs = %v", message["kwargs"])
	}
	if opts, _ := message["opts"].(map[string]any); opts["job_handler_name"] != "partition1" {
		t.Fatalf("opts = %v", message["opts"])
	}
	if job.State() != PendingCreate || job.ID() != "" {
		t.Fatalf("new job is %s with id %q", job.State(), job.ID())
	}
	if iface.NumPendingJobs() != 1 {
		t.Fatalf("NumPendingJobs = %d, want 1", iface.NumPendingJobs())
	}

	other, err := iface.CreateJob(context.Background(), JobSpec{FunctionName: "sum"})
	if err != nil {
		t.Fatalf("second CreateJob: %v", err)
	}
	if other.ClientJobID() == job.ClientJobID() {
		t.Fatal("two jobs share a client token")
	}
}

func TestJobLifecycle(t *testing.T) {
	iface, _ := newTestInterface(t, InterfaceConfig{})
	job, err := iface.CreateJob(context.Background(), JobSpec{FunctionName: "sum", Kwargs: map[string]any{"op": "sum"}})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	token := job.ClientJobID()

	// Finished before created: unknown id, ignored.
	iface.HandleMessage(finished(42, token, 7))
	select {
	case <-job.Done():
		t.Fatal("job resolved by hitherJobFinished for an unassigned id")
	default:
	}

	iface.HandleMessage(created(json.Number("42"), token))
	if job.State() != Active || job.ID() != "42" {
		t.Fatalf("after hitherJobCreated: state %s id %q", job.State(), job.ID())
	}

	iface.HandleMessage(protocol.Message{
		"type":          protocol.TypeHitherJobFinished,
		"job_id":        "42",
		"client_job_id": token,
		"result":        7,
		"runtime_info":  map[string]any{"elapsed_sec": 0.5},
	})
	testutil.RequireClosed(t, job.Done(), timeout, "job resolution")

	var result int
	if err := job.Decode(context.Background(), &result); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if result != 7 {
		t.Fatalf("result = %d, want 7", result)
	}
	if job.State() != Finished {
		t.Fatalf("state = %s, want finished", job.State())
	}
	if len(job.RuntimeInfo()) == 0 {
		t.Fatal("runtime_info not kept")
	}
	if iface.NumPendingJobs() != 0 {
		t.Fatalf("NumPendingJobs = %d, want 0", iface.NumPendingJobs())
	}

	// A stray repeat is ignored.
	iface.HandleMessage(finished("42", token, 8))
	raw, err := job.Wait(context.Background())
	if err != nil || string(raw) != "7" {
		t.Fatalf("Wait after stray event = %s, %v", raw, err)
	}
}

func TestJobErrors(t *testing.T) {
	iface, _ := newTestInterface(t, InterfaceConfig{})
	ctx := context.Background()

	active, _ := iface.CreateJob(ctx, JobSpec{FunctionName: "fail"})
	iface.HandleMessage(created("j-1", active.ClientJobID()))
	iface.HandleMessage(protocol.Message{
		"type":          protocol.TypeHitherJobError,
		"job_id":        "j-1",
		"client_job_id": active.ClientJobID(),
		"error_message": "division by zero",
	})
	_, err := active.Wait(ctx)
	jobError, ok := AsJobError(err)
	if !ok {
		t.Fatalf("Wait error %v is not a *JobError", err)
	}
	if jobError.Message != "division by zero" || jobError.JobID != "j-1" || jobError.FunctionName != "fail" {
		t.Fatalf("JobError = %+v", jobError)
	}
	if active.State() != Errored {
		t.Fatalf("state = %s, want errored", active.State())
	}

	// A creation failure names the client token as the job id.
	pending, _ := iface.CreateJob(ctx, JobSpec{FunctionName: "missing"})
	iface.HandleMessage(protocol.Message{
		"type":          protocol.TypeHitherJobError,
		"job_id":        pending.ClientJobID(),
		"client_job_id": pending.ClientJobID(),
		"error_message": "no such function",
	})
	if _, err := pending.Wait(ctx); err == nil {
		t.Fatal("creation failure did not reject the pending job")
	}
	if iface.NumPendingJobs() != 0 {
		t.Fatalf("NumPendingJobs = %d, want 0", iface.NumPendingJobs())
	}

	// Unknown ids are ignored.
	iface.HandleMessage(protocol.Message{"type": protocol.TypeHitherJobError, "job_id": "nobody", "error_message": "x"})
	iface.HandleMessage(created("j-2", "unknown-token"))
	iface.HandleMessage(protocol.Message{"type": protocol.TypeHitherJobFinished, "job_id": []int{1}})
}

func TestCreateJobSendFailureUntracks(t *testing.T) {
	iface, sink := newTestInterface(t, InterfaceConfig{})
	sink.err = errors.New("bridge gone")
	if _, err := iface.CreateJob(context.Background(), JobSpec{FunctionName: "sum"}); !errors.Is(err, sink.err) {
		t.Fatalf("CreateJob = %v, want the send error", err)
	}
	if iface.NumPendingJobs() != 0 {
		t.Fatalf("failed job still tracked: %d", iface.NumPendingJobs())
	}
}

type fakeLoader struct {
	documents map[string]string
}

func (l *fakeLoader) LoadSHA1(_ context.Context, sha1 string) ([]byte, error) {
	document, ok := l.documents[sha1]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return []byte(document), nil
}

func TestResultBySHA1(t *testing.T) {
	loader := &fakeLoader{documents: map[string]string{
		"aaaa": `{"sum": 7}`,
		"bbbb": `not json`,
	}}
	iface, _ := newTestInterface(t, InterfaceConfig{ResultLoader: loader})
	ctx := context.Background()

	tests := []struct {
		name    string
		sha1    string
		want    string
		wantErr bool
	}{
		{name: "stored document", sha1: "aaaa", want: `{"sum": 7}`},
		{name: "missing document", sha1: "cccc", wantErr: true},
		{name: "invalid document", sha1: "bbbb", wantErr: true},
	}
	for index, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			job, err := iface.CreateJob(ctx, JobSpec{FunctionName: "big"})
			if err != nil {
				t.Fatalf("CreateJob: %v", err)
			}
			id := protocol.JobID("sha-" + string(rune('a'+index)))
			iface.HandleMessage(created(string(id), job.ClientJobID()))
			iface.HandleMessage(protocol.Message{
				"type":          protocol.TypeHitherJobFinished,
				"job_id":        string(id),
				"client_job_id": job.ClientJobID(),
				"result_sha1":   test.sha1,
			})
			testutil.RequireClosed(t, job.Done(), timeout, "result load")
			result, err := job.Wait(ctx)
			if test.wantErr {
				if _, ok := AsJobError(err); !ok {
					t.Fatalf("Wait = %s, %v; want a *JobError", result, err)
				}
				return
			}
			if err != nil || string(result) != test.want {
				t.Fatalf("Wait = %s, %v; want %s", result, err, test.want)
			}
		})
	}

	t.Run("no loader", func(t *testing.T) {
		bare, _ := newTestInterface(t, InterfaceConfig{})
		job, _ := bare.CreateJob(ctx, JobSpec{FunctionName: "big"})
		bare.HandleMessage(created("x", job.ClientJobID()))
		bare.HandleMessage(protocol.Message{"type": protocol.TypeHitherJobFinished, "job_id": "x", "result_sha1": "aaaa"})
		testutil.RequireClosed(t, job.Done(), timeout, "rejection")
		if _, err := job.Wait(ctx); err == nil {
			t.Fatal("result_sha1 without a loader resolved")
		}
	})
}

func TestCancel(t *testing.T) {
	iface, sink := newTestInterface(t, InterfaceConfig{})
	ctx := context.Background()
	job, _ := iface.CreateJob(ctx, JobSpec{FunctionName: "slow"})

	if err := job.Cancel(ctx); !errors.Is(err, ErrNotActive) {
		t.Fatalf("Cancel while pending = %v, want ErrNotActive", err)
	}
	iface.HandleMessage(created(17, job.ClientJobID()))
	if err := job.Cancel(ctx); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	sent := sink.messages()
	last := sent[len(sent)-1]
	if last.Type() != protocol.TypeHitherCancelJob || last["job_id"] != "17" {
		t.Fatalf("cancel message = %v", last)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	iface, _ := newTestInterface(t, InterfaceConfig{})
	job, _ := iface.CreateJob(context.Background(), JobSpec{FunctionName: "slow"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := job.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait on cancelled context = %v", err)
	}
	if job.State() != PendingCreate {
		t.Fatalf("abandoning Wait changed state to %s", job.State())
	}
}
