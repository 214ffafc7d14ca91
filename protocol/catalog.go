// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Message types.
const (
	TypeKeepAlive                     = "keepAlive"
	TypeIterate                       = "iterate"
	TypeReportServerInfo              = "reportServerInfo"
	TypeReportInitialLoadComplete     = "reportInitialLoadComplete"
	TypeHitherCreateJob               = "hitherCreateJob"
	TypeHitherCancelJob               = "hitherCancelJob"
	TypeHitherJobCreated              = "hitherJobCreated"
	TypeHitherJobFinished             = "hitherJobFinished"
	TypeHitherJobError                = "hitherJobError"
	TypeSubfeedMessageRequest         = "subfeedMessageRequest"
	TypeSubfeedMessageRequestResponse = "subfeedMessageRequestResponse"
)

// KeepAlive returns a heartbeat message.
func KeepAlive() Message { return Message{"type": TypeKeepAlive} }

// Iterate returns the host-channel polling nudge.
func Iterate() Message { return Message{"type": TypeIterate} }

// JobID is a server-assigned job id. The server sends it as a JSON
// string; numbers are accepted and kept in their decimal form.
type JobID string

// UnmarshalJSON accepts a string, a number, or null.
func (id *JobID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = JobID(s)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("protocol: job id %s is neither string nor number", data)
	}
	if n, err := number.Int64(); err == nil {
		*id = JobID(strconv.FormatInt(n, 10))
		return nil
	}
	*id = JobID(number.String())
	return nil
}

// CreateJob requests a hither job.
type CreateJob struct {
	FunctionName string
	Kwargs       map[string]any
	ClientJobID  string
	Opts         map[string]any
}

// Message returns the hitherCreateJob message.
func (c CreateJob) Message() Message {
	kwargs := c.Kwargs
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	message := Message{
		"type":         TypeHitherCreateJob,
		"functionName": c.FunctionName,
		"kwargs":       kwargs,
		"clientJobId":  c.ClientJobID,
	}
	if len(c.Opts) > 0 {
		message["opts"] = c.Opts
	}
	return message
}

// CancelJob asks the server to cancel an active job.
type CancelJob struct {
	JobID JobID
}

// Message returns the hitherCancelJob message.
func (c CancelJob) Message() Message {
	return Message{"type": TypeHitherCancelJob, "job_id": string(c.JobID)}
}

// JobCreated binds a server job id to the client's token.
type JobCreated struct {
	JobID       JobID  `json:"job_id"`
	ClientJobID string `json:"client_job_id"`
}

// JobFinished reports a job's result, either inline or by the sha1
// of a stored JSON document.
type JobFinished struct {
	JobID       JobID           `json:"job_id"`
	ClientJobID string          `json:"client_job_id"`
	Result      json.RawMessage `json:"result,omitempty"`
	ResultSHA1  string          `json:"result_sha1,omitempty"`
	RuntimeInfo json.RawMessage `json:"runtime_info,omitempty"`
}

// JobError reports a failed job. A creation failure carries the
// client token as its job id.
type JobError struct {
	JobID        JobID           `json:"job_id"`
	ClientJobID  string          `json:"client_job_id"`
	ErrorMessage string          `json:"error_message"`
	RuntimeInfo  json.RawMessage `json:"runtime_info,omitempty"`
}

// SubfeedMessageRequest registers long-poll interest in a subfeed. An
// empty FeedURI addresses the server's default feed. SubfeedName is a
// string or a JSON object.
type SubfeedMessageRequest struct {
	RequestID   string
	FeedURI     string
	SubfeedName any
	Position    int
	WaitMsec    int
}

// Message returns the subfeedMessageRequest message.
func (r SubfeedMessageRequest) Message() Message {
	return Message{
		"type":        TypeSubfeedMessageRequest,
		"requestId":   r.RequestID,
		"feedUri":     r.FeedURI,
		"subfeedName": r.SubfeedName,
		"position":    r.Position,
		"waitMsec":    r.WaitMsec,
	}
}

// SubfeedMessageRequestResponse notifies a pending subfeed request.
type SubfeedMessageRequestResponse struct {
	RequestID      string `json:"requestId"`
	NumNewMessages int    `json:"numNewMessages"`
}

// ServerInfo is the session metadata announced by reportServerInfo.
type ServerInfo struct {
	NodeID        string          `json:"nodeId"`
	DefaultFeedID string          `json:"defaultFeedId"`
	LabboxConfig  json.RawMessage `json:"labboxConfig,omitempty"`
}

// ReportServerInfo carries ServerInfo.
type ReportServerInfo struct {
	ServerInfo ServerInfo `json:"serverInfo"`
}
