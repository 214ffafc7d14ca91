// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the application message envelope shared by
// the WebSocket and host-channel transports.
//
// Every message is a JSON object with a string "type" discriminator.
// Outbound transmissions carry one message; inbound transmissions
// carry a batch, an ordered array of messages:
//
//	-> {"type":"hitherCreateJob","functionName":"sum","kwargs":{"a":3,"b":4},"clientJobId":"…"}
//	<- [{"type":"hitherJobCreated","job_id":"42","client_job_id":"…"}]
//	<- [{"type":"hitherJobFinished","job_id":"42","client_job_id":"…","result":7}]
//
// [Message] is the untyped form that crosses the transport. Typed
// views of the catalog (JobCreated, JobFinished, …) are obtained with
// [Message.Decode]; outbound messages are built from typed values
// with their Message methods.
//
// [DecodeBatch] validates the batch shape of an inbound frame. A frame
// that is not an array is rejected with [ErrNotBatch]; elements that
// are not typed objects are skipped and reported as a
// [*MalformedError] alongside the usable messages.
//
// [SubfeedHash] computes the server-side identifier of a subfeed name.
package protocol
