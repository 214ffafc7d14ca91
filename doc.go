// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package labbox assembles the client side of a labbox session: one
// [connection.Connection] to the compute backend, the hither job
// dispatcher attached to it, the feed API client and the subfeed
// manager, and the session metadata the server announces.
//
// A typical embedding:
//
//	client, err := labbox.New(cfg, labbox.Options{Logger: logger})
//	if err != nil { ... }
//	client.Start(ctx)
//	defer client.Close()
//
//	job, err := client.CreateJob(ctx, hither.JobSpec{FunctionName: "compute"})
//	result, err := job.Wait(ctx)
//
// A dropped connection stays disconnected until [Client.Reconnect].
// Job messages created meanwhile are queued and flushed on reconnect.
// In host mode the client also drives the host's iterate polling loop.
package labbox
