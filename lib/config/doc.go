// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads labbox client configuration.
//
// A configuration file is named by the --config flag or the
// LABBOX_CONFIG environment variable. There is no discovery: if neither
// is given, [Load] returns [ErrNoConfig] and callers start from
// [Default]. Files ending in .json or .jsonc are read as JSON with
// comments and trailing commas; everything else is YAML.
//
// After the file is decoded, string values may reference the
// environment as ${VAR} or ${VAR:-default}, and LABBOX_* variables
// override individual fields:
//
//	LABBOX_MODE           mode
//	LABBOX_WEBSOCKET_URL  websocket_url
//	LABBOX_HOST_SOCKET    host_socket
//	LABBOX_FEED_URL       feed_url
//	LABBOX_SHA1_URL       sha1_url
//
// [Config.Validate] reports every problem at once with errors.Join.
package config
