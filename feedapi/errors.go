// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package feedapi

import (
	"errors"
	"fmt"
)

// Error is a failed feed API call: a non-2xx response, or a 2xx
// response whose body reports success=false.
type Error struct {
	Method     string
	Path       string
	StatusCode int
	// Message is the server's error text or a truncated response body.
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("feedapi: %s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// IsError reports whether err is, or wraps, an *Error.
func IsError(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr)
}

// IsStatus reports whether err is an *Error with the given HTTP status.
func IsStatus(err error, statusCode int) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == statusCode
	}
	return false
}
