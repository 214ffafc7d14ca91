// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package feedapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/klauspost/compress/gzhttp"

	"github.com/labbox-foundation/labbox/lib/netutil"
	"github.com/labbox-foundation/labbox/lib/version"
)

// ErrNoFeedURL is returned by the feed calls of a Client configured
// with only a SHA1URL.
var ErrNoFeedURL = errors.New("feedapi: no feed url configured")

// ErrNoSHA1URL is returned by LoadSHA1 on a Client configured with
// only a BaseURL.
var ErrNoSHA1URL = errors.New("feedapi: no sha1 url configured")

var sha1Pattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// ClientConfig configures a Client. At least one of BaseURL and
// SHA1URL must be set.
type ClientConfig struct {
	// BaseURL is the feed API base, e.g. http://localhost:15309/api.
	BaseURL string

	// SHA1URL is the document endpoint base, e.g.
	// http://localhost:15309/sha1.
	SHA1URL string

	// HTTPClient defaults to a client whose transport negotiates gzip.
	// It should not set a Timeout shorter than the longest long-poll.
	HTTPClient *http.Client

	// Authorize, if set, is called on every request before it is
	// sent, to add the collaborator's auth headers or cookies.
	Authorize func(*http.Request) error

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client calls the feed API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	sha1URL    string
	httpClient *http.Client
	authorize  func(*http.Request) error
	logger     *slog.Logger
}

// NewClient validates config and returns a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" && config.SHA1URL == "" {
		return nil, errors.New("feedapi: one of BaseURL and SHA1URL is required")
	}
	for _, raw := range []string{config.BaseURL, config.SHA1URL} {
		if raw == "" {
			continue
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("feedapi: invalid url %q: %w", raw, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return nil, fmt.Errorf("feedapi: url %q must be http or https", raw)
		}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: gzhttp.Transport(http.DefaultTransport)}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		sha1URL:    strings.TrimRight(config.SHA1URL, "/"),
		httpClient: httpClient,
		authorize:  config.Authorize,
		logger:     logger,
	}, nil
}

type getMessagesRequest struct {
	FeedURI     string `json:"feedUri"`
	SubfeedName any    `json:"subfeedName"`
	Position    int    `json:"position"`
	WaitMsec    int    `json:"waitMsec"`
}

type getMessagesResponse struct {
	Success  *bool             `json:"success,omitempty"`
	Error    string            `json:"error,omitempty"`
	Messages []json.RawMessage `json:"messages"`
}

// GetMessages returns the subfeed's messages at or after position.
// With waitMsec > 0 the server may hold the request until a message
// arrives or the wait elapses.
func (c *Client) GetMessages(ctx context.Context, feedURI string, subfeedName any, position, waitMsec int) ([]json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, ErrNoFeedURL
	}
	var response getMessagesResponse
	err := c.post(ctx, "/getMessages", getMessagesRequest{
		FeedURI:     feedURI,
		SubfeedName: subfeedName,
		Position:    position,
		WaitMsec:    waitMsec,
	}, &response)
	if err != nil {
		return nil, err
	}
	if response.Success != nil && !*response.Success {
		return nil, &Error{Method: http.MethodPost, Path: "/getMessages", StatusCode: http.StatusOK, Message: response.Error}
	}
	return response.Messages, nil
}

type appendMessagesRequest struct {
	FeedURI     string            `json:"feedUri"`
	SubfeedName any               `json:"subfeedName"`
	Messages    []json.RawMessage `json:"messages"`
}

type appendMessagesResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// AppendMessages appends messages to the subfeed.
func (c *Client) AppendMessages(ctx context.Context, feedURI string, subfeedName any, messages []json.RawMessage) error {
	if c.baseURL == "" {
		return ErrNoFeedURL
	}
	for index, message := range messages {
		if !json.Valid(message) {
			return fmt.Errorf("feedapi: message %d is not valid JSON", index)
		}
	}
	var response appendMessagesResponse
	err := c.post(ctx, "/appendMessages", appendMessagesRequest{
		FeedURI:     feedURI,
		SubfeedName: subfeedName,
		Messages:    messages,
	}, &response)
	if err != nil {
		return err
	}
	if !response.Success {
		return &Error{Method: http.MethodPost, Path: "/appendMessages", StatusCode: http.StatusOK, Message: response.Error}
	}
	return nil
}

// LoadSHA1 fetches the JSON document with the given sha1.
func (c *Client) LoadSHA1(ctx context.Context, sha1 string) ([]byte, error) {
	if c.sha1URL == "" {
		return nil, ErrNoSHA1URL
	}
	if !sha1Pattern.MatchString(sha1) {
		return nil, fmt.Errorf("feedapi: %q is not a sha1 hex digest", sha1)
	}
	return c.do(ctx, http.MethodGet, c.sha1URL, "/"+sha1, nil)
}

func (c *Client) post(ctx context.Context, path string, body, response any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("feedapi: encoding %s request: %w", path, err)
	}
	data, err := c.do(ctx, http.MethodPost, c.baseURL, path, encoded)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, response); err != nil {
		return fmt.Errorf("feedapi: decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, base, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, base+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("feedapi: creating request: %w", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("User-Agent", version.UserAgent())
	if c.authorize != nil {
		if err := c.authorize(request); err != nil {
			return nil, fmt.Errorf("feedapi: authorizing %s %s: %w", method, path, err)
		}
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("feedapi: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, &Error{
			Method:     method,
			Path:       path,
			StatusCode: response.StatusCode,
			Message:    netutil.ErrorBody(response.Body),
		}
	}
	data, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("feedapi: reading %s response: %w", path, err)
	}
	c.logger.Debug("feed api request", "method", method, "path", path, "bytes", len(data))
	return data, nil
}
