// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable holding the config path.
const EnvConfig = "LABBOX_CONFIG"

// ErrNoConfig is returned by Load when no configuration file is
// named.
var ErrNoConfig = errors.New("config: " + EnvConfig + " environment variable not set")

// Mode selects the transport.
type Mode string

const (
	// ModeWebSocket connects to a compute backend over a WebSocket.
	ModeWebSocket Mode = "websocket"
	// ModeHost uses a message channel exposed by an embedding host,
	// reached through a Unix socket bridge.
	ModeHost Mode = "host"
)

// Config is the client configuration.
type Config struct {
	// Mode selects the transport. Default: websocket.
	Mode Mode `yaml:"mode"`

	// WebSocketURL is the backend endpoint in websocket mode, e.g.
	// ws://localhost:15308.
	WebSocketURL string `yaml:"websocket_url"`

	// HostSocket is the Unix socket of the host bridge in host mode.
	HostSocket string `yaml:"host_socket"`

	// FeedURL is the base URL of the feed HTTP API. Subfeed features
	// are unavailable when empty.
	FeedURL string `yaml:"feed_url"`

	// SHA1URL is the base URL of the content-addressed document
	// endpoint used for job results delivered as result_sha1.
	SHA1URL string `yaml:"sha1_url"`

	// Heartbeat is the keepAlive interval. Default: 17s.
	Heartbeat time.Duration `yaml:"heartbeat"`

	// Polling configures the iterate loop in host mode.
	Polling PollingConfig `yaml:"polling"`

	// Subfeed configures the replica driver loop.
	Subfeed SubfeedConfig `yaml:"subfeed"`
}

// PollingConfig configures the host-mode iterate loop.
type PollingConfig struct {
	// Initial is the interval after a wake. Default: 300ms.
	Initial time.Duration `yaml:"initial"`

	// Step is added to the interval each cycle. Default: 50ms.
	Step time.Duration `yaml:"step"`

	// Ceiling caps the interval. Default: 5s.
	Ceiling time.Duration `yaml:"ceiling"`
}

// SubfeedConfig configures subfeed replica polling.
type SubfeedConfig struct {
	// WaitMsec is the long-poll wait budget. Default: 12000.
	WaitMsec int `yaml:"wait_msec"`

	// IdlePause separates poll cycles. Default: 100ms.
	IdlePause time.Duration `yaml:"idle_pause"`
}

// Default returns a configuration with every default filled in and no
// endpoints.
func Default() *Config {
	return &Config{
		Mode:      ModeWebSocket,
		Heartbeat: 17 * time.Second,
		Polling: PollingConfig{
			Initial: 300 * time.Millisecond,
			Step:    50 * time.Millisecond,
			Ceiling: 5 * time.Second,
		},
		Subfeed: SubfeedConfig{
			WaitMsec:  12000,
			IdlePause: 100 * time.Millisecond,
		},
	}
}

// Load reads the file named by LABBOX_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		return nil, ErrNoConfig
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults, then applies variable
// expansion and LABBOX_* overrides. It does not validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over the defaults. ext selects the format: ".json"
// and ".jsonc" are JSON with comments, anything else is YAML.
func Parse(data []byte, ext string) (*Config, error) {
	cfg := Default()
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		// Plain JSON is valid YAML, so one decoder serves both once
		// comments and trailing commas are stripped.
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	cfg.ApplyEnvironment()
	return cfg, nil
}

// ApplyEnvironment overrides fields from LABBOX_* variables that are
// set and non-empty.
func (c *Config) ApplyEnvironment() {
	overrides := []struct {
		name   string
		target *string
	}{
		{"LABBOX_WEBSOCKET_URL", &c.WebSocketURL},
		{"LABBOX_HOST_SOCKET", &c.HostSocket},
		{"LABBOX_FEED_URL", &c.FeedURL},
		{"LABBOX_SHA1_URL", &c.SHA1URL},
	}
	for _, override := range overrides {
		if value := os.Getenv(override.name); value != "" {
			*override.target = value
		}
	}
	if value := os.Getenv("LABBOX_MODE"); value != "" {
		c.Mode = Mode(value)
	}
}

func (c *Config) expandVariables() {
	c.WebSocketURL = expandVars(c.WebSocketURL)
	c.HostSocket = expandVars(c.HostSocket)
	c.FeedURL = expandVars(c.FeedURL)
	c.SHA1URL = expandVars(c.SHA1URL)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default} with environment
// values.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	switch c.Mode {
	case ModeWebSocket:
		if c.WebSocketURL == "" {
			errs = append(errs, errors.New("websocket_url is required in websocket mode"))
		} else if err := checkURL(c.WebSocketURL, "ws", "wss"); err != nil {
			errs = append(errs, fmt.Errorf("websocket_url: %w", err))
		}
	case ModeHost:
		if c.HostSocket == "" {
			errs = append(errs, errors.New("host_socket is required in host mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeWebSocket, ModeHost, c.Mode))
	}

	if c.FeedURL != "" {
		if err := checkURL(c.FeedURL, "http", "https"); err != nil {
			errs = append(errs, fmt.Errorf("feed_url: %w", err))
		}
	}
	if c.SHA1URL != "" {
		if err := checkURL(c.SHA1URL, "http", "https"); err != nil {
			errs = append(errs, fmt.Errorf("sha1_url: %w", err))
		}
	}

	if c.Heartbeat <= 0 {
		errs = append(errs, errors.New("heartbeat must be positive"))
	}
	if c.Polling.Initial <= 0 {
		errs = append(errs, errors.New("polling.initial must be positive"))
	}
	if c.Polling.Step < 0 {
		errs = append(errs, errors.New("polling.step must not be negative"))
	}
	if c.Polling.Ceiling < c.Polling.Initial {
		errs = append(errs, errors.New("polling.ceiling must be at least polling.initial"))
	}
	if c.Subfeed.WaitMsec < 0 {
		errs = append(errs, errors.New("subfeed.wait_msec must not be negative"))
	}
	if c.Subfeed.IdlePause < 0 {
		errs = append(errs, errors.New("subfeed.idle_pause must not be negative"))
	}

	return errors.Join(errs...)
}

func checkURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, scheme := range schemes {
		if parsed.Scheme == scheme {
			if parsed.Host == "" {
				return fmt.Errorf("%q has no host", raw)
			}
			return nil
		}
	}
	return fmt.Errorf("%q: scheme must be one of %v", raw, schemes)
}
