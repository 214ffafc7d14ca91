// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"

	"github.com/labbox-foundation/labbox/cmd/labbox/cli"
	"github.com/labbox-foundation/labbox/lib/config"
	"github.com/labbox-foundation/labbox/protocol"
)

// backend is a WebSocket compute backend that announces its server
// info and answers hitherCreateJob with the sum of kwargs a and b, or
// with hitherJobError for the function "fail".
func backend(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		ctx := context.Background()
		announce := `[{"type":"reportServerInfo","serverInfo":{"nodeId":"node-1","defaultFeedId":"feed-1"}},` +
			`{"type":"reportInitialLoadComplete"}]`
		if err := conn.Write(ctx, websocket.MessageText, []byte(announce)); err != nil {
			return
		}
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			message := gjson.ParseBytes(data)
			if message.Get("type").String() != protocol.TypeHitherCreateJob {
				continue
			}
			token := message.Get("clientJobId").String()
			outcome := map[string]any{"type": protocol.TypeHitherJobFinished, "job_id": "job-1", "client_job_id": token,
				"result": map[string]any{"sum": message.Get("kwargs.a").Int() + message.Get("kwargs.b").Int()}}
			if message.Get("functionName").String() == "fail" {
				outcome = map[string]any{"type": protocol.TypeHitherJobError, "job_id": "job-1", "client_job_id": token,
					"error_message": "division by zero", "runtime_info": map[string]any{"elapsed": 0.5}}
			}
			reply, _ := json.Marshal([]map[string]any{
				{"type": protocol.TypeHitherJobCreated, "job_id": "job-1", "client_job_id": token},
				outcome,
			})
			if err := conn.Write(ctx, websocket.MessageText, reply); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// feedBackend is an in-memory feed API.
func feedBackend(t *testing.T) string {
	t.Helper()
	var mu sync.Mutex
	subfeeds := map[string][]json.RawMessage{}
	key := func(feedURI string, name json.RawMessage) string { return feedURI + "|" + string(name) }

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/appendMessages", func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			FeedURI     string            `json:"feedUri"`
			SubfeedName json.RawMessage   `json:"subfeedName"`
			Messages    []json.RawMessage `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		k := key(request.FeedURI, request.SubfeedName)
		subfeeds[k] = append(subfeeds[k], request.Messages...)
		mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	mux.HandleFunc("POST /api/getMessages", func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			FeedURI     string          `json:"feedUri"`
			SubfeedName json.RawMessage `json:"subfeedName"`
			Position    int             `json:"position"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		all := subfeeds[key(request.FeedURI, request.SubfeedName)]
		messages := []json.RawMessage{}
		if request.Position < len(all) {
			messages = append(messages, all[request.Position:]...)
		}
		mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"messages": messages})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server.URL + "/api"
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfig, "")
	var stdout bytes.Buffer
	err := newRoot(&stdout, io.Discard).Execute(args)
	return stdout.String(), err
}

func TestStatus(t *testing.T) {
	url := backend(t)
	out, err := run(t, "status", "--websocket-url", url, "--timeout", "10s")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var report statusReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("status output %q: %v", out, err)
	}
	if report.Status != "connected" || report.ServerInfo.NodeID != "node-1" || report.ServerInfo.DefaultFeedID != "feed-1" {
		t.Errorf("report = %+v", report)
	}
}

func TestJob(t *testing.T) {
	url := backend(t)
	out, err := run(t, "job", "add", "--websocket-url", url, "--kwargs", `{"a": 2, "b": 3}`, "--timeout", "10s")
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	if strings.TrimSpace(out) != `{"sum":5}` {
		t.Errorf("output = %q, want {\"sum\":5}", out)
	}

	out, err = run(t, "job", "add", "--websocket-url", url, "--kwargs", `{"a": 1, "b": 1}`, "--field", "sum", "--timeout", "10s")
	if err != nil {
		t.Fatalf("job --field: %v", err)
	}
	if strings.TrimSpace(out) != "2" {
		t.Errorf("field output = %q, want 2", out)
	}

	if _, err := run(t, "job", "add", "--websocket-url", url, "--kwargs", "[1]"); err == nil {
		t.Error("job accepted non-object kwargs")
	}

	out, err = run(t, "job", "fail", "--websocket-url", url, "--timeout", "10s")
	var exit *cli.ExitError
	if !errors.As(err, &exit) || exit.ExitCode() != cli.ExitJobFailed {
		t.Fatalf("failed job returned %v, want exit code %d", err, cli.ExitJobFailed)
	}
	report := gjson.Parse(out)
	if report.Get("error").String() != "division by zero" || report.Get("job_id").String() != "job-1" ||
		report.Get("runtime_info.elapsed").Float() != 0.5 {
		t.Errorf("failure report = %s", out)
	}
}

func TestAppendThenFollow(t *testing.T) {
	url := backend(t)
	feedURL := feedBackend(t)

	if _, err := run(t, "append", "-", "main", `{"n": 1}`, `{"n": 2}`, "--websocket-url", url, "--feed-url", feedURL); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := run(t, "append", "-", "main", "not json", "--websocket-url", url, "--feed-url", feedURL); err == nil {
		t.Error("append accepted invalid JSON")
	}

	out, err := run(t, "follow", "-", "main", "--count", "2", "--field", "n",
		"--websocket-url", url, "--feed-url", feedURL, "--timeout", "10s")
	if err != nil {
		t.Fatalf("follow: %v", err)
	}
	if out != "1\n2\n" {
		t.Errorf("follow output = %q, want \"1\\n2\\n\"", out)
	}
}

func TestAppendWithoutFeedURL(t *testing.T) {
	if _, err := run(t, "append", "-", "main", "1", "--websocket-url", "ws://localhost:15308"); err == nil {
		t.Error("append succeeded without a feed url")
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labbox.yaml")
	yaml := "websocket_url: ws://file:15308\nfeed_url: http://file:15309/api\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LABBOX_SHA1_URL", "http://env:15309/sha1")

	globals := globalFlags{ConfigPath: path, FeedURL: "http://flag:15309/api"}
	cfg, err := globals.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.WebSocketURL != "ws://file:15308" {
		t.Errorf("WebSocketURL = %q, want the file value", cfg.WebSocketURL)
	}
	if cfg.FeedURL != "http://flag:15309/api" {
		t.Errorf("FeedURL = %q, want the flag value", cfg.FeedURL)
	}
	if cfg.SHA1URL != "http://env:15309/sha1" {
		t.Errorf("SHA1URL = %q, want the environment value", cfg.SHA1URL)
	}

	globals = globalFlags{ConfigPath: path, HostSocket: "/run/labbox/host.sock"}
	if cfg, err = globals.loadConfig(); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Mode != config.ModeHost || cfg.HostSocket != "/run/labbox/host.sock" {
		t.Errorf("host socket flag gave mode %q socket %q", cfg.Mode, cfg.HostSocket)
	}
}

func TestParseSubfeedName(t *testing.T) {
	name, err := parseSubfeedName("main")
	if err != nil || name != "main" {
		t.Errorf("parseSubfeedName(main) = %v, %v", name, err)
	}
	name, err = parseSubfeedName(`{"channel": "a"}`)
	if err != nil {
		t.Fatalf("parseSubfeedName(object): %v", err)
	}
	if object, ok := name.(map[string]any); !ok || object["channel"] != "a" {
		t.Errorf("parseSubfeedName(object) = %#v", name)
	}
	if _, err := parseSubfeedName(`{broken`); err == nil {
		t.Error("parseSubfeedName accepted a broken object")
	}
	if parseFeed("-") != "" || parseFeed("feed://a") != "feed://a" {
		t.Error("parseFeed mapping is wrong")
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "labbox ") {
		t.Errorf("version output = %q", out)
	}
}
