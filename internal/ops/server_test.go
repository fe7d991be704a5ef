package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestServerRoutes(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	metrics.CacheHit()
	server, err := NewServer("127.0.0.1:0", metrics)
	if err != nil {
		t.Fatalf("new server failed: %v", err)
	}

	tests := []struct {
		name         string
		path         string
		wantStatus   int
		wantContains string
	}{
		{name: "root", path: "/", wantStatus: http.StatusOK, wantContains: `"status":"Bot is running"`},
		{name: "webhook", path: "/api/webhook", wantStatus: http.StatusOK, wantContains: `"status":"Bot is running"`},
		{name: "health", path: "/healthz", wantStatus: http.StatusOK, wantContains: "ok"},
		{name: "metrics", path: "/metrics", wantStatus: http.StatusOK, wantContains: "randomwiki_content_cache_events_total"},
		{name: "unknown", path: "/nope", wantStatus: http.StatusNotFound},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			recorder := httptest.NewRecorder()
			server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, testCase.path, nil))

			if recorder.Code != testCase.wantStatus {
				t.Fatalf("status = %d, want %d", recorder.Code, testCase.wantStatus)
			}
			if !strings.Contains(recorder.Body.String(), testCase.wantContains) {
				t.Fatalf("body = %q, want substring %q", recorder.Body.String(), testCase.wantContains)
			}
		})
	}
}

func TestServerStatusPayload(t *testing.T) {
	t.Parallel()

	server, err := NewServer("127.0.0.1:0", NewMetrics())
	if err != nil {
		t.Fatalf("new server failed: %v", err)
	}

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/webhook", nil))

	var payload StatusResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload failed: %v", err)
	}
	if payload.Status != "Bot is running" {
		t.Fatalf("status = %q, want Bot is running", payload.Status)
	}
}

func TestServerServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	server, err := NewServer("127.0.0.1:0", NewMetrics(), WithShutdownTimeout(time.Second))
	if err != nil {
		t.Fatalf("new server failed: %v", err)
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.serve(ctx, listener)
	}()

	url := fmt.Sprintf("http://%s/healthz", listener.Addr().String())
	var body string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		response, err := http.Get(url)
		if err == nil {
			raw, _ := io.ReadAll(response.Body)
			_ = response.Body.Close()
			body = string(raw)
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if body != "ok" {
		t.Fatalf("health body = %q, want ok", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve error = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNewServerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewServer("", NewMetrics()); err == nil {
		t.Fatal("expected empty address error")
	}
	if _, err := NewServer(":0", nil); err == nil {
		t.Fatal("expected nil metrics error")
	}
}
