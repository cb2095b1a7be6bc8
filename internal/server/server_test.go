package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/teemow/inboxreply/internal/autoreply"
	"github.com/teemow/inboxreply/internal/instrumentation"
)

type fakeStatus struct {
	status autoreply.Status
}

func (f *fakeStatus) Status() autoreply.Status { return f.status }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createTestProvider(t *testing.T) *instrumentation.Provider {
	t.Helper()
	ctx := context.Background()
	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: instrumentation.ExporterPrometheus,
		TracingExporter: instrumentation.ExporterNone,
	})
	if err != nil {
		t.Fatalf("failed to create test provider: %v", err)
	}
	t.Cleanup(func() {
		_ = provider.Shutdown(ctx)
	})
	return provider
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	source := &fakeStatus{status: autoreply.Status{
		Running:      true,
		Active:       true,
		SmartReplies: true,
		Rules:        2,
		RepliesSent:  5,
	}}
	s := New(Config{Status: source, Logger: quietLogger()})

	rec := get(t, s.Handler(), "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var got autoreply.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if got.Rules != 2 || got.RepliesSent != 5 || !got.Active {
		t.Errorf("status = %+v, want rules=2 replies=5 active", got)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestStatusEndpointWithoutEngine(t *testing.T) {
	s := New(Config{Logger: quietLogger()})
	if rec := get(t, s.Handler(), "/status"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestReadinessFollowsEngine(t *testing.T) {
	source := &fakeStatus{status: autoreply.Status{Running: true}}
	s := New(Config{Status: source, Logger: quietLogger()})

	tests := []struct {
		name     string
		running  bool
		ready    bool
		wantCode int
	}{
		{name: "running", running: true, ready: true, wantCode: http.StatusOK},
		{name: "engine stopped", running: false, ready: true, wantCode: http.StatusServiceUnavailable},
		{name: "marked not ready", running: true, ready: false, wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source.status.Running = tt.running
			s.Health().SetReady(tt.ready)

			rec := get(t, s.Handler(), "/readyz")
			if rec.Code != tt.wantCode {
				t.Errorf("GET /readyz = %d, want %d", rec.Code, tt.wantCode)
			}
			if live := get(t, s.Handler(), "/healthz"); live.Code != http.StatusOK {
				t.Errorf("GET /healthz = %d, want %d", live.Code, http.StatusOK)
			}
		})
	}
}

func TestDetailedHealth(t *testing.T) {
	source := &fakeStatus{status: autoreply.Status{Running: true, Active: true, Rules: 3}}
	s := New(Config{Status: source, Logger: quietLogger()})

	rec := get(t, s.Handler(), "/healthz/detailed")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz/detailed = %d, want %d", rec.Code, http.StatusOK)
	}
	var got DetailedHealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != healthStatusOK || !got.EngineActive || got.Rules != 3 {
		t.Errorf("detailed health = %+v", got)
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() without Start() error = %v", err)
	}
	rec = get(t, s.Handler(), "/healthz/detailed")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("after shutdown GET /healthz/detailed = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if !strings.Contains(rec.Body.String(), healthStatusShuttingDown) {
		t.Errorf("body %q does not report shutdown", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	provider := createTestProvider(t)
	provider.Metrics().RecordReply(context.Background(), "static")

	s := New(Config{Provider: provider, Logger: quietLogger()})
	rec := get(t, s.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "autoreply_replies_total") {
		t.Error("expected autoreply_replies_total in /metrics output")
	}
}

func TestServerStartAndShutdown(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", Status: &fakeStatus{}, Logger: quietLogger()})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- s.Start()
	}()

	deadline := time.Now().Add(2 * time.Second)
	for strings.HasSuffix(s.Addr(), ":0") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("Start() error = %v, want %v", err, http.ErrServerClosed)
		}
	case <-time.After(2 * time.Second):
		t.Error("Start() did not return after Shutdown")
	}
}
