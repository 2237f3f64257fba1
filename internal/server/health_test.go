package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

func getPath(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	return w
}

// TestHandleHealth_OK verifies GET /api/health returns 200 with
// {"status":"ok"} regardless of dependency state.
func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeBackend{}, nil)
	s.pingers = []Pinger{&fakePinger{name: "qdrant", err: errors.New("down")}}

	w := getPath(t, s, "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("status field = %q", resp["status"])
	}
}

// TestHandleReady_AllHealthy verifies 200 with per-check results when every
// dependency responds.
func TestHandleReady_AllHealthy(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeBackend{}, nil)
	s.pingers = []Pinger{
		&fakePinger{name: "qdrant"},
		&fakePinger{name: "sqlite"},
	}

	w := getPath(t, s, "/api/ready")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ready || len(resp.Checks) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

// TestHandleReady_DependencyDown verifies 503 with the failing check named.
func TestHandleReady_DependencyDown(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeBackend{}, nil)
	s.pingers = []Pinger{
		&fakePinger{name: "qdrant", err: errors.New("connection refused")},
		&fakePinger{name: "sqlite"},
	}

	w := getPath(t, s, "/api/ready")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ready {
		t.Fatal("expected ready=false")
	}
	if resp.Checks[0].OK || resp.Checks[0].Error == "" {
		t.Fatalf("expected failing first check, got %+v", resp.Checks[0])
	}
	if !resp.Checks[1].OK {
		t.Fatalf("expected healthy second check, got %+v", resp.Checks[1])
	}
}

// TestHandleReady_NoPingers verifies liveness-only mode returns 200.
func TestHandleReady_NoPingers(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeBackend{}, nil)
	s.pingers = nil

	w := getPath(t, s, "/api/ready")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

// TestNewPinger wraps a dependency Ping with its readiness label.
func TestNewPinger(t *testing.T) {
	t.Parallel()

	p := NewPinger("sqlite", pingFunc(func(context.Context) error { return errors.New("locked") }))
	if p.Name() != "sqlite" {
		t.Fatalf("name = %q", p.Name())
	}
	err := p.Ping(context.Background())
	if err == nil {
		t.Fatal("expected wrapped error")
	}
}

// pingFunc adapts a function to the pingable interface.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
