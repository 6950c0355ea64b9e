package core

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"scormrelay/internal/config"
	"scormrelay/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{Environment: "local"}
	srv, err := NewServer(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func decodeErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) APIErrorResponse {
	t.Helper()
	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response %q: %v", rec.Body.String(), err)
	}
	return resp
}

// stubAuthenticator returns a fixed actor or error.
type stubAuthenticator struct {
	actor *types.Actor
	err   error
	seen  string
}

func (a *stubAuthenticator) ResolveToken(_ context.Context, token string) (*types.Actor, error) {
	a.seen = token
	return a.actor, a.err
}

// stubRateLimitStore returns a fixed result and records keys.
type stubRateLimitStore struct {
	mu     sync.Mutex
	result RateLimitResult
	err    error
	keys   []string
}

func (s *stubRateLimitStore) IncrementAndCheck(_ context.Context, key string, _ int, _ time.Duration) (RateLimitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return s.result, s.err
}

// recordingMetrics records every RecordRequest call.
type recordingMetrics struct {
	mu    sync.Mutex
	calls []metricCall
}

type metricCall struct {
	method, endpoint, status string
}

func (m *recordingMetrics) RecordRequest(method, endpoint, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, metricCall{method, endpoint, status})
}
