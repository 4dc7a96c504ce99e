package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tabletalk/tabletalk/internal/auth"
	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/memory"
)

type fakeAgent struct {
	lastQuestion string
	answer       string
}

func (f *fakeAgent) Respond(_ context.Context, question string) string {
	f.lastQuestion = question
	return f.answer
}

type fakeLoader struct {
	lastURL   string
	lastToken string
	result    string
}

func (f *fakeLoader) LoadFromURL(_ context.Context, rawURL, token string) string {
	f.lastURL = rawURL
	f.lastToken = token
	return f.result
}

type fakeHistory struct {
	interactions []memory.Interaction
	err          error
}

func (f *fakeHistory) ListInteractions(_ context.Context) ([]memory.Interaction, error) {
	return f.interactions, f.err
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("tabletalk-api", func(key string) (string, bool) {
		if key == "TABLETALK_PROFILE" {
			return "test", true
		}
		return "", false
	})
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func newTestHandler(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return NewHandler(testConfig(t), deps)
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestHandler(t, Dependencies{})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %v", body["status"])
	}
}

func TestReadyEndpointReportsFailure(t *testing.T) {
	handler := newTestHandler(t, Dependencies{
		Readiness: func(context.Context) error { return errors.New("store unreachable") },
	})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := newTestHandler(t, Dependencies{})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAskEndpoint(t *testing.T) {
	agent := &fakeAgent{answer: "There is one employee from Spain."}
	handler := newTestHandler(t, Dependencies{Agent: agent})

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"How many employees are from Spain?"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var body askResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Answer != agent.answer {
		t.Fatalf("answer = %q", body.Answer)
	}
	if agent.lastQuestion != "How many employees are from Spain?" {
		t.Fatalf("question passed = %q", agent.lastQuestion)
	}
}

func TestAskEndpointValidation(t *testing.T) {
	handler := newTestHandler(t, Dependencies{Agent: &fakeAgent{answer: "x"}})

	cases := []struct {
		name string
		body string
	}{
		{"empty question", `{"question":"  "}`},
		{"invalid json", `{`},
		{"unknown field", `{"question":"q","extra":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestAskEndpointNotConfigured(t *testing.T) {
	handler := newTestHandler(t, Dependencies{})
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"q"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestIngestEndpoint(t *testing.T) {
	loader := &fakeLoader{result: "Success: Data stored in table 'data_20240315_103000'."}
	handler := newTestHandler(t, Dependencies{Loader: loader})

	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(`{"url":"https://example.com/d.json","token":"tok"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if loader.lastURL != "https://example.com/d.json" || loader.lastToken != "tok" {
		t.Fatalf("loader got %q / %q", loader.lastURL, loader.lastToken)
	}
}

func TestIngestEndpointFailureStatus(t *testing.T) {
	loader := &fakeLoader{result: "Error: Failed to fetch data: unexpected status 404"}
	handler := newTestHandler(t, Dependencies{Loader: loader})

	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(`{"url":"https://example.com/missing"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}
}

func TestIngestEndpointRequiresURL(t *testing.T) {
	handler := newTestHandler(t, Dependencies{Loader: &fakeLoader{result: "x"}})
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(`{"url":""}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	history := &fakeHistory{interactions: []memory.Interaction{
		{ID: 1, Timestamp: now, UserQuery: "q1", SQLQuery: "SELECT 1", SQLResult: "[(1)]", FinalAnswer: "a1"},
		{ID: 2, Timestamp: now.Add(time.Minute), UserQuery: "q2", SQLQuery: "NO_SQL", SQLResult: "No relevant data found.", FinalAnswer: "a2"},
	}}
	handler := newTestHandler(t, Dependencies{History: history})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body historyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Interactions) != 2 {
		t.Fatalf("interactions = %d, want 2", len(body.Interactions))
	}
	if body.Interactions[0].UserQuery != "q1" || body.Interactions[1].FinalAnswer != "a2" {
		t.Fatalf("unexpected payload: %+v", body.Interactions)
	}
}

func TestHistoryEndpointError(t *testing.T) {
	handler := newTestHandler(t, Dependencies{History: &fakeHistory{err: fmt.Errorf("db closed")}})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAuthProtectsEndpointsWhenRequired(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Required = true
	validator, err := auth.NewStaticAPIKeyValidator("k1:analyst")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	handler := NewHandler(cfg, Dependencies{
		Logger:         slog.New(slog.NewJSONHandler(io.Discard, nil)),
		AuthMiddleware: auth.Middleware(nil, validator),
		Agent:          &fakeAgent{answer: "hi"},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"q"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"q"}`))
	req.Header.Set("X-API-Key", "k1")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, body = %s", rr.Code, rr.Body.String())
	}

	// Health stays open even with auth required.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}
}

func TestTraceHeaderIsSet(t *testing.T) {
	handler := newTestHandler(t, Dependencies{})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rr.Header().Get("X-Trace-ID") == "" {
		t.Fatal("expected X-Trace-ID header")
	}
}
