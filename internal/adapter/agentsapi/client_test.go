package agentsapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/CaseForge/internal/adapter/agentsapi"
	"github.com/Strob0t/CaseForge/internal/domain"
	"github.com/Strob0t/CaseForge/internal/port/pipeline"
	"github.com/Strob0t/CaseForge/internal/resilience"
)

func TestQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if got := r.URL.Query().Get("isnewproject"); got != "true" {
			t.Errorf("expected isnewproject=true, got %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["query"] != "upload flows" || body["session_id"] != "s1" || body["user_id"] != "qa" {
			t.Errorf("unexpected body %v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response": "{\"epics\": []}", "debug_info": "3 events"}`))
	}))
	defer srv.Close()

	c := agentsapi.NewClient(srv.URL+"/query", 5*time.Second)
	got, err := c.Query(context.Background(), pipeline.Request{SessionID: "s1", UserID: "qa", Prompt: "upload flows", NewSession: true})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if got != `{"epics": []}` {
		t.Errorf("unexpected answer %q", got)
	}
}

func TestQuerySessionExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such session", http.StatusNotFound)
	}))
	defer srv.Close()

	c := agentsapi.NewClient(srv.URL, 5*time.Second)
	c.SetBreaker(resilience.NewBreaker(1, time.Minute))

	for range 3 {
		_, err := c.Query(context.Background(), pipeline.Request{SessionID: "s1", Prompt: "x"})
		if !errors.Is(err, pipeline.ErrSessionExpired) {
			t.Fatalf("expected ErrSessionExpired, got %v", err)
		}
	}
}

func TestQueryErrorInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response": "Error processing query: model overloaded", "debug_info": ""}`))
	}))
	defer srv.Close()

	_, err := agentsapi.NewClient(srv.URL, 5*time.Second).Query(context.Background(), pipeline.Request{Prompt: "x"})
	if !errors.Is(err, domain.ErrUpstream) || !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("expected pipeline error, got %v", err)
	}
}

func TestQueryBreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := agentsapi.NewClient(srv.URL, 5*time.Second)
	c.SetBreaker(resilience.NewBreaker(2, time.Minute))
	ctx := context.Background()

	for range 2 {
		_, err := c.Query(ctx, pipeline.Request{Prompt: "x"})
		var se *agentsapi.StatusError
		if !errors.As(err, &se) || se.Code != http.StatusBadGateway || !errors.Is(err, domain.ErrUpstream) {
			t.Fatalf("expected StatusError 502, got %v", err)
		}
	}
	if _, err := c.Query(ctx, pipeline.Request{Prompt: "x"}); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 upstream calls, got %d", calls.Load())
	}
}

func TestQueryTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := agentsapi.NewClient(srv.URL, 20*time.Millisecond).Query(context.Background(), pipeline.Request{Prompt: "x"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
