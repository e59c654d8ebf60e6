package toolregistry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relaycore/assistant-core/pkg/models"
)

func TestDispatchSucceedsAgainstRegisteredModule(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req executeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ToolName != "get_forecast" || req.UserID != "user-1" {
			t.Errorf("unexpected execute request: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.ToolResult{Success: true, Result: json.RawMessage(`{"temp":72}`)})
	}))
	defer server.Close()

	reg := New(Config{Endpoints: map[string]string{"weather": server.URL}}, nil, nil, nil)

	result := reg.Dispatch(context.Background(), "user-1", models.ToolCall{
		ToolName: "weather.get_forecast", ToolUseID: "tc1", Arguments: json.RawMessage(`{"city":"nyc"}`),
	})
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.ToolName != "weather.get_forecast" {
		t.Fatalf("expected canonical tool name preserved, got %q", result.ToolName)
	}
}

func TestDispatchReturnsErrorResultForUnregisteredModule(t *testing.T) {
	reg := New(Config{}, nil, nil, nil)
	result := reg.Dispatch(context.Background(), "user-1", models.ToolCall{ToolName: "weather.get_forecast"})
	if result.Success {
		t.Fatal("expected failure for unregistered module")
	}
}

func TestDispatchReturnsErrorResultForMalformedToolName(t *testing.T) {
	reg := New(Config{}, nil, nil, nil)
	result := reg.Dispatch(context.Background(), "user-1", models.ToolCall{ToolName: "no_dot_here"})
	if result.Success {
		t.Fatal("expected failure for malformed tool name")
	}
}

func TestDispatchReturnsErrorResultForNon2xxResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	reg := New(Config{Endpoints: map[string]string{"weather": server.URL}}, nil, nil, nil)
	result := reg.Dispatch(context.Background(), "user-1", models.ToolCall{ToolName: "weather.get_forecast"})
	if result.Success {
		t.Fatal("expected failure for 500 response")
	}
}

func TestDispatchReturnsErrorResultOnTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reg := New(Config{Endpoints: map[string]string{"weather": server.URL}, DispatchTimeout: time.Millisecond}, nil, nil, nil)
	result := reg.Dispatch(context.Background(), "user-1", models.ToolCall{ToolName: "weather.get_forecast"})
	if result.Success {
		t.Fatal("expected timeout failure")
	}
}

func TestSplitToolName(t *testing.T) {
	module, tool, ok := splitToolName("weather.get_forecast")
	if !ok || module != "weather" || tool != "get_forecast" {
		t.Fatalf("unexpected split: module=%q tool=%q ok=%v", module, tool, ok)
	}
	if _, _, ok := splitToolName("nodothere"); ok {
		t.Fatal("expected ok=false for name without a dot")
	}
}
