package scheduler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relaycore/assistant-core/pkg/models"
)

func TestHTTPResumerPostsJobRoutingToResumeEndpoint(t *testing.T) {
	var got resumeRequestBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/resume" {
			t.Errorf("path = %s, want /internal/resume", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resumer := NewHTTPResumer(server.URL, server.Client(), nil)
	job := &models.ScheduledJob{
		ID:                "job-1",
		UserID:            "user-1",
		Platform:          "discord",
		PlatformChannelID: "chan-1",
		OnSuccessMessage:  "the build finished",
	}

	if err := resumer.Resume(t.Context(), job); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if got.UserID != "user-1" || got.Content != "the build finished" {
		t.Fatalf("got %+v", got)
	}
}

func TestHTTPResumerReturnsErrorOnNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	resumer := NewHTTPResumer(server.URL, server.Client(), nil)
	job := &models.ScheduledJob{ID: "job-1", UserID: "user-1", Platform: "discord", PlatformChannelID: "chan-1"}
	if err := resumer.Resume(t.Context(), job); err == nil {
		t.Fatal("expected error on 500 response")
	}
}
