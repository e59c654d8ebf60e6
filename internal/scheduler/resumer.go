package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/relaycore/assistant-core/internal/svcauth"
	"github.com/relaycore/assistant-core/pkg/models"
)

// HTTPResumer implements Resumer by POSTing to the orchestrator's internal
// resume endpoint, re-entering the agent loop with the job's stored
// routing fields on the orchestrator's behalf.
type HTTPResumer struct {
	baseURL string
	client  *http.Client
	auth    *svcauth.Service
}

// NewHTTPResumer builds an HTTPResumer targeting the orchestrator at
// baseURL (e.g. "http://orchestrator:8080").
func NewHTTPResumer(baseURL string, client *http.Client, auth *svcauth.Service) *HTTPResumer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPResumer{baseURL: strings.TrimRight(baseURL, "/"), client: client, auth: auth}
}

type resumeRequestBody struct {
	UserID    string  `json:"user_id"`
	Platform  string  `json:"platform"`
	ChannelID string  `json:"channel_id"`
	ThreadID  *string `json:"thread_id,omitempty"`
	Content   string  `json:"content"`
}

// Resume re-enters the orchestrator's turn loop for job.
func (r *HTTPResumer) Resume(ctx context.Context, job *models.ScheduledJob) error {
	body, err := json.Marshal(resumeRequestBody{
		UserID:    job.UserID,
		Platform:  job.Platform,
		ChannelID: job.PlatformChannelID,
		ThreadID:  job.PlatformThreadID,
		Content:   job.OnSuccessMessage,
	})
	if err != nil {
		return fmt.Errorf("resumer: encode resume body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/internal/resume", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("resumer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.auth != nil {
		r.auth.SetBearer(req)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("resumer: post resume for job %s: %w", job.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("resumer: orchestrator responded with status %d for job %s", resp.StatusCode, job.ID)
	}
	return nil
}
