package toolregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/relaycore/assistant-core/pkg/models"
)

// ErrModuleNotRegistered indicates a tool call named a module with no
// known endpoint.
var ErrModuleNotRegistered = errors.New("toolregistry: module not registered")

// executeRequest is the body POSTed to a module's /execute endpoint.
type executeRequest struct {
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
	UserID    string          `json:"user_id"`
}

// splitToolName splits a canonical "module.tool" name on the first '.'.
func splitToolName(name string) (module, tool string, ok bool) {
	idx := strings.Index(name, ".")
	if idx < 0 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}

// Dispatch executes call against its owning module's /execute endpoint.
// The module is never allowed to panic the agent loop: timeouts, network
// errors, non-2xx responses, malformed tool names and unregistered modules
// all convert into a failed ToolResult rather than a Go error.
func (r *Registry) Dispatch(ctx context.Context, userID string, call models.ToolCall) models.ToolResult {
	start := time.Now()
	result := r.dispatch(ctx, userID, call)
	if r.metrics != nil {
		status := "success"
		if !result.Success {
			status = "error"
		}
		r.metrics.ToolDispatchDuration.WithLabelValues(call.ToolName).Observe(time.Since(start).Seconds())
		r.metrics.ToolDispatchCounter.WithLabelValues(call.ToolName, status).Inc()
	}
	return result
}

func (r *Registry) dispatch(ctx context.Context, userID string, call models.ToolCall) models.ToolResult {
	module, tool, ok := splitToolName(call.ToolName)
	if !ok {
		return errorResult(call.ToolName, fmt.Sprintf("malformed tool name %q: expected module.tool", call.ToolName))
	}

	baseURL, registered := r.endpoints[module]
	if !registered {
		return errorResult(call.ToolName, fmt.Sprintf("module %q is not registered", module))
	}

	body, err := json.Marshal(executeRequest{ToolName: tool, Arguments: call.Arguments, UserID: userID})
	if err != nil {
		return errorResult(call.ToolName, fmt.Sprintf("encode tool call: %v", err))
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, r.dispatchTimeout)
	defer cancel()

	url := strings.TrimRight(baseURL, "/") + r.executePath
	req, err := http.NewRequestWithContext(dispatchCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errorResult(call.ToolName, fmt.Sprintf("build dispatch request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if r.auth != nil {
		r.auth.SetBearer(req)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if dispatchCtx.Err() != nil {
			return errorResult(call.ToolName, fmt.Sprintf("module %s timed out", module))
		}
		return errorResult(call.ToolName, fmt.Sprintf("dispatch to module %s failed: %v", module, err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorResult(call.ToolName, fmt.Sprintf("module %s returned status %d", module, resp.StatusCode))
	}

	var result models.ToolResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return errorResult(call.ToolName, fmt.Sprintf("module %s returned malformed response: %v", module, err))
	}
	result.ToolName = call.ToolName
	return result
}

func errorResult(toolName, message string) models.ToolResult {
	return models.ToolResult{ToolName: toolName, Success: false, Error: message}
}
