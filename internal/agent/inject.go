package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/relaycore/assistant-core/pkg/models"
)

// credentialResolver decrypts a stored user credential at the one call
// site permitted to see its plaintext: immediately before it is folded
// into a tool call's arguments for dispatch.
type credentialResolver interface {
	Get(ctx context.Context, userID, service, key string) (string, error)
}

// notificationCapableModulePrefixes lists the module prefixes whose tools
// persist rows a worker later delivers proactively (scheduled jobs,
// geofence reminders). Calls into these modules must carry enough routing
// information in their arguments for that later delivery to find its way
// back to the right channel.
var notificationCapableModulePrefixes = []string{"scheduler.", "location."}

func isNotificationCapable(toolName string) bool {
	for _, prefix := range notificationCapableModulePrefixes {
		if strings.HasPrefix(toolName, prefix) {
			return true
		}
	}
	return false
}

func hasParameter(def *models.ToolDefinition, name string) bool {
	if def == nil {
		return false
	}
	for _, p := range def.Parameters {
		if p.Name == name {
			return true
		}
	}
	return false
}

// injectContext folds conversation routing into a tool call's arguments
// before dispatch: platform/channel/thread for notification-capable
// modules (so a scheduled job or geofence reminder created by this call
// can be delivered later), user_id whenever the tool's own schema names
// it, and a decrypted credential when the tool definition declares one.
// A credential lookup failure does not fail the call: the module receives
// the tool call without the credential argument and reports its own
// auth error, since the agent loop is not the right layer to interpret
// "this integration was never connected" versus "decrypt failed".
func injectContext(ctx context.Context, call models.ToolCall, def *models.ToolDefinition, userID string, conv *models.Conversation, creds credentialResolver) (models.ToolCall, error) {
	needsRouting := isNotificationCapable(call.ToolName)
	needsUserID := hasParameter(def, "user_id")
	needsCredential := def != nil && def.RequiredCredential != nil && creds != nil
	if !needsRouting && !needsUserID && !needsCredential {
		return call, nil
	}

	args := map[string]json.RawMessage{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return call, fmt.Errorf("inject context: decode arguments for %s: %w", call.ToolName, err)
		}
	}

	if needsUserID {
		encoded, _ := json.Marshal(userID)
		args["user_id"] = encoded
	}
	if needsRouting {
		platform, _ := json.Marshal(conv.Platform)
		channel, _ := json.Marshal(conv.PlatformChannelID)
		thread, _ := json.Marshal(conv.PlatformThreadID)
		args["platform"] = platform
		args["platform_channel_id"] = channel
		args["platform_thread_id"] = thread
	}
	if needsCredential {
		req := def.RequiredCredential
		if value, err := creds.Get(ctx, userID, req.Service, req.Key); err == nil {
			encoded, _ := json.Marshal(value)
			args[req.ArgName] = encoded
		}
	}

	encoded, err := json.Marshal(args)
	if err != nil {
		return call, fmt.Errorf("inject context: encode arguments for %s: %w", call.ToolName, err)
	}
	call.Arguments = encoded
	return call, nil
}
