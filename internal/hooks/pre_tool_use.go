package hooks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/sqlite"
)

// IsSlackTool reports whether the tool invocation belongs to claude-slack.
// MCP tools may surface either as a prefixed tool name or as a generic
// "mcp" tool whose input names the server.
func IsSlackTool(toolName string, toolInput map[string]any) bool {
	if strings.Contains(toolName, "claude_slack") || strings.Contains(toolName, "claude-slack") {
		return true
	}
	if toolName == "mcp" {
		return strings.Contains(fmt.Sprint(toolInput), "claude-slack")
	}
	return false
}

// PreToolUse records the tool call for session tracking. When the store
// is busy the call is captured in a fallback file instead; the next
// session start replays it.
func (r *Runner) PreToolUse(ctx context.Context, payload *Payload) error {
	if payload == nil || payload.SessionID == "" {
		r.Logger.Debug("no payload, passing through")
		return nil
	}
	if !IsSlackTool(payload.ToolName, payload.ToolInput) {
		r.Logger.Debug("not a slack tool, passing through", "tool", payload.ToolName)
		return nil
	}

	if err := r.recordToolCall(ctx, payload); err != nil {
		r.Logger.Warn("store unavailable, falling back to file", "error", err)
		return WriteFallback(r.Env.SessionsDir, FallbackRecord{
			SessionID: payload.SessionID,
			ToolName:  payload.ToolName,
			ToolInput: payload.ToolInput,
			UpdatedAt: time.Now(),
		})
	}
	return nil
}

func (r *Runner) recordToolCall(ctx context.Context, payload *Payload) error {
	if err := os.MkdirAll(filepath.Dir(r.Env.DBPath), 0o755); err != nil {
		return fmt.Errorf("preparing database dir: %w", err)
	}
	db, err := sqlite.New(r.Env.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	svc := identity.NewService(
		sqlite.NewProjectRepository(db),
		sqlite.NewAgentRepository(db),
		sqlite.NewSessionRepository(db),
		r.Logger,
	)
	id, err := svc.RecordToolCall(ctx, payload.SessionID, payload.ToolName, payload.ToolInput)
	if err != nil {
		return err
	}
	r.Logger.Info("recorded tool call", "id", id, "tool", payload.ToolName, "session", payload.SessionID)
	return nil
}
