// Package hooks implements the session-start and pre-tool-use hooks
// launched by the host. Hooks never propagate failure: they log and exit
// zero so the host is never blocked.
package hooks

import (
	"encoding/json"
	"fmt"
	"io"
)

// Payload is the JSON document the host writes to a hook's stdin.
type Payload struct {
	SessionID      string         `json:"session_id"`
	CWD            string         `json:"cwd"`
	HookEventName  string         `json:"hook_event_name"`
	TranscriptPath string         `json:"transcript_path"`
	ToolName       string         `json:"tool_name"`
	ToolInput      map[string]any `json:"tool_input"`
}

// ReadPayload decodes a hook payload from stdin. An empty stream yields a
// nil payload, which hooks treat as a no-op.
func ReadPayload(r io.Reader) (*Payload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading hook input: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decoding hook payload: %w", err)
	}
	return &payload, nil
}
