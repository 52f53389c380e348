package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
)

// FallbackRecord is a tool call captured on disk while the store was
// busy. Pending files form a queue consumed at the next session start and
// deleted once re-ingested.
type FallbackRecord struct {
	SessionID string         `json:"session_id"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_inputs"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// WriteFallback appends a record to the sessions directory. File names
// are unique so concurrent hooks never clobber each other.
func WriteFallback(dir string, rec FallbackRecord) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating sessions dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding fallback record: %w", err)
	}
	name := fmt.Sprintf("%s-%s.json", rec.SessionID, uuid.NewString())
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing fallback file: %w", err)
	}
	return nil
}

// ReingestFallbacks replays pending fallback files into the store. Each
// file is deleted only after its tool call commits; files that fail stay
// queued for the next run.
func ReingestFallbacks(ctx context.Context, dir string, svc *identity.Service, logger *slog.Logger) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read sessions dir", "dir", dir, "error", err)
		}
		return 0
	}

	ingested := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("failed to read fallback file", "path", path, "error", err)
			continue
		}
		var rec FallbackRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			logger.Warn("discarding malformed fallback file", "path", path, "error", err)
			_ = os.Remove(path)
			continue
		}

		if _, err := svc.RecordToolCall(ctx, rec.SessionID, rec.ToolName, rec.ToolInput); err != nil {
			logger.Warn("failed to re-ingest fallback", "path", path, "error", err)
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.Warn("failed to remove fallback file", "path", path, "error", err)
			continue
		}
		ingested++
	}
	return ingested
}
