package messaging

import (
	"time"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
)

// Message is an immutable post in a channel
type Message struct {
	ID         int64          `json:"id"`
	ChannelID  string         `json:"channel_id"`
	Sender     identity.AgentRef `json:"sender"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	ThreadID   *int64         `json:"thread_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ScoredMessage is a search hit with its ranking breakdown
type ScoredMessage struct {
	Message    Message            `json:"message"`
	FinalScore float64            `json:"final_score"`
	SubScores  map[string]float64 `json:"scores,omitempty"`
}

// ListMessagesOptions filters message fetches.
type ListMessagesOptions struct {
	ChannelID string
	Limit     int
	Offset    int
	Since     *time.Time
	Before    *time.Time
}

// SearchRequest describes a content search.
type SearchRequest struct {
	Query           string
	ChannelIDs      []string
	ProjectIDs      []string
	MetadataFilters map[string]any
	RankingProfile  string
	Limit           int
}

// CandidateOptions is the repository-level candidate query: the channel
// set has already been intersected with what the caller can access.
type CandidateOptions struct {
	Query           string
	ChannelIDs      []string
	ProjectIDs      []string
	MetadataFilters map[string]any
	Limit           int
}

// Note metadata keys used by the notes API.
const (
	metaType           = "type"
	metaTypeNote       = "note"
	metaTags           = "tags"
	metaSessionContext = "session_context"
	metaMentions       = "mentions"
)
