package messaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
)

// Service handles posting, fetching and searching messages.
type Service struct {
	messages         MessageRepository
	access           AccessControl
	ranker           Ranker
	maxMessageLength int
	retention        time.Duration
	logger           *slog.Logger
}

// Settings carries the messaging limits from configuration.
type Settings struct {
	MaxMessageLength     int
	MessageRetentionDays int
}

// NewService creates a new messaging service.
func NewService(messages MessageRepository, access AccessControl, ranker Ranker, settings Settings, logger *slog.Logger) *Service {
	if ranker == nil {
		ranker = &RecencyRanker{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if settings.MaxMessageLength <= 0 {
		settings.MaxMessageLength = 4000
	}
	return &Service{
		messages:         messages,
		access:           access,
		ranker:           ranker,
		maxMessageLength: settings.MaxMessageLength,
		retention:        time.Duration(settings.MessageRetentionDays) * 24 * time.Hour,
		logger:           logger,
	}
}

// PostRequest describes a message post.
type PostRequest struct {
	ChannelID  string
	Sender     identity.AgentRef
	Content    string
	Metadata   map[string]any
	Confidence *float64
	ThreadID   *int64
}

// Post validates, annotates mentions and inserts the message. The
// membership check and the insert share one write transaction, so a sender
// removed concurrently cannot land a message after the removal commits.
// Invalid and unknown mentions never fail the post; they are recorded in
// the stored metadata for the caller to surface.
func (s *Service) Post(ctx context.Context, req PostRequest) (*Message, error) {
	if req.ChannelID == "" || req.Sender.Name == "" || req.Content == "" {
		return nil, ErrInvalidInput
	}
	if len(req.Content) > s.maxMessageLength {
		return nil, ErrMessageTooLong
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	if refs := ExtractMentions(req.Content); len(refs) > 0 {
		part, err := s.access.ValidateMentions(ctx, req.ChannelID, refs)
		if err != nil {
			return nil, err
		}
		metadata[metaMentions] = map[string]any{
			"valid":   agentKeys(part.Valid),
			"invalid": agentKeys(part.Invalid),
			"unknown": agentKeys(part.Unknown),
		}
	}

	msg := &Message{
		ChannelID:  req.ChannelID,
		Sender:     req.Sender,
		Content:    req.Content,
		Metadata:   metadata,
		Confidence: req.Confidence,
		ThreadID:   req.ThreadID,
		Timestamp:  time.Now(),
	}
	id, err := s.messages.Create(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ID = id
	return msg, nil
}

// Fetch returns messages from a channel the caller belongs to.
func (s *Service) Fetch(ctx context.Context, caller identity.AgentRef, opts ListMessagesOptions) ([]Message, error) {
	if opts.ChannelID == "" {
		return nil, ErrInvalidInput
	}
	if _, err := s.access.GetChannel(ctx, opts.ChannelID); err != nil {
		return nil, err
	}
	if _, err := s.access.GetMember(ctx, opts.ChannelID, caller); err != nil {
		return nil, err
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	return s.messages.List(ctx, opts)
}

// Search runs a content search restricted to channels the caller can
// access, then hands the candidate set to the ranker. Results come back
// ordered by final score descending, then id descending.
func (s *Service) Search(ctx context.Context, caller identity.AgentRef, req SearchRequest) ([]ScoredMessage, error) {
	accessible, err := s.access.AccessibleChannelIDs(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("listing accessible channels: %w", err)
	}
	channelIDs := accessible
	if len(req.ChannelIDs) > 0 {
		channelIDs = intersect(req.ChannelIDs, accessible)
	}
	if len(channelIDs) == 0 {
		return []ScoredMessage{}, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	candidates, err := s.messages.Candidates(ctx, CandidateOptions{
		Query:           req.Query,
		ChannelIDs:      channelIDs,
		ProjectIDs:      req.ProjectIDs,
		MetadataFilters: req.MetadataFilters,
		// Over-fetch so the ranker has room to reorder before the cut.
		Limit: limit * 4,
	})
	if err != nil {
		return nil, fmt.Errorf("collecting candidates: %w", err)
	}

	scored, err := s.ranker.Rank(ctx, req.Query, req.RankingProfile, candidates)
	if err != nil {
		return nil, fmt.Errorf("ranking candidates: %w", err)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].FinalScore != scored[j].FinalScore {
			return scored[i].FinalScore > scored[j].FinalScore
		}
		return scored[i].Message.ID > scored[j].Message.ID
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// WriteNote appends to the agent's private notes channel, provisioning it
// on first use.
func (s *Service) WriteNote(ctx context.Context, agent identity.AgentRef, content, sessionContext string, tags []string) (*Message, error) {
	ch, err := s.access.EnsureNotesChannel(ctx, agent)
	if err != nil {
		return nil, err
	}
	metadata := map[string]any{metaType: metaTypeNote}
	if len(tags) > 0 {
		metadata[metaTags] = tags
	}
	if sessionContext != "" {
		metadata[metaSessionContext] = sessionContext
	}
	return s.Post(ctx, PostRequest{
		ChannelID: ch.ID,
		Sender:    agent,
		Content:   content,
		Metadata:  metadata,
	})
}

// SearchNotes searches the agent's notes channel, optionally filtering by
// tags.
func (s *Service) SearchNotes(ctx context.Context, agent identity.AgentRef, query string, tags []string, limit int) ([]ScoredMessage, error) {
	ch, err := s.access.EnsureNotesChannel(ctx, agent)
	if err != nil {
		return nil, err
	}
	req := SearchRequest{
		Query:      query,
		ChannelIDs: []string{ch.ID},
		Limit:      limit,
	}
	if len(tags) > 0 {
		req.MetadataFilters = map[string]any{metaTags: tags}
	}
	return s.Search(ctx, agent, req)
}

// RecentNotes returns the agent's latest notes.
func (s *Service) RecentNotes(ctx context.Context, agent identity.AgentRef, limit int) ([]Message, error) {
	ch, err := s.access.EnsureNotesChannel(ctx, agent)
	if err != nil {
		return nil, err
	}
	return s.Fetch(ctx, agent, ListMessagesOptions{ChannelID: ch.ID, Limit: limit})
}

// PruneExpired deletes messages past the retention window. Notes are kept
// forever. A zero retention disables pruning.
func (s *Service) PruneExpired(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-s.retention)
	n, err := s.messages.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning messages: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned expired messages", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func agentKeys(refs []identity.AgentRef) []string {
	keys := make([]string, 0, len(refs))
	for _, r := range refs {
		keys = append(keys, r.Key())
	}
	return keys
}

func intersect(requested, accessible []string) []string {
	allowed := make(map[string]bool, len(accessible))
	for _, id := range accessible {
		allowed[id] = true
	}
	var out []string
	for _, id := range requested {
		if allowed[id] {
			out = append(out, id)
		}
	}
	return out
}
