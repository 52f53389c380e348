package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/theo-nash/claude-slack/internal/domain/messaging"
)

// Candidates returns messages matching the query and filters within the
// given channel set. Channel access has already been resolved by the
// caller; an empty channel set yields no rows. Full-text matching runs
// over the messages_fts index; metadata filters use json_extract paths.
func (r *MessageRepository) Candidates(ctx context.Context, opts messaging.CandidateOptions) ([]messaging.Message, error) {
	if len(opts.ChannelIDs) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	var args []any

	sb.WriteString(`SELECT m.id, m.channel_id, m.sender_name, m.sender_project_id, m.content, m.metadata, m.confidence, m.thread_id, m.timestamp FROM messages m`)
	if opts.Query != "" {
		sb.WriteString(` JOIN messages_fts ON messages_fts.rowid = m.id`)
	}

	placeholders := make([]string, len(opts.ChannelIDs))
	for i, id := range opts.ChannelIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	sb.WriteString(` WHERE m.channel_id IN (` + strings.Join(placeholders, ",") + `)`)

	if opts.Query != "" {
		sb.WriteString(` AND messages_fts MATCH ?`)
		args = append(args, ftsQuery(opts.Query))
	}

	if len(opts.ProjectIDs) > 0 {
		ph := make([]string, len(opts.ProjectIDs))
		for i, id := range opts.ProjectIDs {
			ph[i] = "?"
			args = append(args, id)
		}
		sb.WriteString(` AND EXISTS (SELECT 1 FROM channels c WHERE c.id = m.channel_id AND c.project_id IN (` + strings.Join(ph, ",") + `))`)
	}

	for key, value := range opts.MetadataFilters {
		path := "$." + key
		var list []any
		switch v := value.(type) {
		case []string:
			for _, item := range v {
				list = append(list, item)
			}
		case []any:
			list = v
		}
		if list != nil {
			ph := make([]string, len(list))
			for i := range list {
				ph[i] = "?"
			}
			sb.WriteString(` AND EXISTS (SELECT 1 FROM json_each(m.metadata, ?) WHERE json_each.value IN (` + strings.Join(ph, ",") + `))`)
			args = append(args, path)
			args = append(args, list...)
		} else {
			sb.WriteString(` AND json_extract(m.metadata, ?) = ?`)
			args = append(args, path, value)
		}
	}

	sb.WriteString(` ORDER BY m.id DESC`)
	if opts.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// ftsQuery quotes each term so user input cannot inject FTS5 operators.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}
